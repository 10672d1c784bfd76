package vm

import "testing"

func TestNewCPUResetState(t *testing.T) {
	c := NewCPU()

	if c.GetPC() != 0 {
		t.Errorf("GetPC() = %#x, want 0", c.GetPC())
	}
	if c.CPSR.Mode != ModeSystem {
		t.Errorf("CPSR.Mode = %v, want ModeSystem", c.CPSR.Mode)
	}
	if !c.CPSR.I || !c.CPSR.F {
		t.Errorf("CPSR.I/F = %v/%v, want both set on reset", c.CPSR.I, c.CPSR.F)
	}
	for i := 0; i < 15; i++ {
		if got := c.Reg(i); got != 0 {
			t.Errorf("Reg(%d) = %#x, want 0", i, got)
		}
	}
}

func TestRegisterBankingPerMode(t *testing.T) {
	c := NewCPU()

	c.SetRegIn(ModeUser, SP, 0x03007F00)
	c.SetRegIn(ModeIRQ, SP, 0x03007FA0)
	c.SetRegIn(ModeSVC, SP, 0x03007FE0)

	if got := c.RegIn(ModeUser, SP); got != 0x03007F00 {
		t.Errorf("RegIn(ModeUser, SP) = %#x, want 0x03007F00", got)
	}
	if got := c.RegIn(ModeIRQ, SP); got != 0x03007FA0 {
		t.Errorf("RegIn(ModeIRQ, SP) = %#x, want 0x03007FA0", got)
	}
	if got := c.RegIn(ModeSVC, SP); got != 0x03007FE0 {
		t.Errorf("RegIn(ModeSVC, SP) = %#x, want 0x03007FE0", got)
	}

	// System mode shares the User bank.
	if got := c.RegIn(ModeSystem, SP); got != 0x03007F00 {
		t.Errorf("RegIn(ModeSystem, SP) = %#x, want User bank value 0x03007F00", got)
	}
}

func TestGetRegisterPCOffset(t *testing.T) {
	c := NewCPU()
	c.SetPC(0x08000100)

	// ARM operand view: PC reads as current instruction address + 8.
	if got := c.GetRegister(PC); got != 0x08000108 {
		t.Errorf("GetRegister(PC) (ARM) = %#x, want 0x08000108", got)
	}

	c.CPSR.T = true
	// THUMB operand view: PC reads as current instruction address + 4.
	if got := c.GetRegister(PC); got != 0x08000104 {
		t.Errorf("GetRegister(PC) (THUMB) = %#x, want 0x08000104", got)
	}
}
