package disasm

import "testing"

func TestLineARMDataProcessing(t *testing.T) {
	// MOV R0, #5 (cond=AL, I=1, MOV, Rd=0), same opcode exercised by
	// vm's executor test.
	got := Line(0, 0xE3A00005, false)
	want := "MOV r0, #..."
	if got != want {
		t.Errorf("Line(MOV R0,#5) = %q, want %q", got, want)
	}
}

func TestLineARMBranch(t *testing.T) {
	// B -2 (self-loop): target == instruction address.
	got := Line(0x08000000, 0xEAFFFFFE, false)
	want := "B 0x08000000"
	if got != want {
		t.Errorf("Line(B -2) = %q, want %q", got, want)
	}
}

func TestLineARMBranchExchange(t *testing.T) {
	got := Line(0, 0xE12FFF1E, false) // BX LR
	want := "BX r14"
	if got != want {
		t.Errorf("Line(BX LR) = %q, want %q", got, want)
	}
}

func TestLineARMSWI(t *testing.T) {
	got := Line(0, 0xEF000006, false) // SWI 0x06 (Div)
	want := "SWI 0x000006"
	if got != want {
		t.Errorf("Line(SWI 0x06) = %q, want %q", got, want)
	}
}

func TestLineUnknownWordFallback(t *testing.T) {
	got := Line(0, 0xEC000000, false)
	if want := ".word 0xEC000000"; got != want {
		t.Errorf("Line(0xEC000000) = %q, want fallback rendering %q", got, want)
	}
}
