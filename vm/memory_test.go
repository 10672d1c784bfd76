package vm

import "testing"

func TestNormalizeAddressRegions(t *testing.T) {
	m := NewFlatMemory()

	cases := []struct {
		addr uint32
		want Region
	}{
		{BIOSBase, RegionBIOS},
		{EWRAMBase, RegionEWRAM},
		{IWRAMBase, RegionIWRAM},
		{IOBase, RegionIO},
		{PaletteBase, RegionPalette},
		{VRAMBase, RegionVRAM},
		{OAMBase, RegionOAM},
		{ROMBase, RegionROM},
		{SRAMBase, RegionSRAM},
	}
	for _, c := range cases {
		_, region := m.NormalizeAddress(c.addr)
		if region != c.want {
			t.Errorf("NormalizeAddress(%#x) region = %v, want %v", c.addr, region, c.want)
		}
	}
}

func TestFlatMemoryReadWriteRoundTrip(t *testing.T) {
	m := NewFlatMemory()

	m.Write32(IWRAMBase, 0xDEADBEEF, false)
	got, info := m.Read32(IWRAMBase, false, false)
	if got != 0xDEADBEEF {
		t.Errorf("Read32(IWRAMBase) = %#x, want 0xDEADBEEF", got)
	}
	if info.Region != RegionIWRAM {
		t.Errorf("Read32(IWRAMBase) region = %v, want RegionIWRAM", info.Region)
	}

	m.Write16(EWRAMBase+4, 0x1234, false)
	got16, _ := m.Read16(EWRAMBase+4, false, false)
	if got16 != 0x1234 {
		t.Errorf("Read16(EWRAMBase+4) = %#x, want 0x1234", got16)
	}

	m.Write8(IWRAMBase+8, 0x42, false)
	got8, _ := m.Read8(IWRAMBase+8, false, false)
	if got8 != 0x42 {
		t.Errorf("Read8(IWRAMBase+8) = %#x, want 0x42", got8)
	}
}

func TestFlatMemoryLoadROM(t *testing.T) {
	m := NewFlatMemory()
	rom := make([]byte, 0x100)
	rom[0xA0] = 'T'
	rom[0xA1] = 'E'
	rom[0xA2] = 'S'
	rom[0xA3] = 'T'
	m.LoadROM(rom)

	got, info := m.Read8(ROMBase+0xA0, false, false)
	if got != 'T' {
		t.Errorf("Read8(ROMBase+0xA0) = %q, want 'T'", got)
	}
	if info.Region != RegionROM {
		t.Errorf("Read8(ROMBase+0xA0) region = %v, want RegionROM", info.Region)
	}
}

func TestFlatMemoryDefaultROMWaitStates(t *testing.T) {
	m := NewFlatMemory()

	if got := m.CyclesNonSeq(ROMBase, Access16); got != 4 {
		t.Errorf("CyclesNonSeq(ROMBase) = %d, want 4", got)
	}
	if got := m.CyclesSeq(ROMBase, Access16); got != 2 {
		t.Errorf("CyclesSeq(ROMBase) = %d, want 2", got)
	}
}
