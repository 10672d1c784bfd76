package tools

import "testing"

func validHeader() []byte {
	data := make([]byte, headerMinSize)
	data[offEntry+3] = 0xEA
	copy(data[offLogo:], nintendoLogo)
	copy(data[offTitle:], []byte("TESTGAME"))
	data[off96h] = val96h

	var sum byte
	for i := 0xA0; i <= 0xBC; i++ {
		sum += data[i]
	}
	data[offChecksum] = -sum - 0x19
	return data
}

func TestLint_ValidHeader(t *testing.T) {
	issues := Lint(validHeader())
	if len(issues) != 0 {
		t.Errorf("expected no issues on a valid header, got %v", issues)
	}
}

func TestLint_TruncatedImage(t *testing.T) {
	issues := Lint([]byte{0x01, 0x02, 0x03})
	if len(issues) != 1 || issues[0].Code != "HEADER_TRUNCATED" {
		t.Errorf("expected a single HEADER_TRUNCATED issue, got %v", issues)
	}
}

func TestLint_BadEntryOpcode(t *testing.T) {
	data := validHeader()
	data[offEntry+3] = 0x00
	issues := Lint(data)
	if !hasCode(issues, "BAD_ENTRY_OPCODE") {
		t.Error("expected BAD_ENTRY_OPCODE")
	}
}

func TestLint_BadLogo(t *testing.T) {
	data := validHeader()
	data[offLogo] ^= 0xFF
	issues := Lint(data)
	if !hasCode(issues, "BAD_LOGO") {
		t.Error("expected BAD_LOGO")
	}
}

func TestLint_BadFixedByte(t *testing.T) {
	data := validHeader()
	data[off96h] = 0x00
	issues := Lint(data)
	if !hasCode(issues, "BAD_FIXED_BYTE") {
		t.Error("expected BAD_FIXED_BYTE")
	}
}

func TestLint_BadChecksum(t *testing.T) {
	data := validHeader()
	data[offChecksum]++
	issues := Lint(data)
	if !hasCode(issues, "BAD_CHECKSUM") {
		t.Error("expected BAD_CHECKSUM")
	}
}

func TestLint_TitleTrailingGarbage(t *testing.T) {
	data := validHeader()
	data[offTitle] = 0
	data[offTitle+1] = 'X'
	issues := Lint(data)
	if !hasCode(issues, "TITLE_TRAILING_GARBAGE") {
		t.Error("expected TITLE_TRAILING_GARBAGE")
	}
}

func hasCode(issues []*LintIssue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}
