package ingestion

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"
)

const (
	testProgram   = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"
	systemProgram = "11111111111111111111111111111111"

	solTipper   = "6x5SYnLroiN7WYq8NQYU9KHcH4YjpBbwpUfVu3EB7ieH"
	solCreator  = "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"
	solPlatform = "CktRuQ2mttgRGkXJtyksdKHjUdc2C4TgDzyB98oEzy8"

	sig1 = "1GMkH3brNXiNNs1tiFZHu4yZSRrzJwxi5wB9bHFtMinfCXNnR1adh8Vo8NTheK4evneedH4qmvjeqcBBNAefgS"
	sig2 = "BUguQsv2ZuHus54HAFzjdJHzZBkygAjKhEeYwSG19tUfUyvvz3worsdQCdAXDNjakJHioSiyxhFiDJrm8XpSXRA"
	sig3 = "CeD7gRMFdZKnrBxCWczhvDmfAz4ke5NFKvqAi9jSwzCQReUhecVgBJb112WuuR9eVmzFDwMsQDWEa1WWhbF3aoB"
)

func mustKey(t *testing.T, addr string) []byte {
	t.Helper()
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		t.Fatalf("bad test key %s: %v", addr, err)
	}
	return raw
}

func tipSentLine(t *testing.T, tipper, creator string, total, fee uint64) string {
	t.Helper()
	disc := eventDiscriminator(EventTipSent)
	buf := append([]byte{}, disc[:]...)
	buf = append(buf, mustKey(t, tipper)...)
	buf = append(buf, mustKey(t, creator)...)
	buf = binary.LittleEndian.AppendUint64(buf, total)
	buf = binary.LittleEndian.AppendUint64(buf, fee)
	buf = binary.LittleEndian.AppendUint64(buf, total-fee)
	buf = binary.LittleEndian.AppendUint64(buf, 1_700_000_000)
	return programDataPrefix + base64.StdEncoding.EncodeToString(buf)
}

func tipWithMemoLine(t *testing.T, tipper, creator string, total uint64, memo string) string {
	t.Helper()
	disc := eventDiscriminator(EventTipWithMemo)
	buf := append([]byte{}, disc[:]...)
	buf = append(buf, mustKey(t, tipper)...)
	buf = append(buf, mustKey(t, creator)...)
	buf = binary.LittleEndian.AppendUint64(buf, total)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(memo)))
	buf = append(buf, memo...)
	buf = binary.LittleEndian.AppendUint64(buf, 1_700_000_000)
	return programDataPrefix + base64.StdEncoding.EncodeToString(buf)
}

func tipLogLine(total, fee uint64) string {
	return fmt.Sprintf("Program log: Tip sent: %d lamports total, %d to creator, %d platform fee", total, total-fee, fee)
}

// instructionLogs wraps data lines in one top-level invocation of program.
func instructionLogs(program string, lines ...string) []string {
	logs := []string{
		"Program " + program + " invoke [1]",
		"Program log: Instruction: SendTip",
		"Program " + systemProgram + " invoke [2]",
		"Program " + systemProgram + " success",
		"Program " + systemProgram + " invoke [2]",
		"Program " + systemProgram + " success",
	}
	logs = append(logs, lines...)
	return append(logs,
		"Program "+program+" consumed 12000 of 200000 compute units",
		"Program "+program+" success",
	)
}

func sendTipLogs(t *testing.T, total, fee uint64) []string {
	return instructionLogs(testProgram, tipSentLine(t, solTipper, solCreator, total, fee), tipLogLine(total, fee))
}

func sendTipWithMemoLogs(t *testing.T, total, fee uint64, memo string) []string {
	return instructionLogs(testProgram,
		tipSentLine(t, solTipper, solCreator, total, fee),
		tipLogLine(total, fee),
		tipWithMemoLine(t, solTipper, solCreator, total, memo),
	)
}

func TestEventDiscriminator_Distinct(t *testing.T) {
	if eventDiscriminator(EventTipSent) == eventDiscriminator(EventTipWithMemo) {
		t.Fatal("discriminators must differ")
	}
}

func TestParseTips_TipSent(t *testing.T) {
	p := NewEventParser(testProgram)

	tips, err := p.ParseTips(sendTipLogs(t, 1_000_000_000, 30_000_000))
	if err != nil {
		t.Fatalf("ParseTips: %v", err)
	}
	if len(tips) != 1 {
		t.Fatalf("expected 1 tip, got %d", len(tips))
	}

	tip := tips[0]
	if tip.Index != 0 {
		t.Errorf("expected index 0, got %d", tip.Index)
	}
	if tip.Tipper != solTipper || tip.Creator != solCreator {
		t.Errorf("unexpected parties %s -> %s", tip.Tipper, tip.Creator)
	}
	if tip.TotalAmount != 1_000_000_000 || tip.PlatformFee != 30_000_000 || tip.CreatorAmount != 970_000_000 {
		t.Errorf("unexpected amounts %+v", tip)
	}
	if tip.HasMemo {
		t.Error("expected no memo")
	}
	if tip.Timestamp != 1_700_000_000 {
		t.Errorf("expected timestamp 1700000000, got %d", tip.Timestamp)
	}
}

func TestParseTips_MemoAttachesToPrecedingTip(t *testing.T) {
	p := NewEventParser(testProgram)

	tips, err := p.ParseTips(sendTipWithMemoLogs(t, 500, 15, "video-42"))
	if err != nil {
		t.Fatalf("ParseTips: %v", err)
	}
	if len(tips) != 1 {
		t.Fatalf("expected 1 tip, got %d", len(tips))
	}
	if !tips[0].HasMemo || tips[0].Memo != "video-42" {
		t.Errorf("expected memo video-42, got %q", tips[0].Memo)
	}
}

func TestParseTips_MultipleInstructions(t *testing.T) {
	p := NewEventParser(testProgram)

	logs := append(sendTipLogs(t, 100, 3), sendTipWithMemoLogs(t, 200, 6, "clip")...)
	tips, err := p.ParseTips(logs)
	if err != nil {
		t.Fatalf("ParseTips: %v", err)
	}
	if len(tips) != 2 {
		t.Fatalf("expected 2 tips, got %d", len(tips))
	}
	if tips[0].Index != 0 || tips[1].Index != 1 {
		t.Errorf("expected indexes 0,1 got %d,%d", tips[0].Index, tips[1].Index)
	}
	if tips[0].HasMemo || tips[1].Memo != "clip" {
		t.Errorf("memo attached to wrong tip: %+v %+v", tips[0], tips[1])
	}
}

func TestParseTips_IgnoresOtherPrograms(t *testing.T) {
	p := NewEventParser(testProgram)

	other := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	tips, err := p.ParseTips(instructionLogs(other, tipSentLine(t, solTipper, solCreator, 100, 3)))
	if err != nil {
		t.Fatalf("ParseTips: %v", err)
	}
	if len(tips) != 0 {
		t.Errorf("expected data from another program to be ignored, got %d tips", len(tips))
	}
}

func TestParseTips_SkipsInvalidBase64(t *testing.T) {
	p := NewEventParser(testProgram)

	tips, err := p.ParseTips(instructionLogs(testProgram, "Program data: not-valid-base64!!!"))
	if err != nil {
		t.Fatalf("ParseTips: %v", err)
	}
	if len(tips) != 0 {
		t.Errorf("expected 0 tips, got %d", len(tips))
	}
}

func TestParseTips_Errors(t *testing.T) {
	p := NewEventParser(testProgram)

	disc := eventDiscriminator(EventTipSent)
	short := programDataPrefix + base64.StdEncoding.EncodeToString(append(disc[:], 1, 2, 3))

	tests := []struct {
		name string
		logs []string
	}{
		{"truncated TipSent", instructionLogs(testProgram, short)},
		{"memo without tip", instructionLogs(testProgram, tipWithMemoLine(t, solTipper, solCreator, 100, "x"))},
		{"memo for different amount", instructionLogs(testProgram,
			tipSentLine(t, solTipper, solCreator, 100, 3),
			tipWithMemoLine(t, solTipper, solCreator, 101, "x"),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.ParseTips(tt.logs); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseTipLogLines(t *testing.T) {
	p := NewEventParser(testProgram)

	lines := p.ParseTipLogLines([]string{
		"Program log: Instruction: SendTip",
		tipLogLine(1_000_000_000, 30_000_000),
		"Program log: Tip sent: garbage",
	})
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	want := TipLogLine{Total: 1_000_000_000, Creator: 970_000_000, PlatformFee: 30_000_000}
	if lines[0] != want {
		t.Errorf("expected %+v, got %+v", want, lines[0])
	}
}
