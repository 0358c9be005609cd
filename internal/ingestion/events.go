package ingestion

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Event names emitted by the creator-tip program.
const (
	EventTipSent     = "TipSent"
	EventTipWithMemo = "TipWithMemo"
)

const programDataPrefix = "Program data: "

var errShortEvent = errors.New("event data too short")

// TipEvent is one tip transfer decoded from a transaction's logs.
// Index is the position of the tip among the tip events of its transaction.
type TipEvent struct {
	Index         int
	Tipper        string
	Creator       string
	TotalAmount   uint64
	PlatformFee   uint64
	CreatorAmount uint64
	Memo          string
	HasMemo       bool
	Timestamp     int64
}

// TipLogLine is the plain-text summary the program logs after each tip.
type TipLogLine struct {
	Total       uint64
	Creator     uint64
	PlatformFee uint64
}

// EventParser decodes creator-tip events from program logs.
type EventParser struct {
	programID       string
	tipSentDisc     [8]byte
	tipWithMemoDisc [8]byte
	invokePattern   *regexp.Regexp
	exitPattern     *regexp.Regexp
	tipLogPattern   *regexp.Regexp
}

// NewEventParser creates a parser for events emitted by programID.
func NewEventParser(programID string) *EventParser {
	return &EventParser{
		programID:       programID,
		tipSentDisc:     eventDiscriminator(EventTipSent),
		tipWithMemoDisc: eventDiscriminator(EventTipWithMemo),
		invokePattern:   regexp.MustCompile(`^Program (\w+) invoke \[\d+\]$`),
		exitPattern:     regexp.MustCompile(`^Program (\w+) (success|failed)`),
		tipLogPattern: regexp.MustCompile(
			`^Program log: Tip sent: (\d+) lamports total, (\d+) to creator, (\d+) platform fee$`),
	}
}

// eventDiscriminator is the Anchor event tag: sha256("event:<Name>")[:8].
func eventDiscriminator(name string) [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte("event:" + name))
	copy(d[:], sum[:8])
	return d
}

// ParseTips returns the tips in logs in emission order.
// A TipWithMemo event attaches its memo to the TipSent emitted just before it
// by the same instruction. Data lines emitted by other programs are ignored.
func (p *EventParser) ParseTips(logs []string) ([]*TipEvent, error) {
	var (
		tips  []*TipEvent
		stack []string
	)

	for _, line := range logs {
		if m := p.invokePattern.FindStringSubmatch(line); m != nil {
			stack = append(stack, m[1])
			continue
		}
		if m := p.exitPattern.FindStringSubmatch(line); m != nil {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if !strings.HasPrefix(line, programDataPrefix) {
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1] != p.programID {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
		if err != nil || len(data) < 8 {
			continue
		}

		var disc [8]byte
		copy(disc[:], data[:8])
		switch disc {
		case p.tipSentDisc:
			ev, err := decodeTipSent(data[8:])
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", EventTipSent, err)
			}
			ev.Index = len(tips)
			tips = append(tips, ev)

		case p.tipWithMemoDisc:
			memo, err := decodeTipWithMemo(data[8:])
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", EventTipWithMemo, err)
			}
			if len(tips) == 0 {
				return nil, fmt.Errorf("%s without preceding %s", EventTipWithMemo, EventTipSent)
			}
			last := tips[len(tips)-1]
			if last.Tipper != memo.Tipper || last.Creator != memo.Creator || last.TotalAmount != memo.TotalAmount {
				return nil, fmt.Errorf("%s does not match preceding %s", EventTipWithMemo, EventTipSent)
			}
			last.Memo = memo.Memo
			last.HasMemo = true
		}
	}

	return tips, nil
}

// ParseTipLogLines returns the "Tip sent" summaries in logs in order.
func (p *EventParser) ParseTipLogLines(logs []string) []TipLogLine {
	var lines []TipLogLine
	for _, line := range logs {
		m := p.tipLogPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		total, err1 := strconv.ParseUint(m[1], 10, 64)
		creator, err2 := strconv.ParseUint(m[2], 10, 64)
		fee, err3 := strconv.ParseUint(m[3], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		lines = append(lines, TipLogLine{Total: total, Creator: creator, PlatformFee: fee})
	}
	return lines
}

// TipSent layout: tipper(32) | creator(32) | total(8) | platform_fee(8) | creator_amount(8) | timestamp(8)
func decodeTipSent(data []byte) (*TipEvent, error) {
	if len(data) < 32+32+8*4 {
		return nil, errShortEvent
	}
	return &TipEvent{
		Tipper:        base58.Encode(data[0:32]),
		Creator:       base58.Encode(data[32:64]),
		TotalAmount:   binary.LittleEndian.Uint64(data[64:72]),
		PlatformFee:   binary.LittleEndian.Uint64(data[72:80]),
		CreatorAmount: binary.LittleEndian.Uint64(data[80:88]),
		Timestamp:     int64(binary.LittleEndian.Uint64(data[88:96])),
	}, nil
}

// TipWithMemo layout: tipper(32) | creator(32) | amount(8) | memo_len(4) | memo | timestamp(8)
func decodeTipWithMemo(data []byte) (*TipEvent, error) {
	if len(data) < 32+32+8+4 {
		return nil, errShortEvent
	}
	memoLen := int(binary.LittleEndian.Uint32(data[72:76]))
	end := 76 + memoLen
	if memoLen < 0 || end+8 > len(data) {
		return nil, errShortEvent
	}
	return &TipEvent{
		Tipper:      base58.Encode(data[0:32]),
		Creator:     base58.Encode(data[32:64]),
		TotalAmount: binary.LittleEndian.Uint64(data[64:72]),
		Memo:        string(data[76:end]),
		HasMemo:     true,
		Timestamp:   int64(binary.LittleEndian.Uint64(data[end : end+8])),
	}, nil
}
