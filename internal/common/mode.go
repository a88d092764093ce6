package common

import "fmt"

// Mode selects the processing preset for a receipt request. Fast trades
// per-segment detail for latency, precise does the opposite, and text skips
// structured extraction entirely in favor of plain transcription.
type Mode string

const (
	ModeFast    Mode = "fast"
	ModePrecise Mode = "precise"
	ModeText    Mode = "text"
)

// ParseMode validates a mode flag from the caller. Empty defaults to precise.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFast, ModePrecise, ModeText:
		return Mode(s), nil
	case "":
		return ModePrecise, nil
	default:
		return "", fmt.Errorf("unknown processing mode %q (expected fast, precise or text)", s)
	}
}
