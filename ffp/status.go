package ffp

import (
	"fmt"
	"strconv"
	"strings"
)

// Command mnemonics understood by the printer.
const (
	CmdInfo        = "M115"
	CmdTemperature = "M105"
	CmdStatus      = "M119"
	CmdLED         = "M146"
	CmdLogin       = "M601"
	CmdLogout      = "M602"
	CmdRename      = "M610"
	CmdListFiles   = "M661"
	CmdProgress    = "M27"
	CmdHome        = "G28"
)

// MaxNameLen is the longest machine name M610 accepts.
const MaxNameLen = 32

// Endstops holds the limit switch state per axis.
type Endstops struct {
	X bool `json:"x"`
	Y bool `json:"y"`
	Z bool `json:"z"`
}

// Status is the decoded M119 reply.
type Status struct {
	Endstops Endstops `json:"endstops"`
	// State is e.g. "READY", "MOVING" or "BUILDING_FROM_SD".
	State    string `json:"state"`
	MoveMode string `json:"move_mode"`
	// LED is reported by the firmware but does not track the real LED state.
	LED         bool   `json:"led"`
	CurrentFile string `json:"current_file"`
}

// Temperature is one heater channel in whole degrees Celsius.
type Temperature struct {
	Current uint16 `json:"current"`
	Target  uint16 `json:"target"`
}

// Temperatures is the decoded M105 reply. A channel the printer does not
// report is nil.
type Temperatures struct {
	Nozzle *Temperature `json:"nozzle,omitempty"`
	Bed    *Temperature `json:"bed,omitempty"`
}

// Progress is the decoded M27 reply.
type Progress struct {
	Done  uint64 `json:"done"`
	Total uint64 `json:"total"`
}

// Percent returns the progress in percent, 0 when Total is 0.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total) * 100
}

// ParseStatus decodes an M119 reply. The layout is positional:
//
//	0 Endstop: X-max:<v> Y-max:<v> Z-max:<v> ...
//	1 MachineStatus: <state>
//	2 MoveMode: <mode>
//	3 (ignored)
//	4 LED: <0|1>
//	5 CurrentFile: <name>
//
// Any line that is missing or lacks its prefix fails the whole parse.
func ParseStatus(text string) (Status, error) {
	var s Status
	lines := splitLines(text)

	endstop, err := field(lines, 0, "Endstop:")
	if err != nil {
		return s, err
	}
	// Only the first three tokens are consulted: <axis>:<value> for X, Y, Z.
	tokens := strings.Fields(endstop)
	for i, dst := range []*bool{&s.Endstops.X, &s.Endstops.Y, &s.Endstops.Z} {
		if i >= len(tokens) {
			return s, lineError(0, lines[0], fmt.Sprintf("want 3 endstop values, got %d", len(tokens)))
		}
		_, v, ok := strings.Cut(tokens[i], ":")
		if !ok {
			return s, lineError(0, lines[0], "malformed endstop "+strconv.Quote(tokens[i]))
		}
		if *dst, err = parseFlag(v); err != nil {
			return s, err
		}
	}

	if s.State, err = field(lines, 1, "MachineStatus: "); err != nil {
		return s, err
	}
	if s.MoveMode, err = field(lines, 2, "MoveMode: "); err != nil {
		return s, err
	}
	led, err := field(lines, 4, "LED: ")
	if err != nil {
		return s, err
	}
	if s.LED, err = parseFlag(led); err != nil {
		return s, err
	}
	if s.CurrentFile, err = field(lines, 5, "CurrentFile: "); err != nil {
		return s, err
	}
	return s, nil
}

// ParseTemperatures decodes an M105 reply such as "T0:210/210 B:45/0".
// Channels other than T0 and B are ignored.
func ParseTemperatures(text string) (Temperatures, error) {
	var t Temperatures
	for _, tok := range strings.Fields(text) {
		if strings.Count(tok, ":") != 1 {
			return t, &ProtocolError{Msg: "malformed temperature token", Raw: []byte(tok)}
		}
		key, rest, _ := strings.Cut(tok, ":")
		if strings.Count(rest, "/") != 1 {
			return t, &ProtocolError{Msg: "malformed temperature token", Raw: []byte(tok)}
		}
		cur, tgt, _ := strings.Cut(rest, "/")

		current, err := parseUint16(cur)
		if err != nil {
			return t, err
		}
		target, err := parseUint16(tgt)
		if err != nil {
			return t, err
		}
		reading := &Temperature{Current: current, Target: target}

		switch key {
		case "T0":
			t.Nozzle = reading
		case "B":
			t.Bed = reading
		}
	}
	return t, nil
}

const progressPrefix = "SD printing byte "

// ParseProgress decodes an M27 reply "SD printing byte <n>/<total>".
func ParseProgress(text string) (Progress, error) {
	var p Progress
	body := strings.TrimRight(text, "\r\n")
	if !strings.HasPrefix(body, progressPrefix) {
		return p, &ProtocolError{Msg: "unexpected progress reply", Raw: []byte(text)}
	}
	done, total, ok := strings.Cut(strings.TrimPrefix(body, progressPrefix), "/")
	if !ok {
		return p, &ProtocolError{Msg: "unexpected progress reply", Raw: []byte(text)}
	}
	var err error
	if p.Done, err = strconv.ParseUint(done, 10, 64); err != nil {
		return p, &DecodeError{Msg: "progress", Raw: []byte(done), Err: err}
	}
	if p.Total, err = strconv.ParseUint(strings.TrimSpace(total), 10, 64); err != nil {
		return p, &DecodeError{Msg: "progress total", Raw: []byte(total), Err: err}
	}
	return p, nil
}

// ValidateName checks a machine name for M610.
func ValidateName(name string) error {
	if len(name) > MaxNameLen {
		return &ValidationError{Field: "name", Msg: fmt.Sprintf("%d bytes, at most %d allowed", len(name), MaxNameLen)}
	}
	for i := 0; i < len(name); i++ {
		if name[i] > 0x7f {
			return &ValidationError{Field: "name", Msg: "only ASCII characters are allowed"}
		}
	}
	return nil
}

// LEDArgs formats the M146 argument string for an RGB color.
func LEDArgs(r, g, b uint8) string {
	return fmt.Sprintf("r%d g%d b%d F0", r, g, b)
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func field(lines []string, idx int, prefix string) (string, error) {
	if idx >= len(lines) {
		return "", &ProtocolError{Msg: fmt.Sprintf("line %d missing, want %q", idx, prefix)}
	}
	if !strings.HasPrefix(lines[idx], prefix) {
		return "", lineError(idx, lines[idx], "want prefix "+strconv.Quote(prefix))
	}
	return strings.TrimPrefix(lines[idx], prefix), nil
}

func lineError(idx int, line, msg string) error {
	return &ProtocolError{Msg: fmt.Sprintf("line %d: %s", idx, msg), Raw: []byte(line)}
}

func parseFlag(s string) (bool, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return false, &DecodeError{Msg: "flag", Raw: []byte(s), Err: err}
	}
	return n != 0, nil
}

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, &DecodeError{Msg: "temperature", Raw: []byte(s), Err: err}
	}
	return uint16(n), nil
}
