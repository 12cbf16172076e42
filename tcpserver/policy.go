package tcpserver

import "fmt"

// Mode selects how many rounds a TCPServer serves.
type Mode int

const (
	ModeOnce    Mode = iota // Exactly one round
	ModeCount               // Up to Limit rounds
	ModeForever             // Until a round signals halt
)

// Policy controls the acceptance loop. The zero value is Once.
type Policy struct {
	Mode  Mode
	Limit uint16
}

// Once serves exactly one round and ignores its halt signal.
func Once() Policy { return Policy{Mode: ModeOnce} }

// Count serves up to n rounds, stopping early when a round signals halt.
func Count(n uint16) Policy { return Policy{Mode: ModeCount, Limit: n} }

// Forever serves rounds until one signals halt.
func Forever() Policy { return Policy{Mode: ModeForever} }

// Allows reports whether another round may start after served rounds.
func (p Policy) Allows(served int) bool {
	switch p.Mode {
	case ModeCount:
		return served < int(p.Limit)
	case ModeForever:
		return true
	default:
		return served < 1
	}
}

// HonoursHalt reports whether a halt signal ends the loop.
func (p Policy) HonoursHalt() bool {
	return p.Mode != ModeOnce
}

// String returns a short description of p.
func (p Policy) String() string {
	switch p.Mode {
	case ModeCount:
		return fmt.Sprintf("count(%d)", p.Limit)
	case ModeForever:
		return "forever"
	default:
		return "once"
	}
}
