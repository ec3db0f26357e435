package events

import (
	"fmt"
	"strings"

	"github.com/ts020/sl-gem/internal/domain/shared"
	gemerr "github.com/ts020/sl-gem/internal/errors"
)

// Kind identifies the variant of an Event
type Kind int

// KindAll is the wildcard subscription filter. No event has this kind.
const KindAll Kind = -1

const (
	// System control
	KindStart Kind = iota
	KindStop
	KindPause
	KindResume
	KindError

	// Gameplay
	KindUpdate
	KindTurnStart
	KindTurnEnd
	KindUnitMove

	// Informational
	KindLog
	KindStats

	kindCount
)

var kindNames = [...]string{
	"Start",
	"Stop",
	"Pause",
	"Resume",
	"Error",
	"Update",
	"TurnStart",
	"TurnEnd",
	"UnitMove",
	"Log",
	"Stats",
}

// String returns the string representation of the kind
func (k Kind) String() string {
	if k == KindAll {
		return "All"
	}
	if !k.Valid() {
		return "Unknown"
	}
	return kindNames[k]
}

// Valid reports whether k names a concrete event kind
func (k Kind) Valid() bool {
	return k >= KindStart && k < kindCount
}

// Kinds returns every concrete kind in declaration order
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := KindStart; k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Event is an immutable record of something that happened or should happen.
// The set of variants is closed; all of them are plain value types so a
// published event cannot be modified by the publisher or any handler.
type Event interface {
	Kind() Kind
	isEvent()
}

// Start asks the game loop to begin running
type Start struct{}

// Stop asks the game loop to shut down
type Stop struct{}

// Pause suspends gameplay; control events keep flowing
type Pause struct{}

// Resume continues gameplay after a Pause
type Resume struct{}

// Update carries the elapsed frame time in seconds
type Update struct {
	Delta float32
}

// TurnStart is emitted when a faction receives the turn
type TurnStart struct {
	FactionID uint32
}

// TurnEnd is emitted when a faction finishes its turn
type TurnEnd struct {
	FactionID uint32
}

// UnitMove is emitted when a unit is moved to a map position
type UnitMove struct {
	UnitID   uint32
	Position shared.MapPosition
}

// Log is an informational message for logging collaborators
type Log struct {
	Message string
	Level   LogLevel
}

// Stats is a single metric sample
type Stats struct {
	Metric string
	Value  float64
}

// HandlerError notifies components that a handler failed while the loop kept running
type HandlerError struct {
	SubscriptionID string
	Origin         Kind
	Severity       gemerr.Severity
	Message        string
}

func (Start) Kind() Kind        { return KindStart }
func (Stop) Kind() Kind         { return KindStop }
func (Pause) Kind() Kind        { return KindPause }
func (Resume) Kind() Kind       { return KindResume }
func (HandlerError) Kind() Kind { return KindError }
func (Update) Kind() Kind       { return KindUpdate }
func (TurnStart) Kind() Kind    { return KindTurnStart }
func (TurnEnd) Kind() Kind      { return KindTurnEnd }
func (UnitMove) Kind() Kind     { return KindUnitMove }
func (Log) Kind() Kind          { return KindLog }
func (Stats) Kind() Kind        { return KindStats }

func (Start) isEvent()        {}
func (Stop) isEvent()         {}
func (Pause) isEvent()        {}
func (Resume) isEvent()       {}
func (HandlerError) isEvent() {}
func (Update) isEvent()       {}
func (TurnStart) isEvent()    {}
func (TurnEnd) isEvent()      {}
func (UnitMove) isEvent()     {}
func (Log) isEvent()          {}
func (Stats) isEvent()        {}

// LogLevel is the severity of a Log event
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the string representation of the level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLogLevel converts a level name (case-insensitive) to a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, gemerr.InvalidArgumentf("unknown log level %q", s)
	}
}

// Describe renders an event for log lines
func Describe(e Event) string {
	if e == nil {
		return "<nil>"
	}
	switch ev := e.(type) {
	case Update:
		return fmt.Sprintf("Update{delta=%.4f}", ev.Delta)
	case TurnStart:
		return fmt.Sprintf("TurnStart{faction=%d}", ev.FactionID)
	case TurnEnd:
		return fmt.Sprintf("TurnEnd{faction=%d}", ev.FactionID)
	case UnitMove:
		return fmt.Sprintf("UnitMove{unit=%d pos=%s}", ev.UnitID, ev.Position)
	case Log:
		return fmt.Sprintf("Log{%s %q}", ev.Level, ev.Message)
	case Stats:
		return fmt.Sprintf("Stats{%s=%g}", ev.Metric, ev.Value)
	case HandlerError:
		return fmt.Sprintf("Error{%s from %s: %s}", ev.Severity, ev.Origin, ev.Message)
	default:
		return e.Kind().String()
	}
}
