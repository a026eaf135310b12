// Package types defines the command and state values that travel over the
// event bus. The bus never interprets them; bindings and UIs do.
package types

import (
	"strconv"
	"time"
)

// Command is an instruction sent to an item. Implementations must be
// immutable and comparable.
type Command interface {
	String() string
}

// State is the last known value of an item. Implementations must be
// immutable and comparable.
type State interface {
	String() string
}

// OnOffType is both a command and a state.
type OnOffType string

const (
	On  OnOffType = "ON"
	Off OnOffType = "OFF"
)

func (o OnOffType) String() string { return string(o) }

// DecimalType carries a numeric set-point or reading.
type DecimalType float64

func (d DecimalType) String() string {
	return strconv.FormatFloat(float64(d), 'f', -1, 64)
}

// StringType carries free text.
type StringType string

func (s StringType) String() string { return string(s) }

// DateTimeType carries a point in time. The value is stored as Unix
// nanoseconds in UTC so that the type stays comparable.
type DateTimeType struct {
	unixNano int64
}

// NewDateTime returns a DateTimeType for t.
func NewDateTime(t time.Time) DateTimeType {
	return DateTimeType{unixNano: t.UTC().UnixNano()}
}

// Time returns the wrapped time in UTC.
func (d DateTimeType) Time() time.Time {
	return time.Unix(0, d.unixNano).UTC()
}

func (d DateTimeType) String() string {
	return d.Time().Format(time.RFC3339Nano)
}

// UnDefType marks an item whose state is unknown. It is a state only.
type UnDefType string

const (
	// Undefined is reported when a binding cannot determine the state.
	Undefined UnDefType = "UNDEF"
	// Null is the state of an item that never received an update.
	Null UnDefType = "NULL"
)

func (u UnDefType) String() string { return string(u) }

// ParseCommand maps the textual form used in configuration files to a
// Command: ON/OFF, numbers, anything else as a string.
func ParseCommand(s string) Command {
	switch s {
	case string(On):
		return On
	case string(Off):
		return Off
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return DecimalType(f)
	}
	return StringType(s)
}
