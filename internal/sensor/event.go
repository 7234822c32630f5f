// Package sensor decodes the line records emitted by the step/voltage sensor
// board into structured events.
//
// A record is three comma-separated label:value fields in fixed order:
//
//	Step:42,Volt:7.50,Dir:LEFT
//
// Only the position of a field is significant; the label text is ignored.
package sensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction is the movement direction reported by the sensor.
type Direction int

const (
	Unknown Direction = iota
	Left
	Right
	Forward
	Backward
	Down
)

var directionNames = map[Direction]string{
	Unknown:  "UNKNOWN",
	Left:     "LEFT",
	Right:    "RIGHT",
	Forward:  "FORWARD",
	Backward: "BACKWARD",
	Down:     "DOWN",
}

func (d Direction) String() string {
	if n, ok := directionNames[d]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseDirection maps a wire token onto a Direction. Matching is exact and
// case-sensitive; anything unrecognised is Unknown.
func ParseDirection(token string) Direction {
	switch token {
	case "LEFT":
		return Left
	case "RIGHT":
		return Right
	case "FORWARD":
		return Forward
	case "BACKWARD":
		return Backward
	case "DOWN":
		return Down
	default:
		return Unknown
	}
}

// Event is one decoded sensor record.
type Event struct {
	StepCount int
	Voltage   float64
	Direction Direction
	Timestamp time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("steps=%d volt=%.2f dir=%s", e.StepCount, e.Voltage, e.Direction)
}

// ErrMalformed is the sentinel wrapped by every DecodeError.
var ErrMalformed = errors.New("malformed sensor record")

// DecodeError describes why a raw record was rejected.
type DecodeError struct {
	Raw    string
	Field  int // -1 when the record as a whole is at fault
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("decode %q: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("decode %q: field %d: %s", e.Raw, e.Field, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformed
}

// Is lets errors.Is(err, ErrMalformed) match every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformed
}

const fieldCount = 3

// Decode parses a raw record stamped with the current wall time.
func Decode(raw string) (Event, error) {
	return DecodeAt(raw, time.Now())
}

// DecodeAt parses a raw record and stamps it with ts.
func DecodeAt(raw string, ts time.Time) (Event, error) {
	line := strings.TrimSpace(raw)
	parts := strings.Split(line, ",")
	if len(parts) < fieldCount {
		return Event{}, &DecodeError{
			Raw:    raw,
			Field:  -1,
			Reason: fmt.Sprintf("expected %d fields, got %d", fieldCount, len(parts)),
		}
	}

	values := make([]string, fieldCount)
	for i := 0; i < fieldCount; i++ {
		v, err := fieldValue(parts[i])
		if err != nil {
			return Event{}, &DecodeError{Raw: raw, Field: i, Reason: err.Error()}
		}
		values[i] = v
	}

	step, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil {
		return Event{}, &DecodeError{Raw: raw, Field: 0, Reason: "step is not an integer", Err: err}
	}
	if step < 0 {
		return Event{}, &DecodeError{Raw: raw, Field: 0, Reason: "step count is negative"}
	}

	volt, err := strconv.ParseFloat(strings.TrimSpace(values[1]), 64)
	if err != nil {
		return Event{}, &DecodeError{Raw: raw, Field: 1, Reason: "voltage is not a number", Err: err}
	}

	return Event{
		StepCount: step,
		Voltage:   volt,
		Direction: ParseDirection(values[2]),
		Timestamp: ts,
	}, nil
}

// fieldValue returns the text between the first and second colon.
func fieldValue(field string) (string, error) {
	segments := strings.Split(field, ":")
	if len(segments) < 2 {
		return "", errors.New("missing ':' delimiter")
	}
	return segments[1], nil
}
