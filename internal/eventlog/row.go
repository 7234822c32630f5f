// Package eventlog persists decoded sensor events.
//
// The session tick loop appends rows to a Buffer; a Flusher drains the
// buffer on an interval and writes each batch to a Sink (the sqlite Store or
// a CSVWriter). A drain that fails to persist is requeued in front of newer
// rows, so delivery is at-least-once and ordered.
package eventlog

import (
	"time"

	"github.com/banshee-data/pressure.report/internal/sensor"
)

// TimeLayout is the persisted timestamp format.
const TimeLayout = "2006-01-02 15:04:05"

// Row is one persisted sensor event.
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	StepCount int       `json:"steps"`
	Voltage   float64   `json:"voltage"`
	Direction string    `json:"direction"`
}

// RowFromEvent converts a decoded event into a log row.
func RowFromEvent(ev sensor.Event) Row {
	return Row{
		Timestamp: ev.Timestamp,
		StepCount: ev.StepCount,
		Voltage:   ev.Voltage,
		Direction: ev.Direction.String(),
	}
}

// FormattedTime renders the row timestamp in TimeLayout, local time.
func (r Row) FormattedTime() string {
	return r.Timestamp.Local().Format(TimeLayout)
}
