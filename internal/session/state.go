package session

// State is the controller lifecycle state. Transitions only move forward:
// Running, then Stopping, then Stopped.
type State int32

const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Mode selects the composite background.
type Mode int32

const (
	// ModeCamera composites over the last camera frame.
	ModeCamera Mode = iota
	// ModeFlat composites over a flat fill.
	ModeFlat
)

func (m Mode) String() string {
	if m == ModeFlat {
		return "flat"
	}
	return "camera"
}

// MarshalText renders the mode name in JSON.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m Mode) toggled() Mode {
	if m == ModeFlat {
		return ModeCamera
	}
	return ModeFlat
}
