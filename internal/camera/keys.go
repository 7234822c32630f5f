package camera

// Action is a preview window command.
type Action int

const (
	ActionNone Action = iota
	ActionToggleBackground
	ActionQuit
)

const keyEscape = 27

// KeyAction maps a preview window key code onto an action: c toggles the
// background, q or ESC quits.
func KeyAction(key int) Action {
	if key < 0 {
		return ActionNone
	}
	switch key & 0xff {
	case 'c', 'C':
		return ActionToggleBackground
	case 'q', 'Q', keyEscape:
		return ActionQuit
	default:
		return ActionNone
	}
}
