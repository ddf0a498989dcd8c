package keystatus

// Modifier is an X modifier bitmask. The values mirror the core protocol
// encoding: alt is mod1 and super is mod4 on X11.
type Modifier uint8

const (
	ModShift   Modifier = 1 << 0
	ModControl Modifier = 1 << 2
	ModAlt     Modifier = 1 << 3
	ModSuper   Modifier = 1 << 6
)

// ModifierState is a snapshot of the XKB modifier state for one device.
// Latched modifiers clear on the next keypress; locked modifiers stay on
// until toggled off.
type ModifierState struct {
	Effective Modifier
	Base      Modifier
	Latched   Modifier
	Locked    Modifier
}

// Controls holds the accessibility toggles relevant to the status line.
type Controls struct {
	StickyKeys  bool
	AccessXKeys bool
}

type KeyboardMonitor interface {
	State() (ModifierState, error)
	Controls() (Controls, error)

	// WaitForChange blocks until the keyboard state differs from last in a
	// way that affects the rendered status, coalescing bursts of queued
	// events into one wakeup, and returns a fresh snapshot.
	WaitForChange(last ModifierState) (ModifierState, error)
}
