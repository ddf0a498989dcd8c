package x11

import (
	"errors"
	"fmt"
	"github.com/jezek/xgb"
	"github.com/jodoherty/keystatus/pkg/keystatus"
	"os"
)

var ErrConnectionClosed = errors.New("x connection closed")

const eventMask = eventTypeStateNotify |
	eventTypeControlsNotify |
	eventTypeAccessXNotify

// Client watches the XKB state of the core keyboard over one X connection.
type Client struct {
	conn *xgb.Conn
	ext  extension
}

// Connect opens the default display ($DISPLAY), negotiates the XKB
// extension, probes the core keyboard's controls and subscribes to state,
// controls and AccessX notifications. Any failure here is not recoverable
// by retrying.
func Connect() (*Client, error) {
	display := os.Getenv("DISPLAY")

	conn, err := xgb.NewConnDisplay("")
	if err != nil {
		return nil, fmt.Errorf("open display %q: %w", display, err)
	}

	client, err := setup(conn, display)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return client, nil
}

func setup(conn *xgb.Conn, display string) (*Client, error) {
	ext, err := initExtension(conn)
	if err != nil {
		return nil, fmt.Errorf("initialize xkb extension on display %q: %w", display, err)
	}

	if err := ext.useExtension(conn); err != nil {
		return nil, fmt.Errorf("negotiate xkb version on display %q: %w", display, err)
	}

	client := &Client{conn: conn, ext: ext}

	// Probe the core keyboard controls up front so a missing keyboard
	// description fails at startup rather than mid-report.
	if _, err := client.Controls(); err != nil {
		return nil, fmt.Errorf("display %q: %w", display, err)
	}

	if err := ext.selectEvents(conn, useCoreKbd, eventMask); err != nil {
		return nil, fmt.Errorf("select xkb events: %w", err)
	}

	return client, nil
}

func (c *Client) Close() {
	c.conn.Close()
}

// State fetches the current modifier snapshot of the core keyboard.
func (c *Client) State() (keystatus.ModifierState, error) {
	state, err := c.ext.getState(c.conn, useCoreKbd)
	if err != nil {
		return keystatus.ModifierState{}, fmt.Errorf("xkb get state: %w", err)
	}
	return state, nil
}

// Controls fetches the enabled accessibility controls of the core keyboard.
func (c *Client) Controls() (keystatus.Controls, error) {
	controls, err := c.ext.getControls(c.conn, useCoreKbd)
	if err != nil {
		return keystatus.Controls{}, fmt.Errorf("xkb get controls: %w", err)
	}
	return controls, nil
}

// WaitForChange blocks until an event arrives that would change the
// rendered status, then drains the rest of the queue so a burst of
// notifications (key repeat, several toggles at once) produces a single
// wakeup, and returns a fresh snapshot.
func (c *Client) WaitForChange(last keystatus.ModifierState) (keystatus.ModifierState, error) {
	for {
		ev, xerr := c.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return keystatus.ModifierState{}, ErrConnectionClosed
		}
		if xerr != nil {
			return keystatus.ModifierState{}, fmt.Errorf("wait for xkb event: %w", xerr)
		}

		if !relevant(ev, last) {
			continue
		}

		c.drain()
		return c.State()
	}
}

// relevant reports whether ev should wake the reporter given the last
// observed modifier snapshot. StateNotify events whose four modifier fields
// match the snapshot are spurious and get discarded.
func relevant(ev xgb.Event, last keystatus.ModifierState) bool {
	switch e := ev.(type) {
	case stateNotifyEvent:
		return keystatus.Modifier(e.Mods) != last.Effective ||
			keystatus.Modifier(e.BaseMods) != last.Base ||
			keystatus.Modifier(e.LatchedMods) != last.Latched ||
			keystatus.Modifier(e.LockedMods) != last.Locked
	case controlsNotifyEvent, accessXNotifyEvent, keyboardEvent:
		return true
	default:
		return false
	}
}

func (c *Client) drain() {
	for {
		ev, xerr := c.conn.PollForEvent()
		if ev == nil && xerr == nil {
			return
		}
	}
}
