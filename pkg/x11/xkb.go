package x11

import (
	"fmt"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jodoherty/keystatus/pkg/keystatus"
)

// The xgb code generator ships no bindings for the XKEYBOARD extension, so
// the few requests needed here are encoded by hand, the same way xgb's
// generated extension packages drive the core connection: build the raw
// request buffer, hand it to Conn.NewRequest with a cookie, decode the
// reply bytes.

const extName = "XKEYBOARD"

const (
	majorVersion = 1
	minorVersion = 0
)

// request minor opcodes
const (
	opUseExtension = 0
	opSelectEvents = 1
	opGetState     = 4
	opGetControls  = 6
)

// sub-types of the one event code the extension owns (the xkbType byte)
const (
	stateNotify    = 2
	controlsNotify = 3
	accessXNotify  = 10
)

// event selection masks
const (
	eventTypeStateNotify    = 1 << 2
	eventTypeControlsNotify = 1 << 3
	eventTypeAccessXNotify  = 1 << 10
)

// boolean controls bits of enabledControls
const (
	ctrlStickyKeys  = 1 << 3
	ctrlAccessXKeys = 1 << 6
)

// XkbUseCoreKbd device spec
const useCoreKbd = 0x0100

type extension struct {
	opcode byte
}

// initExtension looks up XKEYBOARD on conn and registers its event and
// error decoders with xgb's dispatch tables, so WaitForEvent hands back
// typed events instead of dropping them as unknown.
func initExtension(conn *xgb.Conn) (extension, error) {
	reply, err := xproto.QueryExtension(conn, uint16(len(extName)), extName).Reply()
	if err != nil {
		return extension{}, fmt.Errorf("query %s extension: %w", extName, err)
	}
	if !reply.Present {
		return extension{}, fmt.Errorf("%s extension not present", extName)
	}

	xgb.NewEventFuncs[int(reply.FirstEvent)] = newKeyboardEvent
	xgb.NewErrorFuncs[int(reply.FirstError)] = newKeyboardError

	return extension{opcode: reply.MajorOpcode}, nil
}

// request allocates a size-byte buffer with the common extension request
// header filled in. size must be a multiple of 4.
func (e extension) request(size, minor int) []byte {
	buf := make([]byte, size)
	buf[0] = e.opcode
	buf[1] = byte(minor)
	xgb.Put16(buf[2:], uint16(size/4))
	return buf
}

func (e extension) useExtension(conn *xgb.Conn) error {
	buf := e.request(8, opUseExtension)
	xgb.Put16(buf[4:], majorVersion)
	xgb.Put16(buf[6:], minorVersion)

	cookie := conn.NewCookie(true, true)
	conn.NewRequest(buf, cookie)
	reply, err := cookie.Reply()
	if err != nil {
		return fmt.Errorf("use extension: %w", err)
	}
	if reply[1] == 0 {
		return fmt.Errorf("server only supports xkb %d.%d, need %d.%d",
			xgb.Get16(reply[8:]), xgb.Get16(reply[10:]), majorVersion, minorVersion)
	}

	return nil
}

// selectEvents subscribes to the event categories in mask for deviceSpec.
// The whole mask goes through selectAll, so no per-category detail lists
// follow the fixed-size body.
func (e extension) selectEvents(conn *xgb.Conn, deviceSpec uint16, mask uint16) error {
	buf := e.request(16, opSelectEvents)
	xgb.Put16(buf[4:], deviceSpec)
	xgb.Put16(buf[6:], mask)  // affectWhich
	xgb.Put16(buf[8:], 0)     // clear
	xgb.Put16(buf[10:], mask) // selectAll
	xgb.Put16(buf[12:], 0)    // affectMap
	xgb.Put16(buf[14:], 0)    // map

	cookie := conn.NewCookie(true, false)
	conn.NewRequest(buf, cookie)
	if err := cookie.Check(); err != nil {
		return fmt.Errorf("select events: %w", err)
	}

	return nil
}

func (e extension) getState(conn *xgb.Conn, deviceSpec uint16) (keystatus.ModifierState, error) {
	buf := e.request(8, opGetState)
	xgb.Put16(buf[4:], deviceSpec)

	cookie := conn.NewCookie(true, true)
	conn.NewRequest(buf, cookie)
	reply, err := cookie.Reply()
	if err != nil {
		return keystatus.ModifierState{}, fmt.Errorf("get state: %w", err)
	}

	return decodeState(reply), nil
}

func (e extension) getControls(conn *xgb.Conn, deviceSpec uint16) (keystatus.Controls, error) {
	buf := e.request(8, opGetControls)
	xgb.Put16(buf[4:], deviceSpec)

	cookie := conn.NewCookie(true, true)
	conn.NewRequest(buf, cookie)
	reply, err := cookie.Reply()
	if err != nil {
		return keystatus.Controls{}, fmt.Errorf("get controls: %w", err)
	}

	return decodeControls(reply), nil
}

// decodeState reads the modifier fields out of a GetState reply. Layout per
// xkbGetStateReply: mods, baseMods, latchedMods, lockedMods are the four
// bytes right after the fixed reply header.
func decodeState(reply []byte) keystatus.ModifierState {
	return keystatus.ModifierState{
		Effective: keystatus.Modifier(reply[8]),
		Base:      keystatus.Modifier(reply[9]),
		Latched:   keystatus.Modifier(reply[10]),
		Locked:    keystatus.Modifier(reply[11]),
	}
}

// decodeControls reads enabledCtrls out of a GetControls reply; the field
// sits at byte 56, after the repeat/mouse-keys/AccessX timing block.
func decodeControls(reply []byte) keystatus.Controls {
	enabled := xgb.Get32(reply[56:])
	return keystatus.Controls{
		StickyKeys:  enabled&ctrlStickyKeys != 0,
		AccessXKeys: enabled&ctrlAccessXKeys != 0,
	}
}

// stateNotifyEvent carries the modifier fields of an XKB StateNotify event.
type stateNotifyEvent struct {
	Mods        byte
	BaseMods    byte
	LatchedMods byte
	LockedMods  byte
}

func (stateNotifyEvent) Bytes() []byte { return nil }

func (e stateNotifyEvent) String() string {
	return fmt.Sprintf("StateNotify {Mods: %d, BaseMods: %d, LatchedMods: %d, LockedMods: %d}",
		e.Mods, e.BaseMods, e.LatchedMods, e.LockedMods)
}

type controlsNotifyEvent struct{}

func (controlsNotifyEvent) Bytes() []byte  { return nil }
func (controlsNotifyEvent) String() string { return "ControlsNotify" }

type accessXNotifyEvent struct{}

func (accessXNotifyEvent) Bytes() []byte  { return nil }
func (accessXNotifyEvent) String() string { return "AccessXNotify" }

// keyboardEvent is any other XKB sub-type. None are selected, but the
// decoder must hand back something for every packet carrying the
// extension's event code.
type keyboardEvent struct {
	xkbType byte
}

func (keyboardEvent) Bytes() []byte { return nil }

func (e keyboardEvent) String() string {
	return fmt.Sprintf("XkbEvent {XkbType: %d}", e.xkbType)
}

// newKeyboardEvent decodes an XKB event packet by its xkbType byte. For
// StateNotify the modifier fields sit at bytes 9-12, after the sequence
// number, timestamp and device id.
func newKeyboardEvent(buf []byte) xgb.Event {
	switch buf[1] {
	case stateNotify:
		return stateNotifyEvent{
			Mods:        buf[9],
			BaseMods:    buf[10],
			LatchedMods: buf[11],
			LockedMods:  buf[12],
		}
	case controlsNotify:
		return controlsNotifyEvent{}
	case accessXNotify:
		return accessXNotifyEvent{}
	}

	return keyboardEvent{xkbType: buf[1]}
}

type keyboardError struct {
	sequence uint16
	value    uint32
}

func newKeyboardError(buf []byte) xgb.Error {
	return keyboardError{
		sequence: xgb.Get16(buf[2:]),
		value:    xgb.Get32(buf[4:]),
	}
}

func (e keyboardError) SequenceId() uint16 { return e.sequence }
func (e keyboardError) BadId() uint32      { return e.value }

func (e keyboardError) Error() string {
	return fmt.Sprintf("bad %s request: value %d", extName, e.value)
}
