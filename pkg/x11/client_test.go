package x11

import (
	"testing"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jodoherty/keystatus/pkg/keystatus"
)

func TestRelevant(t *testing.T) {
	last := keystatus.ModifierState{
		Effective: keystatus.ModShift | keystatus.ModControl,
		Base:      keystatus.ModShift,
		Latched:   keystatus.ModControl,
		Locked:    keystatus.ModSuper,
	}

	unchanged := stateNotifyEvent{
		Mods:        byte(last.Effective),
		BaseMods:    byte(last.Base),
		LatchedMods: byte(last.Latched),
		LockedMods:  byte(last.Locked),
	}

	tests := []struct {
		name string
		ev   xgb.Event
		want bool
	}{
		{
			name: "state notify identical to snapshot is suppressed",
			ev:   unchanged,
			want: false,
		},
		{
			name: "changed effective mods",
			ev: stateNotifyEvent{
				Mods:        byte(last.Effective | keystatus.ModAlt),
				BaseMods:    byte(last.Base),
				LatchedMods: byte(last.Latched),
				LockedMods:  byte(last.Locked),
			},
			want: true,
		},
		{
			name: "changed base mods",
			ev: stateNotifyEvent{
				Mods:        byte(last.Effective),
				BaseMods:    0,
				LatchedMods: byte(last.Latched),
				LockedMods:  byte(last.Locked),
			},
			want: true,
		},
		{
			name: "changed latched mods",
			ev: stateNotifyEvent{
				Mods:        byte(last.Effective),
				BaseMods:    byte(last.Base),
				LatchedMods: 0,
				LockedMods:  byte(last.Locked),
			},
			want: true,
		},
		{
			name: "changed locked mods",
			ev: stateNotifyEvent{
				Mods:        byte(last.Effective),
				BaseMods:    byte(last.Base),
				LatchedMods: byte(last.Latched),
				LockedMods:  0,
			},
			want: true,
		},
		{
			name: "controls notify always wakes",
			ev:   controlsNotifyEvent{},
			want: true,
		},
		{
			name: "accessx notify always wakes",
			ev:   accessXNotifyEvent{},
			want: true,
		},
		{
			name: "other xkb sub-type wakes",
			ev:   keyboardEvent{xkbType: 8},
			want: true,
		},
		{
			name: "unrelated core event is ignored",
			ev:   xproto.ExposeEvent{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.ev, last))
		})
	}
}

func TestNewKeyboardEvent(t *testing.T) {
	buf := make([]byte, 32)
	buf[1] = stateNotify
	// sequence number at 2-3, timestamp at 4-7, device id at 8
	buf[9] = byte(keystatus.ModShift | keystatus.ModControl) // mods
	buf[10] = byte(keystatus.ModShift)                       // base
	buf[11] = byte(keystatus.ModControl)                     // latched
	buf[12] = byte(keystatus.ModSuper)                       // locked

	ev := newKeyboardEvent(buf)
	state, ok := ev.(stateNotifyEvent)
	require.True(t, ok)
	assert.Equal(t, stateNotifyEvent{
		Mods:        byte(keystatus.ModShift | keystatus.ModControl),
		BaseMods:    byte(keystatus.ModShift),
		LatchedMods: byte(keystatus.ModControl),
		LockedMods:  byte(keystatus.ModSuper),
	}, state)

	buf[1] = controlsNotify
	assert.Equal(t, controlsNotifyEvent{}, newKeyboardEvent(buf))

	buf[1] = accessXNotify
	assert.Equal(t, accessXNotifyEvent{}, newKeyboardEvent(buf))

	buf[1] = 8 // BellNotify, never selected
	assert.Equal(t, keyboardEvent{xkbType: 8}, newKeyboardEvent(buf))
}

func TestDecodeState(t *testing.T) {
	reply := make([]byte, 32)
	reply[8] = byte(keystatus.ModShift | keystatus.ModAlt) // mods
	reply[9] = byte(keystatus.ModAlt)                      // base
	reply[10] = byte(keystatus.ModShift)                   // latched
	reply[11] = byte(keystatus.ModControl)                 // locked

	assert.Equal(t, keystatus.ModifierState{
		Effective: keystatus.ModShift | keystatus.ModAlt,
		Base:      keystatus.ModAlt,
		Latched:   keystatus.ModShift,
		Locked:    keystatus.ModControl,
	}, decodeState(reply))
}

func TestDecodeControls(t *testing.T) {
	tests := []struct {
		name    string
		enabled uint32
		want    keystatus.Controls
	}{
		{
			name: "nothing enabled",
		},
		{
			name:    "sticky keys",
			enabled: ctrlStickyKeys,
			want:    keystatus.Controls{StickyKeys: true},
		},
		{
			name:    "accessx keys",
			enabled: ctrlAccessXKeys,
			want:    keystatus.Controls{AccessXKeys: true},
		},
		{
			name:    "unrelated controls bits are ignored",
			enabled: 1<<0 | 1<<1 | 1<<4, // repeat, slow and mouse keys
			want:    keystatus.Controls{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := make([]byte, 92)
			xgb.Put32(reply[56:], tt.enabled)
			assert.Equal(t, tt.want, decodeControls(reply))
		})
	}
}

func TestRequestHeader(t *testing.T) {
	ext := extension{opcode: 135}

	buf := ext.request(16, opSelectEvents)
	require.Len(t, buf, 16)
	assert.Equal(t, byte(135), buf[0])
	assert.Equal(t, byte(opSelectEvents), buf[1])
	assert.Equal(t, uint16(4), xgb.Get16(buf[2:])) // length in 4-byte units
}
