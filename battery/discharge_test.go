package battery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldDischargeOnAC(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		ramp     bool
		cutOff   bool
		expected bool
	}{
		{
			name:     "no battery",
			snapshot: Snapshot{Presence: PresenceAbsent, Status: StatusFullyCharged},
			ramp:     false,
			expected: false,
		},
		{
			name:     "battery still waking",
			snapshot: Snapshot{Presence: PresencePresent},
			ramp:     false,
			expected: false,
		},
		{
			name:     "full and idle floats on battery",
			snapshot: Snapshot{Presence: PresencePresent, Status: StatusFullyCharged},
			ramp:     true,
			expected: true,
		},
		{
			name:     "full but cut off falls through to ramp check",
			snapshot: Snapshot{Presence: PresencePresent, Status: StatusFullyCharged},
			ramp:     true,
			cutOff:   true,
			expected: false,
		},
		{
			name: "ramp undetected with usable charge",
			snapshot: Snapshot{
				Presence:      PresencePresent,
				Flags:         FlagWantCharge,
				StateOfCharge: 5,
			},
			ramp:     false,
			expected: true,
		},
		{
			name: "ramp undetected with nearly empty pack",
			snapshot: Snapshot{
				Presence:      PresencePresent,
				Flags:         FlagWantCharge,
				StateOfCharge: 1,
			},
			ramp:     false,
			expected: false,
		},
		{
			name: "ramp detected and charging normally",
			snapshot: Snapshot{
				Presence:      PresencePresent,
				Flags:         FlagWantCharge,
				StateOfCharge: 50,
			},
			ramp:     true,
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.charger.ramp = tc.ramp
			h.mgr.cutOff = tc.cutOff

			curr := tc.snapshot
			assert.Equal(t, tc.expected, h.mgr.ShouldDischargeOnAC(&curr))
		})
	}
}

func TestProfileOverrideDischarging(t *testing.T) {
	h := newHarness(t)
	h.charger.ramp = true
	curr := &Snapshot{Presence: PresencePresent, Status: StatusFullyCharged}

	hint := h.mgr.ProfileOverride(curr)

	assert.Equal(t, time.Duration(0), hint)
	assert.Equal(t, StateDischarge, curr.State)
	assert.Equal(t, []bool{true}, h.charger.dischargeOnAC)
	assert.Equal(t, 0, h.override.calls, "discharging must not consult the override algorithm")
}

func TestProfileOverrideDelegates(t *testing.T) {
	h := newHarness(t)
	h.charger.ramp = true
	h.override.ret = 5 * time.Second
	curr := &Snapshot{
		Presence:      PresencePresent,
		Flags:         FlagWantCharge,
		Status:        StatusInitialized,
		StateOfCharge: 50,
		State:         StateCharge,
	}

	hint := h.mgr.ProfileOverride(curr)

	assert.Equal(t, 5*time.Second, hint)
	assert.Equal(t, StateCharge, curr.State, "state is left alone when not discharging")
	assert.Equal(t, []bool{false}, h.charger.dischargeOnAC)

	require.Equal(t, 1, h.override.calls)
	profile := h.mgr.ActiveProfile()
	assert.Same(t, profile.FastCharge, h.override.table)
	assert.Equal(t, profile.Info.VoltageMax, h.override.maxVoltage)
	assert.Equal(t, &h.mgr.cursor, h.override.cursor, "the shared cursor is handed to the algorithm")
}
