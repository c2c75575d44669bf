/*
smart-battery-manager - Manages smart battery packs on the power controller
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package battery

import "time"

// ChargeState is the charge loop's state for one poll.
type ChargeState int

const (
	StateIdle ChargeState = iota
	StateCharge
	StateDischarge
)

func (s ChargeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCharge:
		return "charge"
	case StateDischarge:
		return "discharge"
	default:
		return "invalid"
	}
}

// BattFlags are the charge loop's per-poll battery condition flags.
type BattFlags uint32

const (
	// FlagWantCharge is set once the battery is asking to be charged.
	FlagWantCharge BattFlags = 1 << iota
)

// Snapshot is the charge loop's live view of the battery for one poll. The
// manager reads it to make the discharge decision and mutates State when it
// forces a discharge.
type Snapshot struct {
	Presence      PresenceState
	Flags         BattFlags
	Status        uint16 // SMBus BatteryStatus word
	StateOfCharge int    // percent
	State         ChargeState
}

// ShouldDischargeOnAC decides whether to intentionally discharge through the
// battery while external power is connected. Rules apply in order, first
// match wins:
//
//  1. No battery, nothing to discharge through.
//  2. Battery still waking up (neither wants charge nor reports full).
//  3. Battery full and idle: float on the battery instead of letting the
//     charger's DCDC switch intermittently at light load, which puts an
//     audible ripple on the output capacitors.
//  4. Charger ramp not yet detected with usable charge in the pack: bridge
//     on the battery to avoid inrush from an unproven adapter.
func (m *Manager) ShouldDischargeOnAC(curr *Snapshot) bool {
	if curr.Presence != PresencePresent {
		return false
	}

	if curr.Flags&FlagWantCharge == 0 && curr.Status&StatusFullyCharged == 0 {
		return false
	}

	if !m.cutOff && curr.Flags&FlagWantCharge == 0 && curr.Status&StatusFullyCharged != 0 {
		return true
	}

	if !m.charger.RampDetected() && curr.StateOfCharge > 2 {
		return true
	}

	return false
}

// ProfileOverride runs once per poll after the disconnect check. It pushes
// the discharge-on-AC decision to the charger; when discharging it forces
// the loop into the discharge state at the default poll interval, otherwise
// it hands the poll over to the shared profile override algorithm with the
// active pack's fast charge table and cursor. The returned interval hint is
// 0 for "use the default".
func (m *Manager) ProfileOverride(curr *Snapshot) time.Duration {
	dischargeOnAC := m.ShouldDischargeOnAC(curr)

	if err := m.charger.SetDischargeOnAC(dischargeOnAC); err != nil {
		log.Errorf("Failed to set discharge on AC: %v", err)
	}

	if dischargeOnAC {
		curr.State = StateDischarge
		return 0
	}

	profile := m.ActiveProfile()
	return m.override.Override(curr, profile.FastCharge, &m.cursor, profile.Info.VoltageMax)
}
