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

import "periph.io/x/conn/v3/gpio"

// PresenceState is the validated battery presence.
type PresenceState int

const (
	PresenceUndetermined PresenceState = iota
	PresenceAbsent
	PresencePresent
)

func (p PresenceState) String() string {
	switch p {
	case PresencePresent:
		return "present"
	case PresenceAbsent:
		return "absent"
	case PresenceUndetermined:
		return "undetermined"
	default:
		return "invalid"
	}
}

func (m *Manager) hwPresence() PresenceState {
	// The line is low when a pack is physically fitted.
	if m.pin.Read() == gpio.Low {
		return PresencePresent
	}
	return PresenceAbsent
}

// Presence validates battery presence once per poll. The presence pin alone
// cannot distinguish a genuinely inserted pack from one waking out of ship
// mode with its protection FETs still open, or from residual voltage on the
// battery rail. On a rising transition the raw reading is corroborated
// before it is believed:
//
//   - pack not yet identified: if the charger still measures the battery
//     rail at or above the active profile's minimum operating voltage the
//     pin reading is attributed to residual rail voltage, not a powered,
//     communicating pack.
//   - pack identified: the pack family's readiness probe must agree.
//
// Either way a failed corroboration overrides the reading to absent, and
// the overridden value becomes the remembered previous state.
func (m *Manager) Presence() PresenceState {
	presence := m.hwPresence()

	if presence == PresencePresent && m.prevPresence != PresencePresent && !m.cutOff {
		if m.Identify() == PackUnknown {
			mv, err := m.charger.BatteryVoltage()
			if err != nil || mv >= m.ActiveProfile().Info.VoltageMin {
				presence = PresenceAbsent
			}
		} else if !m.ActiveProfile().Ready(m.bus) {
			presence = PresenceAbsent
		}
	}

	if presence != m.prevPresence {
		log.Infof("Battery presence changed from %s to %s", m.prevPresence, presence)
	}
	m.prevPresence = presence
	return presence
}

// Stable reports whether the last validated presence matches the live pin
// level, meaning the last answer needed no override.
func (m *Manager) Stable() bool {
	return m.hwPresence() == m.prevPresence
}
