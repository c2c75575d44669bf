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

import "github.com/TheCacophonyProject/smart-battery-manager/smbus"

// DisconnectResult is the outcome of a protection FET disconnect probe.
type DisconnectResult int

const (
	NotDisconnected DisconnectResult = iota
	Disconnected
	DisconnectError
)

func (d DisconnectResult) String() string {
	switch d {
	case NotDisconnected:
		return "not disconnected"
	case Disconnected:
		return "disconnected"
	case DisconnectError:
		return "probe error"
	default:
		return "invalid"
	}
}

// ManufacturerAccess selectors for the extended status blocks.
const (
	paramSafetyStatus    = 0x0051
	paramOperationStatus = 0x0054
)

// Operation status block, byte 3.
const (
	opDischargingDisabled = 0x20
	opChargingDisabled    = 0x40
)

const statusBlockLen = 6

// DisconnectState probes whether the pack's protection FETs have
// disconnected it. Once any poll finds the pack participating in charge or
// discharge the result latches to NotDisconnected for the rest of the boot,
// as the FETs do not re-enter disconnect during normal runtime; a confirmed
// disconnect or an ambiguous fault never latches so it keeps being
// re-checked. The probe only runs on external power.
func (m *Manager) DisconnectState() DisconnectResult {
	if m.notDisconnected {
		return NotDisconnected
	}

	if m.extPower.Present() {
		// Check whether both charging and discharging are disabled.
		if err := m.bus.WriteWord(smbus.RegManufacturerAccess, paramOperationStatus); err != nil {
			return DisconnectError
		}
		data := make([]byte, statusBlockLen)
		err := m.bus.ReadBlock(smbus.RegAltManufacturerAccess, data)
		if err != nil || ^data[3]&(opDischargingDisabled|opChargingDisabled) != 0 {
			m.latchNotDisconnected()
			return NotDisconnected
		}

		// The pack is neither charging nor discharging. Make sure it
		// was not a safety fault that got it there.
		if err := m.bus.WriteWord(smbus.RegManufacturerAccess, paramSafetyStatus); err != nil {
			return DisconnectError
		}
		err = m.bus.ReadBlock(smbus.RegAltManufacturerAccess, data)
		if err != nil || data[2] != 0 || data[3] != 0 || data[4] != 0 || data[5] != 0 {
			return DisconnectError
		}

		// No safety fault and the pack is physically there: a clean
		// protection triggered disconnect. Not latched, a disconnect
		// is expected to be transient.
		if m.Presence() == PresencePresent {
			return Disconnected
		}
	}

	m.latchNotDisconnected()
	return NotDisconnected
}

func (m *Manager) latchNotDisconnected() {
	if !m.notDisconnected {
		log.Debug("Battery confirmed not disconnected, skipping further probes")
	}
	m.notDisconnected = true
}
