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

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

var log = logrus.New()

// SetLogger directs the package's logging to the given logger.
func SetLogger(l *logrus.Logger) {
	log = l
}

// SMBus BatteryStatus bits the manager cares about.
const (
	StatusFullyCharged = 0x0020
	StatusInitialized  = 0x0080
)

// Bus provides register access to the battery pack's gauge.
type Bus interface {
	ManufacturerName() (string, error)
	ReadWord(reg uint8) (uint16, error)
	WriteWord(reg uint8, value uint16) error
	ReadBlock(reg uint8, buf []byte) error
}

// PresencePin reports the raw battery presence line. The line is active low:
// a fitted pack pulls it to ground.
type PresencePin interface {
	Read() gpio.Level
}

// Charger is the charger IC the manager consults and controls.
type Charger interface {
	// BatteryVoltage is the charger side measurement of the battery
	// rail, in mV.
	BatteryVoltage() (int, error)
	// RampDetected reports whether the external charger's capability
	// ramp detection has completed.
	RampDetected() bool
	// SetDischargeOnAC enables or disables discharging through the
	// battery while external power is connected.
	SetDischargeOnAC(enable bool) error
}

// ExtPower reports whether external power is connected.
type ExtPower interface {
	Present() bool
}

// ProfileOverrider is the shared charging profile override algorithm. It
// selects a charge band from the table, using cursor to remember its last
// selection so it does not oscillate between adjacent bands, and returns a
// poll interval hint (0 meaning use the default).
type ProfileOverrider interface {
	Override(curr *Snapshot, table *FastChargeTable, cursor *int, maxVoltage int) time.Duration
}

// Manager makes the battery management decisions for one controller boot:
// which pack is fitted, whether it is really present, whether its protection
// FETs have disconnected it, and whether to discharge through it on external
// power. It owns all the sticky per-boot state and is driven by a single
// polling task, so it needs no locking.
type Manager struct {
	bus      Bus
	pin      PresencePin
	charger  Charger
	extPower ExtPower
	override ProfileOverrider
	catalog  *Catalog

	packID          PackID
	cursor          int
	cursorPrimed    bool
	prevPresence    PresenceState
	notDisconnected bool
	cutOff          bool
}

func NewManager(bus Bus, pin PresencePin, charger Charger, extPower ExtPower,
	override ProfileOverrider, catalog *Catalog) *Manager {
	return &Manager{
		bus:          bus,
		pin:          pin,
		charger:      charger,
		extPower:     extPower,
		override:     override,
		catalog:      catalog,
		packID:       PackUnknown,
		prevPresence: PresenceUndetermined,
	}
}

// Identify resolves which pack variant is fitted by matching the pack's
// manufacturer name against the catalog. A resolved identity is sticky and
// never re-probed. While unresolved the default profile stays active and
// another attempt is made on the next call.
func (m *Manager) Identify() PackID {
	if m.packID != PackUnknown {
		return m.packID
	}

	name, err := m.bus.ManufacturerName()
	if err == nil {
		if id, ok := m.catalog.Lookup(name); ok {
			m.packID = id
			m.cursor = m.catalog.Profile(id).FastCharge.DefaultBand
			m.cursorPrimed = true
			log.Infof("Identified battery pack %s", id)
			return id
		}
		log.Debugf("Unknown battery manufacturer %q, staying on default profile", name)
	} else {
		log.Debugf("Could not read battery manufacturer name: %v", err)
	}

	// The charge loop needs a primed cursor before the first override,
	// even when no pack has been identified yet.
	if !m.cursorPrimed {
		m.cursor = m.ActiveProfile().FastCharge.DefaultBand
		m.cursorPrimed = true
	}
	return PackUnknown
}

// ActiveProfile returns the identified pack's profile, or the default
// profile while unresolved. It never returns nil.
func (m *Manager) ActiveProfile() *Profile {
	return m.catalog.Profile(m.packID)
}

// CutOff sends the pack to ship mode, electrically isolating it from the
// system. The command must be written twice to take effect; a failed first
// write surfaces immediately without attempting the second.
func (m *Manager) CutOff() error {
	profile := m.ActiveProfile()
	for i := 0; i < 2; i++ {
		if err := m.bus.WriteWord(profile.ShipModeReg, profile.ShipModeData); err != nil {
			return fmt.Errorf("ship mode write: %w", err)
		}
	}
	m.cutOff = true
	log.Infof("Battery pack %s sent to ship mode", m.packID)
	return nil
}

// IsCutOff reports whether a cut off command has been issued this boot.
func (m *Manager) IsCutOff() bool {
	return m.cutOff
}
