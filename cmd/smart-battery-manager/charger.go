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

package main

import (
	"time"

	"periph.io/x/conn/v3/i2c"
)

const (
	chargerI2CAddress = 0x09

	// BD9995X command registers used by the daemon.
	regVBatValue  = 0x40 // battery rail measurement, mV
	regVBusValue  = 0x41 // input rail measurement, mV
	regChgOpSet2  = 0x3E // operation control, holds the battery learn bit
	battLearnBit  = 0x0100
	vbusPresentMV = 4500

	// How long the input must hold up before the adapter counts as
	// detected and full current draw is allowed.
	rampDetectDelay = 2 * time.Second
)

// charger talks to the charger IC: rail measurements, external power
// sensing, adapter ramp detection and the discharge-on-AC control bit.
type charger struct {
	dev     *i2c.Dev
	acSince time.Time
}

func newCharger(bus i2c.Bus) *charger {
	return &charger{dev: &i2c.Dev{Bus: bus, Addr: chargerI2CAddress}}
}

func (c *charger) readWord(reg uint8) (uint16, error) {
	read := make([]byte, 2)
	if err := c.dev.Tx([]byte{reg}, read); err != nil {
		return 0, err
	}
	return uint16(read[0]) | uint16(read[1])<<8, nil
}

func (c *charger) writeWord(reg uint8, value uint16) error {
	_, err := c.dev.Write([]byte{reg, byte(value), byte(value >> 8)})
	return err
}

// BatteryVoltage is the charger side measurement of the battery rail in mV.
func (c *charger) BatteryVoltage() (int, error) {
	val, err := c.readWord(regVBatValue)
	if err != nil {
		return 0, err
	}
	return int(val), nil
}

// Present reports whether external power is connected.
func (c *charger) Present() bool {
	val, err := c.readWord(regVBusValue)
	return err == nil && int(val) >= vbusPresentMV
}

// RampDetected reports whether the adapter has held the input up for the
// detect delay. Detection restarts whenever external power drops out.
func (c *charger) RampDetected() bool {
	if !c.Present() {
		c.acSince = time.Time{}
		return false
	}
	if c.acSince.IsZero() {
		c.acSince = time.Now()
		return false
	}
	return time.Since(c.acSince) >= rampDetectDelay
}

// SetDischargeOnAC switches the charger's battery learn mode, which suspends
// charging and lets the system run from the battery while on external power.
func (c *charger) SetDischargeOnAC(enable bool) error {
	val, err := c.readWord(regChgOpSet2)
	if err != nil {
		return err
	}
	if enable {
		val |= battLearnBit
	} else {
		val &^= battLearnBit
	}
	return c.writeWord(regChgOpSet2, val)
}
