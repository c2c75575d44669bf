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
	"math"
	"strings"

	"github.com/TheCacophonyProject/smart-battery-manager/smbus"
)

// PackID identifies one of the interchangeable battery pack variants.
type PackID int

const (
	PackUnknown PackID = iota
	PackSonyCorp
	PackSMPCOS4870
	PackSMPC22N1626
	PackCPTC22N1626
)

// packCount is the number of supported pack variants, PackUnknown excluded.
const packCount = 4

// defaultPackID is used for all parameter lookups until a pack is identified.
const defaultPackID = PackSonyCorp

func (id PackID) String() string {
	switch id {
	case PackUnknown:
		return "unknown"
	case PackSonyCorp:
		return "SONYCorp"
	case PackSMPCOS4870:
		return "SMP-COS4870"
	case PackSMPC22N1626:
		return "SMP-C22N1626"
	case PackCPTC22N1626:
		return "CPT-C22N1626"
	default:
		return "invalid"
	}
}

// TempLastRange marks the upper bound of the final charge band, meaning no
// upper temperature limit.
const TempLastRange = math.MaxInt16

// ChargeBand holds the fast charge current limits that apply up to an upper
// temperature bound.
type ChargeBand struct {
	UpperTempTenths    int // tenths of a degree C, TempLastRange for the last band
	LowVoltageCurrent  int // mA, battery voltage below the table's low voltage limit
	HighVoltageCurrent int // mA, battery voltage at or above the limit
}

// FastChargeTable maps battery temperature and voltage to a safe fast charge
// current. Bands are contiguous and ordered by rising temperature bound so a
// single scan finds the applicable band.
type FastChargeTable struct {
	TotalBands      int // declared band count, checked against Bands
	DefaultBand     int // index the hysteresis cursor starts on
	VoltageLowLimit int // mV, splits each band's low/high current limits
	Bands           []ChargeBand
}

func (t *FastChargeTable) validate() error {
	if len(t.Bands) != t.TotalBands {
		return fmt.Errorf("table declares %d bands but holds %d", t.TotalBands, len(t.Bands))
	}
	if t.DefaultBand < 0 || t.DefaultBand >= len(t.Bands) {
		return fmt.Errorf("default band %d out of range", t.DefaultBand)
	}
	for i := 1; i < len(t.Bands); i++ {
		if t.Bands[i].UpperTempTenths <= t.Bands[i-1].UpperTempTenths {
			return fmt.Errorf("band %d bound %d not above band %d bound %d",
				i, t.Bands[i].UpperTempTenths, i-1, t.Bands[i-1].UpperTempTenths)
		}
	}
	if t.Bands[len(t.Bands)-1].UpperTempTenths != TempLastRange {
		return fmt.Errorf("last band must have no upper temperature bound")
	}
	return nil
}

// BatteryInfo is a pack's operating envelope. Voltages are mV, currents mA
// and temperatures degrees C.
type BatteryInfo struct {
	VoltageMax        int
	VoltageNormal     int
	VoltageMin        int
	PrechargeCurrent  int
	StartChargingMinC int
	StartChargingMaxC int
	ChargingMinC      int
	ChargingMaxC      int
	DischargingMinC   int
	DischargingMaxC   int
}

// Profile holds everything pack specific: the manufacturer name used to
// identify it, the ship mode command that cuts it off, its operating
// envelope, its fast charge table and a readiness probe for its gauge
// family. Profiles are built once and never mutated.
type Profile struct {
	ManufacturerName string
	ShipModeReg      uint8
	ShipModeData     uint16
	Info             BatteryInfo
	FastCharge       *FastChargeTable
	// Ready reports whether the pack's gauge has woken up and is allowed
	// to discharge. A failed probe reports not ready.
	Ready func(bus Bus) bool
}

// Catalog maps pack identity to its immutable profile. Unresolved identity
// maps to the default profile so lookups never come back empty.
type Catalog struct {
	profiles map[PackID]*Profile
}

// NewCatalog builds the built-in pack catalog, validating every fast charge
// table and that each supported pack variant has a profile.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{profiles: builtinProfiles()}
	if len(c.profiles) != packCount {
		return nil, fmt.Errorf("catalog holds %d profiles, want %d", len(c.profiles), packCount)
	}
	for id, profile := range c.profiles {
		if err := profile.FastCharge.validate(); err != nil {
			return nil, fmt.Errorf("pack %s fast charge table: %w", id, err)
		}
	}
	return c, nil
}

// Profile returns the profile for id, or the default profile when the
// identity is unresolved.
func (c *Catalog) Profile(id PackID) *Profile {
	if profile, ok := c.profiles[id]; ok {
		return profile
	}
	return c.profiles[defaultPackID]
}

// Lookup finds the pack whose manufacturer name matches, ignoring case.
func (c *Catalog) Lookup(manufacturerName string) (PackID, bool) {
	for id, profile := range c.profiles {
		if strings.EqualFold(manufacturerName, profile.ManufacturerName) {
			return id, true
		}
	}
	return PackUnknown, false
}

const (
	// ManufacturerAccess bit 13: not allowed to discharge.
	sonyDischargeDisableFETBit = 1 << 13
)

// sonyReady checks the discharge enable status bit on Sony packs.
func sonyReady(bus Bus) bool {
	val, err := bus.ReadWord(smbus.RegManufacturerAccess)
	if err != nil {
		return false
	}
	return val&sonyDischargeDisableFETBit == 0
}

// smpReady checks that the BQ40Z55 gauge reports its status initialized.
func smpReady(bus Bus) bool {
	status, err := bus.ReadWord(smbus.RegBatteryStatus)
	if err != nil {
		return false
	}
	return status&StatusInitialized != 0
}

// Fast charge limits shared by the BQ40Z55 based packs.
var fastChargeCOS4870 = &FastChargeTable{
	TotalBands:      5,
	DefaultBand:     2,
	VoltageLowLimit: 8000,
	Bands: []ChargeBand{
		// < 0C
		{UpperTempTenths: -10, LowVoltageCurrent: 0, HighVoltageCurrent: 0},
		// 0C to 15C
		{UpperTempTenths: 150, LowVoltageCurrent: 944, HighVoltageCurrent: 472},
		// 15C to 20C
		{UpperTempTenths: 200, LowVoltageCurrent: 1416, HighVoltageCurrent: 1416},
		// 20C to 45C
		{UpperTempTenths: 450, LowVoltageCurrent: 3300, HighVoltageCurrent: 3300},
		// > 45C
		{UpperTempTenths: TempLastRange, LowVoltageCurrent: 0, HighVoltageCurrent: 0},
	},
}

func builtinProfiles() map[PackID]*Profile {
	return map[PackID]*Profile{
		PackSonyCorp: {
			ManufacturerName: "SONYCorp",
			ShipModeReg:      0x3A,
			ShipModeData:     0xC574,
			FastCharge:       fastChargeCOS4870,
			Ready:            sonyReady,
			Info: BatteryInfo{
				VoltageMax:    8700,
				VoltageNormal: 7600,
				// Actual minimum is 6000mV, 100mV is added for
				// charger measurement accuracy.
				VoltageMin:        6100,
				PrechargeCurrent:  256,
				StartChargingMinC: 0,
				StartChargingMaxC: 46,
				ChargingMinC:      0,
				ChargingMaxC:      45,
				DischargingMinC:   0,
				DischargingMaxC:   60,
			},
		},
		PackSMPCOS4870: {
			ManufacturerName: "SMP-COS4870",
			ShipModeReg:      0x00,
			ShipModeData:     0x0010,
			FastCharge:       fastChargeCOS4870,
			Ready:            smpReady,
			Info: BatteryInfo{
				VoltageMax:        8700,
				VoltageNormal:     7600,
				VoltageMin:        6100,
				PrechargeCurrent:  256,
				StartChargingMinC: 0,
				StartChargingMaxC: 46,
				ChargingMinC:      0,
				ChargingMaxC:      45,
				DischargingMinC:   0,
				DischargingMaxC:   60,
			},
		},
		PackSMPC22N1626: {
			ManufacturerName: "AS1FNZD3KD",
			ShipModeReg:      0x00,
			ShipModeData:     0x0010,
			FastCharge:       fastChargeCOS4870,
			Ready:            smpReady,
			Info: BatteryInfo{
				VoltageMax:        8800,
				VoltageNormal:     7700,
				VoltageMin:        6100,
				PrechargeCurrent:  256,
				StartChargingMinC: 0,
				StartChargingMaxC: 45,
				ChargingMinC:      0,
				ChargingMaxC:      60,
				DischargingMinC:   0,
				DischargingMaxC:   60,
			},
		},
		PackCPTC22N1626: {
			ManufacturerName: "AS1FOAD3KD",
			ShipModeReg:      0x00,
			ShipModeData:     0x0010,
			FastCharge:       fastChargeCOS4870,
			Ready:            smpReady,
			Info: BatteryInfo{
				VoltageMax:        8800,
				VoltageNormal:     7700,
				VoltageMin:        6100,
				PrechargeCurrent:  256,
				StartChargingMinC: 0,
				StartChargingMaxC: 45,
				ChargingMinC:      0,
				ChargingMaxC:      60,
				DischargingMinC:   0,
				DischargingMaxC:   60,
			},
		},
	}
}
