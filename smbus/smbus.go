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

package smbus

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/sigurn/crc8"
	"periph.io/x/conn/v3/i2c"
)

// Smart Battery Data Specification registers.
const (
	RegManufacturerAccess    = 0x00
	RegTemperature           = 0x08
	RegVoltage               = 0x09
	RegRelativeStateOfCharge = 0x0D
	RegBatteryStatus         = 0x16
	RegManufacturerName      = 0x20
	RegAltManufacturerAccess = 0x44
)

// DefaultAddress is the 7-bit address smart batteries respond on.
const DefaultAddress = 0x0B

const (
	// Parameters for transaction retries.
	maxTxAttempts   = 3
	txRetryInterval = 50 * time.Millisecond

	maxStringLen = 32
)

var pecTable = crc8.MakeTable(crc8.Params{
	Poly: 0x07,
	Init: 0x00,
	Name: "CRC-8/SMBus",
})

// PEC returns the SMBus packet error code over data. The address and command
// bytes of the transaction are part of the covered data.
func PEC(data []byte) byte {
	return crc8.Checksum(data, pecTable)
}

// Conn is a connection to one SMBus device. All transactions append and
// verify a packet error code and retry a bounded number of times before
// giving up.
type Conn struct {
	mu   sync.Mutex
	dev  *i2c.Dev
	addr uint16
}

func New(bus i2c.Bus, addr uint16) *Conn {
	return &Conn{dev: &i2c.Dev{Bus: bus, Addr: addr}, addr: addr}
}

// ReadWord reads a 16 bit little-endian value from the given register.
func (c *Conn) ReadWord(reg uint8) (uint16, error) {
	read := make([]byte, 3) // 2 bytes of data + PEC
	if err := c.tx([]byte{reg}, read); err != nil {
		return 0, fmt.Errorf("read word 0x%02X: %w", reg, err)
	}
	if err := c.verifyPEC(reg, read[:2], read[2]); err != nil {
		return 0, err
	}
	return uint16(read[0]) | uint16(read[1])<<8, nil
}

// WriteWord writes a 16 bit little-endian value to the given register.
func (c *Conn) WriteWord(reg uint8, value uint16) error {
	frame := []byte{reg, byte(value), byte(value >> 8)}
	pec := PEC(append([]byte{byte(c.addr << 1)}, frame...))
	if err := c.tx(append(frame, pec), nil); err != nil {
		return fmt.Errorf("write word 0x%02X: %w", reg, err)
	}
	return nil
}

// ReadBlock reads a fixed-size block from the given register into buf. The
// device reports how many bytes it holds; fewer than len(buf) is an error.
func (c *Conn) ReadBlock(reg uint8, buf []byte) error {
	read := make([]byte, 1+len(buf)+1) // count byte + data + PEC
	if err := c.tx([]byte{reg}, read); err != nil {
		return fmt.Errorf("read block 0x%02X: %w", reg, err)
	}
	count := int(read[0])
	if count < len(buf) {
		return fmt.Errorf("read block 0x%02X: device returned %d bytes, want %d", reg, count, len(buf))
	}
	if err := c.verifyPEC(reg, read[:1+len(buf)], read[1+len(buf)]); err != nil {
		return err
	}
	copy(buf, read[1:1+len(buf)])
	return nil
}

// ReadString reads a block-string register such as the manufacturer name.
// The result is trimmed to the length the device reports.
func (c *Conn) ReadString(reg uint8) (string, error) {
	read := make([]byte, 1+maxStringLen+1)
	if err := c.tx([]byte{reg}, read); err != nil {
		return "", fmt.Errorf("read string 0x%02X: %w", reg, err)
	}
	count := int(read[0])
	if count > maxStringLen {
		count = maxStringLen
	}
	if err := c.verifyPEC(reg, read[:1+count], read[1+count]); err != nil {
		return "", err
	}
	str := read[1 : 1+count]
	if i := bytes.IndexByte(str, 0); i >= 0 {
		str = str[:i]
	}
	return string(str), nil
}

// ManufacturerName reads the pack vendor's name string.
func (c *Conn) ManufacturerName() (string, error) {
	return c.ReadString(RegManufacturerName)
}

func (c *Conn) verifyPEC(reg uint8, data []byte, received byte) error {
	addrW := byte(c.addr << 1)
	covered := append([]byte{addrW, reg, addrW | 1}, data...)
	if calculated := PEC(covered); calculated != received {
		return fmt.Errorf("register 0x%02X PEC mismatch: received 0x%02X, calculated 0x%02X",
			reg, received, calculated)
	}
	return nil
}

func (c *Conn) tx(write, read []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempts := 0
	for {
		err := c.dev.Tx(write, read)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= maxTxAttempts {
			return err
		}
		time.Sleep(txRetryInterval)
	}
}
