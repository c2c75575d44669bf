package battery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type wordWrite struct {
	reg   uint8
	value uint16
}

type blockRead struct {
	data []byte
	err  error
}

// fakeBus is a scriptable Bus. Block reads are consumed in the order they
// were queued.
type fakeBus struct {
	name     string
	nameErr  error
	words    map[uint8]uint16
	wordErr  error
	writeErr error
	writes   []wordWrite
	blocks   []blockRead
	calls    int
}

func (b *fakeBus) ManufacturerName() (string, error) {
	b.calls++
	return b.name, b.nameErr
}

func (b *fakeBus) ReadWord(reg uint8) (uint16, error) {
	b.calls++
	if b.wordErr != nil {
		return 0, b.wordErr
	}
	return b.words[reg], nil
}

func (b *fakeBus) WriteWord(reg uint8, value uint16) error {
	b.calls++
	if b.writeErr != nil {
		return b.writeErr
	}
	b.writes = append(b.writes, wordWrite{reg, value})
	return nil
}

func (b *fakeBus) ReadBlock(reg uint8, buf []byte) error {
	b.calls++
	if len(b.blocks) == 0 {
		return errors.New("no block queued")
	}
	next := b.blocks[0]
	b.blocks = b.blocks[1:]
	if next.err != nil {
		return next.err
	}
	copy(buf, next.data)
	return nil
}

func (b *fakeBus) queueBlock(data ...byte) {
	b.blocks = append(b.blocks, blockRead{data: data})
}

type fakePin struct {
	level gpio.Level
}

func (p *fakePin) Read() gpio.Level {
	return p.level
}

type fakeCharger struct {
	voltage         int
	voltageErr      error
	ramp            bool
	dischargeOnAC   []bool
	setDischargeErr error
}

func (c *fakeCharger) BatteryVoltage() (int, error) {
	return c.voltage, c.voltageErr
}

func (c *fakeCharger) RampDetected() bool {
	return c.ramp
}

func (c *fakeCharger) SetDischargeOnAC(enable bool) error {
	c.dischargeOnAC = append(c.dischargeOnAC, enable)
	return c.setDischargeErr
}

type fakeExtPower struct {
	present bool
}

func (e *fakeExtPower) Present() bool {
	return e.present
}

type fakeOverrider struct {
	ret        time.Duration
	calls      int
	table      *FastChargeTable
	cursor     *int
	maxVoltage int
}

func (o *fakeOverrider) Override(curr *Snapshot, table *FastChargeTable, cursor *int, maxVoltage int) time.Duration {
	o.calls++
	o.table = table
	o.cursor = cursor
	o.maxVoltage = maxVoltage
	return o.ret
}

type testHarness struct {
	bus      *fakeBus
	pin      *fakePin
	charger  *fakeCharger
	extPower *fakeExtPower
	override *fakeOverrider
	mgr      *Manager
}

func newHarness(t *testing.T) *testHarness {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	h := &testHarness{
		bus:      &fakeBus{words: map[uint8]uint16{}},
		pin:      &fakePin{level: gpio.High},
		charger:  &fakeCharger{},
		extPower: &fakeExtPower{},
		override: &fakeOverrider{},
	}
	h.mgr = NewManager(h.bus, h.pin, h.charger, h.extPower, h.override, catalog)
	return h
}
