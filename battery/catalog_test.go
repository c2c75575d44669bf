package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogBuilds(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	for _, id := range []PackID{PackSonyCorp, PackSMPCOS4870, PackSMPC22N1626, PackCPTC22N1626} {
		profile := catalog.Profile(id)
		require.NotNil(t, profile)
		assert.NotEmpty(t, profile.ManufacturerName)
		assert.NotNil(t, profile.FastCharge)
		assert.NotNil(t, profile.Ready)
		assert.Greater(t, profile.Info.VoltageMax, profile.Info.VoltageMin)
	}
}

func TestUnresolvedUsesDefaultProfile(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	assert.Same(t, catalog.Profile(defaultPackID), catalog.Profile(PackUnknown))
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	tests := []struct {
		name     string
		expected PackID
		found    bool
	}{
		{"SONYCorp", PackSonyCorp, true},
		{"sonycorp", PackSonyCorp, true},
		{"SMP-COS4870", PackSMPCOS4870, true},
		{"smp-cos4870", PackSMPCOS4870, true},
		{"AS1FNZD3KD", PackSMPC22N1626, true},
		{"as1foad3kd", PackCPTC22N1626, true},
		{"NoSuchPack", PackUnknown, false},
		{"", PackUnknown, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := catalog.Lookup(tc.name)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, id)
		})
	}
}

func TestFastChargeTableValidation(t *testing.T) {
	valid := func() *FastChargeTable {
		return &FastChargeTable{
			TotalBands:      3,
			DefaultBand:     1,
			VoltageLowLimit: 8000,
			Bands: []ChargeBand{
				{UpperTempTenths: -10},
				{UpperTempTenths: 450, LowVoltageCurrent: 3300, HighVoltageCurrent: 3300},
				{UpperTempTenths: TempLastRange},
			},
		}
	}

	assert.NoError(t, valid().validate())

	countMismatch := valid()
	countMismatch.TotalBands = 4
	assert.Error(t, countMismatch.validate())

	defaultOutOfRange := valid()
	defaultOutOfRange.DefaultBand = 3
	assert.Error(t, defaultOutOfRange.validate())

	notIncreasing := valid()
	notIncreasing.Bands[1].UpperTempTenths = -10
	assert.Error(t, notIncreasing.validate())

	noSentinel := valid()
	noSentinel.Bands[2].UpperTempTenths = 600
	assert.Error(t, noSentinel.validate())
}

func TestBuiltinTablesCoverTemperatureDomain(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	for _, id := range []PackID{PackSonyCorp, PackSMPCOS4870, PackSMPC22N1626, PackCPTC22N1626} {
		table := catalog.Profile(id).FastCharge
		require.Equal(t, table.TotalBands, len(table.Bands))
		for i := 1; i < len(table.Bands); i++ {
			assert.Greater(t, table.Bands[i].UpperTempTenths, table.Bands[i-1].UpperTempTenths,
				"pack %s bands must rise strictly", id)
		}
		assert.Equal(t, TempLastRange, table.Bands[len(table.Bands)-1].UpperTempTenths,
			"pack %s last band must be unbounded", id)
	}
}
