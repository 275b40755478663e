package model_test

import (
	"encoding/json"
	"testing"

	"basegraph.app/t24spec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildingSpecRoundTrip(t *testing.T) {
	orientation := 92.5
	confidence := model.ConfidenceHigh

	spec := model.BuildingSpec{
		Project: model.Project{
			Title:                 "1 Oak St",
			Address:               "1 Oak St",
			ClimateZone:           12,
			FuelType:              model.FuelGas,
			DwellingUnits:         1,
			Stories:               1,
			Bedrooms:              3,
			FrontOrientation:      &orientation,
			OrientationConfidence: &confidence,
			Flags:                 []string{},
		},
		Envelope: model.Envelope{ConditionedFloorArea: 800},
		Zones:    []model.Zone{{Name: "Zone 1", FloorArea: 800}},
		Windows: []model.Window{
			{Name: "W1", Wall: "North", Height: 4, Width: 3, Multiplier: 1, Area: 12, UFactor: 0.3, SHGC: 0.23},
		},
		HVACSystems:         []model.HVACSystem{{Name: "HP-1", SystemType: "Heat Pump"}},
		WaterHeatingSystems: []model.WaterHeatingSystem{},
		ExtractionStatus: map[string]model.ExtractionStatus{
			"project": {State: model.ExtractionSuccess},
		},
		Conflicts: []model.FieldConflict{},
	}

	raw, err := json.Marshal(spec)
	require.NoError(t, err)

	var decoded model.BuildingSpec
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, spec, decoded)
}

func TestConfidenceDowngrade(t *testing.T) {
	assert.Equal(t, model.ConfidenceMedium, model.ConfidenceHigh.Downgrade())
	assert.Equal(t, model.ConfidenceLow, model.ConfidenceMedium.Downgrade())
	assert.Equal(t, model.ConfidenceLow, model.ConfidenceLow.Downgrade())
}

func TestExplicitNullNotOmitted(t *testing.T) {
	spec := model.BuildingSpec{
		ExtractionStatus: map[string]model.ExtractionStatus{},
	}
	raw, err := json.Marshal(spec)
	require.NoError(t, err)

	var asMap map[string]any
	require.NoError(t, json.Unmarshal(raw, &asMap))

	for _, key := range []string{"zones", "walls", "windows", "hvac_systems", "water_heating_systems", "conflicts"} {
		v, ok := asMap[key]
		assert.Truef(t, ok, "key %q must be present even when empty", key)
		assert.Nilf(t, v, "key %q should be explicit null, not an empty list literal", key)
	}
}
