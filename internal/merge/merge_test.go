package merge_test

import (
	"testing"

	"basegraph.app/t24spec/internal/extract"
	"basegraph.app/t24spec/internal/merge"
	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/orientation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeHappyPath(t *testing.T) {
	fragments := map[extract.Domain]*extract.Fragment{
		extract.DomainProject: {Project: &extract.ProjectFragment{
			Project:  model.Project{Address: "1 Oak St", ClimateZone: 12},
			Envelope: model.Envelope{ConditionedFloorArea: 800},
		}},
		extract.DomainZones: {Zones: []extract.ZoneFragmentItem{
			{Zone: model.Zone{Name: "Zone 1", FloorArea: 800}},
		}},
		extract.DomainWindows: {Windows: []model.Window{
			{Name: "W1", Wall: "North", Area: 12, Height: 4, Width: 3, Multiplier: 1, UFactor: 0.30, SHGC: 0.23},
		}},
		extract.DomainHVAC: {HVAC: []model.HVACSystem{{Name: "HP-1", SystemType: "Heat Pump"}}},
		extract.DomainDHW:  {DHW: []model.WaterHeatingSystem{}},
	}
	statuses := map[string]model.ExtractionStatus{
		"project": {State: model.ExtractionSuccess},
		"zones":   {State: model.ExtractionSuccess},
		"windows": {State: model.ExtractionSuccess},
		"hvac":    {State: model.ExtractionSuccess},
		"dhw":     {State: model.ExtractionSuccess},
	}
	result := orientation.Result{FrontOrientation: 90, Confidence: model.ConfidenceHigh}

	spec := merge.Merge(merge.Input{Fragments: fragments, Statuses: statuses, Orientation: &result})

	require.Len(t, spec.Zones, 1)
	assert.Equal(t, "Zone 1", spec.Zones[0].Name)
	require.Len(t, spec.Windows, 1)
	require.Len(t, spec.HVACSystems, 1)
	assert.Empty(t, spec.WaterHeatingSystems)
	require.NotNil(t, spec.Project.FrontOrientation)
	assert.Equal(t, 90.0, *spec.Project.FrontOrientation)
}

func TestMergeToleratesSingleDomainFailure(t *testing.T) {
	fragments := map[extract.Domain]*extract.Fragment{
		extract.DomainProject: {Project: &extract.ProjectFragment{
			Project:  model.Project{Address: "1 Oak St", ClimateZone: 12},
			Envelope: model.Envelope{ConditionedFloorArea: 800},
		}},
		extract.DomainZones: {Zones: []extract.ZoneFragmentItem{
			{Zone: model.Zone{Name: "Zone 1", FloorArea: 800}},
		}},
		// hvac missing: worker failed twice
	}
	statuses := map[string]model.ExtractionStatus{
		"hvac": {State: model.ExtractionFailed},
	}

	spec := merge.Merge(merge.Input{Fragments: fragments, Statuses: statuses})

	assert.Empty(t, spec.HVACSystems)
	assert.Equal(t, model.ExtractionFailed, spec.ExtractionStatus["hvac"].State)
}

func TestMergeRecordsNameConflictKeepsFirst(t *testing.T) {
	fragments := map[extract.Domain]*extract.Fragment{
		extract.DomainZones: {Zones: []extract.ZoneFragmentItem{
			{Zone: model.Zone{Name: "Zone 1", FloorArea: 800}},
			{Zone: model.Zone{Name: "Zone 1", FloorArea: 820}},
		}},
	}

	spec := merge.Merge(merge.Input{Fragments: fragments, Statuses: map[string]model.ExtractionStatus{}})

	require.Len(t, spec.Zones, 1)
	assert.Equal(t, 800.0, spec.Zones[0].FloorArea)

	var found bool
	for _, c := range spec.Conflicts {
		if c.Field == "floor_area" && c.Resolution == model.ResolutionKeptFirst {
			found = true
			assert.Equal(t, 800.0, c.ReportedValue)
			assert.Equal(t, 820.0, c.ConflictingValue)
		}
	}
	assert.True(t, found, "expected a kept_first conflict for floor_area")
}
