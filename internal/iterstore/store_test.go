package iterstore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"basegraph.app/t24spec/internal/iterstore"
	"basegraph.app/t24spec/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIterationZeroPadsAndIncrements(t *testing.T) {
	store, err := iterstore.NewStore(t.TempDir())
	require.NoError(t, err)

	dir1, n1, err := store.NewIteration("eval-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n1)
	assert.True(t, filepath.Base(dir1) == "iteration-001")

	dir2, n2, err := store.NewIteration("eval-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n2)
	assert.Equal(t, "iteration-002", filepath.Base(dir2))

	latest, latestNum, ok, err := store.LatestIteration("eval-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, latestNum)
	assert.Equal(t, dir2, latest)
}

func TestExtractedAndEvalResultRoundTrip(t *testing.T) {
	store, err := iterstore.NewStore(t.TempDir())
	require.NoError(t, err)

	dir, _, err := store.NewIteration("eval-1")
	require.NoError(t, err)

	spec := model.BuildingSpec{Project: model.Project{Address: "1 Oak St", ClimateZone: 12}}
	require.NoError(t, store.SaveExtracted(dir, spec))

	loaded, err := store.LoadExtracted(dir)
	require.NoError(t, err)
	assert.Equal(t, spec.Project.Address, loaded.Project.Address)

	result := model.EvalResult{Metrics: model.Metrics{F1: 0.9}}
	require.NoError(t, store.SaveEvalResult(dir, result))

	loadedResult, err := store.LoadEvalResult(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.9, loadedResult.Metrics.F1)
}

func TestRecordAggregateAccumulatesByIteration(t *testing.T) {
	root := t.TempDir()
	store, err := iterstore.NewStore(root)
	require.NoError(t, err)

	require.NoError(t, store.RecordAggregate("eval-1", 1, iterstore.AggregateEntry{F1: 0.5}))
	require.NoError(t, store.RecordAggregate("eval-1", 2, iterstore.AggregateEntry{F1: 0.7}))

	raw, err := os.ReadFile(filepath.Join(root, "eval-1", "aggregate.json"))
	require.NoError(t, err)

	var aggregate map[string]iterstore.AggregateEntry
	require.NoError(t, json.Unmarshal(raw, &aggregate))
	require.Len(t, aggregate, 2)
	assert.Equal(t, 0.5, aggregate["1"].F1)
	assert.Equal(t, 0.7, aggregate["2"].F1)
}

func TestDocumentMapCacheRoundTrip(t *testing.T) {
	store, err := iterstore.NewStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.LoadDocumentMap("eval-1")
	require.NoError(t, err)
	assert.False(t, ok)

	doc := model.DocumentMap{Pages: []model.PageInfo{{PageNumber: 1, PageType: model.PageSchedule}}}
	require.NoError(t, store.SaveDocumentMap("eval-1", doc))

	loaded, ok, err := store.LoadDocumentMap("eval-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Pages, 1)
	assert.Equal(t, model.PageSchedule, loaded.Pages[0].PageType)
}

func TestWriteIterationDocumentMapCopiesIntoIterationDir(t *testing.T) {
	store, err := iterstore.NewStore(t.TempDir())
	require.NoError(t, err)

	dir, _, err := store.NewIteration("eval-1")
	require.NoError(t, err)

	doc := model.DocumentMap{Pages: []model.PageInfo{{PageNumber: 1, PageType: model.PageDrawing}}}
	require.NoError(t, store.WriteIterationDocumentMap(dir, doc))

	raw, err := os.ReadFile(filepath.Join(dir, "document_map.json"))
	require.NoError(t, err)
	var roundTripped model.DocumentMap
	require.NoError(t, json.Unmarshal(raw, &roundTripped))
	require.Len(t, roundTripped.Pages, 1)
	assert.Equal(t, model.PageDrawing, roundTripped.Pages[0].PageType)
}

func TestLoadGroundTruthAdaptsFlatPathTable(t *testing.T) {
	root := t.TempDir()
	evalDir := filepath.Join(root, "eval-1")
	require.NoError(t, os.MkdirAll(evalDir, 0o755))

	flat := `{
		"project.address": "1 Oak St",
		"project.climate_zone": 12,
		"zones[Zone 1].floor_area": 800,
		"windows[W1].area": 12,
		"windows[W1].wall": "North",
		"water_heating_systems[WHS-1].heaters[HX-1].uef": 0.9
	}`
	require.NoError(t, os.WriteFile(filepath.Join(evalDir, "ground_truth.json"), []byte(flat), 0o644))

	store, err := iterstore.NewStore(root)
	require.NoError(t, err)

	spec, err := store.LoadGroundTruth("eval-1")
	require.NoError(t, err)

	assert.Equal(t, "1 Oak St", spec.Project.Address)
	assert.Equal(t, 12, spec.Project.ClimateZone)
	require.Len(t, spec.Zones, 1)
	assert.Equal(t, "zone 1", spec.Zones[0].Name)
	assert.Equal(t, 800.0, spec.Zones[0].FloorArea)
	require.Len(t, spec.Windows, 1)
	assert.Equal(t, "North", spec.Windows[0].Wall)
	require.Len(t, spec.WaterHeatingSystems, 1)
	require.Len(t, spec.WaterHeatingSystems[0].Heaters, 1)
	require.NotNil(t, spec.WaterHeatingSystems[0].Heaters[0].UEF)
	assert.InDelta(t, 0.9, *spec.WaterHeatingSystems[0].Heaters[0].UEF, 0.0001)
}
