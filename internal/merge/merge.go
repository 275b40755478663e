// Package merge assembles the final BuildingSpec from parallel extraction
// output: name-based deduplication, conflict recording, and schema
// validation, all in a declared canonical order so the result is
// deterministic regardless of extractor completion order.
package merge

import (
	"encoding/json"
	"reflect"

	"basegraph.app/t24spec/internal/extract"
	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/orientation"
)

// CanonicalOrder is the declared extractor sequence Merge processes
// fragments in, independent of completion order.
var CanonicalOrder = []extract.Domain{
	extract.DomainProject,
	extract.DomainZones,
	extract.DomainWindows,
	extract.DomainHVAC,
	extract.DomainDHW,
}

// Input is everything the Merge Engine needs to assemble one BuildingSpec.
type Input struct {
	Fragments   map[extract.Domain]*extract.Fragment
	Statuses    map[string]model.ExtractionStatus
	Orientation *orientation.Result
}

// Merge assembles a BuildingSpec from fragments produced by the Parallel
// Orchestrator, per the procedure in 4.G.
func Merge(in Input) model.BuildingSpec {
	var spec model.BuildingSpec
	var conflicts []model.FieldConflict

	if pf := in.Fragments[extract.DomainProject]; pf != nil && pf.Project != nil {
		spec.Project = pf.Project.Project
		spec.Envelope = pf.Project.Envelope
	}

	if zf := in.Fragments[extract.DomainZones]; zf != nil {
		zones := make([]model.Zone, len(zf.Zones))
		var walls []model.Wall
		for i, z := range zf.Zones {
			zones[i] = z.Zone
			walls = append(walls, z.Walls...)
		}
		kept, c := dedupeByName("zones", zones, func(z model.Zone) string { return z.Name })
		spec.Zones = kept
		conflicts = append(conflicts, c...)

		keptWalls, wc := dedupeByName("zones", walls, func(w model.Wall) string { return w.Name })
		spec.Walls = keptWalls
		conflicts = append(conflicts, wc...)
	}

	if wf := in.Fragments[extract.DomainWindows]; wf != nil {
		kept, c := dedupeByName("windows", wf.Windows, func(w model.Window) string { return w.Name })
		spec.Windows = kept
		conflicts = append(conflicts, c...)
	}

	if hf := in.Fragments[extract.DomainHVAC]; hf != nil {
		kept, c := dedupeByName("hvac", hf.HVAC, func(h model.HVACSystem) string { return h.Name })
		spec.HVACSystems = kept
		conflicts = append(conflicts, c...)
	}

	if df := in.Fragments[extract.DomainDHW]; df != nil {
		kept, c := dedupeByName("dhw", df.DHW, func(w model.WaterHeatingSystem) string { return w.Name })
		spec.WaterHeatingSystems = kept
		conflicts = append(conflicts, c...)
	}

	if in.Orientation != nil {
		orient := in.Orientation.FrontOrientation
		confidence := in.Orientation.Confidence
		spec.Project.FrontOrientation = &orient
		spec.Project.OrientationConfidence = &confidence
	}

	spec.ExtractionStatus = in.Statuses

	conflicts = append(conflicts, model.Validate(spec)...)
	spec.Conflicts = conflicts

	return spec
}

// dedupeByName keeps the first occurrence per unique name (input order) and
// records a FieldConflict per differing field on every subsequent
// occurrence of an already-seen name.
func dedupeByName[T any](extractorName string, items []T, nameOf func(T) string) ([]T, []model.FieldConflict) {
	var kept []T
	var conflicts []model.FieldConflict
	index := map[string]int{}

	for _, item := range items {
		name := nameOf(item)
		if i, ok := index[name]; ok {
			conflicts = append(conflicts, diffFields(extractorName, kept[i], item)...)
			continue
		}
		index[name] = len(kept)
		kept = append(kept, item)
	}

	return kept, conflicts
}

func diffFields(extractorName string, first, second any) []model.FieldConflict {
	firstMap := toMap(first)
	secondMap := toMap(second)

	var conflicts []model.FieldConflict
	for key, secondVal := range secondMap {
		if key == "name" {
			continue
		}
		firstVal, ok := firstMap[key]
		if !ok || !reflect.DeepEqual(firstVal, secondVal) {
			conflicting := extractorName
			conflicts = append(conflicts, model.FieldConflict{
				Field:                key,
				SourceExtractor:      extractorName,
				ReportedValue:        firstVal,
				ConflictingExtractor: &conflicting,
				ConflictingValue:     secondVal,
				Resolution:           model.ResolutionKeptFirst,
			})
		}
	}
	return conflicts
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
