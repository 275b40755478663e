package model

import (
	"fmt"
	"math"
)

// Validate checks a fully-assembled BuildingSpec against its structural
// invariants. Violations are returned as FieldConflicts with
// ResolutionSchemaViolation rather than an error: per 4.G step 6, schema
// violations are recorded, not raised.
func Validate(spec BuildingSpec) []FieldConflict {
	var conflicts []FieldConflict

	zoneNames := make(map[string]bool, len(spec.Zones))
	for _, z := range spec.Zones {
		zoneNames[z.Name] = true
	}
	wallNames := make(map[string]bool, len(spec.Walls))
	for _, w := range spec.Walls {
		wallNames[w.Name] = true
	}

	for _, w := range spec.Walls {
		if !zoneNames[w.Zone] {
			conflicts = append(conflicts, unresolvedRef("walls.zone", w.Name, w.Zone))
		}
		if w.NetArea > w.GrossArea {
			conflicts = append(conflicts, schemaViolation(
				fmt.Sprintf("walls[%s].net_area", w.Name), w.NetArea,
				fmt.Sprintf("net_area must be <= gross_area (%.2f)", w.GrossArea)))
		}
	}

	for _, win := range spec.Windows {
		if !wallNames[win.Wall] {
			conflicts = append(conflicts, unresolvedRef("windows.wall", win.Name, win.Wall))
		}
		if win.UFactor <= 0 {
			conflicts = append(conflicts, schemaViolation(
				fmt.Sprintf("windows[%s].u_factor", win.Name), win.UFactor, "u_factor must be > 0"))
		}
		if win.SHGC < 0 || win.SHGC > 1 {
			conflicts = append(conflicts, schemaViolation(
				fmt.Sprintf("windows[%s].shgc", win.Name), win.SHGC, "shgc must be in [0,1]"))
		}
		if win.Multiplier < 1 {
			conflicts = append(conflicts, schemaViolation(
				fmt.Sprintf("windows[%s].multiplier", win.Name), win.Multiplier, "multiplier must be >= 1"))
		}
		expected := win.Height * win.Width * win.Multiplier
		if expected > 0 && math.Abs(win.Area-expected)/expected > 0.01 {
			conflicts = append(conflicts, schemaViolation(
				fmt.Sprintf("windows[%s].area", win.Name), win.Area,
				fmt.Sprintf("area should approximate height*width*multiplier (%.2f)", expected)))
		}
	}

	if spec.Envelope.ConditionedFloorArea <= 0 {
		conflicts = append(conflicts, schemaViolation(
			"envelope.conditioned_floor_area", spec.Envelope.ConditionedFloorArea,
			"conditioned_floor_area must be > 0"))
	}

	if spec.Project.ClimateZone < 1 || spec.Project.ClimateZone > 16 {
		conflicts = append(conflicts, schemaViolation(
			"project.climate_zone", spec.Project.ClimateZone, "climate_zone must be in [1,16]"))
	}

	var wallAreaSum float64
	for _, w := range spec.Walls {
		wallAreaSum += w.GrossArea
	}
	if spec.Envelope.ExteriorWallArea > 0 {
		if math.Abs(wallAreaSum-spec.Envelope.ExteriorWallArea)/spec.Envelope.ExteriorWallArea > 0.01 {
			conflicts = append(conflicts, schemaViolation(
				"envelope.exterior_wall_area", spec.Envelope.ExteriorWallArea,
				fmt.Sprintf("sum of wall areas (%.2f) diverges by more than 1%%", wallAreaSum)))
		}
	}

	var windowAreaSum float64
	for _, win := range spec.Windows {
		windowAreaSum += win.Area
	}
	if spec.Envelope.WindowArea > 0 {
		if math.Abs(windowAreaSum-spec.Envelope.WindowArea)/spec.Envelope.WindowArea > 0.01 {
			conflicts = append(conflicts, schemaViolation(
				"envelope.window_area", spec.Envelope.WindowArea,
				fmt.Sprintf("sum of window areas (%.2f) diverges by more than 1%%", windowAreaSum)))
		}
	}

	return conflicts
}

func unresolvedRef(field, item, target string) FieldConflict {
	return schemaViolation(field, item, fmt.Sprintf("reference %q does not resolve", target))
}

func schemaViolation(field string, value any, note string) FieldConflict {
	return FieldConflict{
		Field:            field,
		SourceExtractor:  "merge.validate",
		ReportedValue:    value,
		ConflictingValue: note,
		Resolution:       ResolutionSchemaViolation,
	}
}
