// Package verify compares an extracted BuildingSpec against a ground-truth
// record field by field, classifying every discrepancy into one of four
// error types and producing precision/recall/F1 metrics.
package verify

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"basegraph.app/t24spec/internal/model"
	"basegraph.app/t24spec/internal/orientation"
)

// skippedTopLevelFields are BuildingSpec sections that record extraction
// and merge bookkeeping rather than extracted content; they are never
// compared against ground truth.
var skippedTopLevelFields = map[string]bool{
	"extraction_status": true,
	"conflicts":         true,
}

// DefaultAbsoluteTolerance and DefaultPercentTolerance are the numeric
// comparison defaults in 4.I.
const (
	DefaultAbsoluteTolerance = 0.01
	DefaultPercentTolerance  = 0.005
	DefaultAngularThreshold  = 15.0
)

// Options tunes the comparison rules. Zero-valued fields fall back to the
// package defaults via WithDefaults.
type Options struct {
	AbsoluteTolerance float64
	PercentTolerance  float64
	AngularThreshold  float64
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.AbsoluteTolerance == 0 {
		o.AbsoluteTolerance = DefaultAbsoluteTolerance
	}
	if o.PercentTolerance == 0 {
		o.PercentTolerance = DefaultPercentTolerance
	}
	if o.AngularThreshold == 0 {
		o.AngularThreshold = DefaultAngularThreshold
	}
	return o
}

// strictFields are compared with case-sensitive exact equality (enums and
// booleans represented as JSON strings), rather than the looser
// case-insensitive free-text rule applied to the rest.
var strictFields = map[string]bool{
	"fuel_type":              true,
	"system_type":            true,
	"tank_type":              true,
	"type":                   true,
	"state":                  true,
	"resolution":             true,
	"orientation_confidence": true,
}

// addressLikeFields get the stronger punctuation-collapsing normalisation
// on top of case-insensitive trimmed comparison.
var addressLikeFields = map[string]bool{
	"address": true,
	"city":    true,
	"title":   true,
}

// angularFields are compared via angular_distance rather than linear
// difference.
var angularFields = map[string]bool{
	"front_orientation": true,
	"orientation":       true,
}

// Verify compares an extracted BuildingSpec against ground truth and
// returns the discrepancies and metrics described in 4.I.
func Verify(expected, actual model.BuildingSpec, opts Options) (model.EvalResult, error) {
	opts = opts.WithDefaults()

	expectedTree, err := toTree(expected)
	if err != nil {
		return model.EvalResult{}, err
	}
	actualTree, err := toTree(actual)
	if err != nil {
		return model.EvalResult{}, err
	}

	acc := &accumulator{opts: opts}
	for _, key := range sortedKeys(expectedTree) {
		if skippedTopLevelFields[key] {
			continue
		}
		acc.compare(key, expectedTree[key], actualTree[key])
	}

	return model.EvalResult{
		Discrepancies: acc.discrepancies,
		Metrics:       acc.metrics(),
	}, nil
}

func toTree(spec model.BuildingSpec) (map[string]any, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

type accumulator struct {
	opts          Options
	discrepancies []model.FieldDiscrepancy
	truePositive  int
}

func (a *accumulator) metrics() model.Metrics {
	counts := map[model.ErrorType]int{
		model.ErrorOmission:      0,
		model.ErrorHallucination: 0,
		model.ErrorWrongValue:    0,
		model.ErrorFormatError:   0,
	}
	for _, d := range a.discrepancies {
		counts[d.ErrorType]++
	}

	tp := float64(a.truePositive)
	fp := float64(counts[model.ErrorHallucination] + counts[model.ErrorWrongValue] + counts[model.ErrorFormatError])
	fn := float64(counts[model.ErrorOmission] + counts[model.ErrorWrongValue] + counts[model.ErrorFormatError])

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return model.Metrics{Precision: precision, Recall: recall, F1: f1, ErrorsByType: counts}
}

func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// compare walks one field position in the expected/actual trees, recursing
// into objects and named lists, classifying every leaf.
func (a *accumulator) compare(path string, expected, actual any) {
	if expected == nil && actual == nil {
		a.truePositive++
		return
	}
	if expected == nil {
		a.emitLeaves(path, actual, model.ErrorHallucination)
		return
	}
	if actual == nil {
		a.emitLeaves(path, expected, model.ErrorOmission)
		return
	}

	switch expVal := expected.(type) {
	case map[string]any:
		actualMap, ok := actual.(map[string]any)
		if !ok {
			a.record(path, expected, actual, model.ErrorFormatError)
			return
		}
		for _, key := range sortedKeys(expVal) {
			a.compare(joinPath(path, key), expVal[key], actualMap[key])
		}

	case []any:
		actualList, ok := actual.([]any)
		if !ok {
			a.record(path, expected, actual, model.ErrorFormatError)
			return
		}
		if isNamedObjectList(expVal) {
			a.compareNamedList(path, expVal, actualList)
		} else {
			a.compareScalarList(path, expVal, actualList)
		}

	default:
		a.compareScalar(path, expected, actual)
	}
}

// compareNamedList matches list items by normalised name: unmatched
// ground-truth items are whole-item omissions, unmatched extracted items
// are whole-item hallucinations, matches recurse field by field.
func (a *accumulator) compareNamedList(path string, expected, actual []any) {
	actualByName := map[string]any{}
	var actualOrder []string
	for _, item := range actual {
		name, ok := itemName(item)
		if !ok {
			continue
		}
		actualByName[name] = item
		actualOrder = append(actualOrder, name)
	}

	matched := map[string]bool{}
	for _, item := range expected {
		name, ok := itemName(item)
		if !ok {
			continue
		}
		matched[name] = true
		itemPath := path + "[" + name + "]"
		if actualItem, found := actualByName[name]; found {
			a.compare(itemPath, item, actualItem)
		} else {
			a.compare(itemPath, item, nil)
		}
	}

	for _, name := range actualOrder {
		if matched[name] {
			continue
		}
		a.compare(path+"["+name+"]", nil, actualByName[name])
	}
}

func (a *accumulator) compareScalarList(path string, expected, actual []any) {
	if len(expected) != len(actual) {
		a.record(path, expected, actual, model.ErrorWrongValue)
		return
	}
	for i := range expected {
		a.compare(pathIndex(path, i), expected[i], actual[i])
	}
}

func (a *accumulator) compareScalar(path string, expected, actual any) {
	field := lastSegment(path)

	expNum, expIsNum := expected.(float64)
	actNum, actIsNum := actual.(float64)
	if expIsNum && actIsNum {
		if numbersEqual(field, expNum, actNum, a.opts) {
			a.truePositive++
		} else {
			a.record(path, expected, actual, model.ErrorWrongValue)
		}
		return
	}

	expStr, expIsStr := expected.(string)
	actStr, actIsStr := actual.(string)
	if expIsStr && actIsStr {
		if stringsEqual(field, expStr, actStr) {
			a.truePositive++
		} else {
			a.record(path, expected, actual, model.ErrorWrongValue)
		}
		return
	}

	expBool, expIsBool := expected.(bool)
	actBool, actIsBool := actual.(bool)
	if expIsBool && actIsBool {
		if expBool == actBool {
			a.truePositive++
		} else {
			a.record(path, expected, actual, model.ErrorWrongValue)
		}
		return
	}

	a.record(path, expected, actual, model.ErrorFormatError)
}

func numbersEqual(field string, expected, actual float64, opts Options) bool {
	distance := func() float64 { return abs(expected - actual) }

	if angularFields[field] {
		return orientation.AngularDistance(expected, actual) <= opts.AngularThreshold
	}
	if strings.HasSuffix(field, "_ratio") {
		return distance() <= opts.PercentTolerance*abs(expected)
	}
	tolerance := opts.AbsoluteTolerance
	if pct := opts.PercentTolerance * abs(expected); pct > tolerance {
		tolerance = pct
	}
	return distance() <= tolerance
}

func stringsEqual(field, expected, actual string) bool {
	if strictFields[field] {
		return expected == actual
	}
	e := strings.ToLower(strings.TrimSpace(expected))
	act := strings.ToLower(strings.TrimSpace(actual))
	if addressLikeFields[field] {
		e = collapsePunctuation(e)
		act = collapsePunctuation(act)
	}
	return e == act
}

func collapsePunctuation(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// emitLeaves walks v (object, list, or scalar) and records errType at every
// leaf position, used when one whole side of a comparison is absent.
func (a *accumulator) emitLeaves(path string, v any, errType model.ErrorType) {
	switch val := v.(type) {
	case map[string]any:
		for _, key := range sortedKeys(val) {
			a.emitLeaves(joinPath(path, key), val[key], errType)
		}
	case []any:
		if isNamedObjectList(val) {
			for _, item := range val {
				name, ok := itemName(item)
				if !ok {
					continue
				}
				a.emitLeaves(path+"["+name+"]", item, errType)
			}
			return
		}
		for i, item := range val {
			a.emitLeaves(pathIndex(path, i), item, errType)
		}
	case nil:
		// both sides nil at this leaf: no error, already handled by caller.
	default:
		if errType == model.ErrorOmission {
			a.record(path, v, nil, errType)
		} else {
			a.record(path, nil, v, errType)
		}
	}
}

func (a *accumulator) record(path string, expected, actual any, errType model.ErrorType) {
	a.discrepancies = append(a.discrepancies, model.FieldDiscrepancy{
		FieldPath: path,
		Expected:  expected,
		Actual:    actual,
		ErrorType: errType,
	})
}

func isNamedObjectList(items []any) bool {
	if len(items) == 0 {
		return false
	}
	m, ok := items[0].(map[string]any)
	if !ok {
		return false
	}
	_, hasName := m["name"]
	return hasName
}

func itemName(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	name, ok := m["name"].(string)
	if !ok {
		return "", false
	}
	return normalizeName(name), true
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func pathIndex(base string, i int) string {
	return base + "[" + strconv.Itoa(i) + "]"
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.IndexByte(path, '['); i >= 0 {
		path = path[:i]
	}
	return path
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

