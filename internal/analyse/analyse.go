// Package analyse aggregates per-evaluation verification results into a
// single FailureAnalysis that the Critic consumes to propose instruction
// edits.
package analyse

import (
	"sort"
	"strings"

	"basegraph.app/t24spec/internal/model"
)

// MaxSamples bounds the number of discrepancies carried into a
// FailureAnalysis for the Critic's prompt.
const MaxSamples = 20

// Evaluation pairs one eval_id with its latest EvalResult.
type Evaluation struct {
	EvalID string
	Result model.EvalResult
}

// Analyse aggregates the latest EvalResult of each evaluation in evals into
// one FailureAnalysis, per 4.J.
func Analyse(evals []Evaluation) model.FailureAnalysis {
	analysis := model.FailureAnalysis{
		ErrorsByType:   map[model.ErrorType]int{},
		ErrorsByDomain: map[string]int{},
	}

	var f1Sum float64
	var allDiscrepancies []model.FieldDiscrepancy

	for _, e := range evals {
		analysis.EvalIDs = append(analysis.EvalIDs, e.EvalID)
		f1Sum += e.Result.Metrics.F1
		for _, d := range e.Result.Discrepancies {
			analysis.ErrorsByType[d.ErrorType]++
			analysis.ErrorsByDomain[topLevelDomain(d.FieldPath)]++
			allDiscrepancies = append(allDiscrepancies, d)
		}
	}

	if len(evals) > 0 {
		analysis.AggregateF1 = f1Sum / float64(len(evals))
	}

	analysis.DominantErrorType = dominantErrorType(analysis.ErrorsByType)
	analysis.DominantDomain = dominantDomain(analysis.ErrorsByDomain)
	analysis.Samples = sampleDiscrepancies(allDiscrepancies, MaxSamples)

	return analysis
}

// topLevelDomain extracts the first path segment of a field_path, stripping
// any `[...]` indexing, e.g. "windows[w1].u_factor" -> "windows".
func topLevelDomain(fieldPath string) string {
	if i := strings.IndexAny(fieldPath, ".["); i >= 0 {
		return fieldPath[:i]
	}
	return fieldPath
}

func dominantErrorType(counts map[model.ErrorType]int) model.ErrorType {
	var dominant model.ErrorType
	best := -1
	for _, et := range []model.ErrorType{
		model.ErrorOmission, model.ErrorHallucination, model.ErrorWrongValue, model.ErrorFormatError,
	} {
		if counts[et] > best {
			best = counts[et]
			dominant = et
		}
	}
	return dominant
}

func dominantDomain(counts map[string]int) string {
	domains := make([]string, 0, len(counts))
	for d := range counts {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	var dominant string
	best := -1
	for _, d := range domains {
		if counts[d] > best {
			best = counts[d]
			dominant = d
		}
	}
	return dominant
}

// sampleDiscrepancies returns up to max discrepancies spread across error
// types: it round-robins over the four error-type buckets rather than
// taking a contiguous prefix, so a single dominant error type doesn't crowd
// out the rest of the sample.
func sampleDiscrepancies(discrepancies []model.FieldDiscrepancy, max int) []model.FieldDiscrepancy {
	buckets := map[model.ErrorType][]model.FieldDiscrepancy{}
	order := []model.ErrorType{
		model.ErrorOmission, model.ErrorHallucination, model.ErrorWrongValue, model.ErrorFormatError,
	}
	for _, d := range discrepancies {
		buckets[d.ErrorType] = append(buckets[d.ErrorType], d)
	}

	var sample []model.FieldDiscrepancy
	for len(sample) < max {
		progressed := false
		for _, et := range order {
			if len(sample) >= max {
				break
			}
			if len(buckets[et]) == 0 {
				continue
			}
			sample = append(sample, buckets[et][0])
			buckets[et] = buckets[et][1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return sample
}
