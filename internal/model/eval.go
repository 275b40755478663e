package model

// ErrorType classifies how a single field comparison failed.
type ErrorType string

const (
	ErrorOmission     ErrorType = "omission"
	ErrorHallucination ErrorType = "hallucination"
	ErrorWrongValue   ErrorType = "wrong_value"
	ErrorFormatError  ErrorType = "format_error"
)

// FieldDiscrepancy is a single field-level comparison failure between an
// extracted record and ground truth.
type FieldDiscrepancy struct {
	FieldPath string    `json:"field_path"`
	Expected  any       `json:"expected"`
	Actual    any       `json:"actual"`
	ErrorType ErrorType `json:"error_type"`
}

// Metrics summarises precision/recall/F1 and per-error-type counts for one
// evaluation, or a macro aggregate across evaluations.
type Metrics struct {
	Precision     float64           `json:"precision"`
	Recall        float64           `json:"recall"`
	F1            float64           `json:"f1"`
	ErrorsByType  map[ErrorType]int `json:"errors_by_type"`
}

// EvalResult is the Verifier's output for one evaluation case.
type EvalResult struct {
	Discrepancies []FieldDiscrepancy `json:"discrepancies"`
	Metrics       Metrics             `json:"metrics"`
}
