package model

// ChangeType is the kind of edit a Critic proposal makes to an instruction
// document. It determines the required semver bump (see internal/critic).
type ChangeType string

const (
	ChangeAddSection    ChangeType = "add_section"
	ChangeModifySection ChangeType = "modify_section"
	ChangeClarifyRule   ChangeType = "clarify_rule"
)

// InstructionProposal is a structured edit to an instruction document,
// produced by the Critic from a FailureAnalysis and validated before it may
// be applied.
type InstructionProposal struct {
	TargetFile          string     `json:"target_file"`
	CurrentVersion      string     `json:"current_version"`
	ProposedVersion     string     `json:"proposed_version"`
	ChangeType          ChangeType `json:"change_type"`
	FailurePattern      string     `json:"failure_pattern"`
	Hypothesis          string     `json:"hypothesis"`
	ProposedChange      string     `json:"proposed_change"`
	ExpectedImpact      string     `json:"expected_impact"`
	AffectedErrorTypes  []ErrorType `json:"affected_error_types"`
	AffectedDomains     []string   `json:"affected_domains"`
	EstimatedF1Delta    *float64   `json:"estimated_f1_delta"`
}

// FailureAnalysis is the Failure Analyser's aggregate over a batch of
// evaluations, the sole input the Critic consumes.
type FailureAnalysis struct {
	EvalIDs           []string          `json:"eval_ids"`
	ErrorsByType      map[ErrorType]int `json:"errors_by_type"`
	ErrorsByDomain    map[string]int    `json:"errors_by_domain"`
	DominantErrorType ErrorType         `json:"dominant_error_type"`
	DominantDomain    string            `json:"dominant_domain"`
	AggregateF1       float64           `json:"aggregate_f1"`
	Samples           []FieldDiscrepancy `json:"samples"`
}
