package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs
// within a context. Fields flow through context enrichment, so business
// context (eval_id, iteration, worker_name) is automatically included in
// every log statement without threading it through call signatures.
type LogFields struct {
	EvalID     *string // evaluation case identifier
	Iteration  *int    // iteration number within the evaluation
	Domain     *string // extraction domain (project, envelope, zones, ...)
	WorkerName *string // worker runtime invocation name
	Component  string  // component name (OTel semantic convention style, e.g. "t24spec.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.EvalID != nil {
		result.EvalID = new.EvalID
	}
	if new.Iteration != nil {
		result.Iteration = new.Iteration
	}
	if new.Domain != nil {
		result.Domain = new.Domain
	}
	if new.WorkerName != nil {
		result.WorkerName = new.WorkerName
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Iteration: logger.Ptr(n)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like prompts or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
