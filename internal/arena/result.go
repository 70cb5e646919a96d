package arena

import "llmarena/internal/domain"

// RunStatus is the terminal state of one competitor's session.
type RunStatus string

const (
	// StatusRan means the pipeline completed, possibly with recorded
	// per-stage errors.
	StatusRan RunStatus = "ran"
	// StatusSkipped means the pipeline never made an external call.
	StatusSkipped RunStatus = "skipped"
	// StatusFailed means an infrastructure error stopped the pipeline.
	StatusFailed RunStatus = "failed"
)

// CompetitorResult is the outcome of one competitor's session run. Expected
// outcomes (already ran, over budget) are statuses, not errors.
type CompetitorResult struct {
	Status     RunStatus
	RunID      string
	SkipReason string // set when Status == StatusSkipped
	Err        string // set when Status == StatusFailed

	Proposal *domain.StrategistProposal
	Plan     *domain.TradePlan
	Fills    []domain.Fill
	Errors   []string // recorded per-stage errors that did not abort the run

	EquityBefore float64
	EquityAfter  float64
}

// Skipped constructs a skipped result.
func Skipped(reason string) CompetitorResult {
	return CompetitorResult{Status: StatusSkipped, SkipReason: reason}
}

// Failed constructs a failed result.
func Failed(err error) CompetitorResult {
	return CompetitorResult{Status: StatusFailed, Err: err.Error()}
}
