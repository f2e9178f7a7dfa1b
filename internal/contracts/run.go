package contracts

import (
	"fmt"
	"strings"
	"time"
)

// FormulaMode selects which scoring formulas a run computes
type FormulaMode string

const (
	ModeBuffett FormulaMode = "buffett" // quality tilt only
	ModeCramer  FormulaMode = "cramer"  // value tilt only
	ModeBoth    FormulaMode = "both"    // both, combined by rank sum
)

// FormulaModes lists every accepted mode
var FormulaModes = []FormulaMode{ModeBuffett, ModeCramer, ModeBoth}

// ParseFormulaMode validates a wire value
func ParseFormulaMode(s string) (FormulaMode, error) {
	m := FormulaMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormulaMode, s)
	}
	return m, nil
}

// Valid reports whether m is one of the closed set
func (m FormulaMode) Valid() bool {
	switch m {
	case ModeBuffett, ModeCramer, ModeBoth:
		return true
	}
	return false
}

// WantsBuffett reports whether FormulaA is computed in this mode
func (m FormulaMode) WantsBuffett() bool { return m == ModeBuffett || m == ModeBoth }

// WantsCramer reports whether FormulaB is computed in this mode
func (m FormulaMode) WantsCramer() bool { return m == ModeCramer || m == ModeBoth }

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether s → to is a legal lifecycle step.
// running → running is allowed so an interrupted run can be resumed under the same id.
func (s RunStatus) CanTransition(to RunStatus) bool {
	switch s {
	case StatusQueued:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusRunning || to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Run is one execution of the ranking pipeline
type Run struct {
	ID          int64       `json:"run_id"`
	FormulaMode FormulaMode `json:"formula_mode"`
	Status      RunStatus   `json:"status"`
	Progress    int         `json:"progress"` // 0-100
	Message     string      `json:"message"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at"`
}

// Run messages written by the pipeline
const (
	MessageQueued        = "Queued"
	MessageRunning       = "Running"
	MessageDone          = "Done"
	MessageNoSymbols     = "No symbols available"
	progressMessageFmt   = "Processed %d/%d"
	failureMessagePrefix = "Error: "
)

// ProgressMessage formats the message attached to a progress update
func ProgressMessage(processed, total int) string {
	return fmt.Sprintf(progressMessageFmt, processed, total)
}

// FailureMessage formats the message recorded on a failed run
func FailureMessage(err error) string {
	return failureMessagePrefix + err.Error()
}
