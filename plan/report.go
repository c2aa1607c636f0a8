package plan

import (
	"fmt"
	"time"
)

// StepStatus is the outcome of a single migration run.
type StepStatus int

// Step outcomes.
const (
	// StepSucceeded means the migration ran, and was recorded in Commit mode.
	StepSucceeded StepStatus = iota
	// StepFailed means the migration's operation returned an error.
	StepFailed
	// StepUnrecorded means the migration ran, but recording it failed.
	StepUnrecorded
)

func (s StepStatus) String() string {
	switch s {
	case StepFailed:
		return "failed"
	case StepUnrecorded:
		return "unrecorded"
	}
	return "succeeded"
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (s *StepStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "succeeded":
		*s = StepSucceeded
	case "failed":
		*s = StepFailed
	case "unrecorded":
		*s = StepUnrecorded
	default:
		return fmt.Errorf("invalid step status '%s'", text)
	}
	return nil
}

// StepResult is the outcome of a single migration run.
type StepResult struct {
	Index     int           `json:"index" yaml:"index"`
	Name      string        `json:"name" yaml:"name"`
	Direction Direction     `json:"direction" yaml:"direction"`
	Status    StepStatus    `json:"status" yaml:"status"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`

	Err error `json:"-" yaml:"-"`
}

// Report summarizes a run.
type Report struct {
	RunID     string       `json:"run_id" yaml:"run_id"`
	Selection string       `json:"selection" yaml:"selection"`
	Direction Direction    `json:"direction" yaml:"direction"`
	Mode      RunMode      `json:"mode" yaml:"mode"`
	Steps     []StepResult `json:"steps" yaml:"steps"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`

	// Err is the error that ended the run, if any.
	Err error `json:"-" yaml:"-"`
}

// Executed returns the number of migrations that ran successfully.
func (r *Report) Executed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status != StepFailed {
			n++
		}
	}
	return n
}

// Failed returns the result of the migration that ended the run, if any.
func (r *Report) Failed() (StepResult, bool) {
	if len(r.Steps) == 0 {
		return StepResult{}, false
	}
	last := r.Steps[len(r.Steps)-1]
	return last, last.Status != StepSucceeded
}

func (r *Report) setErr(err error) {
	r.Err = err
	r.Error = ""
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *StepResult) setErr(err error) {
	r.Err = err
	r.Error = ""
	if err != nil {
		r.Error = err.Error()
	}
}
