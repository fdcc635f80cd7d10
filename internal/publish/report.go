// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package publish

import (
	"encoding/json"
	"errors"
	"time"

	"go.astrophena.name/newsmap/internal/vcs"
)

// Step names a stage of a run.
type Step string

// Steps in the order they run. Minify, Feed and Notify only run when enabled.
const (
	StepActivate Step = "activate"
	StepGenerate Step = "generate"
	StepFeed     Step = "feed"
	StepMinify   Step = "minify"
	StepStage    Step = "stage"
	StepCommit   Step = "commit"
	StepPush     Step = "push"
	StepNotify   Step = "notify"
	StepPause    Step = "pause"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Step     Step
	ExitCode int    // for steps that run an external program
	Output   []byte // captured output, if any
	Err      error
	Skipped  bool
	Start    time.Time
	Duration time.Duration
}

// OK reports whether the step ran and succeeded.
func (s StepResult) OK() bool { return !s.Skipped && s.Err == nil }

// MarshalJSON implements [json.Marshaler].
func (s StepResult) MarshalJSON() ([]byte, error) {
	var errStr string
	if s.Err != nil {
		errStr = s.Err.Error()
	}
	return json.Marshal(struct {
		Step     Step    `json:"step"`
		ExitCode int     `json:"exit_code,omitempty"`
		Error    string  `json:"error,omitempty"`
		Skipped  bool    `json:"skipped,omitempty"`
		Seconds  float64 `json:"seconds"`
	}{s.Step, s.ExitCode, errStr, s.Skipped, s.Duration.Seconds()})
}

// Report describes a completed (or interrupted) run.
type Report struct {
	Dir       string       `json:"dir"`
	Message   string       `json:"message"`
	Generated []string     `json:"generated,omitempty"` // files the generator wrote
	Steps     []StepResult `json:"steps"`
	Start     time.Time    `json:"start"`
	End       time.Time    `json:"end"`
}

// Result returns the result of step s, if it was reached.
func (r *Report) Result(s Step) (StepResult, bool) {
	for _, res := range r.Steps {
		if res.Step == s {
			return res, true
		}
	}
	return StepResult{}, false
}

// Failed returns the steps that ran and failed. An empty commit is not a
// failure.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, res := range r.Steps {
		if res.Skipped || res.Err == nil || errors.Is(res.Err, vcs.ErrNothingToCommit) {
			continue
		}
		failed = append(failed, res)
	}
	return failed
}

// OK reports whether no step failed.
func (r *Report) OK() bool { return len(r.Failed()) == 0 }
