// Package delegation implements the Delegation Pool described in this
// document's §4.4.2: classifying and scoring sub-agent tasks against
// available models, then running them as bounded-concurrency fresh ReAct
// sessions.
package delegation

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rushi32/IsoCode/pkg/types"
)

const (
	minWorkers     = 1
	maxWorkersCap  = 5
	defaultWorkers = 2

	// SubAgentStepCap bounds each delegated sub-agent's own ReAct loop,
	// independent of the parent session's step budget.
	SubAgentStepCap = 15
)

// SubAgentOptions describes one attempt at running a delegated task under
// a specific model.
type SubAgentOptions struct {
	ParentSessionID string
	TaskIndex       int
	TaskText        string
	Model           string
	StepCap         int
}

// SubAgentRunner runs a single delegated task to completion as a fresh
// agent-plus ReAct session and returns its final answer text. Implemented
// by the session package; declared here to avoid a circular import (the
// session package depends on delegation, not the reverse).
type SubAgentRunner interface {
	RunSubAgent(ctx context.Context, opts SubAgentOptions) (string, error)
}

// Config carries the per-delegation values the model-order algorithm needs
// beyond the task list itself.
type Config struct {
	SessionDefaultModel string
	VisionModel         string
	MaxWorkers          int
}

// taskOutcome is the per-task result of running through its model fallback
// list, used to build the aggregated observation or decide the pool failed.
type taskOutcome struct {
	index   int
	text    string
	err     error
	fatal   bool
}

// Pool runs delegated tasks as bounded-concurrency sub-agents.
type Pool struct {
	runner SubAgentRunner
}

// NewPool constructs a Pool over the given sub-agent runner.
func NewPool(runner SubAgentRunner) *Pool {
	return &Pool{runner: runner}
}

func clampWorkers(n int) int {
	if n <= 0 {
		return defaultWorkers
	}
	if n < minWorkers {
		return minWorkers
	}
	if n > maxWorkersCap {
		return maxWorkersCap
	}
	return n
}

// Run executes all delegated tasks, chunked to cfg.MaxWorkers concurrent
// sub-agents at a time, and returns the combined "[Subtask i]" observation
// text on success. It returns an error when any task fails fatally or when
// every task fails, per the pool's escalation rule; the caller (the ReAct
// engine) is expected to then set delegationDisabled on the session.
func (p *Pool) Run(ctx context.Context, sessionID string, tasks []types.DelegateTask, available []string, cfg Config) (string, error) {
	if len(tasks) == 0 {
		return "", fmt.Errorf("delegation: no tasks to run")
	}

	maxWorkers := clampWorkers(cfg.MaxWorkers)
	outcomes := make([]taskOutcome, len(tasks))

	for start := 0; start < len(tasks); start += maxWorkers {
		end := start + maxWorkers
		if end > len(tasks) {
			end = len(tasks)
		}
		chunk := tasks[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for i, task := range chunk {
			idx := start + i
			task := task
			g.Go(func() error {
				outcomes[idx] = p.runTask(gctx, sessionID, idx, task, available, cfg)
				return nil
			})
		}
		// Errors from individual sub-agents are captured in outcomes, not
		// propagated through the errgroup, so a failing task never cancels
		// its siblings; Wait only ever returns nil here.
		_ = g.Wait()
	}

	return p.aggregate(outcomes)
}

// runTask tries the task's ordered model list in sequence, stopping at the
// first success or the first fatal error.
func (p *Pool) runTask(ctx context.Context, sessionID string, idx int, task types.DelegateTask, available []string, cfg Config) taskOutcome {
	models := BuildModelOrder(task, available, cfg.SessionDefaultModel, cfg.VisionModel)
	if len(models) == 0 {
		return taskOutcome{index: idx, err: fmt.Errorf("delegation: no candidate models for task %d", idx)}
	}

	var lastErr error
	for _, model := range models {
		text, err := p.runner.RunSubAgent(ctx, SubAgentOptions{
			ParentSessionID: sessionID,
			TaskIndex:       idx,
			TaskText:        task.TaskText,
			Model:           model,
			StepCap:         SubAgentStepCap,
		})
		if err == nil {
			return taskOutcome{index: idx, text: text}
		}
		lastErr = err
		if isFatal(err.Error()) {
			return taskOutcome{index: idx, err: err, fatal: true}
		}
		// non-fatal: fall through and try the next model in the list
	}

	return taskOutcome{index: idx, err: fmt.Errorf("delegation: task %d exhausted all %d candidate models: %w", idx, len(models), lastErr)}
}

// aggregate builds the combined observation text, or returns the pool
// error when escalation is warranted.
func (p *Pool) aggregate(outcomes []taskOutcome) (string, error) {
	succeeded := 0
	for _, o := range outcomes {
		if o.fatal {
			return "", fmt.Errorf("delegation pool: fatal failure on task %d: %w", o.index, o.err)
		}
		if o.err == nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		return "", fmt.Errorf("delegation pool: all %d tasks failed", len(outcomes))
	}

	var sb strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if o.err != nil {
			fmt.Fprintf(&sb, "[Subtask %d] failed: %v", o.index+1, o.err)
			continue
		}
		fmt.Fprintf(&sb, "[Subtask %d] %s", o.index+1, o.text)
	}
	return sb.String(), nil
}
