package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rushi32/IsoCode/internal/contextwindow"
	"github.com/rushi32/IsoCode/internal/delegation"
	"github.com/rushi32/IsoCode/internal/event"
	"github.com/rushi32/IsoCode/internal/tool"
	"github.com/rushi32/IsoCode/pkg/types"
)

// checkpointEvery is how often, in steps, the loop writes a resumable
// checkpoint (spec §3 "Checkpoint": "every 8th step").
const checkpointEvery = 8

// engineLLMRetries is the step loop's own retry budget for a failed model
// call, on top of the adapter's internal transient-error retries (spec
// §4.2.2 step 4: "retry twice... then terminate with a descriptive final";
// §7 "ProviderTransient": "two adapter retries, then up to two engine-level
// retries announced as thought events").
const engineLLMRetries = 2

// isUnrecoverableModelError reports whether err names a condition the
// engine should not retry (spec §4.2.2 step 4: "unless the error names
// not found / does not exist").
func isUnrecoverableModelError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

// callLLMWithRetry invokes the LLM Adapter, retrying up to engineLLMRetries
// times on any error that isn't an unrecoverable not-found/does-not-exist
// failure. Each retry is announced to the client as a thought event before
// the next attempt (spec §7 ProviderTransient).
func callLLMWithRetry(ctx context.Context, m *Manager, sess *types.Session, agent *Agent, trimmed []types.Message) (string, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		raw, err := m.provider.CallSimple(ctx, sess.Model, trimmed, contextwindow.CompletionOptions{
			Temperature: agent.Temperature,
			MaxTokens:   agent.MaxTokens,
			TimeoutSecs: int(agent.Timeout.Seconds()),
			ExpectJSON:  true,
		})
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if isUnrecoverableModelError(err) || attempt >= engineLLMRetries {
			return "", lastErr
		}
		event.PublishSync(event.Event{Type: event.Thought, Data: event.ThoughtData{
			SessionID: sess.ID,
			Content:   fmt.Sprintf("Model call failed (attempt %d/%d): %s. Retrying...", attempt+1, engineLLMRetries+1, err.Error()),
		}})
	}
}

// finalizeSession publishes a final event, persists a summary, and removes
// sess from the registry — the one true-termination sequence every ending
// path (normal final, stop request, fatal error) funnels through (spec
// §4.1 lifecycle, §4.2.4).
func (m *Manager) finalizeSession(ctx context.Context, sess *types.Session, content string) {
	event.PublishSync(event.Event{Type: event.Final, Data: event.FinalData{SessionID: sess.ID, Content: content}})
	m.persistSummary(ctx, sess, sess.CompactionCount > 0)
	m.Remove(sess.ID)
}

// terminate ends a run with a descriptive final event instead of letting an
// error escape the loop (spec §7: "the engine never raises out of its
// loop... converge on either a final event... or an observation event"),
// then persists a summary and drops the session from the registry (spec
// §4.2.4: "fatal LLM error" is a registry-clearing path, same as a normal
// final). The returned error lets the caller still log/propagate the
// failure; the session-visible outcome is the final event already sent.
func (m *Manager) terminate(ctx context.Context, sess *types.Session, reason string) error {
	m.finalizeSession(ctx, sess, reason)
	return fmt.Errorf("session %s: %s", sess.ID, reason)
}

// Run drives the ReAct Control Loop for one user turn (spec §4.2.2): it
// steps the session forward, publishing thought/action/observation/final/
// diff_request/error events in strict order via event.PublishSync, until
// termination (final directive, step cap, stop request, or a Fatal error).
func (m *Manager) Run(ctx context.Context, sess *types.Session) error {
	agent := NewAgent(sess.Mode, DefaultMaxSteps)
	runCtx, cancel := context.WithTimeout(ctx, agent.Timeout)
	defer cancel()

	ws := m.workspaceFor(sess.WorkspaceRoot)

	for {
		if sess.IsStopRequested() {
			// Cooperative termination (spec §7 "StopRequested", §8 boundary
			// behavior: "exactly one final... and the session is removed").
			m.finalizeSession(runCtx, sess, "Agent stopped by user.")
			return nil
		}
		if sess.HasPending() {
			// Awaiting an approve/reject decision; the loop resumes from
			// ResumeWithDecision, not here.
			return nil
		}
		if sess.Step >= agent.MaxSteps {
			return m.terminate(runCtx, sess, fmt.Sprintf("step limit %d reached", agent.MaxSteps))
		}

		if contextwindow.ShouldCompact(systemOf(sess), sess.Messages, m.cfg.ContextBudget, sess.CompactionCount) {
			sess.Messages = contextwindow.Compact(runCtx, m.provider, sess.Model, sess.Messages, 4)
			sess.CompactionCount++
			m.checkpoint(runCtx, sess)
		}

		trimmed := contextwindow.TrimForContextWindow(systemOf(sess), sess.Messages, m.cfg.ContextBudget)

		raw, err := callLLMWithRetry(runCtx, m, sess, agent, trimmed)
		if err != nil {
			return m.terminate(runCtx, sess, fmt.Sprintf("model call failed: %s", err.Error()))
		}

		directive, perr := ParseDirective(raw)
		if directive != nil && directive.Type == types.DirectiveDelegate && sess.Mode != types.ModeAgentPlus {
			// A delegate directive has no meaning outside agent-plus: spec
			// §8 boundary behavior treats it as an unparsable reply, not as
			// a dispatchable directive, so it falls through to the same
			// JSON-format nudge as a ParseFailure rather than surfacing an
			// "unavailable" observation.
			directive, perr = nil, &ParseFailure{Raw: raw}
		}
		if perr != nil {
			sess.RetryCount++
			sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleAssistant, Content: raw, CreatedAt: time.Now()})
			sess.Messages = append(sess.Messages, types.Message{
				ID: newID(), Role: types.RoleUser, Content: "Your last reply was not a single valid JSON directive. Reply with exactly one JSON object as described above.", CreatedAt: time.Now(),
			})
			if sess.RetryCount > 3 {
				return m.terminate(runCtx, sess, "repeated parse failures: could not obtain a valid directive from the model")
			}
			continue
		}
		sess.RetryCount = 0
		sess.Step++

		sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleAssistant, Content: raw, CreatedAt: time.Now()})

		done, err := m.interpret(runCtx, ws, sess, agent, directive)
		if err != nil {
			return m.terminate(runCtx, sess, err.Error())
		}
		if done {
			if sess.HasPending() {
				// Paused awaiting an approve/reject decision, not a true
				// termination: skip the LLM-generated memory summary.
				m.saveConversation(runCtx, sess, sess.CompactionCount > 0)
			} else {
				// True termination (spec §4.1 lifecycle, §4.2.2 step 6
				// final handling): the final event itself was already
				// published by interpretFinal, so only persist+remove here.
				m.persistSummary(runCtx, sess, sess.CompactionCount > 0)
				m.Remove(sess.ID)
			}
			return nil
		}

		if sess.Step%checkpointEvery == 0 {
			m.checkpoint(runCtx, sess)
		}
	}
}

// systemOf returns a session's rendered system message text, or "" if it
// somehow has none.
func systemOf(sess *types.Session) string {
	for _, msg := range sess.Messages {
		if msg.Role == types.RoleSystem {
			return msg.Content
		}
	}
	return ""
}

// interpret executes one parsed Directive against the session, publishing
// its events and appending the resulting observation/final message. It
// returns done=true once the loop should stop.
func (m *Manager) interpret(ctx context.Context, ws *Workspace, sess *types.Session, agent *Agent, d *types.Directive) (bool, error) {
	switch d.Type {
	case types.DirectiveThought:
		event.PublishSync(event.Event{Type: event.Thought, Data: event.ThoughtData{SessionID: sess.ID, Content: d.Content}})
		m.trackPlan(sess, d.Content)

		sess.ConsecutiveNoAction++
		if sess.ConsecutiveNoAction >= MaxConsecutiveNoAction {
			return false, fmt.Errorf("session %s: %d consecutive steps without action", sess.ID, sess.ConsecutiveNoAction)
		}
		if sess.ConsecutiveNoAction >= 2 {
			sess.Messages = append(sess.Messages, types.Message{
				ID: newID(), Role: types.RoleUser, Content: "You have thought without acting for two steps in a row. Emit an action directive next.", CreatedAt: time.Now(),
			})
		}
		return false, nil

	case types.DirectiveAction:
		return m.interpretAction(ctx, ws, sess, agent, d)

	case types.DirectiveDiffRequest:
		return m.interpretDiffRequest(sess, d)

	case types.DirectiveDelegate:
		return m.interpretDelegate(ctx, ws, sess, d)

	case types.DirectiveFinal:
		return m.interpretFinal(sess, d)

	default:
		return false, &ParseFailure{}
	}
}

// trackPlan updates a session's plan/progress counters from a thought's
// content (spec §3 "Plan").
func (m *Manager) trackPlan(sess *types.Session, content string) {
	if hasPlanMarker(content) {
		sess.PlanText = content
		sess.PlanTotal = countNumberedLines(content)
		sess.PlanCompleted = 0
	}
	if hasProgressMarker(content) && sess.PlanCompleted < sess.PlanTotal {
		sess.PlanCompleted++
	}
}

// interpretAction dispatches a tool call through the Tool Dispatcher,
// special-casing write/edit mutations in agent mode (where a mutation must
// become a diff_request rather than executing directly) and in agent-plus
// mode (where it executes immediately under AutoMode).
func (m *Manager) interpretAction(ctx context.Context, ws *Workspace, sess *types.Session, agent *Agent, d *types.Directive) (bool, error) {
	sess.ConsecutiveFinals = 0

	if d.Tool == "" {
		sess.ConsecutiveNoAction++
	} else {
		sess.ConsecutiveNoAction = 0
	}
	if sess.ConsecutiveNoAction >= MaxConsecutiveNoAction {
		return false, fmt.Errorf("session %s: %d consecutive steps without action", sess.ID, sess.ConsecutiveNoAction)
	}

	event.PublishSync(event.Event{Type: event.Action, Data: event.ActionData{SessionID: sess.ID, Tool: d.Tool, Args: d.Args}})

	// Agent mode routes a file mutation through approval instead of
	// executing it directly (spec §4.2.3: write/edit in agent mode become
	// a diff_request).
	if sess.Mode == types.ModeAgent && isMutationTool(d.Tool) {
		return m.synthesizeDiffFromAction(ctx, ws, sess, d)
	}

	obs, err := ws.Dispatcher.Dispatch(ctx, tool.DispatchRequest{
		SessionID: sess.ID,
		ToolName:  d.Tool,
		Args:      d.Args,
		AutoMode:  sess.Mode == types.ModeAgentPlus,
	})
	if err != nil {
		obs = fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	event.PublishSync(event.Event{Type: event.Observation, Data: event.ObservationData{SessionID: sess.ID, Content: obs}})
	sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleTool, Content: obs, CreatedAt: time.Now()})
	return false, nil
}

// isMutationTool reports whether toolName is one of the dispatcher's
// registered write-capable tools (spec's prose names apply_diff/write_file/
// replace_in_file map onto this registry's real "write"/"edit" tool IDs).
func isMutationTool(toolName string) bool {
	return toolName == "write" || toolName == "edit" || toolName == "apply_diff"
}

// synthesizeDiffFromAction runs the would-be mutation's dry-run diff
// computation (read-before/after) and raises it as a PendingDiff instead of
// writing, so agent-mode mutations always pass through approval (spec
// §4.2.3, §9 "Ambiguous approval response shape": the server is the single
// authority over diff acceptance).
func (m *Manager) synthesizeDiffFromAction(ctx context.Context, ws *Workspace, sess *types.Session, d *types.Directive) (bool, error) {
	filePath, _ := d.Args["filePath"].(string)
	var diffText string

	if unified, ok := d.Args["unifiedDiff"].(string); ok && unified != "" {
		diffText = unified
	} else if newContent, ok := d.Args["content"].(string); ok {
		raw, _ := os.ReadFile(filePath)
		diffText = tool.CreateUnifiedDiff(filePath, string(raw), newContent)
	}

	sess.SetPending(&types.PendingDiff{FilePath: filePath, Diff: diffText})
	event.PublishSync(event.Event{Type: event.DiffRequest, Data: event.DiffRequestData{SessionID: sess.ID, FilePath: filePath, Diff: diffText}})
	return true, nil
}

// interpretDiffRequest handles an explicit diff_request directive the same
// way as an intercepted write/edit action.
func (m *Manager) interpretDiffRequest(sess *types.Session, d *types.Directive) (bool, error) {
	sess.ConsecutiveFinals = 0
	sess.ConsecutiveNoAction = 0
	sess.SetPending(&types.PendingDiff{FilePath: d.FilePath, Diff: d.Diff})
	event.PublishSync(event.Event{Type: event.DiffRequest, Data: event.DiffRequestData{SessionID: sess.ID, FilePath: d.FilePath, Diff: d.Diff}})
	return true, nil
}

// interpretDelegate runs the Delegation Pool over the directive's tasks
// (agent-plus only; spec §4.2.3/§4.4.2).
func (m *Manager) interpretDelegate(ctx context.Context, ws *Workspace, sess *types.Session, d *types.Directive) (bool, error) {
	sess.ConsecutiveFinals = 0
	sess.ConsecutiveNoAction = 0

	if sess.Mode != types.ModeAgentPlus || sess.DelegationDisabled {
		obs := `{"error":"delegation unavailable in this session"}`
		event.PublishSync(event.Event{Type: event.Observation, Data: event.ObservationData{SessionID: sess.ID, Content: obs}})
		sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleTool, Content: obs, CreatedAt: time.Now()})
		return false, nil
	}

	available := []string{sess.Model}
	if models, err := m.provider.ListModels(ctx); err == nil {
		available = available[:0]
		for _, mi := range models {
			available = append(available, mi.ID)
		}
	}

	obs, err := m.pool.Run(ctx, sess.ID, d.Tasks, available, delegation.Config{
		SessionDefaultModel: sess.Model,
		VisionModel:         m.cfg.VisionModel,
		MaxWorkers:          m.cfg.MaxWorkers,
	})
	if err != nil {
		sess.DelegationDisabled = true
		obs = fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	event.PublishSync(event.Event{Type: event.Observation, Data: event.ObservationData{SessionID: sess.ID, Content: obs}})
	sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleTool, Content: obs, CreatedAt: time.Now()})
	return false, nil
}

// interpretFinal handles a final directive, enforcing the plan-completion
// nudge rule before truly terminating (spec §4.2.2 step 6, §4.2.4).
func (m *Manager) interpretFinal(sess *types.Session, d *types.Directive) (bool, error) {
	if sess.PlanTotal > 0 && sess.PlanCompleted < sess.PlanTotal && sess.ConsecutiveFinals < MaxNudges {
		sess.ConsecutiveFinals++
		sess.Messages = append(sess.Messages, types.Message{
			ID: newID(), Role: types.RoleUser, Content: fmt.Sprintf(
				"Your plan lists %d tasks and only %d are marked complete. Continue the remaining work before replying final.",
				sess.PlanTotal, sess.PlanCompleted,
			), CreatedAt: time.Now(),
		})
		return false, nil
	}

	event.PublishSync(event.Event{Type: event.Final, Data: event.FinalData{SessionID: sess.ID, Content: d.Content}})
	return true, nil
}

// RunSubAgent implements delegation.SubAgentRunner: it opens a fresh
// agent-plus session rooted at the parent's workspace, seeds it with the
// delegated task text, runs it to a final directive, and returns that
// final's content (spec §4.4.2).
func (m *Manager) RunSubAgent(ctx context.Context, opts delegation.SubAgentOptions) (string, error) {
	parent, ok := m.Get(opts.ParentSessionID)
	if !ok {
		return "", fmt.Errorf("delegation: parent session %s not found", opts.ParentSessionID)
	}

	childID := fmt.Sprintf("%s-sub-%d-%s", opts.ParentSessionID, opts.TaskIndex, ulid.Make().String())
	child, _, err := m.OpenOrGet(ctx, childID, types.ModeAgentPlus, opts.Model, parent.WorkspaceRoot, opts.TaskText, true)
	if err != nil {
		return "", err
	}
	child.ParentID = opts.ParentSessionID
	m.mu.Lock()
	delete(m.sessions, childID) // sub-agents are not independently addressable via the registry
	m.mu.Unlock()

	var final string
	unsub := event.Subscribe(event.Final, func(e event.Event) {
		if fd, ok := e.Data.(event.FinalData); ok && fd.SessionID == childID {
			final = fd.Content
		}
	})
	defer unsub()

	runErr := m.runBounded(ctx, child, opts.StepCap)
	if runErr != nil {
		return "", runErr
	}
	if final == "" {
		return "", fmt.Errorf("delegation: sub-agent task %d produced no final answer", opts.TaskIndex)
	}
	return final, nil
}

// runBounded runs the step loop like Run but overrides the step cap, used
// for delegated sub-agents whose cap (15) differs from the interactive
// default (500).
func (m *Manager) runBounded(ctx context.Context, sess *types.Session, stepCap int) error {
	agent := NewAgent(sess.Mode, stepCap)
	runCtx, cancel := context.WithTimeout(ctx, agent.Timeout)
	defer cancel()

	ws := m.workspaceFor(sess.WorkspaceRoot)

	for sess.Step < agent.MaxSteps {
		if sess.IsStopRequested() {
			return nil
		}

		trimmed := contextwindow.TrimForContextWindow(systemOf(sess), sess.Messages, m.cfg.ContextBudget)
		raw, err := callLLMWithRetry(runCtx, m, sess, agent, trimmed)
		if err != nil {
			return fmt.Errorf("sub-agent session %s: model call failed: %w", sess.ID, err)
		}

		directive, perr := ParseDirective(raw)
		if perr != nil {
			sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleAssistant, Content: raw, CreatedAt: time.Now()})
			sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleUser, Content: "Reply with exactly one JSON directive.", CreatedAt: time.Now()})
			continue
		}
		sess.Step++
		sess.Messages = append(sess.Messages, types.Message{ID: newID(), Role: types.RoleAssistant, Content: raw, CreatedAt: time.Now()})

		done, err := m.interpret(runCtx, ws, sess, agent, directive)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("sub-agent step cap %d reached", stepCap)
}
