package session

import (
	"time"

	"github.com/rushi32/IsoCode/pkg/types"
)

// Agent carries the per-mode knobs the step loop uses to call the LLM
// Adapter and bound the run, derived once from a session's Mode (spec
// §4.2.2 step 4: "temperature 0.5 in agent-plus, 0.2 in agent; max output
// tokens 4,096; timeout 300s agent-plus, 180s agent").
type Agent struct {
	Mode        types.Mode
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxSteps    int
}

// DefaultMaxSteps is the interactive server boundary's step cap (spec
// §4.2.4 / §9 "Step cap semantics": maxSteps is a hard upper bound, 500 is
// large enough that interactive runs rarely hit it).
const DefaultMaxSteps = 500

// SafetyStepCap is the engine's own default when no caller-supplied cap is
// given (spec §4.2.2: "step counter < safety cap (default 12...)").
const SafetyStepCap = 12

// MaxConsecutiveNoAction is the no-progress limit (spec §4.2.2: "consecutive
// steps without action < 10").
const MaxConsecutiveNoAction = 10

// MaxConsecutiveFinals is not read by the engine; the premature-final check
// in interpretFinal compares against MaxNudges.
const MaxConsecutiveFinals = 2

// MaxNudges caps how many continuation nudges the engine injects for an
// incomplete plan (spec §3 "Plan": "up to two").
const MaxNudges = 2

// NewAgent builds the per-mode Agent config for one run.
func NewAgent(mode types.Mode, maxSteps int) *Agent {
	a := &Agent{Mode: mode, MaxSteps: maxSteps}
	if mode == types.ModeAgentPlus {
		a.Temperature = 0.5
		a.Timeout = 300 * time.Second
	} else {
		a.Temperature = 0.2
		a.Timeout = 180 * time.Second
	}
	a.MaxTokens = 4096
	if a.MaxSteps <= 0 {
		a.MaxSteps = SafetyStepCap
	}
	return a
}
