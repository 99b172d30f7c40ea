// Package delegation implements the Delegation Pool: classifying and
// scoring sub-agent tasks against available models, then running them as
// bounded-concurrency fresh ReAct sessions (spec §4.4.2, agent-plus only).
package delegation

import "regexp"

// TaskClass is the coarse category a delegated task is classified into,
// used to pick which model pattern list scores it.
type TaskClass string

const (
	ClassVision  TaskClass = "vision"
	ClassCoder   TaskClass = "coder"
	ClassGeneral TaskClass = "general"
)

var (
	visionPattern = regexp.MustCompile(`(?i)\b(screenshot|browser|image|picture|photo|what('?s|\s+is)\s+on\s+the\s+screen|visually|ui\s+looks)\b`)
	coderPattern  = regexp.MustCompile(`(?i)\b(implement|fix|refactor|edit|write|file|apply_diff|diff|bug|function|compile|test\s+case|patch)\b`)
)

// Classify determines a task's class from its free-text description.
func Classify(taskText string) TaskClass {
	switch {
	case visionPattern.MatchString(taskText):
		return ClassVision
	case coderPattern.MatchString(taskText):
		return ClassCoder
	default:
		return ClassGeneral
	}
}

// patternsFor returns the keyword list used to score a model id/name
// against a task class.
func patternsFor(class TaskClass) []string {
	switch class {
	case ClassVision:
		return []string{"vision", "vl", "multimodal", "image", "llava", "gpt-4o", "gemini"}
	case ClassCoder:
		return []string{"code", "coder", "coding", "deepseek-coder", "starcoder", "codellama", "devstral"}
	default:
		return []string{"instruct", "chat", "general"}
	}
}

// isCoderModel reports whether a model id matches the coder pattern list,
// used by the vision fallback rule in spec §4.4.2 step 3.
func isCoderModel(modelID string) bool {
	return score(modelID, patternsFor(ClassCoder)) > 0
}
