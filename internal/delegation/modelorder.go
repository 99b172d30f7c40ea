package delegation

import "github.com/rushi32/IsoCode/pkg/types"

// BuildModelOrder computes the ordered list of models a sub-agent should
// try for one delegated task (spec §4.4.2 steps 1-4).
func BuildModelOrder(task types.DelegateTask, available []string, sessionDefault, visionModel string) []string {
	if task.ModelHint != "" {
		return []string{task.ModelHint}
	}

	class := Classify(task.TaskText)
	primary, found := bestMatch(available, class)

	if class == ClassVision && !found && isCoderModel(sessionDefault) {
		if nonCoder, ok := firstNonCoder(available); ok {
			primary = nonCoder
			found = true
		} else if visionModel != "" {
			primary = visionModel
			found = true
		}
	}

	order := make([]string, 0, len(available)+2)
	seen := make(map[string]bool)
	add := func(m string) {
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		order = append(order, m)
	}

	if found {
		add(primary)
	}
	for _, m := range available {
		add(m)
	}
	add(visionModel)
	add(sessionDefault)

	return order
}

func firstNonCoder(candidates []string) (string, bool) {
	for _, c := range candidates {
		if !isCoderModel(c) {
			return c, true
		}
	}
	return "", false
}
