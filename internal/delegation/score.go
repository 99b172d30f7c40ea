package delegation

import "strings"

// score counts how many of the class's keyword patterns appear in a
// model's id (case-insensitive substring match), mirroring the teacher's
// modelPriority substring-scoring idiom.
func score(modelID string, patterns []string) int {
	lower := strings.ToLower(modelID)
	total := 0
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			total++
		}
	}
	return total
}

// bestMatch returns the highest-scoring model id for a class from a list of
// candidates, and whether any candidate scored above zero.
func bestMatch(candidates []string, class TaskClass) (string, bool) {
	patterns := patternsFor(class)
	best := ""
	bestScore := 0
	found := false
	for _, c := range candidates {
		s := score(c, patterns)
		if s > bestScore {
			bestScore = s
			best = c
			found = true
		}
	}
	return best, found
}
