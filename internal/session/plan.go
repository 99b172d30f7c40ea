package session

import "regexp"

// planMarker matches a thought's literal "PLAN:" marker at the start of any
// line; text may follow the marker on the same line.
var planMarker = regexp.MustCompile(`(?m)^\s*PLAN:`)

// progressMarker matches a "PROGRESS:" marker at the start of any line of a
// thought, or the phrase "Completed task" anywhere in it, either of which
// increments the completed-task counter.
var progressMarker = regexp.MustCompile(`(?im)(^\s*PROGRESS:|Completed task)`)

// numberedLine matches one line of a numbered list ("1. ...", "12) ...")
// used to count a plan's total task count.
var numberedLine = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)

// hasPlanMarker reports whether content contains the PLAN: marker.
func hasPlanMarker(content string) bool {
	return planMarker.MatchString(content)
}

// hasProgressMarker reports whether content contains a PROGRESS: marker or
// "Completed task" phrase.
func hasProgressMarker(content string) bool {
	return progressMarker.MatchString(content)
}

// countNumberedLines returns the number of numbered-list lines in content,
// used as the plan's total task count (spec §3: "the number of numbered
// lines is taken as the task count").
func countNumberedLines(content string) int {
	return len(numberedLine.FindAllString(content, -1))
}
