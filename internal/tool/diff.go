package tool

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// buildDiffMetadata calculates a unified diff and line counts to enrich tool metadata.
// It returns the diff text (prefixed with file headers when a path is provided),
// the number of added lines, and the number of deleted lines.
func buildDiffMetadata(path, before, after, baseDir string) (string, int, int) {
	if before == after {
		return "", 0, 0
	}

	relPath := relativePath(path, baseDir)

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	additions, deletions := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(before, diffs)
	diffText := dmp.PatchToText(patches)
	if diffText == "" {
		return "", additions, deletions
	}

	var builder strings.Builder
	if relPath != "" {
		builder.WriteString(fmt.Sprintf("--- %s\n", relPath))
		builder.WriteString(fmt.Sprintf("+++ %s\n", relPath))
	}
	builder.WriteString(diffText)

	return builder.String(), additions, deletions
}

func relativePath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if baseDir == "" {
		return path
	}
	if rel, err := filepath.Rel(baseDir, path); err == nil {
		return rel
	}
	return path
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}

// CreateUnifiedDiff builds a unified-diff text between before and after,
// used by the ReAct engine's agent-mode diff_request synthesis (the engine
// never invokes apply_diff/write_file/replace_in_file through the dispatcher
// directly; it diffs the proposed content and asks for approval instead).
func CreateUnifiedDiff(path, before, after string) string {
	diffText, _, _ := buildDiffMetadata(path, before, after, "")
	return diffText
}

// ApplyUnifiedDiff applies a unified diff produced by CreateUnifiedDiff to
// before, returning the resulting content. It is the inverse operation
// exercised by the round-trip property applyDiff(original,
// createUnifiedDiff(original, after)) == after.
func ApplyUnifiedDiff(before, diff string) (string, error) {
	if diff == "" {
		return before, nil
	}
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(stripDiffHeaders(diff))
	if err != nil {
		return "", fmt.Errorf("parse diff: %w", err)
	}
	after, applied := dmp.PatchApply(patches, before)
	for _, ok := range applied {
		if !ok {
			return "", fmt.Errorf("diff did not apply cleanly")
		}
	}
	return after, nil
}

// TryApplyPatch applies diff to before but, unlike ApplyUnifiedDiff, never
// returns a partially-applied result: on any failure it returns ("", false)
// and leaves the caller's file untouched.
func TryApplyPatch(before, diff string) (string, bool) {
	after, err := ApplyUnifiedDiff(before, diff)
	if err != nil {
		return "", false
	}
	return after, true
}

// stripDiffHeaders removes the "--- file" / "+++ file" header lines
// CreateUnifiedDiff prefixes onto the raw patch text, which
// diffmatchpatch's own patch parser does not expect.
func stripDiffHeaders(diff string) string {
	lines := strings.Split(diff, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(l, "--- ") || strings.HasPrefix(l, "+++ ") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
