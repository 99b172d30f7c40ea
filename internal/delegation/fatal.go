package delegation

import "regexp"

// fatalPattern matches the resource-exhaustion/connection-death error
// classes the pool treats as fatal for the task that hit them — retrying
// with a different model would not help (spec §4.4.2).
var fatalPattern = regexp.MustCompile(`(?i)memory|heap|ENOMEM|out of memory|ECONNRESET|socket hang up|abort`)

// isFatal reports whether an error message should abandon the task instead
// of falling through to the next model in its ordered list.
func isFatal(errText string) bool {
	return fatalPattern.MatchString(errText)
}
