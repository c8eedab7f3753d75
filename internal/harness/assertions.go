package harness

import (
	"fmt"
	"strings"
)

// EvaluateAssertions checks every assertion against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertViewContains:
		return assertViewContains(result.Lines, a.Line)
	case AssertViewOrder:
		return assertViewOrder(result.Lines, a.Lines)
	case AssertViewCount:
		return assertViewCount(result.Lines, a.Op, a.Count)
	case AssertFinalStatus:
		if result.FinalStatus != a.Status {
			return fmt.Errorf("expected final status %q, got %q", a.Status, result.FinalStatus)
		}
		return nil
	case AssertCursor:
		if result.Cursor != a.Count {
			return fmt.Errorf("expected cursor %d, got %d", a.Count, result.Cursor)
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertViewContains(lines []string, want string) error {
	for _, l := range lines {
		if l == want {
			return nil
		}
	}
	return fmt.Errorf("view never showed %q", want)
}

// assertViewOrder checks that want appears as a subsequence of lines.
func assertViewOrder(lines, want []string) error {
	next := 0
	for _, l := range lines {
		if next < len(want) && l == want[next] {
			next++
		}
	}
	if next < len(want) {
		return fmt.Errorf("expected %q after %d ordered line(s), not found in order", want[next], next)
	}
	return nil
}

func assertViewCount(lines []string, op string, want int) error {
	got := 0
	for _, l := range lines {
		if strings.HasPrefix(l, op+" ") {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("expected %d %s call(s), got %d", want, op, got)
	}
	return nil
}
