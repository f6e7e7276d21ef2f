package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/roach88/bakery/internal/store"
)

// outcome is what a step produced, in the shape of ExpectClause.
type outcome struct {
	inserted *bool
	removed  *int
	refs     []string
	count    *int
}

// check compares the outcome with the fields set in expect.
func (o outcome) check(expect *ExpectClause) []string {
	var errs []string

	if expect.Inserted != nil {
		switch {
		case o.inserted == nil:
			errs = append(errs, "inserted expected but step has no such outcome")
		case *o.inserted != *expect.Inserted:
			errs = append(errs, fmt.Sprintf("expected inserted=%v, got %v", *expect.Inserted, *o.inserted))
		}
	}

	if expect.Removed != nil {
		switch {
		case o.removed == nil:
			errs = append(errs, "removed expected but step has no such outcome")
		case *o.removed != *expect.Removed:
			errs = append(errs, fmt.Sprintf("expected removed=%d, got %d", *expect.Removed, *o.removed))
		}
	}

	if expect.Refs != nil {
		switch {
		case o.refs == nil:
			errs = append(errs, "refs expected but step has no such outcome")
		case !slices.Equal(o.refs, *expect.Refs):
			errs = append(errs, fmt.Sprintf("expected refs [%s], got [%s]",
				strings.Join(*expect.Refs, ","), strings.Join(o.refs, ",")))
		}
	}

	if expect.Count != nil {
		switch {
		case o.count == nil:
			errs = append(errs, "count expected but step has no such outcome")
		case *o.count != *expect.Count:
			errs = append(errs, fmt.Sprintf("expected count=%d, got %d", *expect.Count, *o.count))
		}
	}

	return errs
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}

	return buf.String()
}

// assertTraceContains checks that the trace has the given line.
func assertTraceContains(trace []string, assertion Assertion) error {
	if slices.Contains(trace, assertion.Line) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("line %q", assertion.Line),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that lines appear in the specified order.
// Lines don't need to be consecutive. Each line matches its first
// occurrence after the previous match.
func assertTraceOrder(trace []string, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Lines {
		found := -1
		for i := pos; i < len(trace); i++ {
			if trace[i] == want {
				found = i
				break
			}
		}
		if found < 0 {
			actual := fmt.Sprintf("missing line %q", want)
			if slices.Contains(trace, want) {
				actual = fmt.Sprintf("line %q appears too early", want)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("lines in order: %q", assertion.Lines),
				Actual:   actual,
				Trace:    trace,
			}
		}
		pos = found + 1
	}
	return nil
}

// assertTraceCount checks that a line appears exactly the specified number
// of times.
func assertTraceCount(trace []string, assertion Assertion) error {
	count := 0
	for _, line := range trace {
		if line == assertion.Line {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%q appears %d times", assertion.Line, assertion.Count),
			Actual:   fmt.Sprintf("%q appears %d times", assertion.Line, count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks which fixtures are stored once all steps ran.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	for _, ref := range assertion.Stored {
		ok, err := actx.Store.HasEvent(actx.Ctx, actx.Events[ref].ID)
		if err != nil {
			return fmt.Errorf("final_state: %w", err)
		}
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s stored", ref),
				Actual:   "not stored",
			}
		}
	}

	for _, ref := range assertion.Absent {
		ok, err := actx.Store.HasEvent(actx.Ctx, actx.Events[ref].ID)
		if err != nil {
			return fmt.Errorf("final_state: %w", err)
		}
		if ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s absent", ref),
				Actual:   "stored",
			}
		}
	}

	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Events map[string]*nostr.Event // fixtures by ref
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("final_state requires a store")
			} else {
				err = assertFinalState(actx, assertion)
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return errs
}
