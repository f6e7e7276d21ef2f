package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a trace as golden-file text: a header naming the
// scenario, then one line per trace entry.
func FormatTrace(scenarioName string, trace []string) []byte {
	var buf strings.Builder
	buf.WriteString("# scenario: ")
	buf.WriteString(scenarioName)
	buf.WriteByte('\n')
	for _, line := range trace {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result.Trace))
}

// TraceDiff locates the first line where two rendered traces differ.
type TraceDiff struct {
	Line int    // 1-based
	Want string // empty when want ended first
	Got  string // empty when got ended first
}

func (d TraceDiff) String() string {
	return fmt.Sprintf("line %d: want %q, got %q", d.Line, d.Want, d.Got)
}

// CompareTrace compares rendered traces line by line. It returns nil when
// they are equal.
func CompareTrace(want, got []byte) *TraceDiff {
	if bytes.Equal(want, got) {
		return nil
	}
	wl := strings.Split(strings.TrimSuffix(string(want), "\n"), "\n")
	gl := strings.Split(strings.TrimSuffix(string(got), "\n"), "\n")
	for i := 0; i < len(wl) || i < len(gl); i++ {
		var w, g string
		if i < len(wl) {
			w = wl[i]
		}
		if i < len(gl) {
			g = gl[i]
		}
		if i >= len(wl) || i >= len(gl) || w != g {
			return &TraceDiff{Line: i + 1, Want: w, Got: g}
		}
	}
	// Only a trailing newline differs.
	return &TraceDiff{Line: len(gl) + 1}
}
