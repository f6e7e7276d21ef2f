package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/store"
	"github.com/roach88/bakery/internal/testutil"
)

// fixtureEpoch is where the deterministic clock starts for fixtures that
// leave created_at unset.
const fixtureEpoch nostr.Timestamp = 1700000000

// Harness is the scenario execution engine.
// It owns one fresh store and maps event ids back to fixture refs.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	events map[string]*nostr.Event // by ref
	refs   map[string]string       // id -> ref
	notes  []string
	log    zerolog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. Fixtures
// are signed with deterministic keys so ids are stable across runs.
//
// Execution flow:
// 1. Sign fixture events
// 2. Open an in-memory store with the scenario's options
// 3. Execute steps, tracing each with its notifications
// 4. Evaluate assertions against the trace and the store
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		clock:  testutil.NewDeterministicClock(fixtureEpoch),
		events: make(map[string]*nostr.Event, len(scenario.Events)),
		refs:   make(map[string]string, len(scenario.Events)),
		log:    zerolog.Nop(),
	}

	if err := h.signFixtures(scenario.Events); err != nil {
		return nil, fmt.Errorf("failed to build fixtures: %w", err)
	}

	st, err := store.Open(":memory:",
		store.WithKeepHistory(scenario.KeepHistory),
		store.WithPreserveEphemeral(scenario.PreserveEphemeral),
		store.WithObserver(h),
		store.WithLogger(h.log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: st, Events: h.events}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// EventInserted records an insertion notification.
func (h *Harness) EventInserted(evt *nostr.Event) {
	h.notes = append(h.notes, "  +"+h.refOf(evt.ID))
}

// EventRemoved records a removal notification.
func (h *Harness) EventRemoved(id string) {
	h.notes = append(h.notes, "  -"+h.refOf(id))
}

// ContentCached records a decrypted-content notification.
func (h *Harness) ContentCached(id string) {
	h.notes = append(h.notes, "  ~"+h.refOf(id))
}

func (h *Harness) signFixtures(fixtures []EventFixture) error {
	for _, fx := range fixtures {
		createdAt := nostr.Timestamp(fx.CreatedAt)
		if fx.CreatedAt == 0 {
			createdAt = h.clock.Next()
		}

		tags := make(nostr.Tags, 0, len(fx.Tags))
		for _, tag := range fx.Tags {
			expanded := make(nostr.Tag, len(tag))
			for i, v := range tag {
				expanded[i] = h.expand(v)
			}
			tags = append(tags, expanded)
		}

		evt, err := testutil.Sign(testutil.EventSpec{
			Author:    fx.Author,
			Kind:      fx.Kind,
			CreatedAt: createdAt,
			Content:   h.expand(fx.Content),
			Tags:      tags,
		})
		if err != nil {
			return fmt.Errorf("event %s: %w", fx.Ref, err)
		}
		h.events[fx.Ref] = evt
		h.refs[evt.ID] = fx.Ref
	}
	return nil
}

// expand substitutes ${key:alias} and ${ref:name} placeholders.
// Unknown placeholders are left as written.
func (h *Harness) expand(s string) string {
	return os.Expand(s, func(name string) string {
		kind, arg, ok := strings.Cut(name, ":")
		if !ok {
			return "${" + name + "}"
		}
		switch kind {
		case "key":
			return testutil.PubKey(arg)
		case "ref":
			if evt, ok := h.events[arg]; ok {
				return evt.ID
			}
		}
		return "${" + name + "}"
	})
}

func (h *Harness) refOf(id string) string {
	if ref, ok := h.refs[id]; ok {
		return ref
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (h *Harness) refList(events []*nostr.Event) []string {
	out := make([]string, len(events))
	for i, evt := range events {
		out[i] = h.refOf(evt.ID)
	}
	return out
}

func formatRefs(refs []string) string {
	if len(refs) == 0 {
		return "(none)"
	}
	return strings.Join(refs, ",")
}

// executeStep runs one step, traces it and checks its expect clause.
// Store failures abort the scenario; unmet expectations only fail it.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	h.notes = h.notes[:0]

	var (
		line string
		got  outcome
		err  error
	)
	switch {
	case step.Add != "":
		line, got, err = h.add(ctx, step.Add)
	case len(step.Remove) > 0:
		line, got, err = h.remove(ctx, step.Remove)
	case step.Query != "":
		line, got, err = h.query(ctx, step.Query)
	case step.Count != "":
		line, got, err = h.count(ctx, step.Count)
	case step.Replaceable != nil:
		line, got, err = h.replaceable(ctx, *step.Replaceable)
	case step.Decrypt != nil:
		line, got, err = h.decrypt(ctx, *step.Decrypt)
	case step.SearchDecrypted != nil:
		line, got, err = h.searchDecrypted(ctx, *step.SearchDecrypted)
	default:
		return fmt.Errorf("no operation")
	}
	if err != nil {
		return err
	}

	result.AddTrace(line)
	for _, note := range h.notes {
		result.AddTrace(note)
	}

	if step.Expect != nil {
		for _, msg := range got.check(step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", index, line, msg))
		}
	}
	return nil
}

func (h *Harness) add(ctx context.Context, ref string) (string, outcome, error) {
	inserted, err := h.store.AddEvent(ctx, h.events[ref])
	if err != nil {
		return "", outcome{}, err
	}
	verdict := "ignored"
	if inserted {
		verdict = "inserted"
	}
	return fmt.Sprintf("add %s: %s", ref, verdict), outcome{inserted: &inserted}, nil
}

func (h *Harness) remove(ctx context.Context, refs []string) (string, outcome, error) {
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = h.events[ref].ID
	}
	n, err := h.store.RemoveEvents(ctx, ids)
	if err != nil {
		return "", outcome{}, err
	}
	return fmt.Sprintf("remove %s: removed %d", strings.Join(refs, ","), n), outcome{removed: &n}, nil
}

func (h *Harness) parseFilters(raw string) ([]filter.Filter, error) {
	filters, err := filter.ParseFilters([]byte(h.expand(raw)))
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", raw, err)
	}
	return filters, nil
}

func (h *Harness) query(ctx context.Context, raw string) (string, outcome, error) {
	filters, err := h.parseFilters(raw)
	if err != nil {
		return "", outcome{}, err
	}
	events, err := h.store.GetEventsForFilters(ctx, filters)
	if err != nil {
		return "", outcome{}, err
	}
	refs := h.refList(events)
	return fmt.Sprintf("query %s -> %s", raw, formatRefs(refs)), outcome{refs: refs}, nil
}

func (h *Harness) count(ctx context.Context, raw string) (string, outcome, error) {
	filters, err := h.parseFilters(raw)
	if err != nil {
		return "", outcome{}, err
	}
	n, err := h.store.CountEventsForFilters(ctx, filters)
	if err != nil {
		return "", outcome{}, err
	}
	return fmt.Sprintf("count %s -> %d", raw, n), outcome{count: &n}, nil
}

func (h *Harness) replaceable(ctx context.Context, r ReplaceableStep) (string, outcome, error) {
	line := fmt.Sprintf("replaceable %d:%s:%s -> ", r.Kind, r.Author, r.Identifier)

	evt, err := h.store.GetReplaceable(ctx, r.Kind, testutil.PubKey(r.Author), r.Identifier)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return line + "(none)", outcome{refs: []string{}}, nil
	case errors.Is(err, store.ErrNotReplaceable):
		return line + "not replaceable", outcome{refs: []string{}}, nil
	case err != nil:
		return "", outcome{}, err
	}
	ref := h.refOf(evt.ID)
	return line + ref, outcome{refs: []string{ref}}, nil
}

func (h *Harness) decrypt(ctx context.Context, d DecryptStep) (string, outcome, error) {
	line := fmt.Sprintf("decrypt %s: ", d.Ref)

	cached, err := h.store.AddEventContent(ctx, h.events[d.Ref].ID, d.Text)
	if errors.Is(err, store.ErrNotFound) {
		return line + "not stored", outcome{inserted: &cached}, nil
	}
	if err != nil {
		return "", outcome{}, err
	}
	verdict := "ignored"
	if cached {
		verdict = "cached"
	}
	return line + verdict, outcome{inserted: &cached}, nil
}

func (h *Harness) searchDecrypted(ctx context.Context, sd DecryptedSearchStep) (string, outcome, error) {
	opts := store.DecryptedSearch{
		Order: filter.Order(sd.Order),
		Limit: sd.Limit,
	}
	label := fmt.Sprintf("search_decrypted %q", sd.Text)
	if len(sd.Conversation) == 2 {
		opts.Conversation = &[2]string{
			testutil.PubKey(sd.Conversation[0]),
			testutil.PubKey(sd.Conversation[1]),
		}
		label += " between " + sd.Conversation[0] + "," + sd.Conversation[1]
	}

	events, err := h.store.SearchDecrypted(ctx, sd.Text, opts)
	if err != nil {
		return "", outcome{}, err
	}
	refs := h.refList(events)
	return label + " -> " + formatRefs(refs), outcome{refs: refs}, nil
}
