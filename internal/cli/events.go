package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/bakery/internal/event"
	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/notify"
	"github.com/roach88/bakery/internal/store"
)

// maxLineSize bounds one JSONL line on import.
const maxLineSize = 16 << 20

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Verify  bool   // check ids and signatures before storing
	Changes string // filter JSON; print matching insertions and every removal
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
	Replaced int `json:"replaced"`
}

func (r ImportResult) String() string {
	s := fmt.Sprintf("read %d, inserted %d, skipped %d, invalid %d",
		r.Read, r.Inserted, r.Skipped, r.Invalid)
	if r.Replaced > 0 {
		s += fmt.Sprintf(", replaced %d", r.Replaced)
	}
	return s
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Store events from JSONL files",
		Long: `Store events read from JSONL files, one event per line.

Reads stdin when no file is given or the file is "-". Duplicates,
ephemeral events and stale replaceable versions are skipped. Lines
that do not decode, or fail --verify, are counted as invalid.
Events pruned by a newer replaceable version are counted as replaced.

With --changes, every insertion matching the given filter ('{}' for
all) is printed to stderr as "+<id>", and every removal as "-<id>".

Examples:
  bakery import events.jsonl
  cat export.jsonl | bakery import --verify
  bakery import profiles.jsonl --changes '{"kinds":[0]}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "check event ids and signatures")
	cmd.Flags().StringVar(&opts.Changes, "changes", "", "print changes; insertions filtered by this filter JSON")

	return cmd
}

func runImport(opts *ImportOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var changes []filter.Filter
	if opts.Changes != "" {
		parsed, err := filter.ParseFilters([]byte(opts.Changes))
		if err != nil {
			return formatter.Fail(ExitCommandError, "invalid --changes filter", err)
		}
		changes = parsed
	}

	// Removals are broadcast to every subscription, so an unfiltered
	// subscription counts replacements while a filtered one feeds --changes.
	hub := notify.NewHub(zerolog.Nop())
	counter := hub.Subscribe()
	var printer *notify.Subscription
	if opts.Changes != "" {
		printer = hub.Subscribe(changes...)
	}

	st, log, err := opts.openStore(cmd, store.WithObserver(hub))
	if err != nil {
		return err
	}
	defer st.Close()

	if len(files) == 0 {
		files = []string{"-"}
	}

	ctx := commandContext(cmd)
	var result ImportResult
	for _, name := range files {
		if err := importFile(ctx, st, opts, name, cmd.InOrStdin(), &result); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return formatter.Fail(ExitCommandError, "input not found", err)
			}
			return formatter.Fail(ExitFailure, "import failed", err)
		}
		formatter.VerboseLog("%s: %s", name, result)
	}

	hub.Close()
	result.Replaced = drainChanges(ctx, counter, nil)
	if printer != nil {
		drainChanges(ctx, printer, formatter.GetErrWriter())
	}

	log.Info().
		Int("read", result.Read).
		Int("inserted", result.Inserted).
		Int("replaced", result.Replaced).
		Int("invalid", result.Invalid).
		Msg("import finished")

	return formatter.Success(result)
}

func importFile(ctx context.Context, st *store.Store, opts *ImportOptions, name string, stdin io.Reader, result *ImportResult) error {
	var r io.Reader = stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		result.Read++

		var evt nostr.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			result.Invalid++
			continue
		}
		if opts.Verify {
			if err := event.Verify(&evt); err != nil {
				result.Invalid++
				continue
			}
		} else if err := event.CheckShape(&evt); err != nil {
			result.Invalid++
			continue
		}

		inserted, err := st.AddEvent(ctx, &evt)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", name, result.Read, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

// drainChanges consumes a closed subscription, writing each change to w
// when w is set, and returns the number of removals seen.
func drainChanges(ctx context.Context, sub *notify.Subscription, w io.Writer) int {
	removed := 0
	for {
		n, err := sub.Next(ctx)
		if err != nil {
			return removed
		}
		switch n.Type {
		case notify.Inserted:
			if w != nil {
				fmt.Fprintf(w, "+%s\n", n.ID)
			}
		case notify.Removed:
			removed++
			if w != nil {
				fmt.Fprintf(w, "-%s\n", n.ID)
			}
		}
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>...",
		Short: "Print stored events by id",
		Long: `Print stored events by id, one JSON event per line.

Exits with status 1 if any id is not stored; the events that were
found are still printed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runGet(opts *RootOptions, ids []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	events := make([]*nostr.Event, 0, len(ids))
	var missing []string
	for _, id := range ids {
		evt, err := st.GetEvent(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return formatter.Fail(ExitFailure, "get failed", err)
		}
		events = append(events, evt)
	}

	if len(missing) > 0 && len(events) == 0 {
		return formatter.Fail(ExitFailure, "get failed",
			fmt.Errorf("%s: %w", strings.Join(missing, ", "), store.ErrNotFound))
	}
	if err := formatter.Events(events); err != nil {
		return err
	}
	if len(missing) > 0 {
		formatter.VerboseLog("not stored: %s", strings.Join(missing, ", "))
		return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) not stored", len(missing)))
	}
	return nil
}

// DeleteResult reports how many events a delete removed.
type DeleteResult struct {
	Requested int `json:"requested"`
	Removed   int `json:"removed"`
}

func (r DeleteResult) String() string {
	return fmt.Sprintf("removed %d of %d", r.Removed, r.Requested)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Remove events with their tags, search rows and cached content",
		Long: `Remove events by id. Unknown ids are ignored.

Tag rows, search rows and any cached decrypted content are removed
in the same transaction.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, ids []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.RemoveEvents(commandContext(cmd), ids)
	if err != nil {
		return formatter.Fail(ExitFailure, "delete failed", err)
	}
	return formatter.Success(DeleteResult{Requested: len(ids), Removed: n})
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
