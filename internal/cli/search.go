package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/store"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Kinds   []int
	Authors []string
	Limit   int
	Order   string
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Full-text search over public events",
		Long: `Search event content and descriptive tags (title, summary, alt, ...).
Profiles are searched by name, about, nip05 and similar fields.
Encrypted direct messages are never in the public index.

Results are ordered by relevance unless --order created_at is given.

Examples:
  bakery search sourdough
  bakery search "rye bread" --kinds 1,30023 --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntSliceVar(&opts.Kinds, "kinds", nil, "restrict to kinds")
	cmd.Flags().StringSliceVar(&opts.Authors, "authors", nil, "restrict to author pubkeys")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum results (0 = no limit)")
	cmd.Flags().StringVar(&opts.Order, "order", "", "rank or created_at")

	return cmd
}

func runSearch(opts *SearchOptions, text string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	f := filter.Filter{
		Search:  text,
		Kinds:   opts.Kinds,
		Authors: opts.Authors,
		Limit:   opts.Limit,
		Order:   filter.Order(opts.Order),
	}
	if err := f.Validate(); err != nil {
		return formatter.Fail(ExitCommandError, "invalid search", err)
	}

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.GetEventsForFilters(commandContext(cmd), []filter.Filter{f})
	if err != nil {
		return formatter.Fail(ExitFailure, "search failed", err)
	}
	return formatter.Events(events)
}

// NewDecryptedCommand creates the decrypted command group.
func NewDecryptedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypted",
		Short: "Manage the private index of decrypted content",
		Long: `Manage plaintext supplied for encrypted events.

The store never decrypts anything. Clients hand over plaintext they
decrypted; it is cached per event, indexed for search, and removed
together with its event.`,
	}

	cmd.AddCommand(newDecryptedAddCommand(rootOpts))
	cmd.AddCommand(newDecryptedGetCommand(rootOpts))
	cmd.AddCommand(newDecryptedSearchCommand(rootOpts))
	cmd.AddCommand(newDecryptedClearCommand(rootOpts))

	return cmd
}

// CachedResult reports whether plaintext was cached.
type CachedResult struct {
	ID     string `json:"id"`
	Cached bool   `json:"cached"`
}

func (r CachedResult) String() string {
	if r.Cached {
		return fmt.Sprintf("%s: cached", r.ID)
	}
	return fmt.Sprintf("%s: already cached", r.ID)
}

func newDecryptedAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <id> <plaintext>",
		Short:         "Cache plaintext for a stored event",
		Long:          "Cache plaintext for a stored event. The first plaintext given for an event is kept.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			st, _, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			cached, err := st.AddEventContent(commandContext(cmd), args[0], args[1])
			if err != nil {
				return formatter.Fail(ExitFailure, "cache content failed", err)
			}
			return formatter.Success(CachedResult{ID: args[0], Cached: cached})
		},
	}
}

// ContentResult maps event ids to cached plaintext.
type ContentResult struct {
	Content map[string]string `json:"content"`
	Missing []string          `json:"missing,omitempty"`
}

func (r ContentResult) String() string {
	ids := make([]string, 0, len(r.Content))
	for id := range r.Content {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\t%s", id, r.Content[id])
	}
	return b.String()
}

func newDecryptedGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>...",
		Short:         "Print cached plaintext by event id",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			st, _, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			content, err := st.GetEventsContent(commandContext(cmd), args)
			if err != nil {
				return formatter.Fail(ExitFailure, "get content failed", err)
			}

			result := ContentResult{Content: content}
			for _, id := range args {
				if _, ok := content[id]; !ok {
					result.Missing = append(result.Missing, id)
				}
			}
			if len(content) == 0 {
				return formatter.Fail(ExitFailure, "get content failed",
					fmt.Errorf("%s: %w", strings.Join(args, ", "), store.ErrNotFound))
			}
			return formatter.Success(result)
		},
	}
}

// DecryptedSearchOptions holds flags for decrypted search.
type DecryptedSearchOptions struct {
	*RootOptions
	Between []string
	Order   string
	Limit   int
}

func newDecryptedSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecryptedSearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search cached plaintext",
		Long: `Search cached plaintext. With --between, only messages exchanged
between the two pubkeys are returned.

Examples:
  bakery decrypted search "dinner"
  bakery decrypted search "dinner" --between <me>,<friend> --order rank`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecryptedSearch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Between, "between", nil, "two pubkeys: restrict to their conversation")
	cmd.Flags().StringVar(&opts.Order, "order", "", "rank or created_at (default)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum results (0 = no limit)")

	return cmd
}

func runDecryptedSearch(opts *DecryptedSearchOptions, text string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	search := store.DecryptedSearch{
		Order: filter.Order(opts.Order),
		Limit: opts.Limit,
	}
	switch len(opts.Between) {
	case 0:
	case 2:
		search.Conversation = &[2]string{opts.Between[0], opts.Between[1]}
	default:
		return formatter.Fail(ExitCommandError, "invalid --between",
			errors.New("expected exactly two pubkeys"))
	}

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.SearchDecrypted(commandContext(cmd), text, search)
	if err != nil {
		code := ExitFailure
		var ve *filter.ValidationError
		if errors.As(err, &ve) {
			code = ExitCommandError
		}
		return formatter.Fail(code, "search failed", err)
	}
	return formatter.Events(events)
}

// ClearedResult reports how many rows a clear removed.
type ClearedResult struct {
	Removed int `json:"removed"`
}

func (r ClearedResult) String() string {
	return fmt.Sprintf("removed %d", r.Removed)
}

func newDecryptedClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Drop all cached plaintext",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			st, _, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.ClearDecrypted(commandContext(cmd))
			if err != nil {
				return formatter.Fail(ExitFailure, "clear failed", err)
			}
			return formatter.Success(ClearedResult{Removed: n})
		},
	}
}
