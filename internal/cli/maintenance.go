package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// ReindexResult reports how many rows the search index holds after a rebuild.
type ReindexResult struct {
	Indexed int `json:"indexed"`
}

func (r ReindexResult) String() string {
	return fmt.Sprintf("indexed %s events", humanize.Comma(int64(r.Indexed)))
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the public search index",
		Long: `Drop the public full-text index and rebuild it from stored events.

Use after changing which kinds or tags are searchable. The private
index of decrypted content is not touched.`,
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

			n, err := st.RebuildSearch(commandContext(cmd))
			if err != nil {
				return formatter.Fail(ExitFailure, "reindex failed", err)
			}
			return formatter.Success(ReindexResult{Indexed: n})
		},
	}
}

// StatsResult is the payload of the stats command.
type StatsResult struct {
	Path   string `json:"path"`
	Events int    `json:"events"`
	Size   int64  `json:"size"`
}

func (r StatsResult) String() string {
	return fmt.Sprintf("database: %s\nevents:   %s\nsize:     %s",
		r.Path, humanize.Comma(int64(r.Events)), humanize.Bytes(uint64(r.Size)))
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show event count and database size",
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

			stats, err := st.Stats(commandContext(cmd))
			if err != nil {
				return formatter.Fail(ExitFailure, "stats failed", err)
			}
			return formatter.Success(StatsResult{
				Path:   st.Path(),
				Events: stats.Events,
				Size:   stats.Size,
			})
		},
	}
}

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Yes bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored event",
		Long: `Delete every stored event with its tags, search rows and cached
plaintext. Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)

			if !opts.Yes {
				return formatter.Fail(ExitCommandError, "refusing to clear",
					fmt.Errorf("pass --yes to delete every event"))
			}

			st, _, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(commandContext(cmd)); err != nil {
				return formatter.Fail(ExitFailure, "clear failed", err)
			}
			return formatter.Success("store cleared")
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deleting every event")

	return cmd
}
