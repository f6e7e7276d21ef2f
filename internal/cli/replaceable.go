package cli

import (
	"fmt"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"
)

// ReplaceableOptions holds flags for the replaceable command.
type ReplaceableOptions struct {
	*RootOptions
	History bool // print every stored version, newest first
}

// NewReplaceableCommand creates the replaceable command.
func NewReplaceableCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplaceableOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replaceable <kind> <pubkey> [identifier]",
		Short: "Print the current event of a replaceable or addressable slot",
		Long: `Print the current winner of a replaceable (kind, pubkey) or
addressable (kind, pubkey, d-tag) slot: the newest event, ties broken
by the greater id. The identifier is ignored for replaceable kinds.

Examples:
  bakery replaceable 0 <pubkey>
  bakery replaceable 30023 <pubkey> my-article --history`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplaceable(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.History, "history", false, "print every stored version")

	return cmd
}

func runReplaceable(opts *ReplaceableOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	kind, err := strconv.Atoi(args[0])
	if err != nil || kind < 0 {
		return formatter.Fail(ExitCommandError, "invalid kind", fmt.Errorf("%q is not a kind number", args[0]))
	}
	pubkey := args[1]
	identifier := ""
	if len(args) == 3 {
		identifier = args[2]
	}

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	if opts.History {
		events, err := st.GetReplaceableHistory(ctx, kind, pubkey, identifier)
		if err != nil {
			return formatter.Fail(ExitFailure, "replaceable lookup failed", err)
		}
		return formatter.Events(events)
	}

	evt, err := st.GetReplaceable(ctx, kind, pubkey, identifier)
	if err != nil {
		return formatter.Fail(ExitFailure, "replaceable lookup failed", err)
	}
	return formatter.Events([]*nostr.Event{evt})
}
