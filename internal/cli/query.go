package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/querysql"
)

// readFilters decodes a filter object or array from the first argument,
// or from stdin when it is "-". No argument means no filters.
func readFilters(args []string, stdin io.Reader) ([]filter.Filter, error) {
	if len(args) == 0 {
		return nil, nil
	}

	var data []byte
	if args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read filters: %w", err)
		}
		data = b
	} else {
		data = []byte(args[0])
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	return filter.ParseFilters(data)
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [filter-json]",
		Short: "Print events matching filters",
		Long: `Print events matching a filter object or an array of filters.

Results are the union of all filters, newest first (or by search rank
when a filter searches), capped by the smallest limit. With no filter
every event is printed.

Examples:
  bakery query '{"kinds":[1],"limit":20}'
  bakery query '[{"kinds":[0]},{"#t":["nostr"]}]'
  bakery query '{"search":"sourdough"}' --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runQuery(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	filters, err := readFilters(args, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid filter", err)
	}

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.GetEventsForFilters(commandContext(cmd), filters)
	if err != nil {
		return formatter.Fail(ExitFailure, "query failed", err)
	}
	formatter.VerboseLog("%d event(s)", len(events))
	return formatter.Events(events)
}

// CountResult is the payload of the count command.
type CountResult struct {
	Count int `json:"count"`
}

func (r CountResult) String() string {
	return fmt.Sprint(r.Count)
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count [filter-json]",
		Short: "Count events matching filters",
		Long: `Count the events query would print for the same filters.

Examples:
  bakery count '{"kinds":[1]}'
  bakery count '{"authors":["<pubkey>"],"since":1700000000}'`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runCount(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	filters, err := readFilters(args, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid filter", err)
	}

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.CountEventsForFilters(commandContext(cmd), filters)
	if err != nil {
		return formatter.Fail(ExitFailure, "count failed", err)
	}
	return formatter.Success(CountResult{Count: n})
}

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Count bool // wrap the query in COUNT(*)
}

// CompileResult is the payload of the compile command.
type CompileResult struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

func (r CompileResult) String() string {
	return fmt.Sprintf("%s\n-- args: %v", r.SQL, r.Args)
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [filter-json]",
		Short: "Show the SQL a filter compiles to",
		Long: `Compile filters to the parameterized SQL the store would run,
without opening a database. Values never appear in the SQL text; they
are listed as bound arguments.

Examples:
  bakery compile '{"kinds":[1],"#t":["nostr"]}'
  bakery compile '{"search":"bread"}' --count --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Count, "count", false, "compile the count query")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	filters, err := readFilters(args, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid filter", err)
	}

	compiler := querysql.NewSQLCompiler()
	compile := compiler.Compile
	if opts.Count {
		compile = compiler.CompileCount
	}

	q, err := compile(filters)
	if err != nil {
		return formatter.Fail(ExitCommandError, "compile failed", err)
	}

	bound := q.Args
	if bound == nil {
		bound = []any{}
	}
	return formatter.Success(CompileResult{SQL: q.SQL, Args: bound})
}
