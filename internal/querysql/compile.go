package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bakery/internal/filter"
	"github.com/roach88/bakery/internal/search"
)

// Identifiers the compiler may write into SQL text. Nothing outside this
// set, and no caller-supplied string, is ever concatenated into a query.
const (
	tableEvents   = "events"
	tableTags     = "tags"
	tableFTS      = "events_fts"
	aliasOrTags   = "or_tags"
	aliasAndTags  = "and_tags"
	aliasRank     = "search_rank"
	matchNothing  = "1 = 0"
	matchAnything = "1 = 1"
)

// EventColumns is the select list every event query returns, in scan order.
var EventColumns = []string{
	"events.id",
	"events.created_at",
	"events.pubkey",
	"events.sig",
	"events.kind",
	"events.content",
	"events.tags",
}

// Query is compiled SQL plus its positional parameters.
type Query struct {
	SQL  string
	Args []any
}

// SQLCompiler compiles filter batches to parameterized SQL for SQLite.
//
// CRITICAL: Values are always bound as parameters, never interpolated.
// CRITICAL: Every query has a total ORDER BY so results are deterministic.
type SQLCompiler struct {
	// Columns is the select list. Defaults to EventColumns.
	Columns []string
}

// NewSQLCompiler creates a compiler selecting EventColumns.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Columns: EventColumns}
}

// Compile turns a batch of filters into one query returning the union of
// their matches.
//
// Ordering and limit are decided for the whole batch: rank ordering applies
// when any filter searches and the batch does not ask for recency; the
// limit is the smallest positive limit in the batch.
func (c *SQLCompiler) Compile(filters []filter.Filter) (Query, error) {
	for i, f := range filters {
		if err := f.Validate(); err != nil {
			return Query{}, fmt.Errorf("compile filter %d: %w", i, err)
		}
	}

	stmt := &statement{}

	rank := useRank(filters)
	if rank {
		var terms []string
		for _, f := range filters {
			if f.Search != "" && !slices.Contains(terms, f.Search) {
				terms = append(terms, f.Search)
			}
		}
		stmt.addJoin(
			"LEFT JOIN (SELECT id, rank FROM "+tableFTS+" WHERE "+tableFTS+" MATCH ?) AS "+aliasRank+
				" ON "+aliasRank+".id = "+tableEvents+".id",
			search.AnyPhrase(terms),
		)
	}

	for _, f := range filters {
		cond, args := compileFilter(f)
		stmt.where = append(stmt.where, cond)
		stmt.whereArgs = append(stmt.whereArgs, args...)
	}

	if rank {
		stmt.orderBy = aliasRank + ".rank IS NULL, " + aliasRank + ".rank, " +
			tableEvents + ".created_at DESC, " + tableEvents + ".id DESC"
	} else {
		stmt.orderBy = tableEvents + ".created_at DESC, " + tableEvents + ".id DESC"
	}

	stmt.limit = minLimit(filters)

	columns := c.Columns
	if len(columns) == 0 {
		columns = EventColumns
	}
	return stmt.build(strings.Join(columns, ", ")), nil
}

// CompileCount wraps the compiled batch in a COUNT(*).
func (c *SQLCompiler) CompileCount(filters []filter.Filter) (Query, error) {
	q, err := c.Compile(filters)
	if err != nil {
		return Query{}, err
	}
	return Query{
		SQL:  "SELECT COUNT(*) AS count FROM (" + q.SQL + ")",
		Args: q.Args,
	}, nil
}

// statement accumulates the pieces of one SELECT. Joins are deduplicated
// across filters; their parameters precede WHERE parameters because their
// text does.
type statement struct {
	joins     []string
	joinArgs  []any
	where     []string
	whereArgs []any
	orderBy   string
	limit     int
}

func (s *statement) addJoin(join string, args ...any) {
	if slices.Contains(s.joins, join) {
		return
	}
	s.joins = append(s.joins, join)
	s.joinArgs = append(s.joinArgs, args...)
}

func (s *statement) build(columns string) Query {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM ")
	sb.WriteString(tableEvents)

	for _, join := range s.joins {
		sb.WriteString(" ")
		sb.WriteString(join)
	}
	args = append(args, s.joinArgs...)

	if len(s.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(s.where, " OR "))
		args = append(args, s.whereArgs...)
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(s.orderBy)

	if s.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, s.limit)
	}

	return Query{SQL: sb.String(), Args: args}
}

// compileFilter returns one parenthesized conjunction for f.
func compileFilter(f filter.Filter) (string, []any) {
	if f.IsEmpty() {
		return "(" + matchAnything + ")", nil
	}

	var conds []string
	var args []any

	if f.Search != "" {
		conds = append(conds, tableEvents+".id IN (SELECT id FROM "+tableFTS+" WHERE "+tableFTS+" MATCH ?)")
		args = append(args, search.Phrase(f.Search))
	}

	if f.Since != nil {
		conds = append(conds, tableEvents+".created_at >= ?")
		args = append(args, int64(*f.Since))
	}
	if f.Until != nil {
		conds = append(conds, tableEvents+".created_at < ?")
		args = append(args, int64(*f.Until))
	}

	if f.IDs != nil {
		cond, inArgs := inList(tableEvents+".id", f.IDs)
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}
	if f.Kinds != nil {
		cond, inArgs := inList(tableEvents+".kind", f.Kinds)
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}
	if f.Authors != nil {
		cond, inArgs := inList(tableEvents+".pubkey", f.Authors)
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}

	for _, name := range f.OrTagNames() {
		cond, tagArgs := orTagCondition(name, f.Tags[name])
		conds = append(conds, cond)
		args = append(args, tagArgs...)
	}

	if len(f.AndTags) > 0 {
		cond, tagArgs := andTagCondition(f)
		conds = append(conds, cond)
		args = append(args, tagArgs...)
	}

	return "(" + strings.Join(conds, " AND ") + ")", args
}

// orTagCondition requires at least one of values on tag name.
func orTagCondition(name string, values []string) (string, []any) {
	values = distinct(values)
	if len(values) == 0 {
		return matchNothing, nil
	}

	cond, inArgs := inList(aliasOrTags+".value", values)
	sql := tableEvents + ".id IN (SELECT " + aliasOrTags + ".event FROM " + tableTags + " AS " + aliasOrTags +
		" WHERE " + aliasOrTags + ".tag = ? AND " + cond + ")"
	return sql, append([]any{name}, inArgs...)
}

// andTagCondition requires every listed value of every "&" key.
//
// The tag table is joined once; each row matching any (tag, value) pair
// survives the WHERE, and an event qualifies only when the number of
// distinct pairs it matched equals the number demanded. Counting joined
// rows against the demanded cardinality is what turns the join into an AND.
func andTagCondition(f filter.Filter) (string, []any) {
	var branches []string
	var args []any
	required := 0

	for _, name := range f.AndTagNames() {
		values := distinct(f.AndTags[name])
		if len(values) == 0 {
			// Zero demanded values must not be vacuously true.
			return matchNothing, nil
		}
		cond, inArgs := inList(aliasAndTags+".value", values)
		branches = append(branches, "("+aliasAndTags+".tag = ? AND "+cond+")")
		args = append(args, name)
		args = append(args, inArgs...)
		required += len(values)
	}

	sql := tableEvents + ".id IN (SELECT " + aliasAndTags + ".event FROM " + tableTags + " AS " + aliasAndTags +
		" WHERE " + strings.Join(branches, " OR ") +
		" GROUP BY " + aliasAndTags + ".event" +
		" HAVING COUNT(DISTINCT " + aliasAndTags + ".tag || ':' || " + aliasAndTags + ".value) = ?)"
	return sql, append(args, required)
}

// inList renders "column IN (?, ...)"; an empty list matches nothing.
func inList[T any](column string, values []T) (string, []any) {
	if len(values) == 0 {
		return matchNothing, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return column + " IN (" + placeholders + ")", args
}

// useRank decides the batch ordering: rank when any filter searches and no
// filter asks for recency.
func useRank(filters []filter.Filter) bool {
	searching := false
	for _, f := range filters {
		if f.Order == filter.OrderCreatedAt {
			return false
		}
		if f.Search != "" {
			searching = true
		}
	}
	return searching
}

// minLimit returns the smallest positive limit, or 0 if none is set.
// A batch mixing limits under-serves the looser filters; callers that need
// per-filter limits must query filters separately.
func minLimit(filters []filter.Filter) int {
	limit := 0
	for _, f := range filters {
		if f.Limit > 0 && (limit == 0 || f.Limit < limit) {
			limit = f.Limit
		}
	}
	return limit
}

func distinct(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
