// Per the DESIGN NOTES (spec §9): "String-based SQL assembly with user-id
// injection" is replaced by a small query builder whose insertion point is
// computed from a parsed skeleton rather than regex, producing
// deterministic output. SelectBuilder composes a query structurally —
// WHERE, user-scope, GROUP BY, ORDER BY, LIMIT are tracked as separate
// typed fields, never spliced into opaque SQL text — so there is no
// parenthesis-depth scanning to get wrong.
package persistence

import "strings"

// SelectBuilder assembles a portable SELECT with `?` placeholders. Call
// Build to obtain (query, args); pass query through TranslateQuestionMarks
// for Postgres.
type SelectBuilder struct {
	columns []string
	from    string
	where   []string
	args    []any
	groupBy string
	orderBy string
	limit   int
	hasLimit bool
}

func Select(columns ...string) *SelectBuilder {
	return &SelectBuilder{columns: columns}
}

func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.from = table
	return b
}

// Where adds a conjunctive condition with its positional args.
func (b *SelectBuilder) Where(cond string, args ...any) *SelectBuilder {
	b.where = append(b.where, cond)
	b.args = append(b.args, args...)
	return b
}

// UserScope adds the user-ownership predicate the old regex-injector used
// to splice in positionally: "user_id = ?" when userID is non-nil,
// "user_id IS NULL" otherwise (spec §4.2).
func (b *SelectBuilder) UserScope(userID *string) *SelectBuilder {
	if userID != nil {
		return b.Where("user_id = ?", *userID)
	}
	return b.Where("user_id IS NULL")
}

func (b *SelectBuilder) GroupBy(expr string) *SelectBuilder {
	b.groupBy = expr
	return b
}

func (b *SelectBuilder) OrderBy(expr string) *SelectBuilder {
	b.orderBy = expr
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	b.hasLimit = true
	return b
}

// Build renders the final query (with `?` placeholders, translated later
// per-dialect) and its positional args, in the fixed clause order
// WHERE -> GROUP BY -> ORDER BY -> LIMIT, matching spec §4.2's requirement
// that user-scope and pagination clauses land "before ORDER BY / LIMIT /
// GROUP BY" relative to the filter predicate, and after it relative to
// each other.
func (b *SelectBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if b.groupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(b.groupBy)
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}
	if b.hasLimit {
		sb.WriteString(" LIMIT ?")
		b.args = append(b.args, b.limit)
	}
	return sb.String(), b.args
}
