package upsert

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dataset is a rectangular batch of rows destined for one table. Row values
// must be driver-compatible; decimals travel as their driver.Valuer form so
// price columns keep fixed-point precision.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the dataset has no rows.
func (d Dataset) Empty() bool {
	return len(d.Rows) == 0
}

// Request describes one bulk insert-or-update.
type Request struct {
	// Table is the target table name.
	Table string
	// Data is the batch to apply.
	Data Dataset
	// UniqueColumns is the uniqueness constraint; rows colliding on it are
	// updated in place. Empty means plain insert.
	UniqueColumns []string
	// BatchSize caps rows per statement to bound statement size. Zero or
	// negative applies the whole dataset in one statement.
	BatchSize int
}

// Engine applies batches of rows as single multi-row
// INSERT ... ON CONFLICT DO UPDATE statements. Each chunk succeeds or fails
// as a unit; the statement itself is idempotent, so callers may retry a
// partially applied request safely.
type Engine struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Apply upserts the dataset into the target table. An empty dataset is a
// no-op. A column set that does not match the table's schema surfaces as the
// database's error.
func (e *Engine) Apply(ctx context.Context, req Request) error {
	if e == nil || e.db == nil {
		return fmt.Errorf("upsert: engine has no database")
	}
	if req.Data.Empty() {
		return nil
	}
	if err := validate(req); err != nil {
		return err
	}

	stmtPrefix := buildStatementPrefix(req)
	batch := req.BatchSize
	if batch <= 0 {
		batch = len(req.Data.Rows)
	}

	for start := 0; start < len(req.Data.Rows); start += batch {
		end := start + batch
		if end > len(req.Data.Rows) {
			end = len(req.Data.Rows)
		}
		chunk := req.Data.Rows[start:end]

		sql, args := buildChunkStatement(stmtPrefix, len(req.Data.Columns), chunk, req)
		if err := e.db.WithContext(ctx).Exec(sql, args...).Error; err != nil {
			return fmt.Errorf("upsert into %s (rows %d-%d): %w", req.Table, start, end-1, err)
		}
	}
	return nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Table) == "" {
		return fmt.Errorf("upsert: missing table name")
	}
	if len(req.Data.Columns) == 0 {
		return fmt.Errorf("upsert into %s: dataset has no columns", req.Table)
	}
	for _, name := range append(append([]string{req.Table}, req.Data.Columns...), req.UniqueColumns...) {
		if !validIdentifier(name) {
			return fmt.Errorf("upsert into %s: invalid identifier %q", req.Table, name)
		}
	}
	cols := make(map[string]bool, len(req.Data.Columns))
	for _, c := range req.Data.Columns {
		if cols[c] {
			return fmt.Errorf("upsert into %s: duplicate column %q", req.Table, c)
		}
		cols[c] = true
	}
	for _, u := range req.UniqueColumns {
		if !cols[u] {
			return fmt.Errorf("upsert into %s: unique column %q not in dataset", req.Table, u)
		}
	}
	for i, row := range req.Data.Rows {
		if len(row) != len(req.Data.Columns) {
			return fmt.Errorf("upsert into %s: row %d has %d values, want %d",
				req.Table, i, len(row), len(req.Data.Columns))
		}
	}
	return nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// buildStatementPrefix renders the INSERT head: table and quoted column list.
func buildStatementPrefix(req Request) string {
	var b strings.Builder
	b.WriteString(`INSERT INTO "`)
	b.WriteString(req.Table)
	b.WriteString(`" (`)
	for i, c := range req.Data.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(`"` + c + `"`)
	}
	b.WriteString(") VALUES ")
	return b.String()
}

// buildChunkStatement appends the VALUES placeholders and the conflict clause
// for one chunk. Non-unique columns are overwritten from the incoming row via
// excluded; with no unique columns the statement is a plain insert.
func buildChunkStatement(prefix string, ncols int, rows [][]any, req Request) (string, []any) {
	var b strings.Builder
	b.WriteString(prefix)

	rowPlaceholder := "(" + strings.Repeat("?, ", ncols-1) + "?)"
	args := make([]any, 0, len(rows)*ncols)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowPlaceholder)
		args = append(args, row...)
	}

	if len(req.UniqueColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, u := range req.UniqueColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(`"` + u + `"`)
		}
		b.WriteString(")")

		unique := make(map[string]bool, len(req.UniqueColumns))
		for _, u := range req.UniqueColumns {
			unique[u] = true
		}
		var updates []string
		for _, c := range req.Data.Columns {
			if !unique[c] {
				updates = append(updates, `"`+c+`" = excluded."`+c+`"`)
			}
		}
		if len(updates) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			b.WriteString(strings.Join(updates, ", "))
		}
	}

	return b.String(), args
}
