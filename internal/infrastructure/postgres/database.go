package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"burndown/internal/shared/telemetry"
)

var (
	dbTracer      = otel.Tracer("burndown/postgres")
	dbMeter       = otel.Meter("burndown/postgres")
	dbDuration, _ = dbMeter.Float64Histogram("db.client.operation.duration",
		metric.WithDescription("Duration of store statements in seconds"),
		metric.WithUnit("s"),
	)
)

// DB is a *sql.DB whose context methods are traced. Spans carry the statement
// verb, target table and the household from the context baggage.
type DB struct {
	*sql.DB
}

func New(connStr string) (*DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// statement describes one traced call
type statement struct {
	span      trace.Span
	start     time.Time
	operation string
	table     string
}

func startStatement(ctx context.Context, name, query string) (context.Context, *statement) {
	st := &statement{
		start:     time.Now(),
		operation: extractSQLVerb(query),
		table:     extractTable(query),
	}

	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", st.operation),
		attribute.String("db.sql.table", st.table),
		attribute.String("db.statement", sanitizeQuery(query)),
	}
	attrs = append(attrs, telemetry.HouseholdAttrs(ctx)...)

	ctx, st.span = dbTracer.Start(ctx, name+" "+st.table, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	return ctx, st
}

// end closes the span. sql.ErrNoRows is an expected outcome, not a failure.
func (st *statement) end(ctx context.Context, err error) {
	failed := err != nil && !errors.Is(err, sql.ErrNoRows)
	if failed {
		st.span.RecordError(err)
		st.span.SetStatus(codes.Error, err.Error())
	}
	dbDuration.Record(ctx, time.Since(st.start).Seconds(), metric.WithAttributes(
		attribute.String("db.operation", st.operation),
		attribute.String("db.sql.table", st.table),
		attribute.Bool("error", failed),
	))
	st.span.End()
}

// QueryContext wraps sql.DB.QueryContext with tracing.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, st := startStatement(ctx, "db.Query", query)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	st.end(ctx, err)
	return rows, err
}

// tracedRow keeps the span open until Scan, where sql.Row reports its error.
type tracedRow struct {
	ctx context.Context
	row *sql.Row
	st  *statement
}

func (r *tracedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if r.st != nil {
		r.st.end(r.ctx, err)
		r.st = nil
	}
	return err
}

// QueryRowContext wraps sql.DB.QueryRowContext; the span ends in Scan.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *tracedRow {
	ctx, st := startStatement(ctx, "db.QueryRow", query)
	return &tracedRow{
		ctx: ctx,
		row: db.DB.QueryRowContext(ctx, query, args...),
		st:  st,
	}
}

// ExecContext wraps sql.DB.ExecContext with tracing and records rows affected.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, st := startStatement(ctx, "db.Exec", query)
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err == nil {
		if n, rerr := result.RowsAffected(); rerr == nil {
			st.span.SetAttributes(attribute.Int64("db.rows_affected", n))
		}
	}
	st.end(ctx, err)
	return result, err
}

// sanitizeQuery masks string and numeric literals so access tokens and
// amounts never reach a trace. $N placeholders are kept.
func sanitizeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	i := 0
	for i < len(q) {
		ch := q[i]

		if ch == '\'' {
			b.WriteString("'?'")
			i++
			for i < len(q) {
				if q[i] == '\'' {
					if i+1 < len(q) && q[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			continue
		}

		if unicode.IsDigit(rune(ch)) && (i == 0 || !isIdentChar(q[i-1])) {
			b.WriteByte('?')
			for i < len(q) && (unicode.IsDigit(rune(q[i])) || q[i] == '.') {
				i++
			}
			continue
		}

		b.WriteByte(ch)
		i++
	}

	s := strings.Join(strings.Fields(b.String()), " ")
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}

// isIdentChar covers identifier characters and '$', so digits of $N are kept.
func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '$'
}

func extractSQLVerb(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// extractTable returns the first table named after FROM, INTO or UPDATE.
func extractTable(q string) string {
	fields := strings.Fields(q)
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE":
			return strings.Trim(fields[i+1], "(),;")
		}
	}
	return ""
}
