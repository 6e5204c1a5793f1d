package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/utilitysc/vsd-monitor/internal/domain"
)

// Dialect captures the few SQL differences between the supported
// engines.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on database/sql. One instance serves every
// metric table; appends to the same table are serialized by the single
// cycle runner, so no statement-level locking is needed here.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  zerolog.Logger

	mu      sync.RWMutex
	columns map[string]int        // table -> unit column count, fixed at schema creation
	kinds   map[string]ColumnKind // table -> column kind
	inserts map[string]string     // table -> prepared INSERT text
}

// OpenSQLite opens (creating if needed) a file-based SQLite store.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// The sqlite driver allows one writer; a second connection would
	// only ever see "database is locked".
	db.SetMaxOpenConns(1)
	return newSQLStore(db, DialectSQLite, logger), nil
}

// OpenPostgres opens a store backed by a networked PostgreSQL server.
func OpenPostgres(dsn string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLStore(db, DialectPostgres, logger), nil
}

func newSQLStore(db *sql.DB, dialect Dialect, logger zerolog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger.With().Str("component", "store").Str("dialect", string(dialect)).Logger(),
		columns: make(map[string]int),
		kinds:   make(map[string]ColumnKind),
		inserts: make(map[string]string),
	}
}

// CreateSchema creates the metric table if absent: id, date, time, and
// one column per unit in registry order. Safe to call again on restart
// with the same shape.
func (s *SQLStore) CreateSchema(ctx context.Context, table string, unitNames []string, kind ColumnKind) error {
	if len(unitNames) == 0 {
		return fmt.Errorf("%w: no unit columns for table %q", domain.ErrSchemaFailed, table)
	}

	colType := s.columnType(kind)
	cols := make([]string, 0, len(unitNames))
	for _, name := range unitNames {
		cols = append(cols, fmt.Sprintf("%s %s", name, colType))
	}

	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		idCol = "id BIGSERIAL PRIMARY KEY"
	}

	// Table and column names come from the validated fleet registry,
	// never from runtime input.
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    %s,
    date TEXT NOT NULL,
    time TEXT NOT NULL,
    %s
)`, table, idCol, strings.Join(cols, ",\n    "))

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: table %q: %v", domain.ErrSchemaFailed, table, err)
	}

	s.mu.Lock()
	s.columns[table] = len(unitNames)
	s.kinds[table] = kind
	s.inserts[table] = s.insertQuery(table, unitNames)
	s.mu.Unlock()

	s.logger.Debug().Str("table", table).Int("units", len(unitNames)).Msg("Schema ensured")
	return nil
}

func (s *SQLStore) columnType(kind ColumnKind) string {
	if kind == ColumnLabel {
		return "TEXT"
	}
	if s.dialect == DialectPostgres {
		return "DOUBLE PRECISION"
	}
	return "REAL"
}

func (s *SQLStore) insertQuery(table string, unitNames []string) string {
	placeholders := make([]string, len(unitNames)+2)
	for i := range placeholders {
		if s.dialect == DialectPostgres {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (date, time, %s) VALUES (%s)",
		table, strings.Join(unitNames, ", "), strings.Join(placeholders, ", "))
}

// AppendRow writes exactly one new row into the named table. Invalid
// markers go in as NULL.
func (s *SQLStore) AppendRow(ctx context.Context, table, date, timeOfDay string, values []Value) error {
	s.mu.RLock()
	query, ok := s.inserts[table]
	count := s.columns[table]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: no schema for table %q", domain.ErrAppendFailed, table)
	}
	if len(values) != count {
		return fmt.Errorf("%w: table %q expects %d values, got %d",
			domain.ErrValueCountWrong, table, count, len(values))
	}

	args := make([]interface{}, 0, len(values)+2)
	args = append(args, date, timeOfDay)
	for _, v := range values {
		args = append(args, v.arg())
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: table %q: %v", domain.ErrAppendFailed, table, err)
	}
	return nil
}

// RecentRows returns the newest rows of a table, newest first.
func (s *SQLStore) RecentRows(ctx context.Context, table string, limit int) ([]Row, error) {
	s.mu.RLock()
	count, ok := s.columns[table]
	kind := s.kinds[table]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no schema for table %q", table)
	}
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY id DESC LIMIT %d", table, limit)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", table, err)
	}
	defer rows.Close()

	numeric := kind == ColumnNumeric
	var out []Row
	for rows.Next() {
		row := Row{Values: make([]Value, count)}
		numbers := make([]sql.NullFloat64, count)
		labels := make([]sql.NullString, count)

		dest := make([]interface{}, 0, count+3)
		dest = append(dest, &row.ID, &row.Date, &row.Time)
		for i := 0; i < count; i++ {
			if numeric {
				dest = append(dest, &numbers[i])
			} else {
				dest = append(dest, &labels[i])
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %q: %w", table, err)
		}
		for i := 0; i < count; i++ {
			if numeric && numbers[i].Valid {
				row.Values[i] = NumberValue(numbers[i].Float64)
			} else if !numeric && labels[i].Valid {
				row.Values[i] = LabelValue(labels[i].String)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// HealthCheck pings the database.
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
