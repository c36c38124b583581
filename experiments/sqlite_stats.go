package experiments

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/moneytech/megastep"
	"github.com/unixpickle/essentials"

	_ "modernc.org/sqlite"
)

// SQLiteStats is a megastep.StatSink which stores every
// observation as a row in a SQLite database.
type SQLiteStats struct {
	// Now is used to timestamp rows.
	//
	// If nil, time.Now is used.
	Now func() time.Time

	mu  sync.Mutex
	db  *sql.DB
	err error
}

// A StatRow is one stored observation.
type StatRow struct {
	Time  time.Time
	Kind  megastep.StatKind
	Name  string
	Value float64
}

// OpenSQLiteStats opens or creates a statistics database.
func OpenSQLiteStats(ctx context.Context, path string) (stats *SQLiteStats, err error) {
	defer essentials.AddCtxTo("open stats database", &err)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stats (
			time INTEGER NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStats{db: db}, nil
}

// Record inserts a row.
//
// Since Record cannot fail, the first error encountered
// is saved and reported by Err.
func (s *SQLiteStats) Record(kind megastep.StatKind, name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		s.setErr(errors.New("record stat: database is closed"))
		return
	}
	_, err := s.db.Exec(`INSERT INTO stats (time, kind, name, value) VALUES (?, ?, ?, ?)`,
		s.now().UnixNano(), kind.String(), name, value)
	if err != nil {
		s.setErr(essentials.AddCtx("record stat", err))
	}
}

// Err returns the first error encountered by Record.
func (s *SQLiteStats) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Rows returns every stored observation of a statistic,
// oldest first.
func (s *SQLiteStats) Rows(ctx context.Context, name string) (rows []StatRow, err error) {
	defer essentials.AddCtxTo("query stats", &err)
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, errors.New("database is closed")
	}
	res, err := db.QueryContext(ctx, `
		SELECT time, kind, name, value FROM stats WHERE name = ? ORDER BY rowid
	`, name)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	for res.Next() {
		var nanos int64
		var kind string
		var row StatRow
		if err := res.Scan(&nanos, &kind, &row.Name, &row.Value); err != nil {
			return nil, err
		}
		row.Time = time.Unix(0, nanos)
		row.Kind = parseStatKind(kind)
		rows = append(rows, row)
	}
	return rows, res.Err()
}

// Close closes the database.
func (s *SQLiteStats) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStats) setErr(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *SQLiteStats) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func parseStatKind(s string) megastep.StatKind {
	for _, k := range []megastep.StatKind{megastep.MeanStat, megastep.MaxStat,
		megastep.RateStat, megastep.CumSumStat} {
		if k.String() == s {
			return k
		}
	}
	return megastep.MeanStat
}
