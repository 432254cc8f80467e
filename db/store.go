package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"studentparent-server-go/db/migrations"
	"studentparent-server-go/models"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var (
	ErrNotFound  = errors.New("not found")
	ErrNoStorage = errors.New("storage is not configured")
)

// Store persists students, parents and the protocol's Access/Request/User tables in SQLite.
type Store struct {
	sqlDB *sql.DB
	log   *logrus.Logger
}

// Open opens the SQLite database at path and applies the embedded migrations.
func Open(ctx context.Context, path string, log *logrus.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	dsn := path + "?_pragma=foreign_keys(1)"
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		dsn = filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == MemoryPath {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.WithField("path", path).Info("SQLite 数据库已就绪")
	return &Store{sqlDB: sqlDB, log: log}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return ErrNoStorage
	}
	return s.sqlDB.PingContext(ctx)
}

// QueryRows runs a SELECT and returns the column names and the scanned rows.
// TEXT values come back as string, INTEGER as int64 and REAL as float64.
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	if s == nil || s.sqlDB == nil {
		return nil, nil, ErrNoStorage
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		s.log.WithError(err).WithField("sql", query).Error("查询失败")
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	var result [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, result, nil
}

// QueryMaps is QueryRows with every row keyed by column name.
func (s *Store) QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	columns, rows, err := s.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(columns))
		for i, c := range columns {
			m[c] = row[i]
		}
		out = append(out, m)
	}
	return out, nil
}

// Exec runs a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s == nil || s.sqlDB == nil {
		return nil, ErrNoStorage
	}
	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		s.log.WithError(err).WithField("sql", query).Error("执行失败")
		return nil, fmt.Errorf("exec: %w", err)
	}
	return res, nil
}

// CountRows returns the number of rows in a query-visible table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if _, ok := LookupTable(table); !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM "`+table+`"`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// InsertStudent adds a student and returns its id.
func (s *Store) InsertStudent(ctx context.Context, st models.Student) (int64, error) {
	if strings.TrimSpace(st.Name) == "" {
		return 0, errors.New("student name cannot be empty")
	}
	status := st.Status
	if status == 0 {
		status = 1
	}
	res, err := s.Exec(ctx,
		`INSERT INTO Student (student_no, name, gender, age, grade, class_name, phone, email, address, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(st.StudentNo), st.Name, st.Gender, st.Age, st.Grade, st.ClassName,
		st.Phone, st.Email, st.Address, status,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add student %s: %w", st.Name, err)
	}
	return res.LastInsertId()
}

// InsertParent adds a parent and returns its id.
func (s *Store) InsertParent(ctx context.Context, p models.Parent) (int64, error) {
	if strings.TrimSpace(p.Name) == "" || p.StudentID == 0 || strings.TrimSpace(p.Phone) == "" {
		return 0, errors.New("parent name, student_id and phone cannot be empty")
	}
	res, err := s.Exec(ctx,
		`INSERT INTO Parent (student_id, name, relationship, gender, age, phone, email, occupation, work_address, is_emergency_contact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.StudentID, p.Name, p.Relationship, p.Gender, p.Age, p.Phone, p.Email,
		p.Occupation, p.WorkAddress, p.IsEmergencyContact,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add parent %s: %w", p.Name, err)
	}
	return res.LastInsertId()
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
