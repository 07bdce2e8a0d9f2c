package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edulab-kr/storytalk/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the record store: one JSON document per student for ledgers
// and sharing preferences, plus the roster and teacher auth tables.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		student_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledgers (
		student_id TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sharing_prefs (
		student_id TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddStudent inserts a roster row if the student is not already known.
// Re-registering an existing student is a no-op success.
func (s *Store) AddStudent(studentID, name string) error {
	_, err := s.db.Exec(
		`INSERT INTO students (student_id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(student_id) DO NOTHING`,
		studentID, name, time.Now().Format(time.RFC3339),
	)
	return err
}

// GetStudent returns a roster row, or nil if the student is unknown.
func (s *Store) GetStudent(studentID string) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(
		`SELECT student_id, name, created_at FROM students WHERE student_id = ?`, studentID,
	).Scan(&st.StudentID, &st.Name, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudents returns the full roster in registration order.
func (s *Store) ListStudents() ([]model.Student, error) {
	rows, err := s.db.Query(`SELECT student_id, name, created_at FROM students ORDER BY created_at, student_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.StudentID, &st.Name, &st.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// LoadLedger returns a student's ledger document, or nil if none has
// been written yet.
func (s *Store) LoadLedger(studentID string) (*model.Ledger, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM ledgers WHERE student_id = ?`, studentID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l model.Ledger
	if err := json.Unmarshal([]byte(doc), &l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", studentID, err)
	}
	return &l, nil
}

// SaveLedger upserts the whole ledger document for its student.
func (s *Store) SaveLedger(l *model.Ledger) error {
	doc, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode ledger %s: %w", l.StudentID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO ledgers (student_id, doc) VALUES (?, ?)
		 ON CONFLICT(student_id) DO UPDATE SET doc = excluded.doc`,
		l.StudentID, string(doc),
	)
	return err
}

// LoadPreference returns a student's sharing preference document, or
// nil if none exists.
func (s *Store) LoadPreference(studentID string) (*model.SharingPreference, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM sharing_prefs WHERE student_id = ?`, studentID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p model.SharingPreference
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode preference %s: %w", studentID, err)
	}
	return &p, nil
}

// SavePreference upserts the preference document for its student.
func (s *Store) SavePreference(p *model.SharingPreference) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preference %s: %w", p.StudentID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sharing_prefs (student_id, doc) VALUES (?, ?)
		 ON CONFLICT(student_id) DO UPDATE SET doc = excluded.doc`,
		p.StudentID, string(doc),
	)
	return err
}

// ListPreferences returns every stored sharing preference. Documents
// that fail to decode are skipped rather than failing the whole list.
func (s *Store) ListPreferences() ([]model.SharingPreference, error) {
	rows, err := s.db.Query(`SELECT doc FROM sharing_prefs ORDER BY student_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var prefs []model.SharingPreference
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p model.SharingPreference
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			continue
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
