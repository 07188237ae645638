package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/errors"
)

const columns = `id, title, author, year, genre, movement, text_path, pdf_path, status, created_at, updated_at`

// Store reads and writes works through a database.Client.
type Store struct {
	db     *database.Client
	logger *slog.Logger
}

func NewStore(db *database.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the works table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.db.Driver() == database.DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS works (
			id ` + id + `,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			year INTEGER,
			genre TEXT,
			movement TEXT,
			text_path TEXT UNIQUE NOT NULL,
			pdf_path TEXT UNIQUE,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_works_status ON works (status)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating works schema: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWork(row scanner) (*Work, error) {
	var (
		w        Work
		year     sql.NullInt64
		genre    sql.NullString
		movement sql.NullString
		pdfPath  sql.NullString
		status   string
	)
	if err := row.Scan(&w.ID, &w.Title, &w.Author, &year, &genre, &movement,
		&w.TextPath, &pdfPath, &status, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if year.Valid {
		y := int(year.Int64)
		w.Year = &y
	}
	w.Genre = genre.String
	w.Movement = movement.String
	w.PDFPath = pdfPath.String
	w.Status = Status(status)
	return &w, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Work, error) {
	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCatalogUnavailable, err)
	}
	defer rows.Close()
	var works []Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning work: %w", err)
		}
		works = append(works, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCatalogUnavailable, err)
	}
	return works, nil
}

// Get returns one work or ErrWorkNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Work, error) {
	row := s.db.DB.QueryRowContext(ctx, s.db.Rebind(`SELECT `+columns+` FROM works WHERE id = ?`), id)
	w, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("work %d: %w", id, apperrors.ErrWorkNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCatalogUnavailable, err)
	}
	return w, nil
}

// GetMany returns the works that exist among ids; missing ids are absent
// from the map.
func (s *Store) GetMany(ctx context.Context, ids []int64) (map[int64]*Work, error) {
	out := make(map[int64]*Work, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	works, err := s.query(ctx, `SELECT `+columns+` FROM works WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for i := range works {
		out[works[i].ID] = &works[i]
	}
	return out, nil
}

// ListPending returns works waiting for the indexer, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]Work, error) {
	return s.query(ctx, `SELECT `+columns+` FROM works WHERE status = ? ORDER BY id`, string(StatusPending))
}

// List returns works matching f ordered by id.
func (s *Store) List(ctx context.Context, f Filter) ([]Work, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Author != "" {
		where = append(where, "LOWER(author) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Author)+"%")
	}
	if f.Genre != "" {
		where = append(where, "LOWER(genre) = ?")
		args = append(args, strings.ToLower(f.Genre))
	}
	if f.Movement != "" {
		where = append(where, "LOWER(movement) = ?")
		args = append(args, strings.ToLower(f.Movement))
	}
	q := `SELECT ` + columns + ` FROM works`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.query(ctx, q, args...)
}

// IDs returns every work id, ascending.
func (s *Store) IDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT id FROM works ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCatalogUnavailable, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStatus sets a work's status.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.DB.ExecContext(ctx,
		s.db.Rebind(`UPDATE works SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrCatalogUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("work %d: %w", id, apperrors.ErrWorkNotFound)
	}
	s.logger.Info("work status updated", "work_id", id, "status", status)
	return nil
}

const insertWork = `INSERT INTO works (title, author, year, genre, movement, text_path, pdf_path, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(w *Work, now time.Time) []any {
	var year any
	if w.Year != nil {
		year = *w.Year
	}
	return []any{w.Title, w.Author, year, nullable(w.Genre), nullable(w.Movement),
		w.TextPath, nullable(w.PDFPath), string(w.Status), now, now}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts w and fills in its id and timestamps. beforeCommit, when
// set, runs inside the transaction after the insert; its error rolls the
// insert back. A duplicate text or PDF path yields ErrWorkExists.
func (s *Store) Create(ctx context.Context, w *Work, beforeCommit func(*Work) error) (*Work, error) {
	if w.Status == "" {
		w.Status = StatusPending
	}
	now := time.Now().UTC()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.db.Rebind(insertWork+` RETURNING id`), insertArgs(w, now)...)
		if err := row.Scan(&w.ID); err != nil {
			return err
		}
		w.CreatedAt, w.UpdatedAt = now, now
		if beforeCommit != nil {
			return beforeCommit(w)
		}
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%q: %w", w.Title, apperrors.ErrWorkExists)
		}
		return nil, err
	}
	s.logger.Info("work created", "work_id", w.ID, "title", w.Title, "status", w.Status)
	return w, nil
}

// Seed inserts works whose text path is not catalogued yet and reports how
// many were added.
func (s *Store) Seed(ctx context.Context, works []Work) (int, error) {
	now := time.Now().UTC()
	added := 0
	for i := range works {
		w := works[i]
		if w.Status == "" {
			w.Status = StatusPending
		}
		res, err := s.db.DB.ExecContext(ctx, s.db.Rebind(insertWork+` ON CONFLICT DO NOTHING`), insertArgs(&w, now)...)
		if err != nil {
			return added, fmt.Errorf("seeding %q: %w", w.Title, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	s.logger.Info("catalog seeded", "offered", len(works), "added", added)
	return added, nil
}
