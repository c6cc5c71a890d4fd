package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/domain/version"
)

// Store keeps the current workspace of each project and its fixed version
// snapshots. It implements ports.LocalSaver, ports.ProjectLoader and
// ports.VersionStore.
type Store struct {
	conn  *Connection
	codec ports.WorkspaceCodec
	now   func() time.Time
}

var (
	_ ports.LocalSaver    = (*Store)(nil)
	_ ports.ProjectLoader = (*Store)(nil)
	_ ports.VersionStore  = (*Store)(nil)
)

// Open opens the database at dbPath and returns a Store that encodes
// workspaces with codec.
func Open(dbPath string, codec ports.WorkspaceCodec) (*Store, error) {
	conn, err := NewConnection(dbPath)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(); err != nil {
		return nil, err
	}
	return NewStore(conn, codec), nil
}

// NewStore creates a Store on an open connection.
func NewStore(conn *Connection, codec ports.WorkspaceCodec) *Store {
	return &Store{conn: conn, codec: codec, now: time.Now}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveProject implements ports.LocalSaver.
func (s *Store) SaveProject(ctx context.Context, projectID string, h ports.WorkspaceHandle) error {
	data, err := s.codec.Encode(h)
	if err != nil {
		return fmt.Errorf("could not encode project %s: %w", projectID, err)
	}
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	if err := upsertProject(ctx, db, projectID, data, s.now().UTC()); err != nil {
		return fmt.Errorf("could not save project %s: %w", projectID, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertProject(ctx context.Context, db execer, projectID string, data []byte, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO projects (id, data, size, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			saved_at = excluded.saved_at
	`, projectID, data, len(data), at)
	return err
}

// LoaderFor implements ports.ProjectLoader. The current version of a project
// that was never saved loads as a new empty workspace; a missing fixed
// version is NOT_FOUND.
func (s *Store) LoaderFor(projectID string) ports.Loader {
	return func(ctx context.Context, v version.ID) (ports.WorkspaceHandle, error) {
		data, err := s.read(ctx, projectID, v)
		if errors.Is(err, sql.ErrNoRows) {
			if v.IsCurrent() {
				return s.codec.New(projectID)
			}
			return nil, domainerrors.NotFound("project %s has no version %s", projectID, v)
		}
		if err != nil {
			return nil, fmt.Errorf("could not read %s of project %s: %w", v, projectID, err)
		}
		return s.codec.Decode(projectID, v, data)
	}
}

func (s *Store) read(ctx context.Context, projectID string, v version.ID) ([]byte, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}
	var data []byte
	if v.IsCurrent() {
		err = db.QueryRowContext(ctx, "SELECT data FROM projects WHERE id = ?", projectID).Scan(&data)
	} else {
		err = db.QueryRowContext(ctx,
			"SELECT data FROM versions WHERE project_id = ? AND label = ?",
			projectID, v.Label()).Scan(&data)
	}
	return data, err
}

// SaveVersion implements ports.VersionStore. An empty label takes the next
// free number. The project row is created from h when the project was never
// saved before.
func (s *Store) SaveVersion(ctx context.Context, projectID, label string, h ports.WorkspaceHandle) (*ports.VersionInfo, error) {
	data, err := s.codec.Encode(h)
	if err != nil {
		return nil, fmt.Errorf("could not encode project %s: %w", projectID, err)
	}
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, data, size, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, projectID, data, len(data), now); err != nil {
		return nil, fmt.Errorf("could not register project %s: %w", projectID, err)
	}

	if label == "" {
		if label, err = nextLabel(ctx, tx, projectID); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (project_id, label, data, size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, projectID, label, data, len(data), now)
	if isUniqueViolation(err) {
		return nil, domainerrors.NotAllowed("project %s already has version %s", projectID, version.Fixed(label))
	}
	if err != nil {
		return nil, fmt.Errorf("could not insert version %s: %w", label, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit version %s: %w", label, err)
	}

	return &ports.VersionInfo{
		ProjectID: projectID,
		Label:     label,
		Size:      int64(len(data)),
		CreatedAt: now,
	}, nil
}

func nextLabel(ctx context.Context, tx *sql.Tx, projectID string) (string, error) {
	var highest int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(CAST(label AS INTEGER)), 0) FROM versions
		WHERE project_id = ? AND label NOT GLOB '*[^0-9]*'
	`, projectID).Scan(&highest)
	if err != nil {
		return "", fmt.Errorf("could not number version: %w", err)
	}
	return strconv.Itoa(highest + 1), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// ListVersions implements ports.VersionStore.
func (s *Store) ListVersions(ctx context.Context, projectID string) ([]ports.VersionInfo, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT label, size, created_at FROM versions
		WHERE project_id = ?
		ORDER BY created_at, rowid
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("could not list versions: %w", err)
	}
	defer rows.Close()

	var infos []ports.VersionInfo
	for rows.Next() {
		info := ports.VersionInfo{ProjectID: projectID}
		if err := rows.Scan(&info.Label, &info.Size, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("could not scan version: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteProject removes a project and its versions.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
	if err != nil {
		return fmt.Errorf("could not delete project %s: %w", projectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domainerrors.NotFound("project %s", projectID)
	}
	return nil
}
