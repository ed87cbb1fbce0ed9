package resume

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"discdump/internal/config"
	"discdump/internal/extents"
)

// Store persists checkpoints in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const (
	kindBad        = "bad"
	kindFilled     = "filled"
	kindLeadOut    = "lead_out"
	kindSubchannel = "subchannel"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the state database under the configured
// state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}
	return OpenPath(cfg.StatePath())
}

// OpenPath opens the database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored checkpoint for cp.Fingerprint.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	ctx = ensureContext(ctx)
	if cp == nil || strings.TrimSpace(cp.Fingerprint) == "" {
		return errors.New("save checkpoint: fingerprint is required")
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Status == "" {
		cp.Status = StatusInProgress
	}
	return retryOnBusy(ctx, func() error {
		return s.saveTx(ctx, cp)
	})
}

func (s *Store) saveTx(ctx context.Context, cp *Checkpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (
            fingerprint, session_id, device, status, next_block, last_sector, tape, mcn, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(fingerprint) DO UPDATE SET
            session_id = excluded.session_id,
            device = excluded.device,
            status = excluded.status,
            next_block = excluded.next_block,
            last_sector = excluded.last_sector,
            tape = excluded.tape,
            mcn = excluded.mcn,
            updated_at = excluded.updated_at`,
		cp.Fingerprint,
		cp.SessionID,
		cp.Device,
		string(cp.Status),
		int64(cp.State.NextBlock),
		int64(cp.LastSector),
		boolToInt(cp.State.Tape),
		nullableString(cp.MCN),
		cp.CreatedAt.Format(time.RFC3339Nano),
		cp.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM extents WHERE fingerprint = ?`, cp.Fingerprint); err != nil {
		return fmt.Errorf("clear extents: %w", err)
	}
	sets := []struct {
		kind string
		set  *extents.Set
	}{
		{kindBad, cp.State.BadBlocks},
		{kindFilled, cp.Filled},
		{kindLeadOut, cp.LeadOut},
		{kindSubchannel, cp.Subchannel},
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO extents (fingerprint, kind, start_lba, end_lba) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare extents insert: %w", err)
	}
	defer stmt.Close()
	for _, entry := range sets {
		if entry.set == nil {
			continue
		}
		for _, r := range entry.set.Ranges() {
			if _, err := stmt.ExecContext(ctx, cp.Fingerprint, entry.kind, int64(r.Start), int64(r.End)); err != nil {
				return fmt.Errorf("insert %s extent: %w", entry.kind, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM isrc WHERE fingerprint = ?`, cp.Fingerprint); err != nil {
		return fmt.Errorf("clear isrc: %w", err)
	}
	for track, code := range cp.ISRC {
		if _, err := tx.ExecContext(ctx, `INSERT INTO isrc (fingerprint, track, code) VALUES (?, ?, ?)`, cp.Fingerprint, track, code); err != nil {
			return fmt.Errorf("insert isrc: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpoint for a fingerprint, or nil when none exists.
func (s *Store) Load(ctx context.Context, fingerprint string) (*Checkpoint, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, session_id, device, status, next_block, last_sector, tape, mcn, created_at, updated_at
         FROM sessions WHERE fingerprint = ?`, fingerprint)

	var (
		cp         Checkpoint
		status     string
		nextBlock  int64
		lastSector int64
		tape       int64
		mcn        sql.NullString
		createdRaw string
		updatedRaw string
	)
	err := row.Scan(&cp.Fingerprint, &cp.SessionID, &cp.Device, &status, &nextBlock, &lastSector, &tape, &mcn, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	cp.Status = Status(status)
	cp.State = State{NextBlock: uint64(nextBlock), Tape: tape != 0, BadBlocks: extents.New()}
	cp.LastSector = uint64(lastSector)
	cp.MCN = mcn.String
	cp.CreatedAt = parseTime(createdRaw)
	cp.UpdatedAt = parseTime(updatedRaw)
	cp.Filled = extents.New()
	cp.LeadOut = extents.New()
	cp.Subchannel = extents.New()

	rows, err := s.db.QueryContext(ctx, `SELECT kind, start_lba, end_lba FROM extents WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("load extents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind       string
			start, end int64
		)
		if err := rows.Scan(&kind, &start, &end); err != nil {
			return nil, fmt.Errorf("scan extent: %w", err)
		}
		var target *extents.Set
		switch kind {
		case kindBad:
			target = cp.State.BadBlocks
		case kindFilled:
			target = cp.Filled
		case kindLeadOut:
			target = cp.LeadOut
		case kindSubchannel:
			target = cp.Subchannel
		default:
			continue
		}
		target.AddRange(uint64(start), uint64(end))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extents: %w", err)
	}

	isrcRows, err := s.db.QueryContext(ctx, `SELECT track, code FROM isrc WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("load isrc: %w", err)
	}
	defer isrcRows.Close()
	for isrcRows.Next() {
		var (
			track int
			code  string
		)
		if err := isrcRows.Scan(&track, &code); err != nil {
			return nil, fmt.Errorf("scan isrc: %w", err)
		}
		if cp.ISRC == nil {
			cp.ISRC = map[int]string{}
		}
		cp.ISRC[track] = code
	}
	if err := isrcRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate isrc: %w", err)
	}
	return &cp, nil
}

// List returns every stored session, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.fingerprint, s.session_id, s.device, s.status, s.next_block, s.last_sector, s.updated_at,
                COALESCE((SELECT SUM(e.end_lba - e.start_lba + 1) FROM extents e
                          WHERE e.fingerprint = s.fingerprint AND e.kind = ?), 0)
         FROM sessions s ORDER BY s.updated_at DESC`, kindBad)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum        Summary
			status     string
			nextBlock  int64
			lastSector int64
			updatedRaw string
			bad        int64
		)
		if err := rows.Scan(&sum.Fingerprint, &sum.SessionID, &sum.Device, &status, &nextBlock, &lastSector, &updatedRaw, &bad); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.Status = Status(status)
		sum.NextBlock = uint64(nextBlock)
		sum.LastSector = uint64(lastSector)
		sum.BadCount = uint64(bad)
		sum.UpdatedAt = parseTime(updatedRaw)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a session and its extents. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, fingerprint string) (bool, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE fingerprint = ?`, fingerprint)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DB exposes the underlying handle for maintenance commands and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}
