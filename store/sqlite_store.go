package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vascofialho-nl/releasecheck/clock"
	"github.com/vascofialho-nl/releasecheck/logger"
	"github.com/vascofialho-nl/releasecheck/models"
)

var _ Store = (*SQLiteStore)(nil)

//go:embed schema/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir   = "schema/migrations"
	defaultDebounce = 5 * time.Second
)

var (
	errNotOpen  = errors.New("store is not open")
	instanceSeq atomic.Int64
)

type SQLiteStore struct {
	mu           sync.RWMutex
	db           *sql.DB
	dsn          string
	snapshotPath string
	logger       logger.Logger
	clock        clock.Clock

	// Debounced flush
	flushDebounce time.Duration
	flushTimer    *time.Timer
	flushMu       sync.Mutex
	dirty         bool
	// flushGen counts scheduled writes; dirty is cleared only when no write
	// landed while a flush was running.
	flushGen uint64
	// flushed runs after a scheduled snapshot and before dirty is cleared.
	flushed func()
	ctx           context.Context
	cancel        context.CancelFunc
}

type Params struct {
	Config Config
	Logger logger.Logger
	Clock  clock.Clock
}

func NewSQLiteStore(p Params) *SQLiteStore {
	debounce := p.Config.FlushDebounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &SQLiteStore{
		// each store gets its own shared-cache memory database
		dsn:           fmt.Sprintf("file:releasecheck_%d?mode=memory&cache=shared&_busy_timeout=5000", instanceSeq.Add(1)),
		snapshotPath:  p.Config.Path,
		flushDebounce: debounce,
		logger:        log,
		clock:         clk,
	}
}

// SetFlushDebounce sets the debounce duration for disk flushes.
// Must be called before Open().
func (s *SQLiteStore) SetFlushDebounce(d time.Duration) {
	s.flushDebounce = d
}

func (s *SQLiteStore) SetSnapshotPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotPath = path
}

func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	database, err := sql.Open("sqlite3", s.dsn)
	if err != nil {
		return err
	}
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if err = database.PingContext(ctx); err != nil {
		_ = database.Close()
		return err
	}

	s.db = database
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s.applyMigrations(ctx)
}

// Close closes the database without flushing. Use Shutdown for graceful shutdown.
func (s *SQLiteStore) Close() error {
	s.flushMu.Lock()
	s.stopFlushTimer()
	s.flushMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Shutdown performs a final flush to disk and closes the database.
func (s *SQLiteStore) Shutdown(ctx context.Context) error {
	s.flushMu.Lock()
	s.stopFlushTimer()
	dirty := s.dirty
	s.flushMu.Unlock()

	if dirty && s.snapshotPath != "" {
		if err := s.FlushToDisk(ctx, s.snapshotPath); err != nil {
			s.logger.ErrorW("shutdown flush failed", "path", s.snapshotPath, "error", err)
		}
	}

	return s.Close()
}

func (s *SQLiteStore) RestoreFromDisk(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errNotOpen
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	fileDB, err := sql.Open("sqlite3", sqliteFileDSN(path))
	if err != nil {
		return err
	}
	defer fileDB.Close()

	if err := s.backup(ctx, fileDB, s.db); err != nil {
		return err
	}

	s.logger.InfoW("transients restored from disk", "path", path)
	return s.applyMigrations(ctx)
}

func (s *SQLiteStore) FlushToDisk(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked(ctx, path)
}

// GetTransient decodes the named value into dst. Missing and expired entries
// report false.
func (s *SQLiteStore) GetTransient(ctx context.Context, name string, dst any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return false, errNotOpen
	}

	var (
		raw       string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM transients WHERE name = ?`, name,
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if expiresAt > 0 && s.clock.Now().UnixMilli() >= expiresAt {
		s.logger.DebugW("transient expired", "name", name)
		return false, nil
	}
	if dst == nil {
		return true, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode transient %s: %w", name, err)
	}
	return true, nil
}

// SetTransient stores value as JSON. A ttl of zero never expires.
func (s *SQLiteStore) SetTransient(ctx context.Context, name string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode transient %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errNotOpen
	}

	now := s.clock.Now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}

	if _, err := s.db.ExecContext(ctx, `
INSERT INTO transients (name, value, expires_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    value = excluded.value,
    expires_at = excluded.expires_at,
    updated_at = excluded.updated_at`,
		name, string(raw), expiresAt, now.UnixMilli(),
	); err != nil {
		s.logger.ErrorW("failed to set transient", "name", name, "error", err)
		return err
	}

	s.scheduleFlush()
	return nil
}

func (s *SQLiteStore) DeleteTransient(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errNotOpen
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transients WHERE name = ?`, name); err != nil {
		return err
	}

	s.scheduleFlush()
	return nil
}

// PurgeExpired removes every expired transient and returns how many went.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, errNotOpen
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transients WHERE expires_at > 0 AND expires_at <= ?`,
		s.clock.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.DebugW("purged expired transients", "count", n)
		s.scheduleFlush()
	}
	return n, nil
}

// LoadUpdateTransient returns the stored update bookkeeping, or an empty one.
func (s *SQLiteStore) LoadUpdateTransient(ctx context.Context) (*models.UpdateTransient, error) {
	t := models.NewUpdateTransient()
	if _, err := s.GetTransient(ctx, UpdateTransientKey, t); err != nil {
		return nil, err
	}
	if t.Checked == nil {
		t.Checked = map[string]string{}
	}
	if t.Response == nil {
		t.Response = map[string]models.UpdateDescriptor{}
	}
	return t, nil
}

func (s *SQLiteStore) SaveUpdateTransient(ctx context.Context, t *models.UpdateTransient) error {
	if t == nil {
		return s.DeleteTransient(ctx, UpdateTransientKey)
	}
	return s.SetTransient(ctx, UpdateTransientKey, t, 0)
}

// LastNotified returns the last version announced for a plugin, or "".
func (s *SQLiteStore) LastNotified(ctx context.Context, pluginID string) (string, error) {
	var version string
	if _, err := s.GetTransient(ctx, NotifiedKeyPrefix+pluginID, &version); err != nil {
		return "", err
	}
	return version, nil
}

func (s *SQLiteStore) SetLastNotified(ctx context.Context, pluginID, version string) error {
	return s.SetTransient(ctx, NotifiedKeyPrefix+pluginID, version, 0)
}

func (s *SQLiteStore) scheduleFlush() {
	if s.snapshotPath == "" {
		return
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.dirty = true
	s.flushGen++
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}

	s.flushTimer = time.AfterFunc(s.flushDebounce, s.performScheduledFlush)
}

func (s *SQLiteStore) performScheduledFlush() {
	s.flushMu.Lock()
	if !s.dirty {
		s.flushMu.Unlock()
		return
	}
	gen := s.flushGen
	s.flushMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	if err := s.FlushToDisk(ctx, s.snapshotPath); err != nil {
		s.logger.ErrorW("scheduled flush failed", "path", s.snapshotPath, "error", err)
		return
	}
	if s.flushed != nil {
		s.flushed()
	}

	s.flushMu.Lock()
	if s.flushGen == gen {
		s.dirty = false
	}
	s.flushMu.Unlock()
}

func (s *SQLiteStore) stopFlushTimer() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}

func (s *SQLiteStore) flushLocked(ctx context.Context, path string) error {
	if s.db == nil {
		return errNotOpen
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	fileDB, err := sql.Open("sqlite3", sqliteFileDSN(path))
	if err != nil {
		return err
	}
	defer fileDB.Close()

	return s.backup(ctx, s.db, fileDB)
}

func (s *SQLiteStore) backup(ctx context.Context, src *sql.DB, dst *sql.DB) error {
	srcConn, err := src.Conn(ctx)
	if err != nil {
		return err
	}
	defer srcConn.Close()

	dstConn, err := dst.Conn(ctx)
	if err != nil {
		return err
	}
	defer dstConn.Close()

	return dstConn.Raw(func(dstDriver any) error {
		return srcConn.Raw(func(srcDriver any) error {
			dstSQLite, ok := dstDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected destination driver: %T", dstDriver)
			}
			srcSQLite, ok := srcDriver.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected source driver: %T", srcDriver)
			}

			backup, err := dstSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return err
			}
			defer backup.Finish()

			_, err = backup.Step(-1)
			return err
		})
	})
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	if s.db == nil {
		return errNotOpen
	}

	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := fs.ReadFile(migrationsFS, path.Join(migrationsDir, name))
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(content))
		if sqlText == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func sqliteFileDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000", path)
}
