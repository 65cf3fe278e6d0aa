package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"sketchcraft.ai/internal/gen"
	"sketchcraft.ai/internal/media/cache"
	"sketchcraft.ai/internal/session"
	"sketchcraft.ai/internal/sim/catalogs"
	"sketchcraft.ai/internal/sim/tuning"
)

var ErrClosed = errors.New("index closed")

// SQLiteIndex is a queryable read-model of cache writes, animation jobs and
// session events. Writes are queued and applied by one goroutine; a full
// queue drops the write, the files on disk stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once
	// mu orders enqueue against Close so nothing sends on a closed channel.
	mu sync.RWMutex

	closed atomic.Bool

	dropMedia   atomic.Uint64
	dropJob     atomic.Uint64
	dropSession atomic.Uint64
	writeErrors atomic.Uint64
}

type reqKind int

const (
	reqMedia reqKind = iota + 1
	reqJob
	reqSession
	reqFlush
)

type req struct {
	kind reqKind

	media   cache.Entry
	job     gen.JobStatus
	session session.LogEntry
	done    chan struct{}
}

// Stats reports queue pressure.
type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropMediaTotal   uint64
	DropJobTotal     uint64
	DropSessionTotal uint64
	WriteErrorTotal  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS media (
			kind TEXT NOT NULL,
			type TEXT NOT NULL,
			style TEXT NOT NULL,
			slot INTEGER NOT NULL,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			written_at TEXT NOT NULL,
			PRIMARY KEY (kind, type, style, slot)
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			hash TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			style TEXT NOT NULL,
			state TEXT NOT NULL,
			frames INTEGER NOT NULL,
			from_cache INTEGER NOT NULL,
			error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state, updated_at);`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			level TEXT,
			type TEXT,
			hash TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session, id);`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_hash ON session_events(hash);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// enqueue hands r to the writer without blocking. It reports false when the
// queue is full or the index closed.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return false
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// RecordMedia implements cache.Recorder.
func (s *SQLiteIndex) RecordMedia(e cache.Entry) {
	if s == nil {
		return
	}
	if !s.enqueue(req{kind: reqMedia, media: e}) {
		s.dropMedia.Add(1)
	}
}

// RecordJob implements gen.JobRecorder.
func (s *SQLiteIndex) RecordJob(st gen.JobStatus) {
	if s == nil || st.Hash == "" {
		return
	}
	if !s.enqueue(req{kind: reqJob, job: st}) {
		s.dropJob.Add(1)
	}
}

// WriteSession implements session.EventLog.
func (s *SQLiteIndex) WriteSession(e session.LogEntry) error {
	if s == nil {
		return nil
	}
	if !s.enqueue(req{kind: reqSession, session: e}) {
		s.dropSession.Add(1)
	}
	return nil
}

// Flush waits until every write queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	st := Stats{
		DropMediaTotal:   s.dropMedia.Load(),
		DropJobTotal:     s.dropJob.Load(),
		DropSessionTotal: s.dropSession.Load(),
		WriteErrorTotal:  s.writeErrors.Load(),
	}
	if s.ch != nil {
		st.QueueDepth = len(s.ch)
		st.QueueCapacity = cap(s.ch)
	}
	return st
}

// UpsertCatalogs stores the configuration the server runs with, keyed by
// digest, so job rows can be traced back to the prompts that made them.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cat *catalogs.Catalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "ai-config.json")); err == nil && cat != nil {
			rows = append(rows, kv{name: "ai_config", digest: cat.Digest, json: b})
		}
		if b, err := os.ReadFile(filepath.Join(configDir, "levels.yaml")); err == nil {
			js, _ := json.Marshal(string(b))
			rows = append(rows, kv{name: "levels", digest: digestOf(b), json: js})
		}
	}
	// Tuning: store the values we actually apply (canonical JSON).
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", digest: digestOf(b), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func digestOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertMedia, _ := s.db.Prepare(`INSERT OR REPLACE INTO media(kind,type,style,slot,path,size,written_at) VALUES(?,?,?,?,?,?,?)`)
	upsertJob, _ := s.db.Prepare(`INSERT INTO jobs(hash,type,style,state,frames,from_cache,error,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(hash) DO UPDATE SET
			state=excluded.state,
			frames=excluded.frames,
			from_cache=excluded.from_cache,
			error=excluded.error,
			updated_at=excluded.updated_at`)
	insertSession, _ := s.db.Prepare(`INSERT INTO session_events(session,at,kind,epoch,level,type,hash,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertMedia, upsertJob, insertSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 500
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.writeErrors.Add(1)
			_ = tx.Rollback()
			tx = nil
			opCount = 0
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMedia:
			m := r.media
			exec(insertMedia, string(m.Key.Kind), m.Key.Type, m.Key.Style, m.Slot, m.Path, m.Size, stamp(m.WrittenAt))

		case reqJob:
			j := r.job
			at := stamp(j.UpdatedAt)
			exec(upsertJob, j.Hash, j.Type, j.Style, string(j.State), j.Frames, boolInt(j.FromCache), nullable(j.Error), at, at)

		case reqSession:
			e := r.session
			raw, _ := json.Marshal(e)
			exec(insertSession, e.Session, stamp(e.Time), string(e.Kind), int64(e.Epoch), nullable(e.Level), nullable(e.Type), nullable(e.Hash), string(raw))
		}
		// Batch while the queue is busy; commit as soon as it drains.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
