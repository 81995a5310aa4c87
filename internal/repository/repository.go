// Package repository implements the repository façade (spec §4.5, C5): the
// advisory lock, transactional write-with-validation, and canonical read
// paths over the event log (internal/eventlog), the event model
// (internal/events), and the derived index (internal/index). It is the one
// package callers (a CLI, a future service) are meant to depend on.
package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ref-builder/ref-builder/internal/eventlog"
	"github.com/ref-builder/ref-builder/internal/events"
	"github.com/ref-builder/ref-builder/internal/index"
)

const (
	cacheDirName  = ".cache"
	indexFileName = "index.db"
)

// RepoMeta is the cached, read-only metadata of spec §3.1/§3.3: "A RepoMeta
// is a value cached at open time from the first event."
type RepoMeta struct {
	ID        uuid.UUID
	Name      string
	Organism  string
	CreatedAt time.Time
	Settings  events.RepoSettings
}

// Repo is the repository façade: event log + derived index + advisory
// lock + the RepoMeta cached at Open.
type Repo struct {
	dir    string
	log    *eventlog.Log
	idx    *index.Store
	lock   *repoLock
	meta   RepoMeta
	logger *zap.Logger
}

// Option configures Init/Open.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger injects a *zap.Logger (SPEC_FULL.md §A.1). Production callers
// pass zap.NewProduction(); tests pass zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func resolveOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// Init creates a fresh repository at dir: dir must not exist or must be
// empty. It writes and commits the first event, which is always CreateRepo
// (spec §4.1: "00000001.json is always a CreateRepo event"), then opens it.
func Init(dir, name, organism string, defaultSegmentLengthTolerance float64, opts ...Option) (*Repo, error) {
	o := resolveOptions(opts)

	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("repository: init target %s is a file", dir)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("repository: init: %w", err)
		}
		if len(entries) != 0 {
			return nil, fmt.Errorf("repository: init target %s is not empty", dir)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("repository: init: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: init: %w", err)
	}

	log, err := eventlog.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("repository: init: %w", err)
	}

	repoID := uuid.New()
	ev := events.Event{
		Type:      events.KindCreateRepo,
		Timestamp: time.Now(),
		Query:     events.RepoQuery{RepositoryID: repoID},
		Data: &events.CreateRepoData{
			ID:       repoID,
			Name:     name,
			Organism: organism,
			Settings: events.RepoSettings{DefaultSegmentLengthTolerance: defaultSegmentLengthTolerance},
		},
	}

	id, err := log.Append(ev)
	if err != nil {
		return nil, fmt.Errorf("repository: init: append create_repo: %w", err)
	}
	if err := log.Commit(id); err != nil {
		return nil, fmt.Errorf("repository: init: commit create_repo: %w", err)
	}

	o.logger.Info("initialized repository",
		zap.String("repo_id", repoID.String()), zap.String("name", name), zap.String("organism", organism))

	return Open(dir, WithLogger(o.logger))
}

// Open opens an existing repository directory, recovering any uncommitted
// events (eventlog.Open's crash recovery) and rebuilding the index if it is
// missing or empty (spec §4.4).
func Open(dir string, opts ...Option) (*Repo, error) {
	o := resolveOptions(opts)

	log, err := eventlog.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("repository: open: %w", err)
	}

	meta, err := loadMeta(log)
	if err != nil {
		return nil, fmt.Errorf("repository: open: %w", err)
	}

	idx, err := openIndex(dir, log, o.logger)
	if err != nil {
		return nil, fmt.Errorf("repository: open: %w", err)
	}

	touchConfig(dir, time.Now())

	return &Repo{
		dir:    dir,
		log:    log,
		idx:    idx,
		lock:   newRepoLock(dir),
		meta:   meta,
		logger: o.logger,
	}, nil
}

func loadMeta(log *eventlog.Log) (RepoMeta, error) {
	if log.Head() < 1 {
		return RepoMeta{}, fmt.Errorf("no repository creation event found")
	}

	ev, err := log.ReadEvent(1)
	if err != nil {
		return RepoMeta{}, fmt.Errorf("read create_repo event: %w", err)
	}
	if ev.Type != events.KindCreateRepo {
		return RepoMeta{}, fmt.Errorf("event 1 is %q, want create_repo", ev.Type)
	}
	data, ok := ev.Data.(*events.CreateRepoData)
	if !ok {
		return RepoMeta{}, fmt.Errorf("create_repo event has the wrong data type")
	}

	return RepoMeta{
		ID:        data.ID,
		Name:      data.Name,
		Organism:  data.Organism,
		CreatedAt: ev.Timestamp,
		Settings:  data.Settings,
	}, nil
}

func openIndex(dir string, log *eventlog.Log, logger *zap.Logger) (*index.Store, error) {
	path := indexPath(dir)

	idx, err := index.Open(path)
	if err != nil {
		return nil, err
	}

	count, err := idx.OTUCount(context.Background())
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	if count == 0 && log.Head() > 1 {
		logger.Warn("index has no OTUs but the log is non-trivial, rebuilding", zap.Int("head", log.Head()))
		if err := idx.Rebuild(context.Background(), log); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
	}

	return idx, nil
}

func indexPath(dir string) string {
	return filepath.Join(dir, cacheDirName, indexFileName)
}

// recoverIndex handles a hydration or index-corrupt error met by GetOTU
// (spec §7) by rebuilding at once rather than leaving it to the next Open:
// it closes the current index connection, deletes the database file and its
// WAL/SHM companions, reopens it, and replays the whole log. GetOTU then
// retries the read once.
func (r *Repo) recoverIndex(ctx context.Context) error {
	path := indexPath(r.dir)

	if err := r.idx.Close(); err != nil {
		return fmt.Errorf("repository: close index for recovery: %w", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}

	idx, err := index.Open(path)
	if err != nil {
		return fmt.Errorf("repository: reopen index: %w", err)
	}
	if err := idx.Rebuild(ctx, r.log); err != nil {
		_ = idx.Close()
		return fmt.Errorf("repository: rebuild index: %w", err)
	}

	r.idx = idx
	return nil
}

// RebuildIndex forces a full rebuild of the derived index from the event
// log (spec §4.4 "Rebuild"; a maintenance hook, not called internally).
func (r *Repo) RebuildIndex(ctx context.Context) error {
	r.logger.Info("rebuilding index")
	return r.idx.Rebuild(ctx, r.log)
}

// Meta returns the repository's cached metadata.
func (r *Repo) Meta() RepoMeta {
	return r.meta
}

// Dir returns the repository's root directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Lock acquires the repository's exclusive advisory lock (spec §4.5, §5).
func (r *Repo) Lock() error {
	if err := r.lock.Lock(); err != nil {
		return err
	}
	r.logger.Info("repository locked")
	return nil
}

// Unlock releases the advisory lock.
func (r *Repo) Unlock() error {
	if err := r.lock.Unlock(); err != nil {
		return err
	}
	r.logger.Info("repository unlocked")
	return nil
}

// Close releases the lock (if held) and closes the index's database
// handle. It does not close the event log, which has no open resources
// beyond plain file descriptors closed per-operation.
func (r *Repo) Close() error {
	if r.lock.Held() {
		_ = r.lock.Unlock()
	}
	return r.idx.Close()
}
