// Package backup takes point-in-time snapshots of a store file, optionally
// encrypted and mirrored to S3-compatible storage, and restores them.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/database"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	// Dir holds local snapshots.
	Dir string
	// Passphrase enables encryption when set.
	Passphrase string
	S3         S3Config
}

const (
	namePrefix  = "buybuy-"
	timeLayout  = "20060102T150405.000Z"
	plainExt    = ".db"
	encryptExt  = ".db.enc"
	restoreTemp = ".restoring"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot describes one stored backup.
type Snapshot struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Key       string    `json:"key,omitempty"`
	Size      int64     `json:"size"`
	Encrypted bool      `json:"encrypted"`
	CreatedAt time.Time `json:"created_at"`
}

type Manager struct {
	cfg    Config
	client s3Client
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func withS3Client(c s3Client) Option {
	return func(m *Manager) { m.client = c }
}

func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	if cfg.S3.Enabled() {
		m.client = newS3Client(cfg.S3)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (m *Manager) key(name string) string {
	prefix := strings.Trim(m.cfg.S3.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Snapshot writes a consistent copy of the store at storePath into the
// snapshot directory and uploads it when S3 is configured. The store is
// read through a read-only connection and is never modified.
func (m *Manager) Snapshot(ctx context.Context, storePath string) (*Snapshot, error) {
	if err := os.MkdirAll(m.cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	created := m.now().UTC()
	name := namePrefix + created.Format(timeLayout)
	encrypted := m.cfg.Passphrase != ""
	if encrypted {
		name += encryptExt
	} else {
		name += plainExt
	}
	snap := &Snapshot{Name: name, Path: filepath.Join(m.cfg.Dir, name), Encrypted: encrypted, CreatedAt: created}

	copyPath := snap.Path + ".tmp"
	defer os.Remove(copyPath)
	if err := vacuumInto(ctx, storePath, copyPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(copyPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot copy: %w", err)
	}
	if encrypted {
		if data, err = Encrypt(data, m.cfg.Passphrase); err != nil {
			return nil, fmt.Errorf("encrypt snapshot: %w", err)
		}
	}
	if err := os.WriteFile(snap.Path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	snap.Size = int64(len(data))

	if m.client != nil {
		snap.Key = m.key(name)
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.cfg.S3.Bucket),
			Key:           aws.String(snap.Key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(snap.Size),
		})
		if err != nil {
			return nil, fmt.Errorf("upload to s3: %w", err)
		}
	}

	m.logger.Info("snapshot taken", "name", name, "size", snap.Size, "encrypted", encrypted, "key", snap.Key)
	return snap, nil
}

// Start takes a snapshot of storePath every interval and prunes snapshots
// older than retention, until ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context, storePath string, interval, retention time.Duration) {
	m.mu.Lock()
	if m.cancel != nil || interval <= 0 {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Snapshot(ctx, storePath); err != nil {
					m.logger.Error("scheduled snapshot failed", "error", err)
					continue
				}
				if _, err := m.Cleanup(ctx, retention); err != nil {
					m.logger.Error("snapshot cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the schedule started by Start. It is safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// BeforeMigrate takes a snapshot of the store about to be migrated. It does
// nothing when no snapshot directory is configured.
func (m *Manager) BeforeMigrate(ctx context.Context, storePath string) error {
	if m.cfg.Dir == "" {
		return nil
	}
	_, err := m.Snapshot(ctx, storePath)
	return err
}

// VACUUM INTO reads through the WAL without checkpointing it.
func vacuumInto(ctx context.Context, src, dst string) error {
	db, err := database.OpenReadOnly(src)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	return nil
}

// List returns the local snapshots, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		snap, ok := parseName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat snapshot: %w", err)
		}
		snap.Path = filepath.Join(m.cfg.Dir, snap.Name)
		snap.Size = info.Size()
		if m.client != nil {
			snap.Key = m.key(snap.Name)
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })
	return snaps, nil
}

func parseName(name string) (Snapshot, bool) {
	if !strings.HasPrefix(name, namePrefix) {
		return Snapshot{}, false
	}
	stamp := strings.TrimPrefix(name, namePrefix)
	encrypted := false
	switch {
	case strings.HasSuffix(stamp, encryptExt):
		stamp = strings.TrimSuffix(stamp, encryptExt)
		encrypted = true
	case strings.HasSuffix(stamp, plainExt):
		stamp = strings.TrimSuffix(stamp, plainExt)
	default:
		return Snapshot{}, false
	}
	created, err := time.Parse(timeLayout, stamp)
	if err != nil {
		return Snapshot{}, false
	}
	return Snapshot{Name: name, Encrypted: encrypted, CreatedAt: created}, true
}

// Cleanup deletes snapshots older than retention, locally and in S3.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	snaps, err := m.List()
	if err != nil {
		return 0, err
	}

	before := m.now().UTC().Add(-retention)
	removed := 0
	for _, snap := range snaps {
		if !snap.CreatedAt.Before(before) {
			continue
		}
		if err := os.Remove(snap.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove snapshot: %w", err)
		}
		removed++
		if m.client == nil {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(snap.Key),
		}); err != nil {
			m.logger.Warn("failed to delete s3 object", "key", snap.Key, "error", err)
		}
	}
	return removed, nil
}

// Restore replaces the store at target with the named snapshot. The
// snapshot is read locally when present and fetched from S3 otherwise. It
// must pass an integrity check before target is touched. The store must
// not be open while Restore runs.
func (m *Manager) Restore(ctx context.Context, name, target string) error {
	snap, ok := parseName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
	}

	data, err := m.load(ctx, name)
	if err != nil {
		return err
	}
	if snap.Encrypted {
		if m.cfg.Passphrase == "" {
			return fmt.Errorf("snapshot %s is encrypted and no passphrase is configured", name)
		}
		if data, err = Decrypt(data, m.cfg.Passphrase); err != nil {
			return err
		}
	}

	tmp := target + restoreTemp
	defer os.Remove(tmp)
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write restored store: %w", err)
	}
	if err := integrityCheck(tmp); err != nil {
		return err
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(target + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", suffix, err)
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}

	m.logger.Info("store restored", "snapshot", name, "path", target)
	return nil
}

func (m *Manager) load(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(m.cfg.Dir, name))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if m.client == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(m.key(name)),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	data, err = io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read downloaded snapshot: %w", err)
	}
	return data, nil
}

func integrityCheck(path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open restored store: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
