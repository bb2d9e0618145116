// Package resolver maps object identifiers to local model files, fetching
// catalog objects from the asset store into a cache shared by every worker
// and process on the host.
package resolver

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"scenegen/internal/lock"
	"scenegen/internal/pkg/errors"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/ports"
)

// DefaultKeyTemplate maps a catalog key to its object key in the store.
const DefaultKeyTemplate = "glbs/{key}.glb"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config controls caching and fetch behaviour.
type Config struct {
	CacheDir      string
	KeyTemplate   string
	FetchAttempts int
	Backoff       time.Duration
	// LockPoll is how often a waiter retries another process's flock.
	LockPoll time.Duration
}

func (c Config) withDefaults() Config {
	if c.KeyTemplate == "" {
		c.KeyTemplate = DefaultKeyTemplate
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.LockPoll <= 0 {
		c.LockPoll = 100 * time.Millisecond
	}
	return c
}

// Deps are the resolver's collaborators. Store may be nil when every
// identifier is a local path.
type Deps struct {
	Store ports.StorageProvider
	Log   *logger.Logger
}

// Resolver resolves identifiers to readable local paths. Safe for
// concurrent use; after the first resolution of an identifier later calls
// are a map read.
type Resolver struct {
	cfg   Config
	store ports.StorageProvider
	log   *logger.Logger

	group singleflight.Group
	locks *lock.MutexMap

	mu   sync.RWMutex
	memo map[string]string
}

// New creates the cache and lock directories.
func New(cfg Config, deps Deps) (*Resolver, error) {
	cfg = cfg.withDefaults()
	if cfg.CacheDir == "" {
		return nil, errors.ValidationField("cache_dir", "resolver needs a cache directory")
	}
	if !strings.Contains(cfg.KeyTemplate, "{key}") {
		return nil, errors.ValidationField("key_template", "key template must contain {key}")
	}
	if err := os.MkdirAll(filepath.Join(cfg.CacheDir, ".locks"), 0o755); err != nil {
		return nil, errors.Wrap(err, "resolver.new", "create cache dir")
	}

	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{
		cfg:   cfg,
		store: deps.Store,
		log:   log.WithComponent("resolver"),
		locks: lock.NewMutexMap(),
		memo:  make(map[string]string),
	}, nil
}

// IsLocalPath reports whether identifier names a file rather than a catalog key.
func IsLocalPath(identifier string) bool {
	if strings.ContainsAny(identifier, `/\`) {
		return true
	}
	switch strings.ToLower(filepath.Ext(identifier)) {
	case ".glb", ".gltf", ".obj":
		return true
	}
	return false
}

// Resolve returns a readable local path for identifier.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", errors.ValidationField("identifier", "empty object identifier")
	}

	r.mu.RLock()
	p, ok := r.memo[identifier]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := r.group.Do(identifier, func() (any, error) {
		var (
			p   string
			err error
		)
		if IsLocalPath(identifier) {
			p, err = r.resolveLocal(identifier)
		} else {
			p, err = r.resolveCatalog(ctx, identifier)
		}
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.memo[identifier] = p
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) resolveLocal(identifier string) (string, error) {
	st, err := os.Stat(identifier)
	if err != nil {
		return "", errors.AssetUnavailable(identifier, err)
	}
	if st.IsDir() {
		return "", errors.AssetInvalid(identifier, "is a directory")
	}
	if err := Verify(identifier); err != nil {
		return "", errors.AssetInvalid(identifier, err.Error())
	}
	return identifier, nil
}

// CachePath is where a catalog key lives once fetched.
func (r *Resolver) CachePath(key string) string {
	ext := filepath.Ext(r.cfg.KeyTemplate)
	if ext == "" {
		ext = ".glb"
	}
	return filepath.Join(r.cfg.CacheDir, key+ext)
}

// ObjectKey maps a catalog key to its key in the store.
func (r *Resolver) ObjectKey(key string) string {
	return strings.ReplaceAll(r.cfg.KeyTemplate, "{key}", key)
}

func (r *Resolver) resolveCatalog(ctx context.Context, key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", errors.ValidationField("identifier", fmt.Sprintf("invalid catalog key %q", key))
	}
	dst := r.CachePath(key)

	// Goroutines of this process queue on the mutex; other processes on the flock.
	r.locks.Lock(key)
	defer r.locks.Unlock(key)

	fl := lock.NewFileLock(filepath.Join(r.cfg.CacheDir, ".locks", key+".lock"))
	if err := fl.Lock(ctx, r.cfg.LockPoll); err != nil {
		if ctx.Err() != nil {
			return "", errors.WrapWithCode(err, errors.CodeCanceled, "resolver.lock", "waiting for cache lock")
		}
		return "", errors.Wrap(err, "resolver.lock", "cache lock "+key)
	}
	defer fl.Unlock()

	if st, err := os.Stat(dst); err == nil && st.Mode().IsRegular() {
		verr := Verify(dst)
		if verr == nil {
			r.log.Debug("cache hit", "identifier", key, "path", dst)
			return dst, nil
		}
		r.log.Warn("removing invalid cache entry", "identifier", key, "reason", verr.Error())
		_ = os.Remove(dst)
	}

	if r.store == nil {
		return "", errors.AssetUnavailable(key, stderrors.New("no asset store configured"))
	}
	return r.fetch(ctx, key, dst)
}

// fetch downloads key into dst, retrying transport failures with linear backoff.
func (r *Resolver) fetch(ctx context.Context, key, dst string) (string, error) {
	objectKey := r.ObjectKey(key)
	log := r.log.WithFields(map[string]any{"identifier": key, "object_key": objectKey})

	var lastErr error
	for attempt := 1; attempt <= r.cfg.FetchAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", errors.WrapWithCode(ctx.Err(), errors.CodeCanceled, "resolver.fetch", "fetch canceled")
			case <-time.After(r.cfg.Backoff * time.Duration(attempt-1)):
			}
		}

		start := time.Now()
		tmp, err := r.download(ctx, objectKey)
		if err == nil {
			if verr := VerifyFormat(tmp, filepath.Ext(dst)); verr != nil {
				_ = os.Remove(tmp)
				return "", errors.AssetInvalid(key, verr.Error())
			}
			if err := os.Rename(tmp, dst); err != nil {
				_ = os.Remove(tmp)
				return "", errors.Wrap(err, "resolver.fetch", "move into cache")
			}
			log.Info("fetched object", "attempt", attempt, "duration_ms", time.Since(start).Milliseconds())
			return dst, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", errors.WrapWithCode(ctx.Err(), errors.CodeCanceled, "resolver.fetch", "fetch canceled")
		}
		if stderrors.Is(err, ports.ErrObjectNotFound) {
			break
		}
		log.Warn("fetch attempt failed", "attempt", attempt, "error", err.Error())
	}
	return "", errors.AssetUnavailable(key, lastErr)
}

// download streams an object into a temp file in the cache dir.
func (r *Resolver) download(ctx context.Context, objectKey string) (string, error) {
	rc, info, err := r.store.GetObject(ctx, objectKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.CreateTemp(r.cfg.CacheDir, ".fetch-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	n, err := io.Copy(f, rc)
	if err == nil && info.Size >= 0 && n != info.Size {
		err = fmt.Errorf("short read: got %d of %d bytes", n, info.Size)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}
