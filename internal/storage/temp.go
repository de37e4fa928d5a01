package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TempStore holds blobs for a limited time. Each file's modification time
// is set to its expiry so the sweeper needs no index.
type TempStore struct {
	dir     string
	baseURL string
	signer  *Signer
	log     zerolog.Logger
	now     func() time.Time
}

// NewTempStore creates a temp store writing to dir and issuing links below
// baseURL.
func NewTempStore(dir, baseURL string, signer *Signer, log zerolog.Logger) (*TempStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating temp dir: %w", err)
	}
	return &TempStore{
		dir:     dir,
		baseURL: baseURL,
		signer:  signer,
		log:     log.With().Str("component", "tempstore").Logger(),
		now:     time.Now,
	}, nil
}

func (t *TempStore) sign(key string, expires int64) string {
	return t.signer.Sign("tmp", key, strconv.FormatInt(expires, 10))
}

// Publish stores data for ttl and returns a signed link to it.
func (t *TempStore) Publish(ctx context.Context, name string, data []byte, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := uuid.NewString() + filepath.Ext(name)
	expiry := t.now().Add(ttl)
	p := filepath.Join(t.dir, key)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: writing temp %s: %w", key, err)
	}
	if err := os.Chtimes(p, expiry, expiry); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("storage: stamping temp %s: %w", key, err)
	}
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expiry.Unix(), 10))
	q.Set("sig", t.sign(key, expiry.Unix()))
	return t.baseURL + "/files/tmp/" + url.PathEscape(key) + "?" + q.Encode(), nil
}

// Open verifies a link and returns the blob it points to.
func (t *TempStore) Open(key string, expires int64, sig string) ([]byte, error) {
	if !t.signer.Verify(sig, "tmp", key, strconv.FormatInt(expires, 10)) {
		return nil, ErrBadSignature
	}
	if t.now().Unix() > expires {
		return nil, ErrExpired
	}
	if key != filepath.Base(key) || key == "." || key == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := os.ReadFile(filepath.Join(t.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reading temp %s: %w", key, err)
	}
	return data, nil
}

// Sweep removes expired blobs and returns how many were deleted.
func (t *TempStore) Sweep() (int, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return 0, fmt.Errorf("storage: reading temp dir: %w", err)
	}
	now := t.now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(now) {
			continue
		}
		if err := os.Remove(filepath.Join(t.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("storage: removing temp %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Run sweeps every interval until ctx is cancelled.
func (t *TempStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := t.Sweep()
			if err != nil {
				t.log.Warn().Err(err).Msg("temp sweep failed")
				continue
			}
			if n > 0 {
				t.log.Debug().Int("removed", n).Msg("expired temp files removed")
			}
		}
	}
}
