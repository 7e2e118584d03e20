package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
)

// DefaultMaxFetchBytes bounds payloads read back from IPFS.
const DefaultMaxFetchBytes = 32 << 20

// IPFSConfig configures the IPFS HTTP RPC client.
type IPFSConfig struct {
	APIURL        string
	MFSDir        string
	HTTPTimeout   time.Duration
	MaxFetchBytes int64
}

// IPFSStore stores payloads through a Kubo node's HTTP RPC API. Payloads are
// pinned and, when a file name is known, mirrored into MFS.
type IPFSStore struct {
	sh       *shell.Shell
	mfsDir   string
	maxFetch int64
	logger   *slog.Logger
}

// IPFSOption configures an IPFSStore.
type IPFSOption func(*IPFSStore)

// WithIPFSLogger sets the logger.
func WithIPFSLogger(logger *slog.Logger) IPFSOption {
	return func(s *IPFSStore) {
		s.logger = logger
	}
}

// NewIPFS constructs an IPFS-backed blob store.
func NewIPFS(cfg IPFSConfig, opts ...IPFSOption) *IPFSStore {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxFetch := cfg.MaxFetchBytes
	if maxFetch <= 0 {
		maxFetch = DefaultMaxFetchBytes
	}
	s := &IPFSStore{
		sh:       shell.NewShellWithClient(cfg.APIURL, &http.Client{Timeout: timeout}),
		mfsDir:   cfg.MFSDir,
		maxFetch: maxFetch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *IPFSStore) Store(ctx context.Context, payload []byte, hint models.StoreHint) (string, error) {
	contentID, err := withContext(ctx, func() (string, error) {
		return s.sh.Add(bytes.NewReader(payload), shell.CidVersion(1), shell.Pin(true))
	})
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w: %w", sentinel.ErrUnavailable, err)
	}

	if hint.CertID != "" {
		mfsPath := MFSPath(s.mfsDir, hint)
		err := s.sh.FilesWrite(ctx, mfsPath, bytes.NewReader(payload),
			shell.FilesWrite.Create(true),
			shell.FilesWrite.Parents(true),
			shell.FilesWrite.Truncate(true),
		)
		if err != nil {
			return "", fmt.Errorf("ipfs files write %s: %w: %w", mfsPath, sentinel.ErrUnavailable, err)
		}
		s.logger.DebugContext(ctx, "payload mirrored to mfs",
			"cert_id", hint.CertID,
			"path", mfsPath,
			"content_id", contentID,
		)
	}
	return contentID, nil
}

func (s *IPFSStore) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	if err := ValidateCID(contentID); err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	}
	payload, err := withContext(ctx, func() ([]byte, error) {
		rc, err := s.sh.Cat(contentID)
		if err != nil {
			return nil, err
		}
		defer rc.Close() //nolint:errcheck // read-only stream
		data, err := io.ReadAll(io.LimitReader(rc, s.maxFetch+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > s.maxFetch {
			return nil, fmt.Errorf("payload exceeds %d bytes", s.maxFetch)
		}
		return data, nil
	})
	if err != nil {
		if isIPFSNotFound(err) {
			return nil, fmt.Errorf("ipfs cat %s: %w", contentID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("ipfs cat %s: %w: %w", contentID, sentinel.ErrUnavailable, err)
	}
	return payload, nil
}

// Ping reports whether the node answers on its API port.
func (s *IPFSStore) Ping(ctx context.Context) error {
	up, err := withContext(ctx, func() (bool, error) {
		return s.sh.IsUp(), nil
	})
	if err != nil {
		return err
	}
	if !up {
		return fmt.Errorf("ipfs node: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func isIPFSNotFound(err error) bool {
	var shellErr *shell.Error
	if errors.As(err, &shellErr) {
		msg := strings.ToLower(shellErr.Message)
		return strings.Contains(msg, "not found") || strings.Contains(msg, "no link named")
	}
	return false
}

// withContext runs fn and returns early when ctx ends. The shell client does
// not take a context for these calls, so the HTTP client timeout bounds fn.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
