// Package fetch downloads source blobs over http(s) or from file:// locators
// and verifies them against their expected digest while streaming.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Fetcher = (*Fetcher)(nil)

// Policy bounds retries of transient failures against a single candidate URL.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Fetcher stores verified blobs under dir/<algorithm>/<hex>.
type Fetcher struct {
	dir    string
	client *http.Client
	policy Policy
	logger ports.Logger
}

// New creates a Fetcher. A nil client uses http.DefaultClient.
func New(dir string, client *http.Client, policy Policy, logger ports.Logger) (*Fetcher, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create download directory"), "path", dir)
	}
	return &Fetcher{dir: dir, client: client, policy: policy, logger: logger}, nil
}

// Fetch returns a local blob whose content matches expected. Candidates are
// tried in order; a digest mismatch moves on to the next candidate at once.
func (f *Fetcher) Fetch(ctx context.Context, loc domain.Locator, expected digest.Digest) (domain.LocalBlob, error) {
	if err := expected.Validate(); err != nil {
		return domain.LocalBlob{}, zerr.With(zerr.Wrap(err, "invalid expected digest"), "url", loc.URL)
	}

	path := f.blobPath(expected)
	if blob, ok := f.reuse(path, expected); ok {
		return blob, nil
	}

	candidates := loc.Candidates()
	if len(candidates) == 0 {
		return domain.LocalBlob{}, zerr.Wrap(domain.ErrFetchFailed, "no candidate urls")
	}

	var (
		errs     []error
		mismatch bool
	)
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return domain.LocalBlob{}, zerr.Wrap(errors.Join(domain.ErrCancelled, err), "fetch cancelled")
		}

		blob, err := f.fetchCandidate(ctx, candidate, path, expected)
		if err == nil {
			return blob, nil
		}
		if errors.Is(err, domain.ErrIntegrityMismatch) {
			mismatch = true
		}
		if ctx.Err() != nil {
			return domain.LocalBlob{}, zerr.Wrap(errors.Join(domain.ErrCancelled, err), "fetch cancelled")
		}
		f.logger.Warn("fetch candidate failed", "url", candidate, "error", err.Error())
		errs = append(errs, err)
	}

	cause := domain.ErrFetchFailed
	if mismatch {
		cause = errors.Join(domain.ErrFetchFailed, domain.ErrIntegrityMismatch)
	}
	err := zerr.Wrap(errors.Join(append([]error{cause}, errs...)...), "all candidates failed")
	err = zerr.With(err, "url", loc.URL)
	return domain.LocalBlob{}, zerr.With(err, "attempted", len(candidates))
}

func (f *Fetcher) blobPath(d digest.Digest) string {
	return filepath.Join(f.dir, d.Algorithm().String(), d.Encoded())
}

// reuse returns an existing blob if it still hashes to expected. Corrupt blobs are removed.
func (f *Fetcher) reuse(path string, expected digest.Digest) (domain.LocalBlob, bool) {
	file, err := os.Open(path) //nolint:gosec // Path is derived from the download directory
	if err != nil {
		return domain.LocalBlob{}, false
	}
	defer file.Close() //nolint:errcheck // Read-only file

	verifier := expected.Verifier()
	size, err := io.Copy(verifier, file)
	if err != nil || !verifier.Verified() {
		_ = os.Remove(path)
		return domain.LocalBlob{}, false
	}
	f.logger.Debug("reusing verified download", "digest", expected.String())
	return domain.LocalBlob{Path: path, Digest: expected, Size: size}, true
}

func (f *Fetcher) fetchCandidate(
	ctx context.Context,
	candidate, path string,
	expected digest.Digest,
) (domain.LocalBlob, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(f.policy.InitialInterval),
			backoff.WithMaxInterval(f.policy.MaxInterval),
		),
		uint64(f.policy.MaxAttempts-1), //nolint:gosec // MaxAttempts is at least 1
	), ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (domain.LocalBlob, error) {
		attempt++
		blob, err := f.download(ctx, candidate, path, expected)
		if err != nil && !isTransient(err) {
			return blob, backoff.Permanent(err)
		}
		return blob, err
	}, b, func(err error, next time.Duration) {
		f.logger.Warn("retrying fetch", "url", candidate, "attempt", attempt, "next", next.String(), "error", err.Error())
	})
}

// download streams candidate into a temporary file, verifying the digest on the way.
func (f *Fetcher) download(
	ctx context.Context,
	candidate, path string,
	expected digest.Digest,
) (domain.LocalBlob, error) {
	body, err := f.open(ctx, candidate)
	if err != nil {
		return domain.LocalBlob{}, err
	}
	defer body.Close() //nolint:errcheck // Body is read-only

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return domain.LocalBlob{}, zerr.Wrap(err, "failed to create download directory")
	}
	tmp := path + "." + uuid.NewString() + ".part"
	out, err := os.Create(tmp) //nolint:gosec // Path is derived from the download directory
	if err != nil {
		return domain.LocalBlob{}, zerr.Wrap(err, "failed to create download file")
	}

	digester := expected.Algorithm().Digester()
	size, err := io.Copy(io.MultiWriter(out, digester.Hash()), body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return domain.LocalBlob{}, &transientError{zerr.With(zerr.Wrap(err, "download interrupted"), "url", candidate)}
	}

	if actual := digester.Digest(); actual != expected {
		_ = os.Remove(tmp)
		err := zerr.Wrap(domain.ErrIntegrityMismatch, "downloaded content does not match checksum")
		err = zerr.With(zerr.With(err, "url", candidate), "expected", expected.String())
		return domain.LocalBlob{}, zerr.With(err, "actual", actual.String())
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return domain.LocalBlob{}, zerr.Wrap(err, "failed to store download")
	}
	return domain.LocalBlob{Path: path, Digest: expected, Size: size, URL: candidate}, nil
}

func (f *Fetcher) open(ctx context.Context, candidate string) (io.ReadCloser, error) {
	u, err := url.Parse(candidate)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrFetchFailed, "invalid url"), "url", candidate)
	}

	switch u.Scheme {
	case "file", "":
		path := u.Path
		if u.Scheme == "" {
			path = candidate
		}
		file, err := os.Open(path) //nolint:gosec // Locators are declared by formulas
		if err != nil {
			return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrFetchFailed, err), "failed to open file"), "url", candidate)
		}
		return file, nil
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrFetchFailed, err), "invalid request"), "url", candidate)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &transientError{zerr.With(zerr.Wrap(errors.Join(domain.ErrFetchFailed, err), "request failed"), "url", candidate)}
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			err := zerr.Wrap(domain.ErrFetchFailed, "unexpected status")
			err = zerr.With(zerr.With(err, "url", candidate), "status", resp.StatusCode)
			if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
				return nil, &transientError{err}
			}
			return nil, err
		}
		return resp.Body, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrFetchFailed, "unsupported url scheme"), "url", candidate)
	}
}

// transientError marks failures worth retrying against the same candidate.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t *transientError
	if errors.As(err, &t) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
