// Package fetch downloads toolchain archives, verifies them and unpacks them
// into the managed store.
//
// A fetch only ever writes below "<store>/.tmp-<uuid>" until the toolchain is
// complete; the finished tree is then renamed to "<store>/<id>-<8 hex>". An
// interrupted fetch therefore never leaves a directory that looks installed.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"pytc/pkg/catalog"
	"pytc/pkg/httpclient"
	"pytc/pkg/interpreter"
	"pytc/pkg/logging"
	"pytc/pkg/toolchain"
)

const (
	stagingPrefix  = ".tmp-"
	DefaultRetries = 3
)

type Options struct {
	// StoreDir is the managed store root. Required.
	StoreDir   string
	HTTPClient *http.Client
	// Retries is the number of extra download attempts after a network failure.
	Retries int
	// Progress receives a byte progress bar; nil disables it.
	Progress io.Writer
	// Mirrors are fetchurl servers asked for an archive by checksum before its
	// source url. FETCHURL_SERVERS is appended.
	Mirrors []string
	// Downloaders are tried in order; defaults to fetchurl then a direct GET.
	Downloaders []Downloader
	// NewBackOff builds the retry schedule; defaults to exponential backoff.
	NewBackOff func() backoff.BackOff
}

type Fetcher struct {
	store       string
	retries     int
	progress    io.Writer
	downloaders []Downloader
	newBackOff  func() backoff.BackOff
}

// Result is a committed toolchain directory.
type Result struct {
	ID         toolchain.ID
	Dir        string
	Executable string
}

func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = httpclient.Default()
	}
	downloaders := opts.Downloaders
	if downloaders == nil {
		downloaders = []Downloader{newFetchurlDownloader(client, opts.Mirrors), &directDownloader{client: client}}
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	newBackOff := opts.NewBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		}
	}
	return &Fetcher{
		store:       opts.StoreDir,
		retries:     retries,
		progress:    opts.Progress,
		downloaders: downloaders,
		newBackOff:  newBackOff,
	}
}

// StoreDir returns the managed store root.
func (f *Fetcher) StoreDir() string { return f.store }

// Owns reports whether path is a toolchain directory inside the store.
func (f *Fetcher) Owns(path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(f.store), filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return false
	}
	return !strings.Contains(rel, string(filepath.Separator))
}

// Fetch downloads entry, verifies its checksum, extracts it and checks that
// an interpreter binary is present. On any failure nothing is left behind.
func (f *Fetcher) Fetch(ctx context.Context, entry catalog.Entry) (Result, error) {
	logger := logging.GetLogger(ctx)
	id := entry.ID.String()
	if !entry.Downloadable() {
		return Result{}, &Error{ID: id, Err: ErrNotDownloadable}
	}

	if err := os.MkdirAll(f.store, 0755); err != nil {
		return Result{}, &Error{ID: id, Err: ErrExtract, Cause: err}
	}
	token := uuid.New().String()
	staging := filepath.Join(f.store, stagingPrefix+token)
	if err := os.Mkdir(staging, 0755); err != nil {
		return Result{}, &Error{ID: id, Err: ErrExtract, Cause: err}
	}
	defer os.RemoveAll(staging)

	name := ArchiveName(entry.DownloadURL)
	archive := filepath.Join(staging, "archive")

	logger.Info("downloading toolchain", "id", id, "url", entry.DownloadURL)
	if err := f.download(ctx, entry, archive); err != nil {
		var sumErr *ChecksumError
		if errors.As(err, &sumErr) {
			return Result{}, &Error{ID: id, URL: entry.DownloadURL, Err: ErrChecksumMismatch, Cause: sumErr}
		}
		return Result{}, &Error{ID: id, URL: entry.DownloadURL, Err: ErrNetwork, Cause: err}
	}

	logger.Debug("extracting", "id", id, "archive", name)
	root, err := Extract(archive, name, filepath.Join(staging, "root"))
	if err != nil {
		return Result{}, &Error{ID: id, URL: entry.DownloadURL, Err: ErrExtract, Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &Error{ID: id, Err: ErrNetwork, Cause: err}
	}

	exe, err := interpreter.Locate(root, entry.ID.Implementation)
	if err != nil {
		return Result{}, &Error{ID: id, URL: entry.DownloadURL, Err: ErrSanity, Cause: err}
	}
	rel, err := filepath.Rel(root, exe)
	if err != nil {
		return Result{}, &Error{ID: id, Err: ErrSanity, Cause: err}
	}

	final := filepath.Join(f.store, entry.ID.DirName()+"-"+token[:8])
	if err := os.Rename(root, final); err != nil {
		return Result{}, &Error{ID: id, Err: ErrExtract, Cause: err}
	}

	result := Result{ID: entry.ID, Dir: final, Executable: filepath.Join(final, rel)}
	logger.Info("toolchain fetched", "id", id, "dir", final)
	return result, nil
}

func (f *Fetcher) download(ctx context.Context, entry catalog.Entry, path string) error {
	logger := logging.GetLogger(ctx)
	attempt := 0
	op := func() error {
		attempt++
		err := f.downloadOnce(ctx, entry, path)
		if err == nil {
			return nil
		}
		var sumErr *ChecksumError
		if errors.As(err, &sumErr) || permanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Warn("download failed", "id", entry.ID.String(), "attempt", attempt, "err", err)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.retries)), ctx)
	return backoff.Retry(op, b)
}

// downloadOnce writes the archive to path, truncating whatever a previous
// attempt left, and verifies its SHA-256 locally.
func (f *Fetcher) downloadOnce(ctx context.Context, entry catalog.Entry, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	h := sha256.New()
	var bar *progressbar.ProgressBar
	if f.progress != nil {
		bar = progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(f.progress),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetDescription(entry.ID.String()),
			progressbar.OptionThrottle(80*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	logger := logging.GetLogger(ctx)
	var lastErr error
	for _, d := range f.downloaders {
		if err := out.Truncate(0); err != nil {
			return err
		}
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return err
		}
		h.Reset()
		if bar != nil {
			bar.Reset()
		}

		writers := []io.Writer{out, h}
		if bar != nil {
			writers = append(writers, bar)
		}
		err := d.Download(ctx, entry.DownloadURL, entry.Checksum, io.MultiWriter(writers...))
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			logger.Debug("downloader failed, falling back", "downloader", d.Name(), "err", err)
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return lastErr
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if entry.Checksum != "" && !strings.EqualFold(actual, entry.Checksum) {
		return &ChecksumError{Expected: strings.ToLower(entry.Checksum), Actual: actual}
	}
	if entry.Checksum == "" {
		logger.Warn("no published checksum, archive not verified", "id", entry.ID.String(), "sha256", actual)
	}
	return out.Close()
}

// Discard removes a committed store directory. Paths outside the store are refused.
func (f *Fetcher) Discard(dir string) error {
	if !f.Owns(dir) {
		return fmt.Errorf("refusing to delete %s: not inside store %s", dir, f.store)
	}
	return os.RemoveAll(dir)
}

// Prune removes staging directories older than maxAge left by interrupted fetches.
func (f *Fetcher) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(f.store)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(f.store, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, err
		}
		logging.GetLogger(ctx).Debug("pruned stale staging dir", "path", path)
		removed++
	}
	return removed, nil
}
