// Package updater downloads the configured phishing and malware feeds and
// syncs them into the list store.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/p-wisp/anti-phishing/internal/config"
	"github.com/p-wisp/anti-phishing/internal/repository"
)

const (
	defaultMaxFeedSize = 200 << 20 // 200 MB
	userAgent          = "phishguard-updater/1"
)

var (
	errNotModified = errors.New("not modified")

	// ErrTooLarge means the feed body exceeded the size cap; nothing was stored.
	ErrTooLarge = errors.New("feed exceeds maximum size, skipping to avoid partial data")
)

// Result is the outcome of one source in a run.
type Result struct {
	Source      string
	Count       int
	NotModified bool
	Err         error
}

// Updater fetches every source concurrently and streams it into the ListDB.
// A failed source keeps the entries stored by its last successful run.
type Updater struct {
	db         *repository.ListDB
	sources    []config.SourceConfig
	interval   time.Duration
	archiveDir string
	maxSize    int64
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time

	// OnSync is called after every run, e.g. to reload the engine lists.
	OnSync func([]Result)
}

// New builds an Updater from cfg. Pass nil for logger to disable logging.
func New(db *repository.ListDB, cfg *config.Config, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Updater{
		db:         db,
		sources:    cfg.Feeds.Sources,
		interval:   cfg.Interval(),
		archiveDir: cfg.Feeds.ArchiveDir,
		maxSize:    defaultMaxFeedSize,
		client:     &http.Client{Timeout: cfg.FeedTimeout()},
		logger:     logger,
		now:        time.Now,
	}
}

// Run syncs immediately and then on every interval until ctx is cancelled.
// A zero interval syncs once and waits for ctx.
func (u *Updater) Run(ctx context.Context) {
	u.sync(ctx)

	if u.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.sync(ctx)
		}
	}
}

func (u *Updater) sync(ctx context.Context) {
	results := u.RunOnce(ctx)
	if u.OnSync != nil {
		u.OnSync(results)
	}
}

// RunOnce processes every source once. Results are in source order.
func (u *Updater) RunOnce(ctx context.Context) []Result {
	results := make([]Result, len(u.sources))

	var wg sync.WaitGroup
	for i, src := range u.sources {
		wg.Add(1)
		go func(i int, s config.SourceConfig) {
			defer wg.Done()
			results[i] = u.processSource(ctx, s)
		}(i, src)
	}
	wg.Wait()

	return results
}

func (u *Updater) processSource(ctx context.Context, src config.SourceConfig) Result {
	res := Result{Source: src.Name}
	log := u.logger.With("source", src.Name, "url", sanitizeURL(src.URL))
	log.Debug("checking source", "format", src.Format)

	count, err := u.fetchAndSync(ctx, src)
	switch {
	case errors.Is(err, errNotModified):
		res.NotModified = true
		log.Debug("source up to date")
	case err != nil:
		res.Err = err
		log.Warn("source sync failed, keeping stored entries", "error", err)
	default:
		res.Count = count
		log.Info("source synced", "entries", count)
	}
	return res
}

func (u *Updater) fetchAndSync(ctx context.Context, src config.SourceConfig) (int, error) {
	// Name + URL so a changed URL does not reuse a stale ETag.
	etagKey := src.Name + "_" + src.URL

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	if etag := u.db.GetETag(etagKey); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return 0, errNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// One byte past the cap tells "exactly at limit" apart from "truncated".
	lr := &io.LimitedReader{R: resp.Body, N: u.maxSize + 1}
	var body io.Reader = lr

	if src.Compression == config.CompressionGzip {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return 0, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		body = zr
	}

	archive := u.openArchive(src.Name)
	if archive != nil {
		defer archive.Close()
		body = io.TeeReader(body, archive)
	}

	count, err := u.stream(ctx, body, lr, src)
	if err != nil {
		if archive != nil {
			archive.Close()
			os.Remove(archive.Name())
		}
		return 0, err
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		if err := u.db.UpdateETag(etagKey, etag); err != nil {
			u.logger.Warn("failed to store etag", "source", src.Name, "error", err)
		}
	}
	return count, nil
}

// stream runs the parser and the DB consumer concurrently. A parser failure
// cancels the sync before the stream closes, so the transaction rolls back
// instead of sweeping the source.
func (u *Updater) stream(ctx context.Context, body io.Reader, lr *io.LimitedReader, src config.SourceConfig) (int, error) {
	syncCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	parsed := make(chan repository.Entry, 2000)
	errc := make(chan error, 1)
	go func() {
		err := repository.ParseAndStream(ctx, body, parsed, src)
		if err == nil && lr.N <= 0 {
			err = ErrTooLarge
		}
		errc <- err
	}()

	domainChan := make(chan repository.Entry, 2000)
	go func() {
		defer close(domainChan)
		for e := range parsed {
			domainChan <- e
		}
		if err := <-errc; err != nil {
			cancel(err)
		}
	}()

	count, err := u.db.StreamSync(syncCtx, domainChan, src.Name)
	if err != nil {
		if cause := context.Cause(syncCtx); cause != nil && ctx.Err() == nil {
			return 0, cause
		}
		return 0, err
	}
	return count, nil
}

// openArchive creates <archiveDir>/<name>-<UTC yyyymmdd-hhmmss>.csv for the
// raw dump. It returns nil when archiving is off or the file cannot be made.
func (u *Updater) openArchive(name string) *os.File {
	if u.archiveDir == "" {
		return nil
	}
	if err := os.MkdirAll(u.archiveDir, 0755); err != nil {
		u.logger.Warn("could not create archive dir", "dir", u.archiveDir, "error", err)
		return nil
	}

	ts := u.now().UTC().Format("20060102-150405")
	path := filepath.Join(u.archiveDir, fmt.Sprintf("%s-%s.csv", name, ts))
	f, err := os.Create(path)
	if err != nil {
		u.logger.Warn("could not create archive file", "path", path, "error", err)
		return nil
	}
	return f
}

// sanitizeURL keeps scheme and host only; feed paths may carry API keys.
func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	return u.Scheme + "://" + u.Host
}
