package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guiyumin/biliget/internal/core/media"
)

// HeaderFunc builds request headers for a given referer page
type HeaderFunc func(referer string) http.Header

// Fetcher downloads resolved streams to disk, walking each stream's backup URLs
type Fetcher struct {
	http     *http.Client
	headers  HeaderFunc
	progress ProgressFunc
	parallel bool
	now      func() time.Time
	log      *zap.SugaredLogger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the default client. Media downloads have no overall timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.http = hc }
}

// WithHeaders sets the header builder, normally bilibili.Client.Headers
func WithHeaders(h HeaderFunc) Option {
	return func(f *Fetcher) { f.headers = h }
}

// WithProgress sets the progress callback
func WithProgress(p ProgressFunc) Option {
	return func(f *Fetcher) { f.progress = p }
}

// WithParallel fetches the streams of one call concurrently
func WithParallel(parallel bool) Option {
	return func(f *Fetcher) { f.parallel = parallel }
}

// WithClock overrides the clock used for throughput
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a Fetcher
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
		headers: func(string) http.Header { return http.Header{} },
		now:     time.Now,
		log:     zap.S().Named("downloader"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll downloads every stream into dir as "<baseName>-<kind>.<ext>".
// It stops at the first stream whose URLs are all exhausted and returns the
// files completed so far along with the error.
func (f *Fetcher) FetchAll(ctx context.Context, streams []media.StreamDescriptor, dir, baseName, referer string) ([]media.DownloadedFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	paths := targetPaths(streams, dir, baseName)

	if f.parallel && len(streams) > 1 {
		return f.fetchParallel(ctx, streams, paths, referer)
	}

	files := make([]media.DownloadedFile, 0, len(streams))
	for i, s := range streams {
		file, err := f.fetchStream(ctx, s, paths[i], referer)
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (f *Fetcher) fetchParallel(ctx context.Context, streams []media.StreamDescriptor, paths []string, referer string) ([]media.DownloadedFile, error) {
	results := make([]*media.DownloadedFile, len(streams))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range streams {
		g.Go(func() error {
			file, err := f.fetchStream(gctx, s, paths[i], referer)
			if err != nil {
				return err
			}
			results[i] = &file
			return nil
		})
	}
	err := g.Wait()

	files := make([]media.DownloadedFile, 0, len(streams))
	for _, r := range results {
		if r != nil {
			files = append(files, *r)
		}
	}
	return files, err
}

// fetchStream tries the primary URL, then each backup, until one succeeds
func (f *Fetcher) fetchStream(ctx context.Context, s media.StreamDescriptor, target, referer string) (media.DownloadedFile, error) {
	candidates := s.Candidates()
	if len(candidates) == 0 {
		return media.DownloadedFile{}, &ExhaustedError{Kind: s.Kind}
	}

	var lastErr error
	for i, u := range candidates {
		if err := ctx.Err(); err != nil {
			return media.DownloadedFile{}, err
		}

		size, err := f.attempt(ctx, s.Kind, u, target, referer)
		if err == nil {
			f.log.Debugw("stream downloaded", "kind", s.Kind, "path", target, "bytes", size, "url_index", i)
			return media.DownloadedFile{Path: target, Kind: s.Kind, Size: size}, nil
		}
		if errors.Is(err, context.Canceled) {
			return media.DownloadedFile{}, err
		}

		lastErr = err
		if i < len(candidates)-1 {
			f.log.Warnw("download failed, trying backup URL", "kind", s.Kind, "attempt", i+1, "error", err)
		}
	}

	return media.DownloadedFile{}, &ExhaustedError{Kind: s.Kind, Attempts: len(candidates), Last: lastErr}
}

// attempt streams one URL into target via a .part file
func (f *Fetcher) attempt(ctx context.Context, kind media.Kind, rawURL, target, referer string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	for k, vs := range f.headers(referer) {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{StatusCode: resp.StatusCode}
	}

	partial := target + ".part"
	out, err := os.Create(partial)
	if err != nil {
		return 0, err
	}

	pw := newProgressWriter(kind, resp.ContentLength, f.now, f.progress)
	n, copyErr := io.Copy(io.MultiWriter(out, pw), resp.Body)
	closeErr := out.Close()

	if copyErr == nil && resp.ContentLength > 0 && n != resp.ContentLength {
		copyErr = fmt.Errorf("short read: got %d of %d bytes", n, resp.ContentLength)
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(partial)
		return 0, copyErr
	}

	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return 0, err
	}
	pw.finish()
	return n, nil
}

// targetPaths names each stream "<base>-<kind>.<ext>", numbering kinds that repeat
func targetPaths(streams []media.StreamDescriptor, dir, baseName string) []string {
	counts := make(map[media.Kind]int)
	for _, s := range streams {
		counts[s.Kind]++
	}

	seen := make(map[media.Kind]int)
	paths := make([]string, len(streams))
	for i, s := range streams {
		name := baseName + "-" + string(s.Kind)
		if counts[s.Kind] > 1 {
			seen[s.Kind]++
			name = fmt.Sprintf("%s-%d", name, seen[s.Kind])
		}
		paths[i] = filepath.Join(dir, name+"."+streamExt(s))
	}
	return paths
}

// streamExt is m4s for dash tracks and the URL's own extension for combined files
func streamExt(s media.StreamDescriptor) string {
	if s.Kind != media.KindCombined {
		return "m4s"
	}
	if u, err := url.Parse(s.URL); err == nil {
		if ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), "."); ext == "flv" || ext == "mp4" {
			return ext
		}
	}
	return "flv"
}
