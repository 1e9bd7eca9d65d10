package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/guiyumin/biliget/internal/core/downloader"
	"github.com/guiyumin/biliget/internal/core/history"
	"github.com/guiyumin/biliget/internal/core/merger"
	"github.com/guiyumin/biliget/internal/core/site/bilibili"
)

// ErrNoSuchPart is returned when the requested page is not part of the video
var ErrNoSuchPart = errors.New("no such part")

// Recorder persists finished parts; *history.DB implements it
type Recorder interface {
	Add(r *history.Record) error
}

// Options select what one Run downloads
type Options struct {
	// Quality is the requested tier, bilibili.Quality1080P when zero.
	Quality int
	// Page limits the run to a single 1-based part. Zero downloads every part.
	Page      int
	OutputDir string
}

// PartResult is the outcome of one part
type PartResult struct {
	Page    int
	Title   string
	Output  string
	Outcome merger.Outcome
	Size    int64
	Err     error
}

// Report summarizes a Run
type Report struct {
	ID    bilibili.VideoID
	Title string
	Owner string
	Dir   string
	Parts []PartResult
}

// Failed counts parts that ended in an error
func (r *Report) Failed() int {
	n := 0
	for _, p := range r.Parts {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Session runs the resolve, fetch and merge steps for one video at a time
type Session struct {
	Client  *bilibili.Client
	Fetcher *downloader.Fetcher
	Merger  merger.Merger
	History Recorder

	// OnPartStart is called before each part with its 1-based index among the selected parts.
	OnPartStart func(index, total int, part bilibili.PartInfo, title string)
	// OnPartDone is called after each part, successful or not.
	OnPartDone func(PartResult)

	now func() time.Time
	log *zap.SugaredLogger
}

// NewSession wires a session. rec may be nil.
func NewSession(client *bilibili.Client, fetcher *downloader.Fetcher, m merger.Merger, rec Recorder) *Session {
	return &Session{
		Client:  client,
		Fetcher: fetcher,
		Merger:  m,
		History: rec,
		now:     time.Now,
		log:     zap.S().Named("pipeline"),
	}
}

// Inspect parses the input and fetches the video's metadata
func (s *Session) Inspect(ctx context.Context, input string) (*bilibili.VideoMetadata, error) {
	id, err := bilibili.ParseVideoID(input, s.Client.Profile().AcceptNumericIDs)
	if err != nil {
		return nil, err
	}
	return s.Client.FetchMetadata(ctx, id)
}

// Run downloads the selected parts of the video named by input. Parse and
// metadata errors abort; part errors are collected and the loop moves on.
func (s *Session) Run(ctx context.Context, input string, opts Options) (*Report, error) {
	meta, err := s.Inspect(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, meta, opts)
}

// Download runs the per-part loop for already fetched metadata
func (s *Session) Download(ctx context.Context, meta *bilibili.VideoMetadata, opts Options) (*Report, error) {
	if opts.Quality == 0 {
		opts.Quality = bilibili.Quality1080P
	}

	parts := meta.Parts
	if opts.Page > 0 {
		part, ok := meta.Part(opts.Page)
		if !ok {
			return nil, fmt.Errorf("%w: page %d of %d", ErrNoSuchPart, opts.Page, len(meta.Parts))
		}
		parts = []bilibili.PartInfo{part}
	}

	dir := filepath.Join(opts.OutputDir, SanitizeFilename(meta.Title))
	report := &Report{ID: meta.ID, Title: meta.Title, Owner: meta.Owner, Dir: dir}
	names := partNames(parts, meta.Title)

	s.log.Infow("starting download", "id", meta.ID.String(), "title", meta.Title, "parts", len(parts), "quality", opts.Quality)

	var errs *multierror.Error
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}

		if s.OnPartStart != nil {
			s.OnPartStart(i+1, len(parts), part, names[i])
		}

		started := s.now()
		result := s.downloadPart(ctx, meta.ID, part, names[i], dir, opts.Quality)
		s.record(meta.ID, part, result, opts.Quality, started)

		if result.Err != nil {
			s.log.Warnw("part failed", "page", part.Page, "title", result.Title, "error", result.Err)
			errs = multierror.Append(errs, fmt.Errorf("part %d (%s): %w", part.Page, result.Title, result.Err))
		}

		report.Parts = append(report.Parts, result)
		if s.OnPartDone != nil {
			s.OnPartDone(result)
		}
	}

	return report, errs.ErrorOrNil()
}

func (s *Session) downloadPart(ctx context.Context, id bilibili.VideoID, part bilibili.PartInfo, name, dir string, quality int) PartResult {
	result := PartResult{Page: part.Page, Title: name}

	streams, err := s.Client.Resolve(ctx, id, part.CID, quality)
	if err != nil {
		result.Err = err
		return result
	}
	for _, st := range streams {
		s.log.Debugw("resolved stream", "page", part.Page, "stream", st.String())
	}

	files, err := s.Fetcher.FetchAll(ctx, streams, dir, name, id.WatchURL(part.Page))
	if err != nil {
		result.Err = err
		return result
	}

	output := filepath.Join(dir, name+".mp4")
	outcome, err := merger.Coordinate(ctx, s.Merger, files, output)
	if err != nil {
		result.Err = err
		return result
	}

	result.Output = output
	result.Outcome = outcome
	if info, err := os.Stat(output); err == nil {
		result.Size = info.Size()
	}
	return result
}

func (s *Session) record(id bilibili.VideoID, part bilibili.PartInfo, result PartResult, quality int, started time.Time) {
	if s.History == nil {
		return
	}

	rec := &history.Record{
		VideoID:     id.String(),
		Page:        part.Page,
		Title:       result.Title,
		Path:        result.Output,
		Quality:     quality,
		Status:      history.StatusCompleted,
		SizeBytes:   result.Size,
		StartedAt:   started,
		CompletedAt: s.now(),
	}
	if result.Err != nil {
		rec.Status = history.StatusFailed
		rec.Error = result.Err.Error()
	}

	if err := s.History.Add(rec); err != nil {
		s.log.Warnw("failed to record history", "page", part.Page, "error", err)
	}
}

// partNames gives each part a sanitized file stem, prefixing the page number
// when two parts would otherwise share one
func partNames(parts []bilibili.PartInfo, videoTitle string) []string {
	names := make([]string, len(parts))
	counts := make(map[string]int)
	for i, p := range parts {
		names[i] = SanitizeFilename(p.DisplayTitle(videoTitle))
		counts[names[i]]++
	}
	for i, p := range parts {
		if counts[names[i]] > 1 {
			names[i] = fmt.Sprintf("P%d %s", p.Page, names[i])
		}
	}
	return names
}
