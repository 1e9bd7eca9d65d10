package downloader

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/guiyumin/biliget/internal/core/media"
)

// Progress is a coarse progress sample for one stream
type Progress struct {
	Kind    media.Kind
	Written int64
	Total   int64 // -1 when the server sent no length
	Speed   float64
	Elapsed time.Duration
	Done    bool
}

// Percent returns 0-100, or -1 when the total is unknown
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Written) * 100 / float64(p.Total)
}

// SpeedString renders the throughput, e.g. "3.2 MB/s"
func (p Progress) SpeedString() string {
	return humanize.Bytes(uint64(p.Speed)) + "/s"
}

// ETA estimates the remaining time, negative when unknown
func (p Progress) ETA() time.Duration {
	if p.Total <= 0 || p.Speed <= 0 {
		return -1
	}
	return time.Duration(float64(p.Total-p.Written) / p.Speed * float64(time.Second))
}

func (p Progress) String() string {
	if pct := p.Percent(); pct >= 0 {
		return fmt.Sprintf("%-8s %5.1f%%  %s  eta %s", p.Kind, pct, p.SpeedString(), FormatDuration(p.ETA()))
	}
	return fmt.Sprintf("%-8s %s  %s", p.Kind, humanize.Bytes(uint64(p.Written)), p.SpeedString())
}

// ProgressFunc receives samples at roughly 1% steps and once on completion
type ProgressFunc func(Progress)

// unknownTotalStep is the reporting step when Content-Length is missing
const unknownTotalStep = 1 << 20

// progressWriter counts bytes and emits samples at coarse steps
type progressWriter struct {
	kind    media.Kind
	total   int64
	written int64
	next    int64
	step    int64
	first   time.Time
	now     func() time.Time
	report  ProgressFunc
}

func newProgressWriter(kind media.Kind, total int64, now func() time.Time, report ProgressFunc) *progressWriter {
	step := int64(unknownTotalStep)
	if total > 0 {
		step = max(total/100, 1)
	}
	return &progressWriter{
		kind:   kind,
		total:  total,
		step:   step,
		next:   step,
		now:    now,
		report: report,
	}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.first.IsZero() {
		w.first = w.now()
	}
	w.written += int64(len(p))
	if w.report != nil && w.written >= w.next {
		w.report(w.sample(false))
		for w.next <= w.written {
			w.next += w.step
		}
	}
	return len(p), nil
}

func (w *progressWriter) finish() {
	if w.report != nil {
		w.report(w.sample(true))
	}
}

func (w *progressWriter) sample(done bool) Progress {
	var elapsed time.Duration
	if !w.first.IsZero() {
		elapsed = w.now().Sub(w.first)
	}
	var speed float64
	if elapsed > 0 {
		speed = float64(w.written) / elapsed.Seconds()
	}
	total := w.total
	if total <= 0 {
		total = -1
	}
	return Progress{
		Kind:    w.kind,
		Written: w.written,
		Total:   total,
		Speed:   speed,
		Elapsed: elapsed,
		Done:    done,
	}
}

var _ io.Writer = (*progressWriter)(nil)

// FormatDuration renders m:ss or h:mm:ss, "??:??" when unknown
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "??:??"
	}
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m >= 60 {
		h := m / 60
		m = m % 60
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
