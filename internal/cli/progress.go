package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/guiyumin/biliget/internal/core/downloader"
	"github.com/guiyumin/biliget/internal/core/media"
)

// barReporter draws one byte progress bar per stream being fetched
type barReporter struct {
	mu   sync.Mutex
	bars map[media.Kind]*progressbar.ProgressBar
}

func newBarReporter() *barReporter {
	return &barReporter{bars: make(map[media.Kind]*progressbar.ProgressBar)}
}

func (r *barReporter) report(p downloader.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bar, ok := r.bars[p.Kind]
	if !ok {
		bar = progressbar.DefaultBytes(p.Total, "  "+string(p.Kind))
		r.bars[p.Kind] = bar
	}
	if bar.GetMax64() != p.Total && p.Total > 0 {
		bar.ChangeMax64(p.Total)
	}
	_ = bar.Set64(p.Written)

	if p.Done {
		_ = bar.Finish()
		delete(r.bars, p.Kind)
	}
}

// lineReporter prints a line every tenth of a stream, for logs and pipes
type lineReporter struct {
	mu   sync.Mutex
	w    io.Writer
	last map[media.Kind]int64
}

func newLineReporter(w io.Writer) *lineReporter {
	return &lineReporter{w: w, last: make(map[media.Kind]int64)}
}

func (r *lineReporter) report(p downloader.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := p.Written / (10 << 20)
	if p.Total > 0 {
		step = p.Written * 10 / p.Total
	}
	if last, ok := r.last[p.Kind]; ok && step == last && !p.Done {
		return
	}
	r.last[p.Kind] = step
	if p.Done {
		delete(r.last, p.Kind)
	}
	fmt.Fprintf(r.w, "  %s\n", p)
}

// progressReporter picks bars on a terminal and plain lines otherwise
func progressReporter() downloader.ProgressFunc {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return newBarReporter().report
	}
	return newLineReporter(os.Stderr).report
}
