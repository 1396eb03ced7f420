package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/nao1215/sitecrawler/internal/crawler"
)

// progressInterval throttles redraws of the progress line.
const progressInterval = 100 * time.Millisecond

// progressLine draws a single self-overwriting status line on a terminal.
// Workers call it concurrently.
type progressLine struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	last    time.Time
	drawn   bool
}

func newProgressLine(w io.Writer, enabled bool) *progressLine {
	return &progressLine{w: w, enabled: enabled}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Frontier draws the state of a running crawl.
func (p *progressLine) Frontier(stats crawler.FrontierStats) {
	done := stats.Accepted - stats.Queued - stats.InFlight
	p.draw(fmt.Sprintf("crawled %d/%d urls, %d in flight, %d external, %d skipped",
		done, stats.Accepted, stats.InFlight, stats.External, stats.Dropped), false)
}

// Seed draws the state of a list-mode batch.
func (p *progressLine) Seed(done, total int) {
	p.draw(fmt.Sprintf("crawled %d/%d urls", done, total), done == total)
}

// Done clears the line.
func (p *progressLine) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled && p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
		p.drawn = false
	}
}

func (p *progressLine) draw(line string, force bool) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if !force && p.drawn && now.Sub(p.last) < progressInterval {
		return
	}
	p.last = now
	p.drawn = true
	fmt.Fprintf(p.w, "\r\033[K%s", line)
}
