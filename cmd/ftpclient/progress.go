package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	ftpclient "github.com/iamlordofplatinumforest/FTP-client"
)

const redrawInterval = 200 * time.Millisecond

// progressPrinter draws a single status line for the running transfer and
// one line per finished item of a folder transfer.
type progressPrinter struct {
	w     io.Writer
	label string
	quiet bool

	lastDraw time.Time
	drawn    bool
	items    int
	failed   int
	bytes    int64
}

var (
	_ ftpclient.Progress     = (*progressPrinter)(nil)
	_ ftpclient.ItemObserver = (*progressPrinter)(nil)
)

func newProgressPrinter(w io.Writer, label string, quiet bool) *progressPrinter {
	return &progressPrinter{w: w, label: label, quiet: quiet}
}

func (p *progressPrinter) Update(done, total int64) {
	p.bytes = done
	if p.quiet {
		return
	}
	now := time.Now()
	if p.drawn && done < total && now.Sub(p.lastDraw) < redrawInterval {
		return
	}
	p.lastDraw = now
	p.drawn = true
	if done > total {
		fmt.Fprintf(p.w, "\r%s  %s", p.label, humanize.IBytes(uint64(done)))
		return
	}
	fmt.Fprintf(p.w, "\r%s  %s / %s", p.label, humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
}

func (p *progressPrinter) ItemDone(path string, err error) {
	p.items++
	if err != nil {
		p.failed++
	}
	if p.quiet {
		return
	}
	p.clearLine()
	if err != nil {
		_, msg := ftpclient.Describe(err)
		fmt.Fprintf(p.w, "FAIL %s: %s\n", path, msg)
		return
	}
	fmt.Fprintf(p.w, "ok   %s\n", path)
}

func (p *progressPrinter) clearLine() {
	if p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
		p.drawn = false
	}
}

// finish prints the summary line.
func (p *progressPrinter) finish(start time.Time, err error) {
	if p.quiet {
		return
	}
	p.clearLine()
	elapsed := time.Since(start).Round(time.Millisecond)
	var batch *ftpclient.BatchError
	switch {
	case errors.As(err, &batch):
		fmt.Fprintf(p.w, "%s: %d of %d items failed in %v\n", p.label, p.failed, p.items, elapsed)
	case err != nil:
	case p.items > 0:
		fmt.Fprintf(p.w, "%s: %d items in %v\n", p.label, p.items, elapsed)
	default:
		fmt.Fprintf(p.w, "%s: %s in %v\n", p.label, humanize.IBytes(uint64(p.bytes)), elapsed)
	}
}
