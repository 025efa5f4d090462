// Package ratelimit throttles transfer streams to a bytes-per-second budget.
//
// A Limiter may be shared by several streams; they then split the budget.
// A nil *Limiter means unlimited and every helper passes data through.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// maxChunk bounds how many tokens one Read or Write waits for at a time so
// throttling stays smooth for large buffers.
const maxChunk = 16 * 1024

// Limiter is a token bucket holding at most one second of budget.
type Limiter struct {
	lim *rate.Limiter
}

// New returns a limiter for bytesPerSecond, or nil when the value is not
// positive (no limit).
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if int64(burst) != bytesPerSecond || burst < 0 {
		burst = int(^uint(0) >> 1)
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// Limit reports the configured rate in bytes per second, 0 for nil.
func (l *Limiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return int64(l.lim.Limit())
}

// chunk is how many bytes of an n-byte request may proceed in one wait.
func (l *Limiter) chunk(n int) int {
	if n > maxChunk {
		n = maxChunk
	}
	if b := l.lim.Burst(); n > b {
		n = b
	}
	return n
}

type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader wraps r so reads wait for budget. Waiting stops with ctx's
// error once ctx is done. A nil limiter returns r unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := r.limiter.chunk(len(p))
	if err := r.limiter.lim.WaitN(r.ctx, n); err != nil {
		return 0, err
	}
	return r.r.Read(p[:n])
}

type writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *Limiter
}

// NewWriter wraps w so writes wait for budget. A nil limiter returns w
// unchanged.
func NewWriter(ctx context.Context, w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n := w.limiter.chunk(len(p) - total)
		if err := w.limiter.lim.WaitN(w.ctx, n); err != nil {
			return total, err
		}
		written, err := w.w.Write(p[total : total+n])
		total += written
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
