package channel

import (
	"bytes"
	"context"
	"time"
)

// LineOptions controls a FollowLines call.
type LineOptions struct {
	Poll      time.Duration
	FromStart bool

	// IdleFlush, when positive, emits a buffered partial record after
	// this long with no growth. Zero disables the flush and partial
	// records are held until their terminator arrives.
	IdleFlush time.Duration
}

// FollowLines frames the growth stream into newline-terminated records. A
// trailing partial record is buffered until it completes; a terminator is
// never treated as end-of-stream since the writer may still be running.
func (c *Channel) FollowLines(ctx context.Context, opts LineOptions) (<-chan string, <-chan error) {
	out := make(chan string)
	errC := make(chan error, 1)
	chunks, followErrs := c.Follow(ctx, FollowOptions{Poll: opts.Poll, FromStart: opts.FromStart})

	go func() {
		defer close(out)
		defer close(errC)

		var buf []byte
		var idleTimer *time.Timer
		var idleC <-chan time.Time

		resetIdle := func() {
			if opts.IdleFlush <= 0 {
				return
			}
			if idleTimer == nil {
				idleTimer = time.NewTimer(opts.IdleFlush)
				idleC = idleTimer.C

				return
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(opts.IdleFlush)
		}

		emit := func(line string) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- line:
				return true
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-idleC:
				if len(buf) > 0 {
					if !emit(string(buf)) {
						return
					}
					buf = nil
				}
			case chunk, ok := <-chunks:
				if !ok {
					if err := <-followErrs; err != nil {
						errC <- err
					}

					return
				}

				buf = append(buf, chunk.Data...)
				for {
					idx := bytes.IndexByte(buf, '\n')
					if idx < 0 {
						break
					}
					line := string(buf[:idx])
					buf = buf[idx+1:]
					if !emit(line) {
						return
					}
				}
				if len(buf) > 0 {
					resetIdle()
				}
			}
		}
	}()

	return out, errC
}
