package channel

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

// ErrTruncated is reported when a followed channel shrinks. Channels are
// append-only for the lifetime of a run; truncation mid-follow means the
// single-writer contract was violated.
var ErrTruncated = errors.New("channel truncated while being followed")

const defaultPoll = 150 * time.Millisecond

// Chunk is one unit of observed growth. Chunks do not align to logical
// record boundaries; consumers needing whole records must buffer, or use
// FollowLines.
type Chunk struct {
	Offset int64
	Data   []byte
}

// FollowOptions controls a Follow call.
type FollowOptions struct {
	// Poll is the interval between growth checks.
	Poll time.Duration
	// FromStart replays the whole channel before tailing new growth.
	// Default is to start at the current end, observing only bytes
	// appended after the follow began.
	FromStart bool
}

// Follow returns a lazy, infinite sequence of newly appended chunks. The
// reader's offset advances monotonically; chunks arrive in append order.
// The sequence is not restartable and only ends when ctx is cancelled
// (a clean stop, with the chunk channel closed and no error) or when the
// channel breaks its append-only contract.
func (c *Channel) Follow(ctx context.Context, opts FollowOptions) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errC := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errC)
		if err := c.follow(ctx, opts, out); err != nil {
			errC <- err
		}
	}()

	return out, errC
}

func (c *Channel) follow(ctx context.Context, opts FollowOptions, out chan<- Chunk) error {
	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPoll
	}

	if err := c.Touch(); err != nil {
		return err
	}

	file, err := os.Open(c.path)
	if err != nil {
		return errors.Wrapf(err, "unable to open channel %s for following", c.path)
	}
	defer file.Close()

	var offset int64
	if !opts.FromStart {
		offset, err = file.Seek(0, io.SeekEnd)
		if err != nil {
			return errors.Wrapf(err, "unable to seek channel %s", c.path)
		}
	}

	for {
		info, err := file.Stat()
		if err != nil {
			return errors.Wrapf(err, "unable to stat channel %s", c.path)
		}
		size := info.Size()

		if size < offset {
			return errors.Wrapf(ErrTruncated, "channel %s shrank from %d to %d", c.path, offset, size)
		}

		if size > offset {
			buf := make([]byte, size-offset)
			n, err := file.ReadAt(buf, offset)
			if n > 0 {
				chunk := Chunk{Offset: offset, Data: buf[:n]}
				offset += int64(n)
				c.stats.addGrowth(n)
				select {
				case <-ctx.Done():
					return nil
				case out <- chunk:
				}
			}
			if err != nil && err != io.EOF {
				return errors.Wrapf(err, "unable to read channel %s", c.path)
			}

			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(poll):
		}
	}
}
