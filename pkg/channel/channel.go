package channel

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Channel is an append-only file used as the hand-off medium between one
// writer stage and one reader stage. Concurrent multi-writer or
// multi-reader use is a caller error and is not defended against.
type Channel struct {
	path  string
	stats *Stats
}

// New wraps path as a channel. The file is not created until Touch,
// Append or a fresh-run Truncate.
func New(path string) *Channel {
	return &Channel{
		path:  path,
		stats: newStats(),
	}
}

// Path returns the channel's storage location.
func (c *Channel) Path() string {
	return c.path
}

// Stats returns the channel's counters.
func (c *Channel) Stats() *Stats {
	return c.stats
}

// Touch creates the channel file (and its directory) if missing, leaving
// existing content intact.
func (c *Channel) Touch() error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "unable to create channel directory %s", dir)
		}
	}

	file, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "unable to touch channel %s", c.path)
	}

	return file.Close()
}

// Truncate empties the channel. Only valid at fresh-run initialization,
// before any stage starts; during a run written ranges are immutable.
func (c *Channel) Truncate() error {
	if err := c.Touch(); err != nil {
		return err
	}
	if err := os.Truncate(c.path, 0); err != nil {
		return errors.Wrapf(err, "unable to truncate channel %s", c.path)
	}

	return nil
}

// Size returns the current length of the channel in bytes. A missing file
// counts as empty.
func (c *Channel) Size() (int64, error) {
	info, err := os.Stat(c.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "unable to stat channel %s", c.path)
	}

	return info.Size(), nil
}

// Append adds b to the end of the channel in one shot. For sustained
// writing use OpenWriter.
func (c *Channel) Append(b []byte) error {
	writer, err := c.OpenWriter()
	if err != nil {
		return err
	}
	defer writer.Close()

	return writer.Append(b)
}

// AppendLine appends s followed by a newline.
func (c *Channel) AppendLine(s string) error {
	return c.Append(append([]byte(s), '\n'))
}

// ReadAll returns the channel's current content as one snapshot. A missing
// file reads as empty.
func (c *Channel) ReadAll() ([]byte, error) {
	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read channel %s", c.path)
	}

	return raw, nil
}

// Writer is a persistent append handle. Exactly one writer may exist per
// channel.
type Writer struct {
	file  *os.File
	stats *Stats
}

// OpenWriter opens the channel for appending, creating it if missing.
func (c *Channel) OpenWriter() (*Writer, error) {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "unable to create channel directory %s", dir)
		}
	}

	file, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open channel %s for append", c.path)
	}

	return &Writer{file: file, stats: c.stats}, nil
}

// Append writes b at the end of the channel. O_APPEND keeps the write at
// the tail; bytes are never reordered or rewritten.
func (w *Writer) Append(b []byte) error {
	n, err := w.file.Write(b)
	w.stats.addAppend(n)
	if err != nil {
		return errors.Wrapf(err, "unable to append to channel %s", w.file.Name())
	}

	return nil
}

// AppendLine appends s followed by a newline.
func (w *Writer) AppendLine(s string) error {
	return w.Append(append([]byte(s), '\n'))
}

// Close releases the append handle.
func (w *Writer) Close() error {
	return w.file.Close()
}
