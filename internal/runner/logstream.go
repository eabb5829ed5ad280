package runner

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// ReadLogFrom reads a run's log file starting at offset and returns the
// new data with the offset to resume from. A missing file is not an
// error: logging may not have started yet, so the caller just polls
// again.
func ReadLogFrom(path string, offset int64) ([]byte, int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, offset, nil
	}
	if err != nil {
		return nil, offset, eris.Wrapf(err, "runner: open log %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, offset, eris.Wrap(err, "runner: stat log")
	}
	// A truncated or rotated file restarts the stream from the top.
	if offset > info.Size() {
		offset = 0
	}
	if offset == info.Size() {
		return nil, offset, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, eris.Wrap(err, "runner: seek log")
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, eris.Wrap(err, "runner: read log")
	}
	return data, offset + int64(len(data)), nil
}
