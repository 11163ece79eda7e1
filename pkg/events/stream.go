package events

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// maxLineSize bounds a single stream line. Tool results can carry whole files.
const maxLineSize = 10 * 1024 * 1024

// Stream reads r line by line until EOF, dispatching every line through
// Process. Malformed lines never fail the stream; only read errors do.
func Stream(r io.Reader, h Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		Process(scanner.Text(), h)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "event stream read failed")
	}
	return nil
}
