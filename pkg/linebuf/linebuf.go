// Package linebuf reassembles line-delimited output from raw chunks as
// they arrive from a network stream.
package linebuf

import "strings"

// Terminator separates lines.
const Terminator = "\n"

// Reassembler turns arbitrary chunks into complete lines. It holds back
// at most one unterminated fragment until more data arrives. A
// Reassembler belongs to exactly one stream and is not safe for
// concurrent use.
type Reassembler struct {
	pending string
	emit    func(line string)
}

// New creates a Reassembler. If emit is not nil, every complete line
// written through Write is passed to it.
func New(emit func(line string)) *Reassembler {
	return &Reassembler{emit: emit}
}

// Feed appends chunk to the pending fragment and returns all complete
// lines, each including its terminator, in arrival order.
func (r *Reassembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	data := r.pending + string(chunk)
	lines := strings.SplitAfter(data, Terminator)

	// SplitAfter always yields a final element that is either empty or
	// the unterminated tail.
	last := len(lines) - 1
	r.pending = lines[last]
	if last == 0 {
		return nil
	}

	return lines[:last]
}

// Write implements io.Writer. It never fails.
func (r *Reassembler) Write(p []byte) (int, error) {
	for _, line := range r.Feed(p) {
		if r.emit != nil {
			r.emit(line)
		}
	}
	return len(p), nil
}

// Pending returns the buffered fragment that has not seen a terminator.
func (r *Reassembler) Pending() string {
	return r.pending
}
