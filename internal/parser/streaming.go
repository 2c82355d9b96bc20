package parser

// streaming.go provides the chunked variant of Parse for large files.
//
// Rows are delivered to a callback in caller-sized chunks so the consumer
// can process, persist, or count them without holding the whole file's rows
// in memory at once. Cancellation is cooperative: the abort handle is
// observed between chunks, never mid-chunk, so cancellation latency is
// bounded by chunk size rather than row count.

import (
	"errors"
	"sync/atomic"
)

// DefaultChunkSize is the chunk size used when the caller passes zero.
const DefaultChunkSize = 500

// ErrAborted is returned by Stream when the abort handle was triggered.
var ErrAborted = errors.New("parse aborted")

// Chunk is one batch of rows delivered to the stream callback.
type Chunk struct {
	Rows []Row

	// Progress is the integer percentage (0-100) of data rows delivered
	// after this chunk, including this chunk's rows.
	Progress int

	handle *abortHandle
}

// Abort requests cancellation. The stream stops before the next chunk.
func (c Chunk) Abort() { c.handle.aborted.Store(true) }

type abortHandle struct {
	aborted atomic.Bool
}

// Stream parses text like Parse but delivers rows to fn in chunks of
// chunkSize. The final partial chunk is always flushed. On abort it returns
// ErrAborted along with the diagnostics accumulated so far.
//
// Structural validation runs up front, before the first chunk is delivered,
// so a fatal file-level problem is reported without any callback invocation.
func Stream(text string, opts Options, chunkSize int, fn func(Chunk)) (*Result, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	parsed, err := Parse(text, opts)
	if err != nil {
		return nil, err
	}

	handle := &abortHandle{}
	total := len(parsed.Rows)

	for start := 0; start < total; start += chunkSize {
		if handle.aborted.Load() {
			return parsed, ErrAborted
		}

		end := start + chunkSize
		if end > total {
			end = total
		}

		fn(Chunk{
			Rows:     parsed.Rows[start:end],
			Progress: end * 100 / total,
			handle:   handle,
		})
	}

	return parsed, nil
}
