// Package stream provides the single-pass text sequence shared by the tool
// invoker and the generation path.
//
// A Text is consumed with range. Breaking out of the loop early is the
// cancellation signal: the producer releases its connection or goroutine
// before the range statement returns. A Text must not be ranged twice.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// ErrConsumed is yielded when a Text is ranged a second time.
var ErrConsumed = errors.New("stream: sequence already consumed")

// Text is a lazy, forward-only sequence of text fragments. A non-nil error
// ends the sequence.
type Text func(yield func(string, error) bool)

// readChunkSize bounds a single read from an upstream body.
const readChunkSize = 4096

// once wraps seq so that a second range yields ErrConsumed.
func once(seq Text) Text {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrConsumed)
			return
		}
		seq(yield)
	}
}

// FromReader exposes rc as decoded UTF-8 fragments. The reader is closed
// when the sequence is exhausted, fails, or the consumer stops early.
// A multi-byte rune split across reads is held back until complete; bytes
// that are not valid UTF-8 are dropped wherever they occur.
func FromReader(rc io.ReadCloser) Text {
	return once(func(yield func(string, error) bool) {
		defer rc.Close()

		buf := make([]byte, readChunkSize)
		var pending []byte
		for {
			n, err := rc.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				cut := completePrefix(pending)
				if cut > 0 {
					chunk := validText(pending[:cut])
					pending = append(pending[:0], pending[cut:]...)
					if chunk != "" && !yield(chunk, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				if chunk := validText(pending); chunk != "" {
					yield(chunk, nil)
				}
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	})
}

// validText decodes b, dropping invalid byte sequences.
func validText(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}

// completePrefix returns the length of the longest prefix of b that does
// not end in the middle of a UTF-8 sequence.
func completePrefix(b []byte) int {
	end := len(b)
	// A rune is at most 4 bytes; only the tail can be incomplete.
	for i := 1; i <= utf8.UTFMax && i <= end; i++ {
		c := b[end-i]
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[end-i:]) {
				return end - i
			}
			return end
		}
	}
	return end
}

// Chunk is one element received from a channel-based producer.
type Chunk struct {
	Text string
	Err  error
}

// FromChunks adapts a channel producer. cancel is invoked when the consumer
// stops early or the channel is drained, so the producer goroutine exits.
func FromChunks(ch <-chan Chunk, cancel context.CancelFunc) Text {
	return once(func(yield func(string, error) bool) {
		defer cancel()
		for c := range ch {
			if c.Err != nil {
				yield("", c.Err)
				return
			}
			if c.Text == "" {
				continue
			}
			if !yield(c.Text, nil) {
				return
			}
		}
	})
}

// Static yields parts in order.
func Static(parts ...string) Text {
	return once(func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	})
}

// Collect drains seq into a single string.
func Collect(seq Text) (string, error) {
	if seq == nil {
		return "", nil
	}
	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

// WithTrailer returns seq followed by the fragment produced by onErr when
// seq fails midway. The error itself is not forwarded.
func WithTrailer(seq Text, onErr func(error) string) Text {
	return func(yield func(string, error) bool) {
		for frag, err := range seq {
			if err != nil {
				if tail := onErr(err); tail != "" {
					yield(tail, nil)
				}
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// Concat yields each sequence in turn. If the consumer stops early, the
// sequences not yet reached are still opened and abandoned so their
// producers release what they hold.
func Concat(seqs ...Text) Text {
	return once(func(yield func(string, error) bool) {
		for i, seq := range seqs {
			if seq == nil {
				continue
			}
			for frag, err := range seq {
				if !yield(frag, err) || err != nil {
					release(seqs[i+1:])
					return
				}
			}
		}
	})
}

func release(seqs []Text) {
	for _, seq := range seqs {
		if seq == nil {
			continue
		}
		for range seq {
			break
		}
	}
}
