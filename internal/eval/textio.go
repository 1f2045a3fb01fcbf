package eval

// textio.go prepares text sources for the delimited parser.
//
//   - bomSkippingReader: drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - utf8Sanitizer: replaces invalid UTF-8 bytes with '?'
//   - decodingReader: wraps non-UTF-8 sources with an x/text decoder
//
// openText applies them in order: decode, strip BOM, sanitize.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkippingReader removes a UTF-8 BOM from the start of the stream.
type bomSkippingReader struct {
	r       *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{r: bufio.NewReader(r)}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			if _, err := b.r.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return b.r.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'. Input is sanitized a
// chunk at a time into out, which drains across as many Reads as the caller's
// buffer needs. Sequences split across source reads wait in pending.
type utf8Sanitizer struct {
	r       io.Reader
	buf     []byte
	out     []byte
	pending []byte
	err     error
}

const sanitizeChunk = 32 << 10

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{
		r:       r,
		buf:     make([]byte, sanitizeChunk+utf8.UTFMax),
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// fill reads the next chunk behind any pending bytes and sanitizes it into
// out. A read error ends the stream, so a dangling tail is flushed as '?'.
func (s *utf8Sanitizer) fill() {
	held := copy(s.buf, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(s.buf[held : held+sanitizeChunk])
	n += held
	s.err = err
	if isASCII(s.buf[:n]) {
		s.out = s.buf[:n]
		return
	}
	s.out = s.buf[:s.sanitize(s.buf[:n], err != nil)]
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to emit.
// Unless atEOF, an incomplete trailing sequence moves to pending.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	end := len(data)
	if !atEOF {
		end -= incompleteTail(data)
		s.pending = append(s.pending, data[end:]...)
	}
	if utf8.Valid(data[:end]) {
		return end
	}

	w := 0
	for r := 0; r < end; {
		c, size := utf8.DecodeRune(data[r:end])
		if c == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

// incompleteTail returns how many trailing bytes start a multi-byte
// sequence that is not yet complete.
func incompleteTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue
		}
		if b >= 0xC0 && seqLen(b) > i {
			return i
		}
		return 0
	}
	return 0
}

func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// lookupEncoding resolves an encoding label such as "latin1" or
// "windows-1252". UTF-8 labels return nil.
func lookupEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}

// openText wraps r for parsing according to the encoding label.
func openText(r io.Reader, label string) (io.Reader, error) {
	enc, err := lookupEncoding(label)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	return newUTF8Sanitizer(newBOMSkippingReader(r)), nil
}
