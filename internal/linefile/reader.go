// Package linefile reads delimited text files one physical line at a time.
//
// Lines are decoded from the declared encoding into UTF-8, stripped of their
// terminator (\n or \r\n) and numbered from 1. A UTF-8 BOM at the start of
// line 1 is removed. Memory use is bounded by the longest line.
package linefile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const readBufSize = 1 << 20

const utf8BOM = "\uFEFF"

// DecodeError reports bytes that are not valid in the declared encoding.
type DecodeError struct {
	Line     int
	Encoding string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: invalid %s byte sequence", e.Line, e.Encoding)
}

// Reader yields physical lines.
type Reader struct {
	br       *bufio.Reader
	closer   io.Closer
	encoding string
	strict   bool

	line  int
	carry []byte
	done  bool
}

// Open opens path for line reading under the named encoding ("auto" sniffs
// the first bytes of the file).
func Open(path, encodingName string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	adviseSequential(f)

	if encodingName == Auto {
		prefix := make([]byte, sniffLen)
		n, rerr := io.ReadFull(f, prefix)
		if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			f.Close()
			return nil, fmt.Errorf("read %s: %w", path, rerr)
		}
		encodingName = Detect(prefix[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", path, err)
		}
	}

	enc, name, err := Resolve(encodingName)
	if err != nil {
		f.Close()
		return nil, err
	}
	r := NewReader(f, enc, name)
	r.closer = f
	return r, nil
}

// NewReader wraps src. A nil enc means UTF-8 with strict validation.
func NewReader(src io.Reader, enc encoding.Encoding, name string) *Reader {
	strict := enc == nil
	if !strict {
		src = transform.NewReader(src, enc.NewDecoder())
	}
	if name == "" {
		name = UTF8
	}
	return &Reader{
		br:       bufio.NewReaderSize(src, readBufSize),
		encoding: name,
		strict:   strict,
	}
}

// Encoding is the canonical name of the encoding in use.
func (r *Reader) Encoding() string { return r.encoding }

// Line is the number of the line most recently returned by Next.
func (r *Reader) Line() int { return r.line }

// Next returns the next line without its terminator, or io.EOF once the
// input is exhausted. A final unterminated line is still returned. A trailing
// newline at end of file does not produce an extra empty line.
func (r *Reader) Next() (string, error) {
	if r.done {
		return "", io.EOF
	}
	for {
		chunk, err := r.br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			r.carry = append(r.carry, chunk...)
			continue
		}
		if err == io.EOF {
			r.done = true
			if len(chunk) == 0 && len(r.carry) == 0 {
				return "", io.EOF
			}
		} else if err != nil {
			return "", err
		}

		raw := chunk
		if len(r.carry) > 0 {
			r.carry = append(r.carry, chunk...)
			raw = r.carry
		}
		s, derr := r.emit(raw)
		r.carry = r.carry[:0]
		return s, derr
	}
}

func (r *Reader) emit(raw []byte) (string, error) {
	r.line++
	raw = bytes.TrimSuffix(raw, []byte{'\n'})
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	if r.strict && !utf8.Valid(raw) {
		return "", &DecodeError{Line: r.line, Encoding: r.encoding}
	}
	s := string(raw)
	if r.line == 1 && len(s) >= len(utf8BOM) && s[:len(utf8BOM)] == utf8BOM {
		s = s[len(utf8BOM):]
	}
	return s, nil
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
