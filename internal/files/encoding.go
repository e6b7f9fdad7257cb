package files

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names a supported CSV text encoding
type Encoding string

const (
	UTF8     Encoding = "utf_8"
	ShiftJIS Encoding = "shift_jis"
)

// ParseEncoding validates an encoding name
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(name) {
	case UTF8, ShiftJIS:
		return Encoding(name), nil
	}
	return "", fmt.Errorf("unsupported encoding %q (want %s or %s)", name, UTF8, ShiftJIS)
}

// NewReader decodes r into UTF-8. A leading UTF-8 byte order mark is dropped.
func NewReader(r io.Reader, enc Encoding) io.Reader {
	if enc == UTF8 {
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	}
	return transform.NewReader(r, japanese.ShiftJIS.NewDecoder())
}

// NewWriter encodes UTF-8 text written to it. Close flushes the encoder
// but does not close w.
func NewWriter(w io.Writer, enc Encoding) io.WriteCloser {
	if enc == UTF8 {
		return nopCloser{w}
	}
	return transform.NewWriter(w, japanese.ShiftJIS.NewEncoder())
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
