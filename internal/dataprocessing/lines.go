package dataprocessing

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	apperrors "etaanalyzer/internal/errors"
)

const maxLineBytes = 4 * 1024 * 1024

// errUndecodable is returned for a line the input decoder could only
// render with replacement characters.
var errUndecodable = errors.New("line contains bytes that are not valid in the input encoding")

// lineReader splits comma-delimited lines without quote handling. Every
// line is trimmed and blank lines are skipped.
type lineReader struct {
	scanner *bufio.Scanner
	line    int
}

func newLineReader(r io.Reader) *lineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &lineReader{scanner: s}
}

// next returns the fields of the next non-blank line, or io.EOF
func (lr *lineReader) next() ([]string, error) {
	for lr.scanner.Scan() {
		lr.line++
		text := strings.TrimSpace(lr.scanner.Text())
		if text == "" {
			continue
		}
		if !utf8.ValidString(text) || strings.ContainsRune(text, utf8.RuneError) {
			return nil, errUndecodable
		}
		return strings.Split(text, ","), nil
	}
	if err := lr.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// lineNumber is the 1-based physical line of the last returned row
func (lr *lineReader) lineNumber() int {
	return lr.line
}

// readError classifies a failed read: undecodable text is a parse error at
// line, anything else an I/O failure on path.
func readError(stage, path string, line int, err error) error {
	if errors.Is(err, errUndecodable) {
		return apperrors.NewParseError(stage, line, err.Error(), nil).AtPath(path)
	}
	return apperrors.NewIOError(stage, path, err)
}

func (o Options) readError(stage string, line int, err error) error {
	return readError(stage, o.InputPath, line, err)
}

func (o Options) writeError(stage string, err error) error {
	return apperrors.NewIOError(stage, o.OutputPath, err)
}

type lineWriter struct {
	w    *bufio.Writer
	rows int
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: bufio.NewWriterSize(w, 64*1024)}
}

func (lw *lineWriter) write(fields []string) error {
	if _, err := lw.w.WriteString(strings.Join(fields, ",")); err != nil {
		return err
	}
	return lw.w.WriteByte('\n')
}

// writeRow counts data rows; the header goes through write
func (lw *lineWriter) writeRow(fields []string) error {
	if err := lw.write(fields); err != nil {
		return err
	}
	lw.rows++
	return nil
}

func (lw *lineWriter) flush() error {
	return lw.w.Flush()
}
