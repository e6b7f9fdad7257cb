package files

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		name    string
		want    Encoding
		wantErr bool
	}{
		{name: "utf_8", want: UTF8},
		{name: "shift_jis", want: ShiftJIS},
		{name: "utf-8", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEncoding(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShiftJISRoundTrip(t *testing.T) {
	text := "0,1000,5000,10,20,カプレーゼ,\n"

	var encoded bytes.Buffer
	w := NewWriter(&encoded, ShiftJIS)
	_, err := io.WriteString(w, text)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	native, err := japanese.ShiftJIS.NewEncoder().String(text)
	require.NoError(t, err)
	assert.Equal(t, native, encoded.String())
	assert.NotEqual(t, text, encoded.String())

	decoded, err := io.ReadAll(NewReader(&encoded, ShiftJIS))
	require.NoError(t, err)
	assert.Equal(t, text, string(decoded))
}

func TestShiftJISRejectsUnmappable(t *testing.T) {
	w := NewWriter(io.Discard, ShiftJIS)
	_, err := io.WriteString(w, "emoji 😀\n")
	if err == nil {
		err = w.Close()
	}
	assert.Error(t, err)
}

func TestUTF8ReaderDropsBOM(t *testing.T) {
	decoded, err := io.ReadAll(NewReader(strings.NewReader("\ufeffEventID,LFHF\n"), UTF8))
	require.NoError(t, err)
	assert.Equal(t, "EventID,LFHF\n", string(decoded))
}

func TestUTF8WriterPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, UTF8)
	_, err := io.WriteString(w, "注文\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "注文\n", buf.String())
}
