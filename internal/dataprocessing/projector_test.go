package dataprocessing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "etaanalyzer/internal/errors"
)

type stageFunc func(ctx context.Context, r io.Reader, w io.Writer, opts Options) (StageStats, error)

func testOptions(logs *bytes.Buffer) Options {
	opts := DefaultOptions()
	if logs == nil {
		logs = &bytes.Buffer{}
	}
	opts.Logger = slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return opts
}

func runStage(t *testing.T, fn stageFunc, input string, opts Options) (string, StageStats, error) {
	t.Helper()
	var out bytes.Buffer
	stats, err := fn(context.Background(), strings.NewReader(input), &out, opts)
	return out.String(), stats, err
}

func lines(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

const rawHeader = "EventID,Timestamp(App),Timestamp(Server),Gaze X,Gaze Y,LeafSideElem(1): aria-label,LFHF"

func TestResolveProjection(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		policy  HeaderPolicy
		want    [7]int
		wantErr error
	}{
		{
			name:   "canonical order",
			header: rawHeader,
			want:   [7]int{0, 1, 2, 3, 4, 5, 6},
		},
		{
			name:   "shuffled with extra columns",
			header: "LFHF,Session,Gaze Y,EventID,Gaze X,Timestamp(Server),LeafSideElem(1): aria-label,Timestamp(App)",
			want:   [7]int{3, 7, 5, 4, 2, 6, 0},
		},
		{
			name:   "first matching token wins",
			header: "EventID,EventID(dup),Timestamp(App),Timestamp(Server),X,Y,LeafSideElem(1): aria-label,LFHF,LFHF(raw)",
			want:   [7]int{0, 2, 3, 4, 5, 6, 7},
		},
		{
			name:   "token claimed by higher priority field only",
			header: "EventID,Timestamp(App) X,X,Timestamp(Server),Y,LeafSideElem(1): aria-label,LFHF",
			want:   [7]int{0, 1, 3, 2, 4, 5, 6},
		},
		{
			name:    "missing field is a schema error",
			header:  "EventID,Timestamp(App),Timestamp(Server),X,Y,LeafSideElem(1): aria-label",
			policy:  HeaderStrict,
			wantErr: apperrors.ErrSchema,
		},
		{
			name:   "lenient maps missing fields to column 0",
			header: "Timestamp(App),Timestamp(Server),X,Y,LeafSideElem(1): aria-label",
			policy: HeaderLenient,
			want:   [7]int{0, 0, 1, 2, 3, 4, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolveProjection(strings.Split(tt.header, ","), tt.policy, slog.New(slog.NewJSONHandler(io.Discard, nil)))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			for i, idx := range tt.want {
				assert.Equal(t, idx, p.Index(i), "field %s", projectionTable[i].field)
			}
		})
	}
}

func TestResolveProjection_SchemaErrorNamesMissingFields(t *testing.T) {
	_, err := ResolveProjection([]string{"EventID", "Timestamp(App)"}, HeaderStrict, nil)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, StageProject, appErr.Stage)
	assert.Equal(t, []string{"ServerTime", "X", "Y", "AriaLabel", "LFHF"}, appErr.Context["missing"])
}

func TestProjectRows(t *testing.T) {
	input := lines(
		"LFHF,Timestamp(App),EventID,Timestamp(Server),Gaze X,Gaze Y,LeafSideElem(1): aria-label,Extra",
		",1000,0,5000,10,20,カプレーゼ,a",
		"",
		"2.5,1500,2,5500,0,0,,b",
	)

	out, stats, err := runStage(t, ProjectRows, input, testOptions(nil))
	require.NoError(t, err)

	assert.Equal(t, lines(
		"EventID,AppTime,ServerTime,X,Y,AriaLabel,LFHF",
		"0,1000,5000,10,20,カプレーゼ,",
		"2,1500,5500,0,0,,2.5",
	), out)
	assert.Equal(t, StageStats{Stage: StageProject, RowsRead: 2, RowsWritten: 2}, stats)
}

func TestProjectRows_AlwaysSevenColumns(t *testing.T) {
	headers := []string{
		rawHeader,
		"Extra,LFHF,LeafSideElem(1): aria-label,Gaze Y,Gaze X,Timestamp(Server),Timestamp(App),EventID",
		"a,b,EventID,c,Timestamp(App),d,Timestamp(Server),X,Y,e,LeafSideElem(1): aria-label,f,LFHF,g",
	}

	for _, header := range headers {
		width := len(strings.Split(header, ","))
		row := strings.TrimSuffix(strings.Repeat("1,", width), ",")

		out, _, err := runStage(t, ProjectRows, lines(header, row), testOptions(nil))
		require.NoError(t, err)
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			assert.Len(t, strings.Split(line, ","), 7)
		}
	}
}

func TestProjectRows_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		wantRow int
	}{
		{
			name:    "empty input",
			input:   "",
			wantErr: apperrors.ErrSchema,
		},
		{
			name:    "short row",
			input:   lines(rawHeader, "0,1000,5000,1,2,x,", "0,1000"),
			wantErr: apperrors.ErrParse,
			wantRow: 3,
		},
		{
			name:    "missing header field",
			input:   lines("EventID,Timestamp(App)", "0,1000"),
			wantErr: apperrors.ErrSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runStage(t, ProjectRows, tt.input, testOptions(nil))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, StageProject, appErr.Stage)
			assert.Equal(t, tt.wantRow, appErr.Row)
		})
	}
}

func TestProjectRows_UndecodableText(t *testing.T) {
	tests := []struct {
		name  string
		label string
	}{
		{name: "replacement character from the decoder", label: "\ufffd\u0080"},
		{name: "invalid UTF-8", label: "\xff\xfe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(nil)
			opts.InputPath = "in/session.csv"
			input := lines(rawHeader, "2,1000,5000,0,0,,1.0", "0,1100,5100,0,0,"+tt.label+",")

			_, _, err := runStage(t, ProjectRows, input, opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrParse))

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, StageProject, appErr.Stage)
			assert.Equal(t, 3, appErr.Row)
			assert.Equal(t, "in/session.csv", appErr.Path)
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestStages_WriteErrorCarriesOutputPath(t *testing.T) {
	tests := []struct {
		name  string
		fn    stageFunc
		input string
	}{
		{name: "project", fn: ProjectRows, input: lines(rawHeader, "2,1000,5000,0,0,,1.0")},
		{name: "categorize", fn: CategorizeRows, input: lines("EventID,AppTime,ServerTime,X,Y,AriaLabel,LFHF", "2,1000,5000,0,0,,1.0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(nil)
			opts.OutputPath = "out/" + tt.name + ".csv"

			_, err := tt.fn(context.Background(), strings.NewReader(tt.input), failingWriter{}, opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrIO))

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, opts.OutputPath, appErr.Path)
			assert.Contains(t, err.Error(), "disk full")
		})
	}
}

func TestProjectRows_Cancelled(t *testing.T) {
	var b strings.Builder
	b.WriteString(rawHeader + "\n")
	for i := 0; i < 2*contextCheckInterval; i++ {
		b.WriteString("2,1000,5000,0,0,,1.0\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProjectRows(ctx, strings.NewReader(b.String()), io.Discard, testOptions(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
