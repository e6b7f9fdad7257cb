package exporter

import (
	"context"
	"io"
	"strconv"

	"etaanalyzer/internal/dataprocessing"
	"etaanalyzer/pkg/contracts/domain"
)

// SummaryHeader is the header of the category summary CSV
var SummaryHeader = []string{
	"Category", "Fixations", "TotalFixationTime", "MeanFixationTime",
	"Elements", "MeanLFHF", "TotalLFHFDelta",
}

// LabelOrder supplies the preferred row order of a summary
type LabelOrder interface {
	Labels() []string
}

// CategoryStats aggregates the stage-4 rows of one category.
// Means are nil when no value contributed to them.
type CategoryStats struct {
	Category          string   `json:"category"`
	Fixations         int      `json:"fixations"`
	TotalFixationTime int64    `json:"total_fixation_time"`
	MeanFixationTime  *float64 `json:"mean_fixation_time"`
	Elements          int      `json:"elements"`
	MeanLFHF          *float64 `json:"mean_lfhf"`
	TotalLFHFDelta    float64  `json:"total_lfhf_delta"`

	timeSpans int
	lfhfSum   float64
}

// CategorySummary is the per-category table of a run
type CategorySummary struct {
	Rows       int             `json:"rows"`
	Categories []CategoryStats `json:"categories"`
}

// Lookup returns the stats for a category label
func (s *CategorySummary) Lookup(label string) (CategoryStats, bool) {
	for _, c := range s.Categories {
		if c.Category == label {
			return c, true
		}
	}
	return CategoryStats{}, false
}

// SummaryBuilder accumulates element rows one at a time
type SummaryBuilder struct {
	order []string
	stats map[string]*CategoryStats
	seen  []string
	rows  int
}

// NewSummaryBuilder orders output rows by order first, then by first appearance.
// A nil order uses first appearance only.
func NewSummaryBuilder(order LabelOrder) *SummaryBuilder {
	b := &SummaryBuilder{stats: make(map[string]*CategoryStats)}
	if order != nil {
		b.order = order.Labels()
	}
	return b
}

// Add folds one row into the summary. Rows without a category only count
// towards Rows.
func (b *SummaryBuilder) Add(rec domain.ElementRecord) {
	b.rows++
	if !rec.Category.IsSet() {
		return
	}

	label := rec.Category.Label
	st, ok := b.stats[label]
	if !ok {
		st = &CategoryStats{Category: label}
		b.stats[label] = st
		b.seen = append(b.seen, label)
	}

	if rec.Event == domain.EventFixationEnded {
		st.Fixations++
	}
	if rec.TimeSpan != nil {
		st.TotalFixationTime += *rec.TimeSpan
		st.timeSpans++
	}
	if rec.ElementLFHF != nil {
		st.Elements++
		st.lfhfSum += *rec.ElementLFHF
	}
	if rec.ElementLFHFDelta != nil {
		st.TotalLFHFDelta += *rec.ElementLFHFDelta
	}
}

// Summary finalizes means and returns the ordered table
func (b *SummaryBuilder) Summary() *CategorySummary {
	summary := &CategorySummary{Rows: b.rows, Categories: make([]CategoryStats, 0, len(b.stats))}

	emitted := make(map[string]bool, len(b.stats))
	emit := func(label string) {
		st, ok := b.stats[label]
		if !ok || emitted[label] {
			return
		}
		emitted[label] = true
		out := *st
		if out.timeSpans > 0 {
			mean := float64(out.TotalFixationTime) / float64(out.timeSpans)
			out.MeanFixationTime = &mean
		}
		if out.Elements > 0 {
			mean := out.lfhfSum / float64(out.Elements)
			out.MeanLFHF = &mean
		}
		summary.Categories = append(summary.Categories, out)
	}

	for _, label := range b.order {
		emit(label)
	}
	for _, label := range b.seen {
		emit(label)
	}
	return summary
}

// Summarize reads a stage-4 file and aggregates it per category
func Summarize(ctx context.Context, r io.Reader, order LabelOrder) (*CategorySummary, error) {
	b := NewSummaryBuilder(order)
	_, err := dataprocessing.ReadElements(ctx, r, dataprocessing.StageSummarize, func(rec domain.ElementRecord) error {
		b.Add(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.Summary(), nil
}

// WriteSummaryCSV writes the summary in the pipeline's plain CSV dialect
func WriteSummaryCSV(w io.Writer, summary *CategorySummary) error {
	rows := make([][]string, 0, len(summary.Categories))
	for _, c := range summary.Categories {
		rows = append(rows, summaryToCSVRow(c))
	}
	return writeLines(w, SummaryHeader, rows)
}

func summaryToCSVRow(c CategoryStats) []string {
	return []string{
		c.Category,
		strconv.Itoa(c.Fixations),
		strconv.FormatInt(c.TotalFixationTime, 10),
		domain.FormatOptionalMetric(c.MeanFixationTime),
		strconv.Itoa(c.Elements),
		domain.FormatOptionalMetric(c.MeanLFHF),
		domain.FormatMetric(c.TotalLFHFDelta),
	}
}
