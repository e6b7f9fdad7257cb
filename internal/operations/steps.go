package operations

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"etaanalyzer/internal/dataprocessing"
	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/internal/exporter"
	"etaanalyzer/internal/files"
	"etaanalyzer/pkg/contracts/domain"
)

// stageFunc is the signature shared by the four streaming stages
type stageFunc func(ctx context.Context, r io.Reader, w io.Writer, opts dataprocessing.Options) (dataprocessing.StageStats, error)

// StageStep runs one streaming stage from its input file into its artifact.
// The artifact only appears under its final name once the stage succeeded.
type StageStep struct {
	BaseStage
	files  *files.Manager
	logger *slog.Logger
	run    stageFunc
	input  files.Artifact // empty reads the run source
	output files.Artifact
}

// PipelineSteps returns the five steps of a run in pipeline order
func PipelineSteps(fm *files.Manager, logger *slog.Logger) []Step {
	if fm == nil {
		fm = files.NewManager("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return []Step{
		NewStageStep(fm, logger, StepIDProject, StepNameProject, nil,
			dataprocessing.ProjectRows, "", files.ArtifactFiltered),
		NewStageStep(fm, logger, StepIDCategorize, StepNameCategorize, []string{StepIDProject},
			dataprocessing.CategorizeRows, files.ArtifactFiltered, files.ArtifactCategorized),
		NewStageStep(fm, logger, StepIDInterpolate, StepNameInterpolate, []string{StepIDCategorize},
			dataprocessing.InterpolateRows, files.ArtifactCategorized, files.ArtifactInterpolated),
		NewStageStep(fm, logger, StepIDDerive, StepNameDerive, []string{StepIDInterpolate},
			dataprocessing.DeriveRows, files.ArtifactInterpolated, files.ArtifactProcessed),
		NewSummarizeStep(fm, logger),
	}
}

// NewStageStep creates a streaming stage step
func NewStageStep(fm *files.Manager, logger *slog.Logger, id, name string, deps []string, run stageFunc, input, output files.Artifact) *StageStep {
	return &StageStep{
		BaseStage: NewBaseStage(id, name, deps),
		files:     fm,
		logger:    logger,
		run:       run,
		input:     input,
		output:    output,
	}
}

// inputOf resolves the file a stage reads and the encoding it is stored in
func (s *StageStep) inputOf(spec *RunSpec) (string, files.Encoding) {
	if s.input == "" {
		return spec.Source, spec.InputEncoding
	}
	return spec.Layout.Path(s.input), spec.OutputEncoding
}

// Execute streams the input through the stage into a committed artifact
func (s *StageStep) Execute(ctx context.Context, state *OperationState) error {
	spec := state.Spec
	inPath, inEnc := s.inputOf(spec)
	outPath := spec.Layout.Path(s.output)

	in, err := s.files.OpenText(inPath, inEnc)
	if err != nil {
		return apperrors.NewIOError(s.ID(), inPath, err)
	}
	defer in.Close()

	out, err := s.files.CreateText(outPath, spec.OutputEncoding)
	if err != nil {
		return apperrors.NewIOError(s.ID(), outPath, err)
	}
	defer out.Abort()

	opts := spec.Options
	opts.InputPath = inPath
	opts.OutputPath = outPath
	opts.Logger = s.logger.With(slog.String("run_id", state.ID), slog.String("stage", s.ID()))

	stats, err := s.run(ctx, in, out, opts)
	if err != nil {
		return err
	}
	if err := out.Commit(); err != nil {
		return apperrors.NewIOError(s.ID(), outPath, err)
	}

	if st := state.GetStage(s.ID()); st != nil {
		st.Record(stats, outPath)
	}
	s.logger.InfoContext(ctx, "output_committed",
		slog.String("run_id", state.ID),
		slog.String("stage", s.ID()),
		slog.String("path", outPath),
		slog.Int("rows_written", stats.RowsWritten),
		slog.Int("rows_dropped", stats.RowsDropped))
	return nil
}

// SummarizeStep aggregates the stage 4 file per category and writes the
// summary CSV and the xlsx workbook in one pass over the file.
type SummarizeStep struct {
	BaseStage
	files  *files.Manager
	logger *slog.Logger
}

// NewSummarizeStep creates the summary step
func NewSummarizeStep(fm *files.Manager, logger *slog.Logger) *SummarizeStep {
	return &SummarizeStep{
		BaseStage: NewBaseStage(StepIDSummarize, StepNameSummarize, []string{StepIDDerive}),
		files:     fm,
		logger:    logger,
	}
}

// ShouldSkip skips the step when neither output is wanted
func (s *SummarizeStep) ShouldSkip(state *OperationState) (bool, string) {
	if state.Spec != nil && state.Spec.SkipSummary && state.Spec.SkipWorkbook {
		return true, "summary and workbook disabled"
	}
	return false, ""
}

// Execute builds the summary and the enabled outputs
func (s *SummarizeStep) Execute(ctx context.Context, state *OperationState) error {
	spec := state.Spec
	inPath := spec.Layout.Path(files.ArtifactProcessed)
	workbookPath := spec.Layout.Path(files.ArtifactWorkbook)

	in, err := s.files.OpenText(inPath, spec.OutputEncoding)
	if err != nil {
		return apperrors.NewIOError(s.ID(), inPath, err)
	}
	defer in.Close()

	var workbook *exporter.WorkbookReporter
	if !spec.SkipWorkbook {
		workbook, err = exporter.NewWorkbookReporter()
		if err != nil {
			return apperrors.NewIOError(s.ID(), workbookPath, err)
		}
		defer workbook.Close()
	}

	builder := exporter.NewSummaryBuilder(spec.Options.Categories())
	rows, err := dataprocessing.ReadElements(ctx, in, s.ID(), func(rec domain.ElementRecord) error {
		builder.Add(rec)
		if workbook == nil {
			return nil
		}
		if err := workbook.AddElement(rec); err != nil {
			return apperrors.NewIOError(s.ID(), workbookPath, err)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Path == "" {
			appErr.AtPath(inPath)
		}
		return err
	}
	summary := builder.Summary()

	var outputs []string
	if !spec.SkipSummary {
		path, err := s.writeSummary(spec, summary)
		if err != nil {
			return err
		}
		outputs = append(outputs, path)
	}
	if workbook != nil {
		if err := s.writeWorkbook(workbookPath, workbook, summary); err != nil {
			return err
		}
		outputs = append(outputs, workbookPath)
	}

	state.SetSummary(summary)
	if st := state.GetStage(s.ID()); st != nil {
		st.Record(dataprocessing.StageStats{
			Stage:       s.ID(),
			RowsRead:    rows,
			RowsWritten: len(summary.Categories),
		}, outputs...)
	}
	for _, path := range outputs {
		s.logger.InfoContext(ctx, "output_committed",
			slog.String("run_id", state.ID),
			slog.String("stage", s.ID()),
			slog.String("path", path))
	}
	return nil
}

func (s *SummarizeStep) writeSummary(spec *RunSpec, summary *exporter.CategorySummary) (string, error) {
	path := spec.Layout.Path(files.ArtifactSummary)
	out, err := s.files.CreateText(path, spec.OutputEncoding)
	if err != nil {
		return "", apperrors.NewIOError(s.ID(), path, err)
	}
	defer out.Abort()

	if err := exporter.WriteSummaryCSV(out, summary); err != nil {
		return "", apperrors.NewIOError(s.ID(), path, err)
	}
	if err := out.Commit(); err != nil {
		return "", apperrors.NewIOError(s.ID(), path, err)
	}
	return path, nil
}

// writeWorkbook commits the xlsx; it is binary, so the output encoding does not apply
func (s *SummarizeStep) writeWorkbook(path string, workbook *exporter.WorkbookReporter, summary *exporter.CategorySummary) error {
	af, err := files.CreateAtomic(path)
	if err != nil {
		return apperrors.NewIOError(s.ID(), path, err)
	}
	defer af.Abort()

	if err := workbook.WriteTo(af, summary); err != nil {
		return apperrors.NewIOError(s.ID(), path, err)
	}
	if err := af.Commit(); err != nil {
		return apperrors.NewIOError(s.ID(), path, err)
	}
	return nil
}
