package files

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// RunIDLayout formats generated run identifiers (YYYYMMDDhhmmss)
const RunIDLayout = "20060102150405"

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Artifact names one file a run produces
type Artifact string

const (
	ArtifactFiltered     Artifact = "step_1_filtered_rows.csv"
	ArtifactCategorized  Artifact = "step_2_categorized.csv"
	ArtifactInterpolated Artifact = "step_3_interpolated_lfhf.csv"
	ArtifactProcessed    Artifact = "step_4_processed_lfhf.csv"
	ArtifactSummary      Artifact = "step_5_category_summary.csv"
	ArtifactWorkbook     Artifact = "report.xlsx"
	ArtifactManifest     Artifact = "manifest.json"
)

// StageArtifacts lists the four stage outputs in pipeline order
var StageArtifacts = []Artifact{ArtifactFiltered, ArtifactCategorized, ArtifactInterpolated, ArtifactProcessed}

// RunLayout places every artifact of one run under <OutputDir>/<RunID>/
type RunLayout struct {
	OutputDir string
	RunID     string
}

// NewRunLayout validates the run identifier
func NewRunLayout(outputDir, runID string) (RunLayout, error) {
	if err := ValidateRunID(runID); err != nil {
		return RunLayout{}, err
	}
	if outputDir == "" {
		return RunLayout{}, fmt.Errorf("output directory is required")
	}
	return RunLayout{OutputDir: outputDir, RunID: runID}, nil
}

// ValidateRunID rejects identifiers that would escape the run directory
func ValidateRunID(runID string) error {
	if !runIDPattern.MatchString(runID) {
		return fmt.Errorf("invalid run identifier %q: use letters, digits, '.', '_' or '-'", runID)
	}
	return nil
}

// DefaultRunID returns the identifier used when none is given
func DefaultRunID(now time.Time) string {
	return now.Format(RunIDLayout)
}

// Dir is the run directory
func (l RunLayout) Dir() string {
	return filepath.Join(l.OutputDir, l.RunID)
}

// Path returns "<dir>/<id>_<artifact>"
func (l RunLayout) Path(a Artifact) string {
	return filepath.Join(l.Dir(), l.RunID+"_"+string(a))
}
