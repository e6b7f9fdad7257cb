package operations

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"

	"etaanalyzer/internal/files"
)

// RunManifest is written as <id>_manifest.json at the end of every run,
// successful or not. Output digests let a rerun be compared byte for byte.
type RunManifest struct {
	RunID     string               `json:"run_id"`
	Source    string               `json:"source"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   time.Time            `json:"end_time"`
	Duration  string               `json:"duration"`

	Config      ManifestConfig   `json:"config"`
	Stages      []StageExecution `json:"stages"`
	RowsDropped int              `json:"rows_dropped"`
	Outputs     []OutputDigest   `json:"outputs"`

	Error string `json:"error,omitempty"`
}

// ManifestConfig records the settings a run was processed with
type ManifestConfig struct {
	OutputDir         string   `json:"output_dir"`
	InputEncoding     string   `json:"input_encoding"`
	OutputEncoding    string   `json:"output_encoding"`
	HeaderPolicy      string   `json:"header_policy"`
	SequencePolicy    string   `json:"sequence_policy"`
	WriteLFHFComputed bool     `json:"write_lfhf_computed"`
	Categories        []string `json:"categories"`
}

// StageExecution tracks the execution of a single step
type StageExecution struct {
	StageID     string     `json:"stage_id"`
	StageName   string     `json:"stage_name"`
	Status      StepStatus `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	RowsRead    int        `json:"rows_read"`
	RowsWritten int        `json:"rows_written"`
	RowsDropped int        `json:"rows_dropped"`
	Warnings    int        `json:"warnings"`
	Outputs     []string   `json:"outputs,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// OutputDigest identifies one committed file
type OutputDigest struct {
	Stage  string `json:"stage"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"blake2b_256"`
}

// BuildManifest snapshots a finished run. Every committed step output is hashed.
func BuildManifest(state *OperationState) (*RunManifest, error) {
	snap := state.Clone()

	m := &RunManifest{
		RunID:     snap.ID,
		Status:    snap.Status,
		StartTime: snap.StartTime,
		Stages:    make([]StageExecution, 0, len(snap.Steps)),
		Outputs:   make([]OutputDigest, 0, len(snap.Steps)),
	}
	if snap.EndTime != nil {
		m.EndTime = *snap.EndTime
	} else {
		m.EndTime = time.Now()
	}
	m.Duration = m.EndTime.Sub(m.StartTime).String()
	if snap.Error != nil {
		m.Error = snap.Error.Error()
	}

	if spec := snap.Spec; spec != nil {
		m.Source = spec.Source
		m.Config = ManifestConfig{
			OutputDir:         spec.Layout.OutputDir,
			InputEncoding:     string(spec.InputEncoding),
			OutputEncoding:    string(spec.OutputEncoding),
			HeaderPolicy:      string(spec.Options.HeaderPolicy),
			SequencePolicy:    string(spec.Options.SequencePolicy),
			WriteLFHFComputed: spec.Options.WriteLFHFComputed,
			Categories:        spec.Options.Categories().Labels(),
		}
	}

	for _, id := range snap.order {
		step := snap.Steps[id]
		exec := StageExecution{
			StageID:    step.ID,
			StageName:  step.Name,
			Status:     step.Status,
			StartTime:  step.StartTime,
			EndTime:    step.EndTime,
			DurationMS: step.Duration().Milliseconds(),
			Outputs:    step.Outputs,
		}
		if step.Status == StepStatusSkipped {
			exec.Error = step.Message
		}
		if step.Error != nil {
			exec.Error = step.Error.Error()
		}
		if step.Stats != nil {
			exec.RowsRead = step.Stats.RowsRead
			exec.RowsWritten = step.Stats.RowsWritten
			exec.RowsDropped = step.Stats.RowsDropped
			exec.Warnings = step.Stats.Warnings
			m.RowsDropped += step.Stats.RowsDropped
		}
		m.Stages = append(m.Stages, exec)

		if step.Status != StepStatusCompleted {
			continue
		}
		for _, path := range step.Outputs {
			digest, size, err := DigestFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to digest %s: %w", path, err)
			}
			m.Outputs = append(m.Outputs, OutputDigest{Stage: step.ID, Path: path, Size: size, Digest: digest})
		}
	}

	return m, nil
}

// DigestFile returns the hex BLAKE2b-256 of a file and its size
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// SaveToFile writes the manifest atomically
func (m *RunManifest) SaveToFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	af, err := files.CreateAtomic(path)
	if err != nil {
		return err
	}
	defer af.Abort()

	if _, err := af.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return af.Commit()
}

// LoadManifestFromFile loads a manifest from a JSON file
func LoadManifestFromFile(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &manifest, nil
}

// Digest returns the digest recorded for an output path
func (m *RunManifest) Digest(path string) (string, bool) {
	for _, o := range m.Outputs {
		if o.Path == path {
			return o.Digest, true
		}
	}
	return "", false
}
