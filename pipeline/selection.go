// Package pipeline assembles the top-level processing stages of a run:
// preprocessing, reconstruction and tractography. Each stage is composed
// from leaf stages that run external tools, fed by a dataset source leaf
// and drained by a sink leaf that names and archives its outputs.
package pipeline

import (
	"fmt"
	"slices"
)

// Top-level stage names. They appear in output directory names, the run
// manifest and log fields.
const (
	StagePreprocessing  = "preprocessing"
	StageReconstruction = "reconstruction"
	StageTractography   = "tractography"
)

// Selection is the set of top-level stages requested for a run.
type Selection struct {
	Preproc bool
	Recon   bool
	Tracto  bool
}

// Stages returns the stages to run, in order.
//
// Tractography subsumes the other stages: their outputs are read from the
// dataset instead of recomputed. Reconstruction runs before preprocessing
// when both are selected. An empty selection runs reconstruction.
func (s Selection) Stages() []string {
	switch {
	case s.Tracto:
		return []string{StageTractography}
	case s.Recon && s.Preproc:
		return []string{StageReconstruction, StagePreprocessing}
	case s.Preproc:
		return []string{StagePreprocessing}
	default:
		return []string{StageReconstruction}
	}
}

// ParseStages builds a selection from stage names.
func ParseStages(names []string) (Selection, error) {
	var s Selection
	for _, n := range names {
		switch n {
		case StagePreprocessing, "preproc":
			s.Preproc = true
		case StageReconstruction, "recon":
			s.Recon = true
		case StageTractography, "tracto":
			s.Tracto = true
		default:
			return Selection{}, fmt.Errorf("unknown stage %q", n)
		}
	}
	return s, nil
}

// stageInputs lists the dataset file types each stage consumes.
var stageInputs = map[string][]string{
	StagePreprocessing:  {"dwi", "bval", "bvec", "t1w", "brain_mask"},
	StageReconstruction: {"t1w", "brain_mask", "ribbon_mask", "white_surface"},
	StageTractography:   {"bval", "t1w", "dwi_preproc", "bvec_rotated", "dwi_mask", "shrunk_surface", "template2t1w_xfm"},
}

// RequiredInputs returns the file types that must resolve for the given
// stages. Types outside this set may be absent.
func RequiredInputs(stages []string) map[string]bool {
	req := make(map[string]bool)
	for _, st := range stages {
		for _, name := range stageInputs[st] {
			req[name] = true
		}
	}
	return req
}

// Inputs returns the dataset file types a stage consumes, sorted.
func Inputs(stage string) []string {
	out := slices.Clone(stageInputs[stage])
	slices.Sort(out)
	return out
}
