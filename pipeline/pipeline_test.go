package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/types"
)

// writeTree creates empty files at the given relative paths under root.
func writeTree(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, filepath.FromSlash(r))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(r), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

// testDataset lays out raw diffusion data plus the derivatives every stage
// consumes for subject 01, and returns the raw and derivative roots.
func testDataset(t *testing.T) (raw, deriv string) {
	t.Helper()
	raw = t.TempDir()
	deriv = t.TempDir()
	writeTree(t, raw,
		"dataset_description.json",
		"sub-01/dwi/sub-01_dwi.nii.gz",
		"sub-01/dwi/sub-01_dwi.bval",
		"sub-01/dwi/sub-01_dwi.bvec",
		"sub-01/anat/sub-01_T1w.nii.gz",
	)
	writeTree(t, deriv,
		"sub-01/anat/sub-01_desc-preproc_T1w.nii.gz",
		"sub-01/anat/sub-01_desc-brain_mask.nii.gz",
		"sub-01/anat/sub-01_desc-ribbon_mask.nii.gz",
		"sub-01/anat/sub-01_hemi-L_white.surf.gii",
		"sub-01/anat/sub-01_hemi-R_white.surf.gii",
		"sub-01/anat/sub-01_hemi-L_desc-shrunk_white.surf.gii",
		"sub-01/anat/sub-01_hemi-R_desc-shrunk_white.surf.gii",
		"sub-01/anat/sub-01_from-template_to-T1w_mode-image_xfm.h5",
		"sub-01/dwi/sub-01_space-individualT1_desc-mppcadenoised+gibbsunringed+eddycorrected+bbreg_dwi.nii.gz",
		"sub-01/dwi/sub-01_space-individualT1_desc-mask+bbreg_dwi.nii.gz",
		"sub-01/dwi/sub-01_desc-rotated_dwi.bvec",
	)
	return raw, deriv
}

// resolved resolves subject 01 of testDataset for the given stages.
func resolved(t *testing.T, stages ...string) *types.ResolvedDataset {
	t.Helper()
	raw, deriv := testDataset(t)
	d, err := OpenDataset(DatasetConfig{BIDSDir: raw, Derivatives: []string{deriv}})
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	all, err := d.Resolve(stages)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("resolved %d datasets, want 1", len(all))
	}
	return all[0]
}

// fixedDataset builds a resolved dataset without touching the filesystem.
func fixedDataset(entries map[string][]string) *types.ResolvedDataset {
	order := make([]string, 0, len(entries))
	files := make(map[string][]types.CandidateFile, len(entries))
	for _, q := range bids.DefaultQueries() {
		paths, ok := entries[q.Name]
		if !ok {
			continue
		}
		order = append(order, q.Name)
		for _, p := range paths {
			files[q.Name] = append(files[q.Name], types.NewCandidateFile(p, bids.ParseEntities(p), true))
		}
	}
	return types.NewResolvedDataset(types.Identity{Subject: "01"}, order, files)
}
