package reader

import (
	"testing"

	"github.com/justapithecus/tractography/types"
)

func TestDescribeResolved(t *testing.T) {
	lh := "/d/derivatives/sub-01/anat/sub-01_hemi-L_white.surf.gii"
	rh := "/d/derivatives/sub-01/anat/sub-01_hemi-R_white.surf.gii"
	dwi := "/d/sub-01/ses-pre/dwi/sub-01_ses-pre_dwi.nii.gz"

	ds := types.NewResolvedDataset(
		types.Identity{Subject: "01", Session: "pre"},
		[]string{"dwi", "white_surface"},
		map[string][]types.CandidateFile{
			"dwi":           {types.NewCandidateFile(dwi, types.Entities{"subject": "01"}, false)},
			"white_surface": {types.NewCandidateFile(lh, nil, true), types.NewCandidateFile(rh, nil, true)},
		},
	)

	got := DescribeResolved(ds)
	if got.Subject != "01" || got.Session != "pre" {
		t.Errorf("identity = %s/%s", got.Subject, got.Session)
	}
	want := []ResolvedFile{
		{FileType: "dwi", Path: dwi},
		{FileType: "white_surface", Path: lh, Derivative: true},
		{FileType: "white_surface", Path: rh, Derivative: true},
	}
	if len(got.Files) != len(want) {
		t.Fatalf("files = %+v", got.Files)
	}
	for i := range want {
		if got.Files[i] != want[i] {
			t.Errorf("file %d = %+v, want %+v", i, got.Files[i], want[i])
		}
	}
}
