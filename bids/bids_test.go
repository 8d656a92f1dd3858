package bids

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

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
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

// fiveFileDataset lays out a raw dwi acquisition and sMRIPrep anatomicals
// for subject 01.
func fiveFileDataset(t *testing.T) *Index {
	t.Helper()
	raw := t.TempDir()
	deriv := t.TempDir()
	writeTree(t, raw,
		"dataset_description.json",
		"sub-01/dwi/sub-01_dwi.nii.gz",
		"sub-01/dwi/sub-01_dwi.bval",
		"sub-01/dwi/sub-01_dwi.bvec",
		"sub-01/anat/sub-01_T1w.nii.gz",
		"derivatives/ignored/sub-01/anat/sub-01_desc-preproc_T1w.nii.gz",
	)
	writeTree(t, deriv,
		"sub-01/anat/sub-01_desc-preproc_T1w.nii.gz",
		"sub-01/anat/sub-01_desc-brain_mask.nii.gz",
		"sub-01/anat/sub-01_space-MNI152NLin2009cAsym_desc-preproc_T1w.nii.gz",
	)
	idx, err := NewIndex(Root{Path: raw}, Root{Path: deriv, Derivative: true})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	return idx
}

func required(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func TestParseEntities(t *testing.T) {
	e := ParseEntities("sub-01/ses-pre/dwi/sub-01_ses-pre_acq-multishell_dir-AP_dwi.nii.gz")

	want := map[string]string{
		types.EntitySubject:     "01",
		types.EntitySession:     "pre",
		types.EntityAcquisition: "multishell",
		types.EntityDirection:   "AP",
		types.EntitySuffix:      "dwi",
		types.EntityExtension:   ".nii.gz",
		types.EntityDatatype:    "dwi",
	}
	for k, v := range want {
		if got, _ := e.Get(k); got != v {
			t.Errorf("%s: got %q, want %q", k, got, v)
		}
	}
}

func TestParseEntities_SurfaceExtension(t *testing.T) {
	e := ParseEntities("sub-01/anat/sub-01_hemi-L_white.surf.gii")
	if got, _ := e.Get(types.EntityExtension); got != ".surf.gii" {
		t.Errorf("extension = %q", got)
	}
	if got, _ := e.Get(types.EntityHemi); got != "L" {
		t.Errorf("hemi = %q", got)
	}
}

func TestIndex_SkipsRawDerivativesDir(t *testing.T) {
	idx := fiveFileDataset(t)
	for _, f := range idx.Files() {
		if strings.Contains(f.Path(), "ignored") {
			t.Errorf("raw root indexed derivatives file %s", f.Path())
		}
	}
	if got := idx.Subjects(); !slices.Equal(got, []string{"01"}) {
		t.Errorf("subjects = %v", got)
	}
}

func TestResolve_FiveFiles(t *testing.T) {
	r := NewResolver(fiveFileDataset(t))

	ds, err := r.Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Required: required("dwi", "bval", "bvec", "t1w", "brain_mask"),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := []string{"dwi", "bval", "bvec", "t1w", "brain_mask"}
	if got := ds.Names(); !slices.Equal(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}

	t1, _ := ds.File("t1w")
	if !t1.Derivative() || strings.Contains(t1.Path(), "space-") {
		t.Errorf("t1w resolved to %s", t1.Path())
	}
	dwi, _ := ds.File("dwi")
	if dwi.Derivative() {
		t.Errorf("dwi resolved to a derivative: %s", dwi.Path())
	}
}

func TestResolve_MissingRibbonMask(t *testing.T) {
	r := NewResolver(fiveFileDataset(t))

	_, err := r.Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Required: required("t1w", "brain_mask", "ribbon_mask", "white_surface"),
	})
	if !errors.Is(err, ErrMissingRequiredInput) {
		t.Fatalf("expected ErrMissingRequiredInput, got %v", err)
	}
	var missing *MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingInputError, got %T", err)
	}
	if missing.FileType != "ribbon_mask" {
		t.Errorf("file type = %q, want ribbon_mask", missing.FileType)
	}
	if !strings.Contains(err.Error(), "--derivatives") {
		t.Errorf("error lacks remediation: %v", err)
	}
}

func TestResolve_ConflictingSubjectFilter(t *testing.T) {
	// Index with no roots: the conflict must be reported before any lookup.
	r := NewResolver(NewIndexFromFiles(nil))

	_, err := r.Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Filters:  Filters{"dwi": {types.EntitySubject: types.OneOf("02")}},
		Required: required("dwi"),
	})
	if !errors.Is(err, ErrConflictingFilter) {
		t.Fatalf("expected ErrConflictingFilter, got %v", err)
	}
}

func TestResolve_RestatedIdentityIsAllowed(t *testing.T) {
	r := NewResolver(fiveFileDataset(t))

	_, err := r.Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Filters:  Filters{"dwi": {types.EntitySubject: types.OneOf("01")}},
		Required: required("dwi"),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestResolve_AmbiguousRaw(t *testing.T) {
	raw := t.TempDir()
	writeTree(t, raw,
		"sub-01/dwi/sub-01_acq-a_dwi.nii.gz",
		"sub-01/dwi/sub-01_acq-b_dwi.nii.gz",
	)
	idx, err := NewIndex(Root{Path: raw})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	r := NewResolver(idx)

	_, err = r.Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Required: required("dwi"),
	})
	if !errors.Is(err, ErrResolutionCardinality) {
		t.Fatalf("expected ErrResolutionCardinality, got %v", err)
	}

	ds, err := r.Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Filters:  Filters{"dwi": {types.EntityAcquisition: types.OneOf("b")}},
		Required: required("dwi"),
	})
	if err != nil {
		t.Fatalf("filtered resolve: %v", err)
	}
	dwi, _ := ds.File("dwi")
	if !strings.HasSuffix(dwi.Path(), "sub-01_acq-b_dwi.nii.gz") {
		t.Errorf("filter picked %s", dwi.Path())
	}
}

func TestResolve_AbsentEntityFilter(t *testing.T) {
	raw := t.TempDir()
	writeTree(t, raw,
		"sub-01/dwi/sub-01_dwi.nii.gz",
		"sub-01/dwi/sub-01_part-phase_dwi.nii.gz",
	)
	idx, err := NewIndex(Root{Path: raw})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	filters, err := ParseFilters([]byte(`{"dwi": {"part": null}}`))
	if err != nil {
		t.Fatalf("parse filters: %v", err)
	}
	ds, err := NewResolver(idx).Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Filters:  filters,
		Required: required("dwi"),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	dwi, _ := ds.File("dwi")
	if strings.Contains(dwi.Path(), "part-") {
		t.Errorf("null filter kept %s", dwi.Path())
	}
}

func TestResolve_PairedSurfacesOrderedLeftRight(t *testing.T) {
	deriv := t.TempDir()
	writeTree(t, deriv,
		"sub-01/anat/sub-01_hemi-R_white.surf.gii",
		"sub-01/anat/sub-01_hemi-L_white.surf.gii",
	)
	idx, err := NewIndex(Root{Path: deriv, Derivative: true})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	ds, err := NewResolver(idx).Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Required: required("white_surface"),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	files := ds.Files("white_surface")
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if h, _ := files[0].Entity(types.EntityHemi); h != "L" {
		t.Errorf("first hemisphere = %q, want L", h)
	}
	if h, _ := files[1].Entity(types.EntityHemi); h != "R" {
		t.Errorf("second hemisphere = %q, want R", h)
	}
}

func TestResolve_UnknownFilterFileType(t *testing.T) {
	r := NewResolver(NewIndexFromFiles(nil))
	_, err := r.Resolve(Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Filters:  Filters{"flair": {types.EntityAcquisition: types.OneOf("x")}},
	})
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestResolveAll_SessionPolicies(t *testing.T) {
	raw := t.TempDir()
	writeTree(t, raw,
		"sub-01/ses-a/dwi/sub-01_ses-a_dwi.nii.gz",
		"sub-01/ses-b/dwi/sub-01_ses-b_dwi.nii.gz",
	)
	idx, err := NewIndex(Root{Path: raw})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	r := NewResolver(idx)
	req := Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Required: required("dwi"),
	}

	each, err := r.ResolveAll(req, SessionEach)
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if len(each) != 2 || each[0].Identity().Session != "a" || each[1].Identity().Session != "b" {
		t.Errorf("each resolved %d datasets", len(each))
	}

	first, err := r.ResolveAll(req, SessionFirst)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(first) != 1 || first[0].Identity().Session != "a" {
		t.Errorf("first policy resolved %d datasets", len(first))
	}

	if _, err := r.ResolveAll(req, SessionAny); !errors.Is(err, ErrResolutionCardinality) {
		t.Errorf("any policy over two sessions: expected cardinality error, got %v", err)
	}
}

func TestResolveAll_SessionlessDerivatives(t *testing.T) {
	raw, deriv := t.TempDir(), t.TempDir()
	writeTree(t, raw,
		"sub-01/ses-1/dwi/sub-01_ses-1_dwi.nii.gz",
		"sub-01/ses-1/dwi/sub-01_ses-1_dwi.bval",
		"sub-01/ses-1/dwi/sub-01_ses-1_dwi.bvec",
	)
	writeTree(t, deriv,
		"sub-01/anat/sub-01_desc-preproc_T1w.nii.gz",
		"sub-01/anat/sub-01_desc-brain_mask.nii.gz",
	)
	idx, err := NewIndex(Root{Path: raw}, Root{Path: deriv, Derivative: true})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	r := NewResolver(idx)
	req := Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Required: required("dwi", "bval", "bvec", "t1w", "brain_mask"),
	}

	for _, policy := range []SessionPolicy{SessionEach, SessionFirst} {
		got, err := r.ResolveAll(req, policy)
		if err != nil {
			t.Fatalf("%s: %v", policy, err)
		}
		if len(got) != 1 || got[0].Identity().Session != "1" {
			t.Fatalf("%s resolved %d datasets", policy, len(got))
		}
		t1, _ := got[0].File("t1w")
		if !t1.Derivative() {
			t.Errorf("%s: t1w resolved to %s", policy, t1.Path())
		}
	}

	// A session the caller asks for stays strict.
	strict := req
	strict.Identity.Session = "1"
	if _, err := r.Resolve(strict); !errors.Is(err, ErrMissingRequiredInput) {
		t.Errorf("explicit session: expected ErrMissingRequiredInput, got %v", err)
	}
}

func TestResolveAll_SessionFilterSkipsOtherSessions(t *testing.T) {
	raw := t.TempDir()
	writeTree(t, raw,
		"sub-01/ses-a/dwi/sub-01_ses-a_dwi.nii.gz",
		"sub-01/ses-b/dwi/sub-01_ses-b_dwi.nii.gz",
	)
	idx, err := NewIndex(Root{Path: raw})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	r := NewResolver(idx)
	req := Request{
		Identity: types.Identity{Subject: "01"},
		Queries:  DefaultQueries(),
		Required: required("dwi"),
		Filters:  Filters{"dwi": {types.EntitySession: types.OneOf("b")}},
	}

	got, err := r.ResolveAll(req, SessionEach)
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if len(got) != 1 || got[0].Identity().Session != "b" {
		t.Fatalf("each resolved %d datasets", len(got))
	}

	first, err := r.ResolveAll(req, SessionFirst)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(first) != 1 || first[0].Identity().Session != "b" {
		t.Errorf("first policy picked %q", first[0].Identity().Session)
	}

	req.Filters = Filters{"dwi": {types.EntitySession: types.OneOf("c")}}
	if _, err := r.ResolveAll(req, SessionEach); !errors.Is(err, ErrConflictingFilter) {
		t.Errorf("filter excluding every session: expected ErrConflictingFilter, got %v", err)
	}
}

func TestParseFilters_Invalid(t *testing.T) {
	tests := []string{
		`not json`,
		`{"dwi": {"acq": 3}}`,
		`{"dwi": {"acq": []}}`,
	}
	for _, in := range tests {
		if _, err := ParseFilters([]byte(in)); !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("ParseFilters(%s): expected ErrInvalidFilter, got %v", in, err)
		}
	}
}

func TestParseFilters_ShortKeys(t *testing.T) {
	f, err := ParseFilters([]byte(`{"dwi": {"acq": ["b", "a"], "ses": "pre"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := f["dwi"][types.EntityAcquisition].Values(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("acquisition = %v", got)
	}
	if !f["dwi"][types.EntitySession].Equal(types.OneOf("pre")) {
		t.Errorf("session = %s", f["dwi"][types.EntitySession])
	}
}
