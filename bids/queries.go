package bids

import "github.com/justapithecus/tractography/types"

// Remediation texts attached to missing-input errors.
const (
	producedByAcquisition = "check --participant-label, --session-label and --bids-filter-file"
	producedByAnatomical  = "run sMRIPrep (or the fMRIPrep anatomical workflow) and pass its output with --derivatives"
	producedByPreproc     = "enable the preprocessing stage with --preproc"
	producedByRecon       = "enable the reconstruction stage with --recon"
)

var (
	niftiExt = types.OneOf(".nii", ".nii.gz")
	hemis    = []string{"L", "R"}
)

// DefaultQueries returns the default query table in resolution order.
// Callers refine it with filters; the returned slice is freshly allocated.
func DefaultQueries() []types.FileQuery {
	return []types.FileQuery{
		{
			Name: "dwi",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("dwi"),
				types.EntitySuffix:    types.OneOf("dwi"),
				types.EntityDesc:      types.Absent(),
				types.EntitySpace:     types.Absent(),
				types.EntityExtension: niftiExt,
			},
			Origin:     types.OriginRaw,
			ProducedBy: producedByAcquisition,
		},
		{
			Name: "bval",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("dwi"),
				types.EntitySuffix:    types.OneOf("dwi"),
				types.EntityExtension: types.OneOf(".bval"),
			},
			Origin:     types.OriginRaw,
			ProducedBy: producedByAcquisition,
		},
		{
			Name: "bvec",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("dwi"),
				types.EntitySuffix:    types.OneOf("dwi"),
				types.EntityDesc:      types.Absent(),
				types.EntityExtension: types.OneOf(".bvec"),
			},
			Origin:     types.OriginRaw,
			ProducedBy: producedByAcquisition,
		},
		{
			Name: "t1w",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("anat"),
				types.EntitySuffix:    types.OneOf("T1w"),
				types.EntityDesc:      types.OneOf("preproc"),
				types.EntitySpace:     types.Absent(),
				types.EntityExtension: niftiExt,
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByAnatomical,
		},
		{
			Name: "brain_mask",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("anat"),
				types.EntitySuffix:    types.OneOf("mask"),
				types.EntityDesc:      types.OneOf("brain"),
				types.EntitySpace:     types.Absent(),
				types.EntityExtension: niftiExt,
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByAnatomical,
		},
		{
			Name: "ribbon_mask",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("anat"),
				types.EntitySuffix:    types.OneOf("mask"),
				types.EntityDesc:      types.OneOf("ribbon"),
				types.EntitySpace:     types.Absent(),
				types.EntityExtension: niftiExt,
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByAnatomical,
		},
		{
			Name: "fsnative2t1w_xfm",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("anat"),
				types.EntitySuffix:    types.OneOf("xfm"),
				types.EntityFrom:      types.OneOf("fsnative"),
				types.EntityTo:        types.OneOf("T1w"),
				types.EntityExtension: types.OneOf(".txt"),
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByAnatomical,
		},
		{
			Name: "white_surface",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("anat"),
				types.EntitySuffix:    types.OneOf("white"),
				types.EntityDesc:      types.Absent(),
				types.EntityExtension: types.OneOf(".surf.gii"),
			},
			Origin:     types.OriginDerivative,
			PairEntity: types.EntityHemi,
			PairValues: hemis,
			ProducedBy: producedByAnatomical,
		},
		{
			Name: "plot_recon_surface_on_t1",
			Constraints: types.Constraints{
				types.EntitySuffix:    types.OneOf("T1w"),
				types.EntityDesc:      types.OneOf("reconall"),
				types.EntityExtension: types.OneOf(".svg"),
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByAnatomical,
		},
		{
			Name: "plot_recon_segmentations_on_t1",
			Constraints: types.Constraints{
				types.EntitySuffix:    types.OneOf("dseg"),
				types.EntityExtension: types.OneOf(".svg"),
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByAnatomical,
		},
		{
			Name: "dwi_preproc",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("dwi"),
				types.EntitySuffix:    types.OneOf("dwi"),
				types.EntitySpace:     types.OneOf("individualT1"),
				types.EntityDesc:      types.OneOf("mppcadenoised+gibbsunringed+eddycorrected+bbreg"),
				types.EntityExtension: niftiExt,
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByPreproc,
		},
		{
			Name: "bvec_rotated",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("dwi"),
				types.EntitySuffix:    types.OneOf("dwi"),
				types.EntityDesc:      types.OneOf("rotated"),
				types.EntityExtension: types.OneOf(".bvec"),
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByPreproc,
		},
		{
			Name: "dwi_mask",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("dwi"),
				types.EntitySuffix:    types.OneOf("dwi"),
				types.EntitySpace:     types.OneOf("individualT1"),
				types.EntityDesc:      types.OneOf("mask+bbreg"),
				types.EntityExtension: niftiExt,
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByPreproc,
		},
		{
			Name: "shrunk_surface",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("anat"),
				types.EntitySuffix:    types.OneOf("white"),
				types.EntityDesc:      types.OneOf("shrunk"),
				types.EntityExtension: types.OneOf(".surf.gii"),
			},
			Origin:     types.OriginDerivative,
			PairEntity: types.EntityHemi,
			PairValues: hemis,
			ProducedBy: producedByRecon,
		},
		{
			Name: "template2t1w_xfm",
			Constraints: types.Constraints{
				types.EntityDatatype:  types.OneOf("anat"),
				types.EntitySuffix:    types.OneOf("xfm"),
				types.EntityFrom:      types.OneOf("template"),
				types.EntityTo:        types.OneOf("T1w"),
				types.EntityExtension: types.OneOf(".h5"),
			},
			Origin:     types.OriginDerivative,
			ProducedBy: producedByRecon,
		},
	}
}

// QueryNames returns the keys of a query list in order.
func QueryNames(queries []types.FileQuery) []string {
	out := make([]string, len(queries))
	for i, q := range queries {
		out[i] = q.Name
	}
	return out
}
