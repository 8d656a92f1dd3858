package naming

// RulesVersion identifies the naming rule set. Bump it whenever a template
// changes so archived outputs can be traced to the rules that named them.
const RulesVersion = "4"

// Rule maps one emitted artifact to its canonical destination name.
type Rule struct {
	// Artifact is the identifier of the artifact, the output port a stage persists.
	Artifact string
	// Emits is the filename stem the external tool writes for this artifact.
	Emits string
	// Template is the canonical name without extension. "{label}" expands to
	// the identity label.
	Template string
	// Extension overrides the source file extension when set.
	Extension string
}

// DefaultRules returns the versioned rule set covering every artifact the
// built-in stages persist.
func DefaultRules() []Rule {
	return []Rule{
		// Preprocessing.
		{
			Artifact: "clipped_mask",
			Emits:    "clipped_mask",
			Template: "{label}_space-individualT1_desc-mask+bbreg_dwi",
		},
		{
			Artifact: "dwi_registered",
			Emits:    "vol0000_flirt_merged_warped",
			Template: "{label}_space-individualT1_desc-mppcadenoised+gibbsunringed+eddycorrected+bbreg_dwi",
		},
		{
			Artifact: "dwi_motion_corrected",
			Emits:    "vol0000_flirt_merged",
			Template: "{label}_desc-mppcadenoised+gibbsunringed+eddycorrected_dwi",
		},
		{
			Artifact: "registered_mean_bzero",
			Emits:    "registered_mean_bzero",
			Template: "{label}_space-individualT1_desc-mppcadenoised+gibbsunringed+eddycorrected+bbreg+meanb0_dwi",
		},
		{
			Artifact:  "bvec_rotated",
			Emits:     "dwi_rot",
			Template:  "{label}_desc-rotated_dwi",
			Extension: ".bvec",
		},

		// Reconstruction.
		{
			Artifact: "shrunk_surface_lh",
			Emits:    "white_shrunk_L",
			Template: "{label}_hemi-L_desc-shrunk_white",
		},
		{
			Artifact: "shrunk_surface_rh",
			Emits:    "white_shrunk_R",
			Template: "{label}_hemi-R_desc-shrunk_white",
		},
		{
			Artifact:  "template2t1w_xfm",
			Emits:     "template2t1w_Composite",
			Template:  "{label}_from-template_to-T1w_mode-image_xfm",
			Extension: ".h5",
		},

		// Tractography.
		{
			Artifact: "fdt_paths",
			Emits:    "fdt_paths",
			Template: "{label}_space-individualT1_desc-probtrackx2_tdi",
		},
		{
			Artifact: "fdt_matrix",
			Emits:    "fdt_matrix1",
			Template: "{label}_space-individualT1_desc-probtrackx2_conn",
		},
		{
			Artifact:  "waytotal",
			Emits:     "waytotal",
			Template:  "{label}_desc-probtrackx2+waytotal_dwi",
			Extension: ".txt",
		},
	}
}

// modalities maps a canonical filename suffix to its output subdirectory.
// Suffixes not listed use themselves as the directory name.
var modalities = map[string]string{
	"dwi":   "dwi",
	"tdi":   "dwi",
	"conn":  "dwi",
	"T1w":   "anat",
	"T2w":   "anat",
	"mask":  "anat",
	"dseg":  "anat",
	"xfm":   "anat",
	"white": "anat",
	"pial":  "anat",
}
