package pipeline

import (
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/stage"
)

// preprocessing denoises and motion-corrects the diffusion series, rotates
// the gradient table, registers the mean b0 to the T1w and clips the brain
// mask to diffusion space.
func (a *Assembler) preprocessing() (topStage, error) {
	in := stage.FilePort("in_file")
	out := func(name string) runtime.ToolOutput { return runtime.ToolOutput{Port: "out_file", File: name} }

	denoise := a.tool("dwidenoise", ProgramDenoise,
		[]stage.Port{in},
		[]string{"{in:in_file}", "{out:out_file}", "-force"},
		out("dwi_denoised.nii.gz"))

	degibbs := a.tool("mrdegibbs", ProgramDegibbs,
		[]stage.Port{in},
		[]string{"{in:in_file}", "{out:out_file}", "-force"},
		out("dwi_unringed.nii.gz"))

	// eddy_correct appends the extension itself and writes its log beside
	// the output.
	eddy := a.tool("eddy_correct", ProgramEddyCorrect,
		[]stage.Port{in},
		[]string{"{in:in_file}", "{outstem:out_file}", "0"},
		out("vol0000_flirt_merged.nii.gz"),
		runtime.ToolOutput{Port: "ecclog", File: "vol0000_flirt_merged.ecclog"})

	rotate := a.tool("rotate_bvecs", ProgramRotateBvecs,
		[]stage.Port{stage.FilePort("bvec"), stage.FilePort("ecclog")},
		[]string{"{in:bvec}", "{out:out_file}", "{in:ecclog}"},
		out("dwi_rot.bvec"))

	extract := a.tool("extract_bzero", ProgramExtract,
		[]stage.Port{in, stage.FilePort("bvec"), stage.FilePort("bval")},
		[]string{"{in:in_file}", "{out:out_file}", "-bzero", "-fslgrad", "{in:bvec}", "{in:bval}", "-force"},
		out("bzero.nii.gz"))

	mean := a.tool("mean_bzero", ProgramMath,
		[]stage.Port{in},
		[]string{"{in:in_file}", "mean", "{out:out_file}", "-axis", "3", "-force"},
		out("mean_bzero.nii.gz"))

	bbreg := a.tool("bbreg", ProgramFlirt,
		[]stage.Port{in, stage.FilePort("reference")},
		[]string{"-in", "{in:in_file}", "-ref", "{in:reference}", "-dof", "6",
			"-omat", "{out:out_matrix_file}", "-out", "{out:out_file}"},
		out("registered_mean_bzero.nii.gz"),
		runtime.ToolOutput{Port: "out_matrix_file", File: "dwi2t1w.mat"})

	apply := a.tool("apply_registration", ProgramFlirt,
		[]stage.Port{in, stage.FilePort("reference"), stage.FilePort("in_matrix_file")},
		[]string{"-in", "{in:in_file}", "-ref", "{in:reference}", "-applyxfm",
			"-init", "{in:in_matrix_file}", "-out", "{out:out_file}"},
		out("vol0000_flirt_merged_warped.nii.gz"))

	clip := a.tool("clip_mask", ProgramGrid,
		[]stage.Port{in, stage.FilePort("template")},
		[]string{"{in:in_file}", "regrid", "-template", "{in:template}", "-interp", "nearest", "{out:out_file}", "-force"},
		out("clipped_mask.nii.gz"))

	core, err := stage.NewBuilder("preprocess").
		Add(denoise, degibbs, eddy, rotate, extract, mean, bbreg, apply, clip).
		Connect("dwidenoise", "out_file", "mrdegibbs", "in_file").
		Connect("mrdegibbs", "out_file", "eddy_correct", "in_file").
		Connect("eddy_correct", "ecclog", "rotate_bvecs", "ecclog").
		Connect("eddy_correct", "out_file", "extract_bzero", "in_file").
		Connect("extract_bzero", "out_file", "mean_bzero", "in_file").
		Connect("mean_bzero", "out_file", "bbreg", "in_file").
		Connect("eddy_correct", "out_file", "apply_registration", "in_file").
		Connect("bbreg", "out_matrix_file", "apply_registration", "in_matrix_file").
		Connect("bbreg", "out_file", "clip_mask", "template").
		Nest()
	if err != nil {
		return topStage{}, err
	}

	return topStage{
		core: core,
		inputs: map[string]string{
			"dwidenoise.in_file":           "dwi",
			"rotate_bvecs.bvec":            "bvec",
			"extract_bzero.bvec":           "bvec",
			"extract_bzero.bval":           "bval",
			"bbreg.reference":              "t1w",
			"apply_registration.reference": "t1w",
			"clip_mask.in_file":            "brain_mask",
		},
		outputs: map[string]string{
			"clipped_mask":          "clip_mask.out_file",
			"dwi_registered":        "apply_registration.out_file",
			"dwi_motion_corrected":  "eddy_correct.out_file",
			"registered_mean_bzero": "bbreg.out_file",
			"bvec_rotated":          "rotate_bvecs.out_file",
		},
	}, nil
}
