package pipeline

import (
	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/stage"
)

// reconstruction shrinks both white surfaces into the white matter and
// registers the template to the subject's T1w.
func (a *Assembler) reconstruction() (topStage, error) {
	if a.opts.TemplateT1w == "" {
		return topStage{}, &bids.MissingInputError{
			FileType:   "template_t1w",
			Query:      "template.t1w",
			ProducedBy: "set template.t1w in the config file or --template-t1w",
		}
	}

	register := a.tool("template_registration", ProgramRegistration,
		[]stage.Port{stage.FilePort("fixed_image"), stage.FilePort("fixed_mask"), stage.FilePort("moving_image")},
		[]string{
			"--dimensionality", "3",
			"--output", "{workdir}/template2t1w_",
			"--write-composite-transform", "1",
			"--initial-moving-transform", "[{in:fixed_image},{in:moving_image},1]",
			"--transform", "Rigid[0.1]",
			"--metric", "MI[{in:fixed_image},{in:moving_image},1,32,Regular,0.25]",
			"--convergence", "[1000x500x250x100,1e-6,10]",
			"--shrink-factors", "8x4x2x1",
			"--smoothing-sigmas", "3x2x1x0vox",
			"--transform", "Affine[0.1]",
			"--metric", "MI[{in:fixed_image},{in:moving_image},1,32,Regular,0.25]",
			"--convergence", "[1000x500x250x100,1e-6,10]",
			"--shrink-factors", "8x4x2x1",
			"--smoothing-sigmas", "3x2x1x0vox",
			"--transform", "SyN[0.1,3,0]",
			"--metric", "CC[{in:fixed_image},{in:moving_image},1,4]",
			"--convergence", "[100x70x50x20,1e-6,10]",
			"--shrink-factors", "8x4x2x1",
			"--smoothing-sigmas", "3x2x1x0vox",
			"--masks", "[{in:fixed_mask},NULL]",
		},
		runtime.ToolOutput{Port: "composite_transform", File: "template2t1w_Composite.h5"})

	core, err := stage.NewBuilder("recon").
		Add(a.shrinkStage("shrink_surface_lh", "white_shrunk_L"),
			a.shrinkStage("shrink_surface_rh", "white_shrunk_R"),
			register).
		Bind("template_registration", "moving_image", stage.FileValue(a.opts.TemplateT1w)).
		Nest()
	if err != nil {
		return topStage{}, err
	}

	return topStage{
		core: core,
		inputs: map[string]string{
			"shrink_surface_lh.surface":         PairPort("white_surface", "L"),
			"shrink_surface_lh.reference":       "ribbon_mask",
			"shrink_surface_rh.surface":         PairPort("white_surface", "R"),
			"shrink_surface_rh.reference":       "ribbon_mask",
			"template_registration.fixed_image": "t1w",
			"template_registration.fixed_mask":  "brain_mask",
		},
		outputs: map[string]string{
			"shrunk_surface_lh": "shrink_surface_lh.out_file",
			"shrunk_surface_rh": "shrink_surface_rh.out_file",
			"template2t1w_xfm":  "template_registration.composite_transform",
		},
	}, nil
}
