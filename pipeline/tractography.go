package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/iox"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/stage"
)

// bedpostxDir is the staging directory handed to bedpostx. Its results
// land in bedpostxDir + ".bedpostX".
const bedpostxDir = "bedpostx_in"

// tractography fits the fibre model, registers the template ROIs to the
// subject and tracks from the shrunk surfaces and ROIs.
func (a *Assembler) tractography() (topStage, error) {
	p := a.opts.Tractography
	if p.RoisDir == "" {
		return topStage{}, &bids.MissingInputError{
			FileType:   "rois",
			Query:      "tractography.rois_dir/*.nii.gz",
			ProducedBy: "set tractography.rois_dir in the config file or --rois-dir",
		}
	}

	rois := stage.New("rois",
		[]stage.Port{stage.ScalarPort("rois_dir")},
		[]stage.Port{stage.ListPort("roi_files")},
		stage.InvokerFunc(listROIs))

	register := stage.New("register_rois",
		[]stage.Port{stage.ListPort("input_images"), stage.FilePort("reference"), stage.FilePort("transform")},
		[]stage.Port{stage.ListPort("output_images")},
		&registerROIs{runner: a.opts.Runner})

	seeds := stage.New("join_seeds",
		[]stage.Port{stage.ListPort("surfaces"), stage.ListPort("rois")},
		[]stage.Port{stage.FilePort("seeds")},
		stage.InvokerFunc(joinSeeds))

	samples := []runtime.ToolOutput{
		{Port: "thsamples", Glob: bedpostxDir + ".bedpostX/merged_th*samples.nii*"},
		{Port: "fsamples", Glob: bedpostxDir + ".bedpostX/merged_f*samples.nii*"},
		{Port: "phsamples", Glob: bedpostxDir + ".bedpostX/merged_ph*samples.nii*"},
	}
	bedpostx := stage.New("bedpostx",
		[]stage.Port{
			stage.FilePort("dwi"), stage.FilePort("bvals"), stage.FilePort("bvecs"), stage.FilePort("mask"),
			stage.ScalarPort("n_fibres"), stage.ScalarPort("weight"), stage.ScalarPort("burn_in"),
			stage.ScalarPort("n_jumps"), stage.ScalarPort("sample_every"),
		},
		[]stage.Port{
			stage.ListPort("thsamples"), stage.ListPort("fsamples"), stage.ListPort("phsamples"),
			stage.ScalarPort("merged"),
		},
		&bedpostxInvoker{tool: &runtime.Tool{
			Runner:  a.opts.Runner,
			Program: ProgramBedpostx,
			Args: []string{bedpostxDir,
				"-n", "{param:n_fibres}", "-w", "{param:weight}", "-b", "{param:burn_in}",
				"-j", "{param:n_jumps}", "-s", "{param:sample_every}"},
			Outputs: samples,
		}})

	probtrackx := a.tool("probtrackx2", ProgramProbtrackx,
		[]stage.Port{
			stage.FilePort("seed"), stage.FilePort("mask"), stage.ScalarPort("merged"),
			stage.ListPort("thsamples"), stage.ListPort("fsamples"), stage.ListPort("phsamples"),
			stage.ScalarPort("n_samples"), stage.ScalarPort("n_steps"), stage.ScalarPort("step_length"),
			stage.ScalarPort("dist_thresh"), stage.ScalarPort("fib_thresh"),
		},
		[]string{
			"-x", "{in:seed}", "-s", "{param:merged}", "-m", "{in:mask}",
			"--dir={workdir}", "--forcedir", "--opd", "--ompl", "--omatrix1",
			"--nsamples={param:n_samples}", "--nsteps={param:n_steps}", "--steplength={param:step_length}",
			"--distthresh1={param:dist_thresh}", "--fibthresh={param:fib_thresh}",
		},
		runtime.ToolOutput{Port: "fdt_paths", File: "fdt_paths.nii.gz"},
		runtime.ToolOutput{Port: "fdt_matrix", File: "fdt_matrix1.dot"},
		runtime.ToolOutput{Port: "waytotal", File: "waytotal"})

	scalar := stage.ScalarValue
	core, err := stage.NewBuilder("tracto").
		Add(rois, register, seeds, bedpostx, probtrackx).
		Bind("rois", "rois_dir", scalar(p.RoisDir)).
		Connect("rois", "roi_files", "register_rois", "input_images").
		Connect("register_rois", "output_images", "join_seeds", "rois").
		Bind("bedpostx", "n_fibres", scalar(p.Fibres)).
		Bind("bedpostx", "weight", scalar(p.Weight)).
		Bind("bedpostx", "burn_in", scalar(p.BurnIn)).
		Bind("bedpostx", "n_jumps", scalar(p.Jumps)).
		Bind("bedpostx", "sample_every", scalar(p.SampleEvery)).
		Connect("join_seeds", "seeds", "probtrackx2", "seed").
		Connect("bedpostx", "merged", "probtrackx2", "merged").
		Connect("bedpostx", "thsamples", "probtrackx2", "thsamples").
		Connect("bedpostx", "fsamples", "probtrackx2", "fsamples").
		Connect("bedpostx", "phsamples", "probtrackx2", "phsamples").
		Bind("probtrackx2", "n_samples", scalar(p.Samples)).
		Bind("probtrackx2", "n_steps", scalar(p.Steps)).
		Bind("probtrackx2", "step_length", scalar(p.StepLength)).
		Bind("probtrackx2", "dist_thresh", scalar(p.DistThresh)).
		Bind("probtrackx2", "fib_thresh", scalar(p.FibThresh)).
		Nest()
	if err != nil {
		return topStage{}, err
	}

	return topStage{
		core: core,
		inputs: map[string]string{
			"register_rois.reference": "t1w",
			"register_rois.transform": "template2t1w_xfm",
			"join_seeds.surfaces":     "shrunk_surface",
			"bedpostx.dwi":            "dwi_preproc",
			"bedpostx.bvals":          "bval",
			"bedpostx.bvecs":          "bvec_rotated",
			"bedpostx.mask":           "dwi_mask",
			"probtrackx2.mask":        "dwi_mask",
		},
		outputs: map[string]string{
			"fdt_paths":  "probtrackx2.fdt_paths",
			"fdt_matrix": "probtrackx2.fdt_matrix",
			"waytotal":   "probtrackx2.waytotal",
		},
	}, nil
}

// listROIs lists the ROI images of the configured directory, sorted.
func listROIs(_ context.Context, call stage.Call) (stage.Values, error) {
	dir, _ := call.Inputs.Scalar("rois_dir").(string)
	matches, err := filepath.Glob(filepath.Join(dir, "*.nii.gz"))
	if err != nil {
		return nil, &runtime.ToolError{Stage: call.Stage, Reason: "bad ROI directory " + dir, Err: err}
	}
	if len(matches) == 0 {
		return nil, &runtime.ToolError{Stage: call.Stage, Reason: "no ROI images in " + dir}
	}
	slices.Sort(matches)
	return stage.Values{"roi_files": stage.ListValue(matches...)}, nil
}

// registerROIs maps every ROI into T1w space with nearest-neighbour
// interpolation, one antsApplyTransforms run per image.
type registerROIs struct {
	runner *runtime.ToolRunner
}

func (r *registerROIs) Invoke(ctx context.Context, call stage.Call) (stage.Values, error) {
	ref := call.Inputs.File("reference")
	xfm := call.Inputs.File("transform")

	var out []string
	for _, roi := range call.Inputs.Files("input_images") {
		dst := filepath.Join(call.WorkDir, filepath.Base(runtime.Stem(roi))+"_space-T1w.nii.gz")
		_, err := r.runner.Run(ctx, call.Stage, runtime.ToolConfig{
			Program: ProgramApplyTransforms,
			Args: []string{
				"-d", "3", "-e", "3",
				"-i", roi, "-r", ref, "-t", xfm,
				"-n", "NearestNeighbor", "-o", dst,
			},
			Dir: call.WorkDir,
		})
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(dst); err != nil {
			return nil, &runtime.ToolError{Stage: call.Stage, Program: ProgramApplyTransforms, Reason: "missing output " + filepath.Base(dst), Err: err}
		}
		out = append(out, dst)
	}
	return stage.Values{"output_images": stage.ListValue(out...)}, nil
}

// joinSeeds writes the seed list read by probtrackx2: the shrunk surfaces
// followed by the registered ROIs, one path per line.
func joinSeeds(_ context.Context, call stage.Call) (stage.Values, error) {
	lines := slices.Concat(call.Inputs.Files("surfaces"), call.Inputs.Files("rois"))
	dst := filepath.Join(call.WorkDir, "seeds.txt")
	if err := os.WriteFile(dst, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write seeds: %w", err)
	}
	return stage.Values{"seeds": stage.FileValue(dst)}, nil
}

// bedpostxInvoker stages the inputs under the names bedpostx expects, runs
// it and reports the sample basename probtrackx2 reads.
type bedpostxInvoker struct {
	tool *runtime.Tool
}

func (b *bedpostxInvoker) Invoke(ctx context.Context, call stage.Call) (stage.Values, error) {
	dir := filepath.Join(call.WorkDir, bedpostxDir)
	dwi := call.Inputs.File("dwi")
	mask := call.Inputs.File("mask")
	staged := []struct{ name, src string }{
		{"data" + niftiExt(dwi), dwi},
		{"nodif_brain_mask" + niftiExt(mask), mask},
		{"bvals", call.Inputs.File("bvals")},
		{"bvecs", call.Inputs.File("bvecs")},
	}
	for _, f := range staged {
		if _, err := iox.CopyFile(filepath.Join(dir, f.name), f.src); err != nil {
			return nil, fmt.Errorf("stage %s: %w", f.name, err)
		}
	}

	values, err := b.tool.Invoke(ctx, call)
	if err != nil {
		return nil, err
	}
	values["merged"] = stage.ScalarValue(filepath.Join(call.WorkDir, bedpostxDir+".bedpostX", "merged"))
	return values, nil
}

func niftiExt(p string) string {
	if strings.HasSuffix(p, ".nii.gz") {
		return ".nii.gz"
	}
	return filepath.Ext(p)
}
