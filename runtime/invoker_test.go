package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/stage"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStem(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/w/dwi.nii.gz", "/w/dwi"},
		{"/w/dwi.nii", "/w/dwi"},
		{"/w/bvec", "/w/bvec"},
		{"/w/lh.white.surf.gii", "/w/lh.white.surf"},
	}
	for _, tt := range tests {
		if got := Stem(tt.in); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTool_ExpandArgs(t *testing.T) {
	tool := &Tool{
		Program: "probtrackx2",
		Args: []string{
			"-s", "{outstem:samples}",
			"--seed={in:seed}",
			"{in:rois}",
			"--nsamples={param:n_samples}",
			"--dir={workdir}",
			"-o", "{out:fdt}",
		},
		Outputs: []ToolOutput{
			{Port: "samples", File: "merged.nii.gz"},
			{Port: "fdt", File: "fdt_paths.nii.gz"},
		},
	}
	call := stage.Call{
		Stage:   "probtrackx2",
		WorkDir: "/work/probtrackx2",
		Inputs: stage.Values{
			"seed":      stage.FileValue("/in/seed.nii.gz"),
			"rois":      stage.ListValue("/in/a.nii.gz", "/in/b.nii.gz"),
			"n_samples": stage.ScalarValue(5000),
		},
	}

	got, err := tool.ExpandArgs(call)
	if err != nil {
		t.Fatalf("ExpandArgs: %v", err)
	}
	want := []string{
		"-s", "/work/probtrackx2/merged",
		"--seed=/in/seed.nii.gz",
		"/in/a.nii.gz", "/in/b.nii.gz",
		"--nsamples=5000",
		"--dir=/work/probtrackx2",
		"-o", "/work/probtrackx2/fdt_paths.nii.gz",
	}
	if !slices.Equal(got, want) {
		t.Errorf("ExpandArgs =\n%v\nwant\n%v", got, want)
	}
}

func TestTool_ExpandArgs_UnknownPort(t *testing.T) {
	for _, arg := range []string{"{in:missing}", "--x={param:missing}", "{out:missing}"} {
		tool := &Tool{Program: "p", Args: []string{arg}}
		_, err := tool.ExpandArgs(stage.Call{Stage: "s", Inputs: stage.Values{}})
		if !errors.Is(err, errUnknownPlaceholder) {
			t.Errorf("ExpandArgs(%q): expected errUnknownPlaceholder, got %v", arg, err)
		}
	}
}

func TestTool_Invoke(t *testing.T) {
	dir := t.TempDir()
	rec := &recordingFactory{build: func(cfg *ToolConfig) *fakeLauncher {
		return &fakeLauncher{run: func(cfg *ToolConfig) error {
			touch(t, filepath.Join(cfg.Dir, "denoised.nii.gz"))
			touch(t, filepath.Join(cfg.Dir, "noise.nii.gz"))
			return nil
		}}
	}}
	collector := metrics.NewCollector("fs", "run", "01", "")
	tool := &Tool{
		Runner: &ToolRunner{
			Factory:   rec.Factory,
			Programs:  map[string]string{"dwidenoise": "/opt/mrtrix/bin/dwidenoise"},
			Env:       []string{"OMP_NUM_THREADS=1"},
			Collector: collector,
		},
		Program: "dwidenoise",
		Args:    []string{"{in:dwi}", "{out:out_file}", "-noise", "{out:noise}"},
		Outputs: []ToolOutput{
			{Port: "out_file", File: "denoised.nii.gz"},
			{Port: "noise", File: "noise.nii.gz"},
			{Port: "log", File: "log.txt", Optional: true},
		},
	}

	out, err := tool.Invoke(t.Context(), stage.Call{
		Stage:   "dwidenoise",
		WorkDir: dir,
		Inputs:  stage.Values{"dwi": stage.FileValue("/in/dwi.nii.gz")},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := out.File("out_file"); got != filepath.Join(dir, "denoised.nii.gz") {
		t.Errorf("out_file = %q", got)
	}
	if _, ok := out["log"]; ok {
		t.Error("optional missing output should be absent")
	}

	if progs := rec.Programs(); !slices.Equal(progs, []string{"/opt/mrtrix/bin/dwidenoise"}) {
		t.Errorf("launched programs = %v", progs)
	}
	cfg := rec.configs[0]
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
	if !slices.Contains(cfg.Env, "OMP_NUM_THREADS=1") {
		t.Errorf("Env = %v, want runner env", cfg.Env)
	}

	snap := collector.Snapshot()
	if snap.ToolLaunchSuccess != 1 || snap.ToolLaunches["dwidenoise"] != 1 {
		t.Errorf("tool metrics = %+v", snap)
	}
}

func TestTool_Invoke_Failures(t *testing.T) {
	tests := []struct {
		name     string
		launcher *fakeLauncher
		wantCode int
		wantText string
	}{
		{
			name:     "start failure",
			launcher: &fakeLauncher{startErr: errors.New("exec: not found")},
			wantText: "failed to start",
		},
		{
			name:     "non-zero exit",
			launcher: &fakeLauncher{exitCode: 1, stderr: "eddy: bad bvecs\n"},
			wantCode: 1,
			wantText: "bad bvecs",
		},
		{
			name:     "missing output",
			launcher: &fakeLauncher{},
			wantText: "missing output out_file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := &Tool{
				Runner: &ToolRunner{Factory: func(cfg *ToolConfig) Launcher {
					tt.launcher.cfg = cfg
					return tt.launcher
				}},
				Program: "eddy",
				Args:    []string{"{out:out_file}"},
				Outputs: []ToolOutput{{Port: "out_file", File: "eddy.nii.gz"}},
			}
			_, err := tool.Invoke(t.Context(), stage.Call{Stage: "eddy_correct", WorkDir: t.TempDir()})
			if !errors.Is(err, ErrExternalTool) {
				t.Fatalf("expected ErrExternalTool, got %v", err)
			}
			var te *ToolError
			if !errors.As(err, &te) {
				t.Fatalf("expected *ToolError, got %T", err)
			}
			if te.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", te.ExitCode, tt.wantCode)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not mention %q", err, tt.wantText)
			}
			if te.Stage != "eddy_correct" || te.Program != "eddy" {
				t.Errorf("ToolError = %+v", te)
			}
		})
	}
}

func TestToolRunner_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	runner := &ToolRunner{Factory: func(cfg *ToolConfig) Launcher {
		return &fakeLauncher{exitCode: -1, run: func(*ToolConfig) error {
			cancel()
			return nil
		}}
	}}
	_, err := runner.Run(ctx, "bedpostx", ToolConfig{Program: "bedpostx"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrExternalTool) {
		t.Error("cancellation must not be reported as a tool failure")
	}
}

func TestCollectOutputs_Glob(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "merged_th2samples.nii.gz"))
	touch(t, filepath.Join(dir, "merged_th1samples.nii.gz"))

	out, err := CollectOutputs(stage.Call{Stage: "bedpostx", WorkDir: dir}, "bedpostx", []ToolOutput{
		{Port: "thsamples", Glob: "merged_th*samples.nii.gz"},
		{Port: "phsamples", Glob: "merged_ph*samples.nii.gz", Optional: true},
	})
	if err != nil {
		t.Fatalf("CollectOutputs: %v", err)
	}
	want := []string{
		filepath.Join(dir, "merged_th1samples.nii.gz"),
		filepath.Join(dir, "merged_th2samples.nii.gz"),
	}
	if got := out.Files("thsamples"); !slices.Equal(got, want) {
		t.Errorf("thsamples = %v, want %v", got, want)
	}
	if got := out.Files("phsamples"); len(got) != 0 {
		t.Errorf("phsamples = %v, want empty", got)
	}

	_, err = CollectOutputs(stage.Call{Stage: "bedpostx", WorkDir: dir}, "bedpostx", []ToolOutput{
		{Port: "fsamples", Glob: "merged_f*samples.nii.gz"},
	})
	if !errors.Is(err, ErrExternalTool) {
		t.Errorf("expected ErrExternalTool for empty required glob, got %v", err)
	}
}
