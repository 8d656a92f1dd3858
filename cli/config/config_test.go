package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `bids_dir: /data/raw
output_dir: /data/out
work_dir: /scratch
participant_label: ["01", "02"]
session_label: [pre]
session_policy: first
bids_filter_file: /data/filter.json
derivatives: [/data/smriprep]
nprocs: 8
parallel: 2
run_uuid: 20240101-120000_01

stages:
  preproc: true
  recon: true

template:
  t1w: /templates/MNI152_T1_1mm.nii.gz

shrink:
  distance_mm: 1.5
  step_mm: 0.05
  degenerate: fail

tractography:
  rois_dir: /data/rois
  n_fibres: 2
  n_samples: 1000
  step_length: 0.25

tools:
  wb_command: /opt/workbench/bin/wb_command

archive:
  dataset: tractography
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

adapter:
  type: webhook
  url: https://hooks.example.com/tractography
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "bids_dir", cfg.BIDSDir, "/data/raw")
	assertEqual(t, "output_dir", cfg.OutputDir, "/data/out")
	assertEqual(t, "work_dir", cfg.WorkDir, "/scratch")
	assertEqual(t, "session_policy", cfg.SessionPolicy, "first")
	assertEqual(t, "run_uuid", cfg.RunUUID, "20240101-120000_01")
	if !slices.Equal(cfg.ParticipantLabel, []string{"01", "02"}) {
		t.Errorf("participant_label = %v", cfg.ParticipantLabel)
	}
	if !slices.Equal(cfg.Derivatives, []string{"/data/smriprep"}) {
		t.Errorf("derivatives = %v", cfg.Derivatives)
	}
	if cfg.Nprocs != 8 || cfg.Parallel != 2 {
		t.Errorf("nprocs/parallel = %d/%d", cfg.Nprocs, cfg.Parallel)
	}

	if !cfg.Stages.Preproc || !cfg.Stages.Recon || cfg.Stages.Tracto {
		t.Errorf("stages = %+v", cfg.Stages)
	}
	assertEqual(t, "template.t1w", cfg.Template.T1w, "/templates/MNI152_T1_1mm.nii.gz")

	if cfg.Shrink.DistanceMm == nil || *cfg.Shrink.DistanceMm != 1.5 {
		t.Errorf("shrink.distance_mm = %v", cfg.Shrink.DistanceMm)
	}
	if cfg.Shrink.StepMm != 0.05 {
		t.Errorf("shrink.step_mm = %v", cfg.Shrink.StepMm)
	}
	assertEqual(t, "shrink.degenerate", cfg.Shrink.Degenerate, "fail")

	assertEqual(t, "tractography.rois_dir", cfg.Tractography.RoisDir, "/data/rois")
	if cfg.Tractography.NFibres != 2 || cfg.Tractography.NSamples != 1000 || cfg.Tractography.StepLength != 0.25 {
		t.Errorf("tractography = %+v", cfg.Tractography)
	}
	assertEqual(t, "tools.wb_command", cfg.Tools["wb_command"], "/opt/workbench/bin/wb_command")

	assertEqual(t, "archive.backend", cfg.Archive.Backend, "s3")
	assertEqual(t, "archive.path", cfg.Archive.Path, "my-bucket/prefix")
	assertEqual(t, "archive.region", cfg.Archive.Region, "us-east-1")
	assertEqual(t, "archive.endpoint", cfg.Archive.Endpoint, "https://example.com")
	if !cfg.Archive.S3PathStyle {
		t.Error("expected archive.s3_path_style=true")
	}

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/tractography")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BIDSDir != "" {
		t.Errorf("expected empty bids_dir, got %q", cfg.BIDSDir)
	}
	if cfg.Shrink.DistanceMm != nil {
		t.Error("expected nil shrink.distance_mm")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/tractography.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BIDS_DIR", "/expanded/raw")

	path := writeTemp(t, `bids_dir: ${TEST_BIDS_DIR}
output_dir: ${UNSET_OUTPUT_12345:-/default/out}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "bids_dir", cfg.BIDSDir, "/expanded/raw")
	assertEqual(t, "output_dir", cfg.OutputDir, "/default/out")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `bids_dir: /data
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `archive:
  backend: fs
  path: ./data
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_InvalidEnums(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"session policy", "session_policy: all", "session_policy"},
		{"degenerate", "shrink:\n  degenerate: skip", "shrink.degenerate"},
		{"negative distance", "shrink:\n  distance_mm: -1", "shrink.distance_mm"},
		{"archive backend", "archive:\n  backend: gcs", "archive.backend"},
		{"adapter type", "adapter:\n  type: kafka", "adapter.type"},
		{"negative nprocs", "nprocs: -2", "nprocs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestLoad_WhitespaceOnlyConfig(t *testing.T) {
	path := writeTemp(t, "   \n  \n  \n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed for whitespace-only config: %v", err)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n# Another comment\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	// retries: 0 should parse as *int(0), not nil.
	yaml := `adapter:
  type: webhook
  url: https://example.com
  retries: 0
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("expected retries to be non-nil (*int(0)), got nil")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("expected retries=0, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	yaml := `adapter:
  timeout: not-a-duration
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	yaml := `adapter:
  type: webhook
  url: https://example.com
  timeout: ""
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Adapter.Timeout.Duration)
	}
}

func TestLoad_RedisAdapterConfig(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: tractography:run_completed
  timeout: 5s
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "redis://localhost:6379/0")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "tractography:run_completed")
	if cfg.Adapter.Timeout.Duration != 5*time.Second {
		t.Errorf("expected adapter.timeout=5s, got %v", cfg.Adapter.Timeout.Duration)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tractography.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
