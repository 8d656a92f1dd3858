package config

import (
	"fmt"
	"time"
)

// Config represents a tractography.yaml configuration file.
// All values are optional and act as defaults for the run flags.
// CLI flags always override config values.
type Config struct {
	BIDSDir          string   `yaml:"bids_dir"`
	OutputDir        string   `yaml:"output_dir"`
	WorkDir          string   `yaml:"work_dir"`
	ParticipantLabel []string `yaml:"participant_label"`
	SessionLabel     []string `yaml:"session_label"`
	SessionPolicy    string   `yaml:"session_policy"`
	BIDSFilterFile   string   `yaml:"bids_filter_file"`
	Derivatives      []string `yaml:"derivatives"`
	Nprocs           int      `yaml:"nprocs"`
	Parallel         int      `yaml:"parallel"`
	RunUUID          string   `yaml:"run_uuid"`

	Stages       StagesConfig       `yaml:"stages"`
	Template     TemplateConfig     `yaml:"template"`
	Shrink       ShrinkConfig       `yaml:"shrink"`
	Tractography TractographyConfig `yaml:"tractography"`
	Tools        map[string]string  `yaml:"tools"`
	Archive      ArchiveConfig      `yaml:"archive"`
	Adapter      AdapterConfig      `yaml:"adapter"`
}

// StagesConfig selects the top-level stages.
type StagesConfig struct {
	Preproc bool `yaml:"preproc"`
	Recon   bool `yaml:"recon"`
	Tracto  bool `yaml:"tracto"`
}

// TemplateConfig locates the template registered to each subject.
type TemplateConfig struct {
	T1w string `yaml:"t1w"`
}

// ShrinkConfig holds surface shrink defaults.
type ShrinkConfig struct {
	DistanceMm *float64 `yaml:"distance_mm,omitempty"`
	StepMm     float64  `yaml:"step_mm"`
	Degenerate string   `yaml:"degenerate"`
}

// TractographyConfig holds fibre modelling and tracking defaults. Zero
// values keep the built-in defaults.
type TractographyConfig struct {
	RoisDir     string  `yaml:"rois_dir"`
	NFibres     int     `yaml:"n_fibres"`
	Fudge       float64 `yaml:"fudge"`
	BurnIn      int     `yaml:"burn_in"`
	NJumps      int     `yaml:"n_jumps"`
	SampleEvery int     `yaml:"sample_every"`
	NSamples    int     `yaml:"n_samples"`
	NSteps      int     `yaml:"n_steps"`
	StepLength  float64 `yaml:"step_length"`
	DistThresh  float64 `yaml:"dist_thresh"`
	FibThresh   float64 `yaml:"fib_thresh"`
}

// ArchiveConfig holds archive defaults from the config file.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
