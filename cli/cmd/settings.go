package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/adapter"
	"github.com/justapithecus/tractography/adapter/redis"
	"github.com/justapithecus/tractography/adapter/webhook"
	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/cli/config"
	"github.com/justapithecus/tractography/cli/reader"
	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/pipeline"
	"github.com/justapithecus/tractography/surface"
)

// defaultAdapterRetries applies when neither the config nor the flags set retries.
const defaultAdapterRetries = 3

// errNoArchive is returned when neither an archive path nor an output
// directory is configured.
var errNoArchive = errors.New("archive path is required (set --archive-path, --output-dir or archive.path)")

// loadConfig reads the --config file when given, applies flag overrides
// and validates the result. Without --config the flags alone are used.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides config values with every flag set on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) error {
	setString(c, "bids-dir", &cfg.BIDSDir)
	setString(c, "output-dir", &cfg.OutputDir)
	setString(c, "work-dir", &cfg.WorkDir)
	setStrings(c, "participant-label", &cfg.ParticipantLabel)
	setStrings(c, "session-label", &cfg.SessionLabel)
	setString(c, "session-policy", &cfg.SessionPolicy)
	setString(c, "bids-filter-file", &cfg.BIDSFilterFile)
	setStrings(c, "derivatives", &cfg.Derivatives)
	setInt(c, "nprocs", &cfg.Nprocs)
	setInt(c, "parallel", &cfg.Parallel)
	setString(c, "run-uuid", &cfg.RunUUID)

	setBool(c, "preproc", &cfg.Stages.Preproc)
	setBool(c, "recon", &cfg.Stages.Recon)
	setBool(c, "tracto", &cfg.Stages.Tracto)

	setString(c, "template-t1w", &cfg.Template.T1w)
	setString(c, "rois-dir", &cfg.Tractography.RoisDir)

	if c.IsSet("shrink-mm") {
		mm := c.Float64("shrink-mm")
		cfg.Shrink.DistanceMm = &mm
	}
	setFloat(c, "shrink-step-mm", &cfg.Shrink.StepMm)
	setString(c, "degenerate", &cfg.Shrink.Degenerate)

	setString(c, "archive-backend", &cfg.Archive.Backend)
	setString(c, "archive-path", &cfg.Archive.Path)
	setString(c, "archive-dataset", &cfg.Archive.Dataset)
	setString(c, "archive-region", &cfg.Archive.Region)
	setString(c, "archive-endpoint", &cfg.Archive.Endpoint)
	setBool(c, "archive-s3-path-style", &cfg.Archive.S3PathStyle)

	setString(c, "adapter", &cfg.Adapter.Type)
	setString(c, "adapter-url", &cfg.Adapter.URL)
	setString(c, "adapter-channel", &cfg.Adapter.Channel)
	if c.IsSet("adapter-header") {
		headers, err := parseKeyValues("adapter-header", c.StringSlice("adapter-header"))
		if err != nil {
			return err
		}
		if cfg.Adapter.Headers == nil {
			cfg.Adapter.Headers = make(map[string]string, len(headers))
		}
		maps.Copy(cfg.Adapter.Headers, headers)
	}
	if c.IsSet("adapter-timeout") {
		cfg.Adapter.Timeout = config.Duration{Duration: c.Duration("adapter-timeout")}
	}
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		cfg.Adapter.Retries = &n
	}
	return nil
}

// applyPositional reads "<bids_dir> [<output_dir>]" unless the flags are set.
func applyPositional(c *cli.Context, cfg *config.Config) {
	if v := c.Args().Get(0); v != "" && !c.IsSet("bids-dir") {
		cfg.BIDSDir = v
	}
	if v := c.Args().Get(1); v != "" && !c.IsSet("output-dir") {
		cfg.OutputDir = v
	}
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func setStrings(c *cli.Context, name string, dst *[]string) {
	if c.IsSet(name) {
		*dst = c.StringSlice(name)
	}
}

func setInt(c *cli.Context, name string, dst *int) {
	if c.IsSet(name) {
		*dst = c.Int(name)
	}
}

func setFloat(c *cli.Context, name string, dst *float64) {
	if c.IsSet(name) {
		*dst = c.Float64(name)
	}
}

func setBool(c *cli.Context, name string, dst *bool) {
	if c.IsSet(name) {
		*dst = c.Bool(name)
	}
}

// parseKeyValues parses "key=value" entries of a repeatable flag.
func parseKeyValues(flag string, entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--%s: expected key=value, got %q", flag, e)
		}
		out[k] = v
	}
	return out, nil
}

// datasetConfig extracts the dataset location and participant selection.
func datasetConfig(cfg *config.Config) (pipeline.DatasetConfig, error) {
	policy, err := bids.ParseSessionPolicy(cfg.SessionPolicy)
	if err != nil {
		return pipeline.DatasetConfig{}, err
	}
	return pipeline.DatasetConfig{
		BIDSDir:       cfg.BIDSDir,
		Derivatives:   cfg.Derivatives,
		OutputDir:     cfg.OutputDir,
		FilterFile:    cfg.BIDSFilterFile,
		Participants:  cfg.ParticipantLabel,
		Sessions:      cfg.SessionLabel,
		SessionPolicy: policy,
	}, nil
}

func selection(cfg *config.Config) pipeline.Selection {
	return pipeline.Selection{
		Preproc: cfg.Stages.Preproc,
		Recon:   cfg.Stages.Recon,
		Tracto:  cfg.Stages.Tracto,
	}
}

// programs merges the config tool overrides with "name=path" overrides
// from repeated --tool flags.
func programs(cfg *config.Config, overrides []string) (map[string]string, error) {
	out := maps.Clone(cfg.Tools)
	if out == nil {
		out = make(map[string]string)
	}
	parsed, err := parseKeyValues("tool", overrides)
	if err != nil {
		return nil, err
	}
	maps.Copy(out, parsed)
	return out, nil
}

// shrinkOptions builds the surface shrink options. The distance has no
// default and is required when reconstruction runs.
func shrinkOptions(cfg *config.Config, stages []string) (surface.Options, error) {
	policy, err := surface.ParseDegeneratePolicy(cfg.Shrink.Degenerate)
	if err != nil {
		return surface.Options{}, err
	}
	opts := surface.Options{
		StepMm:     cfg.Shrink.StepMm,
		Degenerate: policy,
	}
	switch {
	case cfg.Shrink.DistanceMm != nil:
		opts.DistanceMm = *cfg.Shrink.DistanceMm
	case slices.Contains(stages, pipeline.StageReconstruction):
		return surface.Options{}, &bids.MissingInputError{
			FileType:   "shrink_distance",
			Query:      "shrink.distance_mm",
			ProducedBy: "set shrink.distance_mm in the config file or --shrink-mm",
		}
	}
	if err := opts.Validate(); err != nil {
		return surface.Options{}, err
	}
	return opts, nil
}

// tractographyParams overlays the non-zero config values on the defaults.
func tractographyParams(cfg *config.Config) pipeline.TractographyParams {
	p := pipeline.DefaultTractographyParams()
	t := cfg.Tractography
	p.RoisDir = t.RoisDir
	if t.NFibres > 0 {
		p.Fibres = t.NFibres
	}
	if t.Fudge > 0 {
		p.Weight = t.Fudge
	}
	if t.BurnIn > 0 {
		p.BurnIn = t.BurnIn
	}
	if t.NJumps > 0 {
		p.Jumps = t.NJumps
	}
	if t.SampleEvery > 0 {
		p.SampleEvery = t.SampleEvery
	}
	if t.NSamples > 0 {
		p.Samples = t.NSamples
	}
	if t.NSteps > 0 {
		p.Steps = t.NSteps
	}
	if t.StepLength > 0 {
		p.StepLength = t.StepLength
	}
	if t.DistThresh > 0 {
		p.DistThresh = t.DistThresh
	}
	if t.FibThresh > 0 {
		p.FibThresh = t.FibThresh
	}
	return p
}

// archiveSource locates the manifest dataset. The fs archive root
// defaults to the output directory.
func archiveSource(cfg *config.Config) (reader.Source, error) {
	src := reader.Source{
		Dataset:     cfg.Archive.Dataset,
		Backend:     cfg.Archive.Backend,
		Path:        cfg.Archive.Path,
		Region:      cfg.Archive.Region,
		Endpoint:    cfg.Archive.Endpoint,
		S3PathStyle: cfg.Archive.S3PathStyle,
	}
	if src.Backend == "" {
		src.Backend = "fs"
	}
	if src.Path == "" && src.Backend == "fs" {
		src.Path = cfg.OutputDir
	}
	if src.Path == "" {
		return reader.Source{}, errNoArchive
	}
	return src, nil
}

// openArchive opens a Lode client for one participant run.
func openArchive(ctx context.Context, src reader.Source, lodeCfg lode.Config) (*lode.LodeClient, error) {
	lodeCfg.Dataset = src.Dataset
	switch src.Backend {
	case "fs", "":
		return lode.NewLodeClient(lodeCfg, src.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(src.Path)
		return lode.NewLodeS3Client(ctx, lodeCfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       src.Region,
			Endpoint:     src.Endpoint,
			UsePathStyle: src.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend: %s (must be fs or s3)", src.Backend)
	}
}

// buildAdapter creates the configured run completed adapter, or nil.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	retries := defaultAdapterRetries
	if cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}
	switch cfg.Adapter.Type {
	case "":
		if cfg.Adapter.URL != "" {
			return nil, errors.New("adapter url set without an adapter type")
		}
		return nil, nil
	case "webhook":
		a, err := webhook.New(webhook.Config{
			URL:     cfg.Adapter.URL,
			Headers: cfg.Adapter.Headers,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		a, err := redis.New(redis.Config{
			URL:     cfg.Adapter.URL,
			Channel: cfg.Adapter.Channel,
			Timeout: cfg.Adapter.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", cfg.Adapter.Type)
	}
}
