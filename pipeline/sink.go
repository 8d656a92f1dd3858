package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/tractography/iox"
	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/naming"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/stage"
	"github.com/justapithecus/tractography/types"
)

// SinkStage is the leaf that names and archives the outputs of a stage.
const SinkStage = "sink"

// Sink renames and archives stage outputs under one output directory.
type Sink struct {
	// Stage is the top-level stage the outputs belong to.
	Stage string
	// OutputDir is the archive-relative directory, "<stage>_output_<run id>".
	OutputDir string
	// Archive stores the files and their artifact records.
	Archive lode.Archive
	// Rules is the naming rule set.
	Rules []naming.Rule
}

// NewStage builds the sink leaf. Every artifact must have a naming rule;
// a gap fails here, before any tool runs.
func (s *Sink) NewStage(artifacts []string) (stage.Stage, error) {
	if err := naming.CheckTotal(artifacts, s.Rules); err != nil {
		return stage.Stage{}, err
	}
	inputs := []stage.Port{stage.ScalarPort(EntitiesPort)}
	for _, a := range artifacts {
		inputs = append(inputs, stage.FilePort(a))
	}
	return stage.New(SinkStage, inputs,
		[]stage.Port{stage.ListPort(runtime.ArchivedPort)},
		stage.InvokerFunc(func(ctx context.Context, call stage.Call) (stage.Values, error) {
			return s.archive(ctx, call, artifacts)
		})), nil
}

func (s *Sink) archive(ctx context.Context, call stage.Call, artifacts []string) (stage.Values, error) {
	entities, ok := call.Inputs.Scalar(EntitiesPort).(types.Entities)
	if !ok {
		return nil, fmt.Errorf("sink: %s input is %T, want entities", EntitiesPort, call.Inputs.Scalar(EntitiesPort))
	}
	table, err := naming.BuildPaths(entities, s.Rules)
	if err != nil {
		return nil, err
	}

	records := make([]lode.ArtifactRecord, 0, len(artifacts))
	archived := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		src := call.Inputs.File(a)
		dest, err := table.Destination(a, src)
		if err != nil {
			return nil, err
		}
		rel := path.Join(s.OutputDir, dest)
		n, err := s.put(ctx, rel, src)
		if err != nil {
			return nil, err
		}
		records = append(records, lode.ArtifactRecord{
			Stage:        s.Stage,
			Artifact:     a,
			Source:       src,
			Destination:  rel,
			SizeBytes:    n,
			RulesVersion: naming.RulesVersion,
		})
		archived = append(archived, rel)
	}

	if err := s.Archive.WriteArtifacts(ctx, records); err != nil {
		return nil, err
	}
	return stage.Values{runtime.ArchivedPort: stage.ListValue(archived...)}, nil
}

func (s *Sink) put(ctx context.Context, rel, src string) (n int64, err error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, &runtime.ToolError{Stage: SinkStage, Reason: "missing output " + path.Base(src), Err: err}
	}
	defer iox.CloseInto(&err, f)
	return s.Archive.PutFile(ctx, rel, f)
}

// OutputDir returns the archive-relative output directory of a stage run.
func OutputDir(stageName, runID string) string {
	return stageName + "_output_" + runID
}

// NewRunID returns "<YYYYMMDD-HHMMSS>_<first participant>". Without a
// participant, a random suffix keeps concurrent runs apart.
func NewRunID(now time.Time, firstParticipant string) string {
	suffix := firstParticipant
	if suffix == "" {
		suffix = uuid.NewString()[:8]
	}
	return now.Format("20060102-150405") + "_" + suffix
}
