package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/tractography/stage"
)

// ResultFile is the name of the per-invocation result written into each
// stage work directory.
const ResultFile = "result.msgpack"

// StageResult is the record of one leaf stage invocation.
type StageResult struct {
	Stage      string              `msgpack:"stage"`
	WorkDir    string              `msgpack:"work_dir"`
	StartedAt  time.Time           `msgpack:"started_at"`
	FinishedAt time.Time           `msgpack:"finished_at"`
	Inputs     map[string][]string `msgpack:"inputs"`
	Outputs    map[string][]string `msgpack:"outputs"`
	Error      string              `msgpack:"error,omitempty"`

	values stage.Values
	err    error
}

// Duration returns the invocation wall time.
func (r *StageResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Values returns the output values of a successful invocation.
func (r *StageResult) Values() stage.Values { return r.values }

// Err returns the invocation error.
func (r *StageResult) Err() error { return r.err }

func flattenValues(vs stage.Values) map[string][]string {
	out := make(map[string][]string, len(vs))
	for name, v := range vs {
		if v.Kind() == stage.Scalar {
			out[name] = []string{v.String()}
			continue
		}
		out[name] = v.Paths()
	}
	return out
}

// WriteStageResult encodes r into its work directory.
func WriteStageResult(r *StageResult) error {
	b, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode stage result: %w", err)
	}
	return os.WriteFile(filepath.Join(r.WorkDir, ResultFile), b, 0o644)
}

// ReadStageResult decodes the result left in a stage work directory.
func ReadStageResult(workDir string) (*StageResult, error) {
	b, err := os.ReadFile(filepath.Join(workDir, ResultFile))
	if err != nil {
		return nil, err
	}
	var r StageResult
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode stage result: %w", err)
	}
	return &r, nil
}
