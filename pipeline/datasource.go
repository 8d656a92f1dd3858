package pipeline

import (
	"context"

	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/stage"
	"github.com/justapithecus/tractography/types"
)

// DatasourceStage is the leaf that feeds resolved dataset files into a graph.
const DatasourceStage = "bids_datasource"

// EntitiesPort carries the identity entities of the run as a
// types.Entities scalar. Sinks name their outputs from it.
const EntitiesPort = "bids_entities"

// PairPort names the single-file port of one element of a paired type,
// for example "white_surface_L".
func PairPort(fileType, value string) string { return fileType + "_" + value }

// Datasource builds the leaf stage exposing the given file types of a
// resolved dataset. Single-file types become File ports; paired types
// become a FileList port in pair order plus one File port per element.
func Datasource(ds *types.ResolvedDataset, fileTypes []string) (stage.Stage, error) {
	queries := make(map[string]types.FileQuery)
	for _, q := range bids.DefaultQueries() {
		queries[q.Name] = q
	}

	values := stage.Values{EntitiesPort: stage.ScalarValue(IdentityEntities(ds))}
	outputs := []stage.Port{stage.ScalarPort(EntitiesPort)}
	for _, name := range fileTypes {
		if !ds.Has(name) {
			q := queries[name]
			return stage.Stage{}, &bids.MissingInputError{FileType: name, Query: q.String(), ProducedBy: q.ProducedBy}
		}
		paths := ds.Paths(name)
		q := queries[name]
		if q.PairEntity == "" {
			outputs = append(outputs, stage.FilePort(name))
			values[name] = stage.FileValue(paths[0])
			continue
		}
		outputs = append(outputs, stage.ListPort(name))
		values[name] = stage.ListValue(paths...)
		for i, v := range q.PairValues {
			port := PairPort(name, v)
			outputs = append(outputs, stage.FilePort(port))
			values[port] = stage.FileValue(paths[i])
		}
	}

	return stage.New(DatasourceStage, nil, outputs,
		stage.InvokerFunc(func(context.Context, stage.Call) (stage.Values, error) {
			return values, nil
		})), nil
}

// identitySources are the file types whose entities label the outputs,
// in order of preference.
var identitySources = []string{"dwi", "dwi_preproc", "t1w"}

// IdentityEntities returns the entities that label a run's outputs:
// subject, session, acquisition, direction and part of the first
// resolved identity source, falling back to the resolution identity.
func IdentityEntities(ds *types.ResolvedDataset) types.Entities {
	out := types.Entities{}
	for _, name := range identitySources {
		f, ok := ds.File(name)
		if !ok {
			continue
		}
		for _, key := range []string{
			types.EntitySubject,
			types.EntitySession,
			types.EntityAcquisition,
			types.EntityDirection,
			types.EntityPart,
		} {
			if v, ok := f.Entity(key); ok {
				out[key] = v
			}
		}
		break
	}

	id := ds.Identity()
	if _, ok := out[types.EntitySubject]; !ok && id.Subject != "" {
		out[types.EntitySubject] = id.Subject
	}
	if _, ok := out[types.EntitySession]; !ok && id.Session != "" {
		out[types.EntitySession] = id.Session
	}
	return out
}
