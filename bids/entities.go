// Package bids indexes a BIDS dataset and its derivatives and resolves the
// input files of a pipeline run for one subject/session.
package bids

import (
	"path/filepath"
	"strings"

	"github.com/justapithecus/tractography/types"
)

// shortKeys maps filename entity keys to canonical entity names.
// Keys not listed here are kept as they appear in the filename.
var shortKeys = map[string]string{
	"sub":   types.EntitySubject,
	"ses":   types.EntitySession,
	"acq":   types.EntityAcquisition,
	"dir":   types.EntityDirection,
	"run":   types.EntityRun,
	"part":  types.EntityPart,
	"desc":  types.EntityDesc,
	"space": types.EntitySpace,
	"hemi":  types.EntityHemi,
	"from":  types.EntityFrom,
	"to":    types.EntityTo,
	"mode":  types.EntityMode,
	"task":  "task",
	"ce":    "ceagent",
	"rec":   "reconstruction",
	"echo":  "echo",
	"inv":   "inversion",
	"res":   "resolution",
	"den":   "density",
	"label": "label",
	"seg":   "segmentation",
	"model": "model",
}

// datatypes are the directory names recognized as BIDS datatypes.
var datatypes = map[string]bool{
	"anat": true, "beh": true, "dwi": true, "eeg": true, "fmap": true,
	"func": true, "ieeg": true, "meg": true, "micr": true, "motion": true,
	"nirs": true, "perf": true, "pet": true,
}

// CanonicalEntity returns the long entity name for a short filename key.
func CanonicalEntity(key string) string {
	if long, ok := shortKeys[key]; ok {
		return long
	}
	return key
}

// ParseEntities decodes the entities of a dataset file from its path.
//
// The extension is everything from the first dot of the basename; the suffix
// is the last underscore-separated segment when it carries no "-". Subject and
// session fall back to the enclosing sub-/ses- directories.
func ParseEntities(path string) types.Entities {
	e := types.Entities{}

	base := filepath.Base(path)
	name := base
	if i := strings.Index(base, "."); i > 0 {
		name = base[:i]
		e[types.EntityExtension] = base[i:]
	}

	parts := strings.Split(name, "_")
	for i, part := range parts {
		key, value, ok := strings.Cut(part, "-")
		switch {
		case ok && key != "" && value != "":
			e[CanonicalEntity(key)] = value
		case !ok && i == len(parts)-1 && part != "":
			e[types.EntitySuffix] = part
		}
	}

	dirs := strings.Split(filepath.ToSlash(filepath.Dir(path)), "/")
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		switch {
		case datatypes[d] && i == len(dirs)-1:
			e[types.EntityDatatype] = d
		case strings.HasPrefix(d, "ses-"):
			if _, ok := e[types.EntitySession]; !ok {
				e[types.EntitySession] = strings.TrimPrefix(d, "ses-")
			}
		case strings.HasPrefix(d, "sub-"):
			if _, ok := e[types.EntitySubject]; !ok {
				e[types.EntitySubject] = strings.TrimPrefix(d, "sub-")
			}
		}
	}

	return e
}
