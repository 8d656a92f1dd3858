package bids

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/justapithecus/tractography/types"
)

// Root is a directory tree to index.
type Root struct {
	// Path is the directory to walk.
	Path string
	// Derivative marks every file under the root as a derivative.
	Derivative bool
}

// skippedRawDirs are top-level directories of a raw dataset that never hold
// inputs. Derivatives are indexed through their own roots.
var skippedRawDirs = map[string]bool{
	"derivatives": true,
	"sourcedata":  true,
	"code":        true,
}

// Index is an in-memory listing of the candidate files of a dataset.
// Safe for concurrent reads once built.
type Index struct {
	files []types.CandidateFile
}

// NewIndex walks every root and decodes the entities of each file that
// belongs to a subject. Files are kept sorted by path.
func NewIndex(roots ...Root) (*Index, error) {
	idx := &Index{}
	for _, root := range roots {
		if err := idx.walk(root); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(idx.files, func(a, b types.CandidateFile) int {
		return strings.Compare(a.Path(), b.Path())
	})
	idx.files = slices.CompactFunc(idx.files, func(a, b types.CandidateFile) bool {
		return a.Path() == b.Path()
	})
	return idx, nil
}

// NewIndexFromFiles builds an index over already decoded files.
func NewIndexFromFiles(files []types.CandidateFile) *Index {
	idx := &Index{files: slices.Clone(files)}
	slices.SortFunc(idx.files, func(a, b types.CandidateFile) int {
		return strings.Compare(a.Path(), b.Path())
	})
	return idx
}

func (idx *Index) walk(root Root) error {
	absRoot, err := filepath.Abs(root.Path)
	if err != nil {
		return fmt.Errorf("index %s: %w", root.Path, err)
	}

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("index %s: %w", root.Path, err)
		}
		name := d.Name()
		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if !root.Derivative && filepath.Dir(path) == absRoot && skippedRawDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		entities := ParseEntities(rel)
		if _, ok := entities[types.EntitySubject]; !ok {
			return nil
		}
		idx.files = append(idx.files, types.NewCandidateFile(path, entities, root.Derivative))
		return nil
	})
}

// Len returns the number of indexed files.
func (idx *Index) Len() int { return len(idx.files) }

// Files returns every indexed file in path order.
func (idx *Index) Files() []types.CandidateFile {
	return slices.Clone(idx.files)
}

// Subjects returns the distinct subject labels in sorted order.
func (idx *Index) Subjects() []string {
	return idx.distinct(types.EntitySubject, "")
}

// Sessions returns the distinct session labels of a subject in sorted order.
// Empty when the subject has no sessions.
func (idx *Index) Sessions(subject string) []string {
	return idx.distinct(types.EntitySession, subject)
}

func (idx *Index) distinct(entity, subject string) []string {
	var out []string
	for _, f := range idx.files {
		if subject != "" {
			if v, _ := f.Entity(types.EntitySubject); v != subject {
				continue
			}
		}
		if v, ok := f.Entity(entity); ok {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Match returns the files accepted by q for the identity, sorted by path.
func (idx *Index) Match(q types.FileQuery, id types.Identity) []types.CandidateFile {
	var out []types.CandidateFile
	for _, f := range idx.files {
		if id.Matches(f) && q.Accepts(f) {
			out = append(out, f)
		}
	}
	return out
}
