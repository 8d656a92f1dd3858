// Package stage models pipeline stages as typed ports plus an opaque
// invocation, and composes them into validated, runnable graphs.
package stage

import (
	"fmt"
	"slices"
)

// Kind is the type of a port.
type Kind int

const (
	// File carries a single file path.
	File Kind = iota + 1
	// FileList carries an ordered list of file paths.
	FileList
	// Scalar carries a parameter value (number, string, entity set).
	Scalar
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case FileList:
		return "file_list"
	case Scalar:
		return "scalar"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Port is a named, typed input or output slot of a stage.
type Port struct {
	Name     string
	Kind     Kind
	Optional bool
}

// FilePort declares a required file port.
func FilePort(name string) Port { return Port{Name: name, Kind: File} }

// ListPort declares a required file list port.
func ListPort(name string) Port { return Port{Name: name, Kind: FileList} }

// ScalarPort declares a required scalar port.
func ScalarPort(name string) Port { return Port{Name: name, Kind: Scalar} }

// AsOptional returns a copy of p that may stay unconnected.
func (p Port) AsOptional() Port {
	p.Optional = true
	return p
}

// Value is the content delivered on a port.
type Value struct {
	kind   Kind
	path   string
	paths  []string
	scalar any
}

// FileValue wraps a single path.
func FileValue(path string) Value { return Value{kind: File, path: path} }

// ListValue wraps an ordered list of paths. The slice is copied.
func ListValue(paths ...string) Value { return Value{kind: FileList, paths: slices.Clone(paths)} }

// ScalarValue wraps a parameter value.
func ScalarValue(v any) Value { return Value{kind: Scalar, scalar: v} }

// Kind returns the value kind. Zero for the zero Value.
func (v Value) Kind() Kind { return v.kind }

// Path returns the path of a File value.
func (v Value) Path() string { return v.path }

// Paths returns the paths of a value: one for File, all for FileList.
func (v Value) Paths() []string {
	switch v.kind {
	case File:
		return []string{v.path}
	case FileList:
		return slices.Clone(v.paths)
	default:
		return nil
	}
}

// Scalar returns the parameter of a Scalar value.
func (v Value) Scalar() any { return v.scalar }

// IsZero reports whether v carries nothing.
func (v Value) IsZero() bool { return v.kind == 0 }

// String renders the value for logs and diagrams.
func (v Value) String() string {
	switch v.kind {
	case File:
		return v.path
	case FileList:
		return fmt.Sprintf("%v", v.paths)
	case Scalar:
		return fmt.Sprintf("%v", v.scalar)
	default:
		return "<unset>"
	}
}

// Values maps port names to values.
type Values map[string]Value

// File returns the path of a File input, or "" when absent.
func (vs Values) File(name string) string { return vs[name].Path() }

// Files returns the paths of a File or FileList input.
func (vs Values) Files(name string) []string { return vs[name].Paths() }

// Scalar returns the parameter of a Scalar input, or nil when absent.
func (vs Values) Scalar(name string) any { return vs[name].Scalar() }
