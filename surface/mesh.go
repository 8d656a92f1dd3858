// Package surface moves cortical surface meshes a fixed physical distance
// into the tissue along the gradient of a signed distance field.
package surface

import (
	"fmt"
	"slices"
)

// Mesh is a triangulated surface in physical (mm) coordinates.
type Mesh struct {
	Vertices  [][3]float64
	Triangles [][3]int32

	// doc keeps the GIFTI document the mesh was read from so that
	// metadata survives a read/modify/write cycle.
	doc *giftiFile
}

// Validate checks that every triangle references an existing vertex.
func (m *Mesh) Validate() error {
	n := int32(len(m.Vertices))
	for i, tri := range m.Triangles {
		for _, v := range tri {
			if v < 0 || v >= n {
				return fmt.Errorf("triangle %d references vertex %d of %d", i, v, n)
			}
		}
	}
	return nil
}

// withVertices returns a mesh sharing m's topology and metadata with new vertices.
func (m *Mesh) withVertices(vertices [][3]float64) *Mesh {
	return &Mesh{
		Vertices:  vertices,
		Triangles: slices.Clone(m.Triangles),
		doc:       m.doc,
	}
}
