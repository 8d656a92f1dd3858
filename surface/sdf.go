package surface

import (
	"context"
	"fmt"
	"path/filepath"
)

// DistanceFieldGenerator writes the signed distance volume of a surface,
// sampled on the grid of a reference volume, negative inside.
type DistanceFieldGenerator interface {
	Generate(ctx context.Context, surfacePath, referencePath, outPath string) error
}

// GeneratorFunc adapts a function to DistanceFieldGenerator.
type GeneratorFunc func(ctx context.Context, surfacePath, referencePath, outPath string) error

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, surfacePath, referencePath, outPath string) error {
	return f(ctx, surfacePath, referencePath, outPath)
}

// WorkbenchArgs returns the wb_command arguments that create a signed
// distance volume.
func WorkbenchArgs(surfacePath, referencePath, outPath string) []string {
	return []string{"-create-signed-distance-volume", surfacePath, referencePath, outPath}
}

// Projector shrinks surface files using an external distance field generator.
type Projector struct {
	Generator DistanceFieldGenerator
	Options   Options
}

// ShrinkFile reads a GIFTI surface, generates its signed distance field on
// the reference grid inside workDir, shrinks it and writes the result to outPath.
func (p *Projector) ShrinkFile(ctx context.Context, surfacePath, referencePath, outPath, workDir string) (*Report, error) {
	mesh, err := ReadGIFTI(surfacePath)
	if err != nil {
		return nil, err
	}

	sdfPath := filepath.Join(workDir, "signed_distance.nii.gz")
	if err := p.Generator.Generate(ctx, surfacePath, referencePath, sdfPath); err != nil {
		return nil, fmt.Errorf("signed distance field: %w", err)
	}
	sdf, err := ReadNIfTI(sdfPath)
	if err != nil {
		return nil, fmt.Errorf("signed distance field: %w", err)
	}

	shrunk, report, err := Shrink(ctx, mesh, sdf, p.Options)
	if err != nil {
		return nil, err
	}
	if err := WriteGIFTI(outPath, shrunk); err != nil {
		return nil, err
	}
	return report, nil
}
