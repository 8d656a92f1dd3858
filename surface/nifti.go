package surface

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/okieraised/gonii"
	"github.com/okieraised/gonii/pkg/nifti"
)

const (
	niftiHeaderSize = 348
	niftiFloat32    = 16
)

// ReadNIfTI reads the first volume of a NIfTI image (.nii or .nii.gz).
// Samples are returned with the header scaling applied.
func ReadNIfTI(path string) (*Volume, error) {
	rd, err := gonii.NewNiiReader(gonii.WithReadImageFile(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := rd.Parse(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img := rd.GetNiiData()
	if img == nil {
		return nil, fmt.Errorf("%s: no image data", path)
	}

	shape := img.GetImgShape()
	var dims [3]int
	for a := range dims {
		dims[a] = max(int(shape[a]), 1)
	}
	var affine Affine
	m := img.GetAffine()
	for row := range 4 {
		for col := range 4 {
			affine[row][col] = m.M[row][col]
		}
	}

	v := NewVolume(dims, affine)
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for k := range dims[2] {
		for j := range dims[1] {
			for i := range dims[0] {
				v.Set(i, j, k, img.GetAt(int64(i), int64(j), int64(k), 0))
			}
		}
	}
	return v, nil
}

// WriteNIfTI writes v as a single-file float32 NIfTI-1 image with an
// sform affine. Paths ending in .gz are gzip compressed.
func WriteNIfTI(path string, v *Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}

	hdr := nifti.Nii1Header{
		SizeofHdr: niftiHeaderSize,
		Datatype:  niftiFloat32,
		Bitpix:    32,
		VoxOffset: niftiHeaderSize + 4,
		SclSlope:  1,
		SformCode: 1,
	}
	hdr.Dim = [8]int16{3, int16(v.Dims[0]), int16(v.Dims[1]), int16(v.Dims[2]), 1, 1, 1, 1}
	size := v.Affine.VoxelSize()
	hdr.Pixdim = [8]float32{1, float32(size[0]), float32(size[1]), float32(size[2]), 1, 1, 1, 1}
	for col := range 4 {
		hdr.SrowX[col] = float32(v.Affine[0][col])
		hdr.SrowY[col] = float32(v.Affine[1][col])
		hdr.SrowZ[col] = float32(v.Affine[2][col])
	}
	copy(hdr.Magic[:], "n+1\x00")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	// Empty extension block.
	buf.Write(make([]byte, 4))
	samples := make([]float32, len(v.Data))
	for i, x := range v.Data {
		samples[i] = float32(x)
	}
	if err := binary.Write(&buf, binary.LittleEndian, samples); err != nil {
		return err
	}

	out := buf.Bytes()
	if strings.HasSuffix(path, ".gz") {
		var gzbuf bytes.Buffer
		zw := gzip.NewWriter(&gzbuf)
		if _, err := zw.Write(out); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		out = gzbuf.Bytes()
	}
	return os.WriteFile(path, out, 0o644)
}
