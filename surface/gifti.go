package surface

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	intentPointset = "NIFTI_INTENT_POINTSET"
	intentTriangle = "NIFTI_INTENT_TRIANGLE"
)

type giftiFile struct {
	XMLName            xml.Name     `xml:"GIFTI"`
	Version            string       `xml:"Version,attr"`
	NumberOfDataArrays int          `xml:"NumberOfDataArrays,attr"`
	MetaData           giftiMeta    `xml:"MetaData"`
	LabelTable         string       `xml:"LabelTable"`
	DataArrays         []giftiArray `xml:"DataArray"`
}

type giftiMeta struct {
	MD []giftiMD `xml:"MD"`
}

type giftiMD struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

type giftiArray struct {
	Intent             string           `xml:"Intent,attr"`
	DataType           string           `xml:"DataType,attr"`
	ArrayIndexingOrder string           `xml:"ArrayIndexingOrder,attr"`
	Dimensionality     int              `xml:"Dimensionality,attr"`
	Dim0               int              `xml:"Dim0,attr"`
	Dim1               int              `xml:"Dim1,attr"`
	Encoding           string           `xml:"Encoding,attr"`
	Endian             string           `xml:"Endian,attr"`
	ExternalFileName   string           `xml:"ExternalFileName,attr"`
	ExternalFileOffset string           `xml:"ExternalFileOffset,attr"`
	MetaData           giftiMeta        `xml:"MetaData"`
	CoordSys           []giftiTransform `xml:"CoordinateSystemTransformMatrix"`
	Data               string           `xml:"Data"`
}

type giftiTransform struct {
	DataSpace        string `xml:"DataSpace"`
	TransformedSpace string `xml:"TransformedSpace"`
	MatrixData       string `xml:"MatrixData"`
}

// ReadGIFTI reads the pointset and triangle arrays of a GIFTI surface.
func ReadGIFTI(path string) (*Mesh, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc giftiFile
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m := &Mesh{doc: &doc}
	var havePoints, haveTris bool
	for i := range doc.DataArrays {
		da := &doc.DataArrays[i]
		switch da.Intent {
		case intentPointset:
			values, err := da.decode()
			if err != nil {
				return nil, fmt.Errorf("%s: pointset: %w", path, err)
			}
			m.Vertices = make([][3]float64, da.Dim0)
			for v := range m.Vertices {
				for a := range 3 {
					m.Vertices[v][a] = values[da.at(v, a)]
				}
			}
			havePoints = true
		case intentTriangle:
			values, err := da.decode()
			if err != nil {
				return nil, fmt.Errorf("%s: triangles: %w", path, err)
			}
			m.Triangles = make([][3]int32, da.Dim0)
			for t := range m.Triangles {
				for a := range 3 {
					m.Triangles[t][a] = int32(values[da.at(t, a)])
				}
			}
			haveTris = true
		}
	}
	if !havePoints || !haveTris {
		return nil, fmt.Errorf("%s: GIFTI file lacks a pointset or triangle array", path)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// at maps (row, col) of an N x 3 array to its flat index.
func (da *giftiArray) at(row, col int) int {
	if da.ArrayIndexingOrder == "ColumnMajorOrder" {
		return col*da.Dim0 + row
	}
	return row*3 + col
}

func (da *giftiArray) decode() ([]float64, error) {
	if da.Dimensionality != 2 || da.Dim1 != 3 {
		return nil, fmt.Errorf("expected an N x 3 array, got %d-d %dx%d", da.Dimensionality, da.Dim0, da.Dim1)
	}
	n := da.Dim0 * 3

	if da.Encoding == "ASCII" {
		fields := strings.Fields(da.Data)
		if len(fields) != n {
			return nil, fmt.Errorf("ASCII array holds %d values, want %d", len(fields), n)
		}
		out := make([]float64, n)
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	}

	payload, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(da.Data), ""))
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	switch da.Encoding {
	case "Base64Binary":
	case "GZipBase64Binary":
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		payload, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported encoding %q", da.Encoding)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if da.Endian == "BigEndian" {
		order = binary.BigEndian
	}
	size, read, err := giftiSampleReader(da.DataType, order)
	if err != nil {
		return nil, err
	}
	if len(payload) != n*size {
		return nil, fmt.Errorf("binary array holds %d bytes, want %d", len(payload), n*size)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = read(payload[i*size:])
	}
	return out, nil
}

func giftiSampleReader(datatype string, order binary.ByteOrder) (int, func([]byte) float64, error) {
	switch datatype {
	case "NIFTI_TYPE_FLOAT32":
		return 4, func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }, nil
	case "NIFTI_TYPE_FLOAT64":
		return 8, func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }, nil
	case "NIFTI_TYPE_INT32":
		return 4, func(b []byte) float64 { return float64(int32(order.Uint32(b))) }, nil
	case "NIFTI_TYPE_UINT8":
		return 1, func(b []byte) float64 { return float64(b[0]) }, nil
	default:
		return 0, nil, fmt.Errorf("unsupported data type %q", datatype)
	}
}

// WriteGIFTI writes the mesh as a GIFTI surface with zlib-compressed
// float32 vertices and int32 triangles. Metadata of the file the mesh was
// read from is carried over.
func WriteGIFTI(path string, m *Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}

	doc := giftiFile{Version: "1.0"}
	points := giftiArray{Intent: intentPointset, DataType: "NIFTI_TYPE_FLOAT32"}
	tris := giftiArray{Intent: intentTriangle, DataType: "NIFTI_TYPE_INT32"}
	if m.doc != nil {
		doc.MetaData = m.doc.MetaData
		for _, da := range m.doc.DataArrays {
			switch da.Intent {
			case intentPointset:
				points.MetaData, points.CoordSys = da.MetaData, da.CoordSys
			case intentTriangle:
				tris.MetaData = da.MetaData
			}
		}
	}

	var pbuf bytes.Buffer
	for _, v := range m.Vertices {
		for _, x := range v {
			_ = binary.Write(&pbuf, binary.LittleEndian, float32(x))
		}
	}
	var tbuf bytes.Buffer
	for _, t := range m.Triangles {
		for _, x := range t {
			_ = binary.Write(&tbuf, binary.LittleEndian, x)
		}
	}

	for _, item := range []struct {
		da   *giftiArray
		rows int
		data []byte
	}{{&points, len(m.Vertices), pbuf.Bytes()}, {&tris, len(m.Triangles), tbuf.Bytes()}} {
		encoded, err := zlibBase64(item.data)
		if err != nil {
			return err
		}
		item.da.ArrayIndexingOrder = "RowMajorOrder"
		item.da.Dimensionality = 2
		item.da.Dim0 = item.rows
		item.da.Dim1 = 3
		item.da.Encoding = "GZipBase64Binary"
		item.da.Endian = "LittleEndian"
		item.da.Data = encoded
	}
	doc.DataArrays = []giftiArray{points, tris}
	doc.NumberOfDataArrays = len(doc.DataArrays)

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	var out bytes.Buffer
	out.WriteString(xml.Header)
	out.WriteString(`<!DOCTYPE GIFTI SYSTEM "http://www.nitrc.org/frs/download.php/115/gifti.dtd">` + "\n")
	out.Write(body)
	out.WriteString("\n")
	return os.WriteFile(path, out.Bytes(), 0o644)
}

func zlibBase64(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
