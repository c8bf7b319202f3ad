package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

const pcdCommentChar = "#"

// pcdField is one column of a pcd file.
type pcdField struct {
	name  string
	size  int
	typ   byte
	count int
}

type pcdHeader struct {
	fields []pcdField
	width  int
	height int
	points int
	data   PCDType
}

// WritePCD writes the cloud in PCD v0.7 format. Points carry x, y, z and, when present,
// intensity, all as float32 meters.
func WritePCD(cloud *PointCloud, out io.Writer, outputType PCDType) error {
	if outputType == PCDCompressed {
		return errors.New("compressed PCD not yet implemented")
	}
	bw := bufio.NewWriter(out)
	fields, sizes, types, counts := "x y z", "4 4 4", "F F F", "1 1 1"
	if cloud.HasIntensity() {
		fields, sizes, types, counts = "x y z intensity", "4 4 4 4", "F F F F", "1 1 1 1"
	}
	data := "ascii"
	if outputType == PCDBinary {
		data = "binary"
	}
	if _, err := fmt.Fprintf(bw, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		fields, sizes, types, counts, cloud.Size(), cloud.Size(), data); err != nil {
		return err
	}

	var err error
	buf := make([]byte, 16)
	cloud.Iterate(func(_ int, p r3.Vector, intensity float32) bool {
		switch outputType {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
			n := 12
			if cloud.HasIntensity() {
				binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(intensity))
				n = 16
			}
			_, err = bw.Write(buf[:n])
		default:
			if cloud.HasIntensity() {
				_, err = fmt.Fprintf(bw, "%g %g %g %g\n", float32(p.X), float32(p.Y), float32(p.Z), intensity)
			} else {
				_, err = fmt.Fprintf(bw, "%g %g %g\n", float32(p.X), float32(p.Y), float32(p.Z))
			}
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func parsePCDHeaderLine(line string, header *pcdHeader) (done bool, err error) {
	key, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)
	setColumn := func(set func(f *pcdField, token string) error) error {
		if len(tokens) != len(header.fields) {
			return errors.Errorf("%s has %d entries, FIELDS has %d", key, len(tokens), len(header.fields))
		}
		for i, token := range tokens {
			if err := set(&header.fields[i], token); err != nil {
				return errors.Wrapf(err, "invalid %s entry %q", key, token)
			}
		}
		return nil
	}

	switch strings.ToUpper(key) {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return false, errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS", "COLUMNS":
		header.fields = make([]pcdField, len(tokens))
		for i, token := range tokens {
			header.fields[i] = pcdField{name: token, size: 4, typ: 'F', count: 1}
		}
	case "SIZE":
		err = setColumn(func(f *pcdField, token string) (err error) {
			f.size, err = strconv.Atoi(token)
			if err == nil && f.size != 1 && f.size != 2 && f.size != 4 && f.size != 8 {
				err = errors.Errorf("size %d", f.size)
			}
			return err
		})
	case "TYPE":
		err = setColumn(func(f *pcdField, token string) error {
			if token != "F" && token != "I" && token != "U" {
				return errors.New("type must be F, I or U")
			}
			f.typ = token[0]
			return nil
		})
	case "COUNT":
		err = setColumn(func(f *pcdField, token string) (err error) {
			f.count, err = strconv.Atoi(token)
			if err == nil && f.count < 1 {
				err = errors.Errorf("count %d", f.count)
			}
			return err
		})
	case "WIDTH":
		header.width, err = strconv.Atoi(value)
	case "HEIGHT":
		header.height, err = strconv.Atoi(value)
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return false, errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
	case "POINTS":
		header.points, err = strconv.Atoi(value)
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return false, errors.Errorf("unknown pcd data type %q", value)
		}
		return true, nil
	default:
		return false, errors.Errorf("unknown pcd header line %q", line)
	}
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s line", key)
	}
	return false, nil
}

// ReadPCD reads a PCD file with at least x, y and z fields. An intensity field is kept;
// any other fields are skipped.
func ReadPCD(inRaw io.Reader) (*PointCloud, error) {
	header := pcdHeader{height: 1}
	in := bufio.NewReader(inRaw)
	for lineNum := 1; ; lineNum++ {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", lineNum)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		done, err := parsePCDHeaderLine(line, &header)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	if header.points == 0 && header.width*header.height > 0 {
		header.points = header.width * header.height
	}
	if header.points != header.width*header.height {
		return nil, errors.Errorf("POINTS %d does not match WIDTH*HEIGHT %d", header.points, header.width*header.height)
	}
	layout, err := newPCDLayout(header.fields)
	if err != nil {
		return nil, err
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header, layout)
	case PCDBinary:
		return readPCDBinary(in, header, layout)
	default:
		return nil, errors.New("compressed pcd not yet supported")
	}
}

// pcdLayout locates the columns the reader cares about. Offsets are in values for ascii
// and bytes for binary.
type pcdLayout struct {
	x, y, z, intensity     int
	xb, yb, zb, intensityB int
	stride, values         int
	fields                 []pcdField
}

func newPCDLayout(fields []pcdField) (*pcdLayout, error) {
	l := &pcdLayout{x: -1, y: -1, z: -1, intensity: -1, fields: fields}
	for _, f := range fields {
		switch f.name {
		case "x":
			l.x, l.xb = l.values, l.stride
		case "y":
			l.y, l.yb = l.values, l.stride
		case "z":
			l.z, l.zb = l.values, l.stride
		case "intensity", "i":
			l.intensity, l.intensityB = l.values, l.stride
		}
		l.values += f.count
		l.stride += f.size * f.count
	}
	if l.x < 0 || l.y < 0 || l.z < 0 {
		return nil, errors.New("pcd needs x, y and z fields")
	}
	return l, nil
}

func (l *pcdLayout) fieldAt(valueIdx int) pcdField {
	for _, f := range l.fields {
		if valueIdx < f.count {
			return f
		}
		valueIdx -= f.count
	}
	return pcdField{}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader, l *pcdLayout) (*PointCloud, error) {
	pc := NewWithPrealloc(header.points, l.intensity >= 0)
	for i := 0; i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != l.values {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		parse := func(idx int) (float64, error) {
			v, err := strconv.ParseFloat(tokens[idx], 64)
			if err != nil {
				return 0, errors.Wrapf(err, "invalid point %d field %s", i, tokens[idx])
			}
			return v, nil
		}
		var p r3.Vector
		if p.X, err = parse(l.x); err != nil {
			return nil, err
		}
		if p.Y, err = parse(l.y); err != nil {
			return nil, err
		}
		if p.Z, err = parse(l.z); err != nil {
			return nil, err
		}
		var intensity float64
		if l.intensity >= 0 {
			if intensity, err = parse(l.intensity); err != nil {
				return nil, err
			}
		}
		if err := pc.Append(p, float32(intensity)); err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader, l *pcdLayout) (*PointCloud, error) {
	pc := NewWithPrealloc(header.points, l.intensity >= 0)
	buf := make([]byte, l.stride)
	for i := 0; i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		p := r3.Vector{
			X: decodeValue(buf[l.xb:], l.fieldAt(l.x)),
			Y: decodeValue(buf[l.yb:], l.fieldAt(l.y)),
			Z: decodeValue(buf[l.zb:], l.fieldAt(l.z)),
		}
		var intensity float64
		if l.intensity >= 0 {
			intensity = decodeValue(buf[l.intensityB:], l.fieldAt(l.intensity))
		}
		if err := pc.Append(p, float32(intensity)); err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
	}
	return pc, nil
}

func decodeValue(b []byte, f pcdField) float64 {
	switch f.typ {
	case 'F':
		if f.size == 8 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case 'I':
		switch f.size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(b)))
		case 4:
			return float64(int32(binary.LittleEndian.Uint32(b)))
		default:
			return float64(int64(binary.LittleEndian.Uint64(b)))
		}
	default:
		switch f.size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(b))
		case 4:
			return float64(binary.LittleEndian.Uint32(b))
		default:
			return float64(binary.LittleEndian.Uint64(b))
		}
	}
}
