package boxes

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// WriteText writes one line per box: "x y z l w h yaw [vx vy] score label".
func WriteText(w io.Writer, boxes []OrientedBox, withVelocity bool) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 128)
	for _, b := range boxes {
		buf = buf[:0]
		values := []float64{b.Center.X, b.Center.Y, b.Center.Z, b.Length, b.Width, b.Height, b.Yaw}
		if withVelocity {
			values = append(values, b.VX, b.VY)
		}
		values = append(values, b.Score)
		for _, v := range values {
			buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
			buf = append(buf, ' ')
		}
		buf = strconv.AppendInt(buf, int64(b.Label), 10)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadText parses the output of WriteText. Lines with 9 fields have no velocity and lines
// with 11 fields do. Blank lines are skipped.
func ReadText(r io.Reader) ([]OrientedBox, error) {
	var out []OrientedBox
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 9 && len(fields) != 11 {
			return nil, errors.Errorf("line %d: expected 9 or 11 fields, got %d", lineNum, len(fields))
		}
		values := make([]float64, len(fields)-1)
		for i, f := range fields[:len(fields)-1] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d field %d", lineNum, i+1)
			}
			values[i] = v
		}
		label, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d label", lineNum)
		}
		b := OrientedBox{Length: values[3], Width: values[4], Height: values[5], Yaw: values[6], Label: label}
		b.Center.X, b.Center.Y, b.Center.Z = values[0], values[1], values[2]
		if len(fields) == 11 {
			b.VX, b.VY = values[7], values[8]
		}
		b.Score = values[len(values)-1]
		out = append(out, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
