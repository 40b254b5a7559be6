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

	"go.viam.com/rgbdgrab/rimage"
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

// String returns the DATA keyword of the format.
func (t PCDType) String() string {
	switch t {
	case PCDAscii:
		return "ascii"
	case PCDBinary:
		return "binary"
	case PCDCompressed:
		return "binary_compressed"
	}
	return "unknown"
}

// ParsePCDType parses the DATA keyword of a pcd header.
func ParsePCDType(s string) (PCDType, error) {
	switch strings.ToLower(s) {
	case "ascii":
		return PCDAscii, nil
	case "binary":
		return PCDBinary, nil
	case "binary_compressed":
		return PCDCompressed, nil
	}
	return 0, errors.Errorf("unknown pcd data type %q", s)
}

func colorToPCDInt(b, g, r uint8) int {
	x := 0
	x |= (int(r) << 16)
	x |= (int(g) << 8)
	x |= (int(b) << 0)
	return x
}

// ToPCD writes an organized cloud as a PCD file: WIDTH and HEIGHT are the grid size and cells
// without data are written as NaN. Points are converted from millimetres to metres. When colors is
// non-nil it must have the cloud's dimensions and an rgb field is added.
func ToPCD(cloud *Organized, colors *rimage.Image, out io.Writer, outputType PCDType) error {
	if colors != nil && (colors.Width() != cloud.Width() || colors.Height() != cloud.Height()) {
		return errors.Errorf("color image %dx%d does not match cloud %dx%d",
			colors.Width(), colors.Height(), cloud.Width(), cloud.Height())
	}
	var dataLine string
	switch outputType {
	case PCDAscii, PCDBinary:
		dataLine = "DATA " + outputType.String() + "\n"
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown pcd type %d", outputType)
	}

	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION .7\n"); err != nil {
		return err
	}
	var err error
	if colors != nil {
		_, err = fmt.Fprintf(w, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	} else {
		_, err = fmt.Fprintf(w, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Width(),
		cloud.Height(),
		cloud.Size()); err != nil {
		return err
	}
	if _, err := io.WriteString(w, dataLine); err != nil {
		return err
	}
	if err := writePCDData(cloud, colors, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

func writePCDData(cloud *Organized, colors *rimage.Image, out io.Writer, pcdtype PCDType) error {
	buf := make([]byte, 16)
	nan := math.NaN()
	for y := 0; y < cloud.Height(); y++ {
		for x := 0; x < cloud.Width(); x++ {
			var err error
			px, py, pz := nan, nan, nan
			if p, ok := cloud.At(x, y); ok {
				px, py, pz = p.X/1000., p.Y/1000., p.Z/1000.
			}
			switch pcdtype {
			case PCDBinary:
				binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(px)))
				binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(py)))
				binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pz)))
				n := 12
				if colors != nil {
					b, g, r, _ := colors.GetBGRA(x, y)
					binary.LittleEndian.PutUint32(buf[12:], uint32(colorToPCDInt(b, g, r)))
					n = 16
				}
				_, err = out.Write(buf[:n])
			case PCDAscii:
				if colors != nil {
					b, g, r, _ := colors.GetBGRA(x, y)
					_, err = fmt.Fprintf(out, "%f %f %f %d\n", px, py, pz, colorToPCDInt(b, g, r))
				} else {
					_, err = fmt.Fprintf(out, "%f %f %f\n", px, py, pz)
				}
			case PCDCompressed:
				err = errors.New("compressed PCD not yet implemented")
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

type pcdHeader struct {
	fields int
	width  int
	height int
	points int
	data   PCDType
}

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}
	var err error
	switch name {
	case "VERSION":
		if value != ".7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch value {
		case "x y z":
			header.fields = 3
		case "x y z rgb":
			header.fields = 4
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE", "TYPE", "COUNT":
		if len(strings.Fields(value)) != header.fields {
			return errors.Errorf("unexpected number of fields in %s line", name)
		}
	case "WIDTH":
		if header.width, err = strconv.Atoi(value); err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		if header.height, err = strconv.Atoi(value); err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if n := len(strings.Fields(value)); n != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", n)
		}
	case "POINTS":
		if header.points, err = strconv.Atoi(value); err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if header.points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", header.points, header.width*header.height)
		}
	case "DATA":
		if header.data, err = ParsePCDType(value); err != nil {
			return err
		}
	}
	return nil
}

// ReadPCD reads an organized cloud written by ToPCD, converting back to millimetres. NaN cells
// become NoData. Colors are skipped.
func ReadPCD(inRaw io.Reader) (*Organized, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	for i := 0; i < len(pcdHeaderFields); {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "reading pcd header")
		}
		line, _, _ = strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, i, &header); err != nil {
			return nil, err
		}
		i++
	}
	cloud, err := NewOrganized(header.width, header.height)
	if err != nil {
		return nil, err
	}
	switch header.data {
	case PCDAscii:
		err = readPCDAscii(in, header, cloud)
	case PCDBinary:
		err = readPCDBinary(in, header, cloud)
	default:
		err = errors.Errorf("unsupported pcd data type %s", header.data)
	}
	if err != nil {
		return nil, err
	}
	return cloud, nil
}

func setFromMetres(cloud *Organized, i int, x, y, z float64) {
	if math.IsNaN(z) || z <= 0 {
		return
	}
	cloud.points[i] = r3.Vector{X: x * 1000., Y: y * 1000., Z: z * 1000.}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader, cloud *Organized) error {
	for i := 0; i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != header.fields {
			return errors.Errorf("point %d has %d fields, expected %d", i, len(tokens), header.fields)
		}
		var xyz [3]float64
		for j := range xyz {
			if xyz[j], err = strconv.ParseFloat(tokens[j], 64); err != nil {
				return errors.Wrapf(err, "point %d", i)
			}
		}
		setFromMetres(cloud, i, xyz[0], xyz[1], xyz[2])
	}
	return nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader, cloud *Organized) error {
	buf := make([]byte, 4*header.fields)
	for i := 0; i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return errors.Wrapf(err, "reading point %d", i)
		}
		x := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
		y := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
		z := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[8:])))
		setFromMetres(cloud, i, x, y, z)
	}
	return nil
}
