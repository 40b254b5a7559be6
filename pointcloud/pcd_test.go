package pointcloud

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/rgbdgrab/rimage"
)

func makeTestCloud(t *testing.T) *Organized {
	t.Helper()
	pc, err := NewOrganized(3, 2)
	test.That(t, err, test.ShouldBeNil)
	pc.Set(0, 0, r3.Vector{X: -250, Y: 125, Z: 1000})
	pc.Set(2, 1, r3.Vector{X: 500, Y: -750, Z: 2000})
	return pc
}

func TestPCDAscii(t *testing.T) {
	pc := makeTestCloud(t)
	var buf bytes.Buffer
	test.That(t, ToPCD(pc, nil, &buf, PCDAscii), test.ShouldBeNil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	test.That(t, lines[0], test.ShouldEqual, "VERSION .7")
	test.That(t, lines[1], test.ShouldEqual, "FIELDS x y z")
	test.That(t, lines[5], test.ShouldEqual, "WIDTH 3")
	test.That(t, lines[6], test.ShouldEqual, "HEIGHT 2")
	test.That(t, lines[8], test.ShouldEqual, "POINTS 6")
	test.That(t, lines[9], test.ShouldEqual, "DATA ascii")
	test.That(t, lines[10], test.ShouldEqual, "-0.250000 0.125000 1.000000")
	test.That(t, lines[11], test.ShouldEqual, "NaN NaN NaN")
	test.That(t, len(lines), test.ShouldEqual, 16)

	back, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Width(), test.ShouldEqual, 3)
	test.That(t, back.Height(), test.ShouldEqual, 2)
	test.That(t, back.ValidCount(), test.ShouldEqual, 2)
	p, ok := back.At(2, 1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X, test.ShouldAlmostEqual, 500.)
	test.That(t, p.Y, test.ShouldAlmostEqual, -750.)
	test.That(t, p.Z, test.ShouldAlmostEqual, 2000.)
}

func TestPCDBinaryWithColor(t *testing.T) {
	pc := makeTestCloud(t)
	colors := rimage.NewImage(3, 2)
	colors.SetBGRA(0, 0, 3, 2, 1, 255)

	var buf bytes.Buffer
	test.That(t, ToPCD(pc, colors, &buf, PCDBinary), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "FIELDS x y z rgb\n")
	test.That(t, buf.String(), test.ShouldContainSubstring, "DATA binary\n")

	back, err := ReadPCD(bytes.NewReader(buf.Bytes()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.ValidCount(), test.ShouldEqual, 2)
	p, ok := back.At(0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X, test.ShouldAlmostEqual, -250., 1e-3)
	test.That(t, p.Z, test.ShouldAlmostEqual, 1000., 1e-3)
	_, ok = back.At(1, 0)
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, colorToPCDInt(3, 2, 1), test.ShouldEqual, 1<<16|2<<8|3)
}

func TestPCDErrors(t *testing.T) {
	pc := makeTestCloud(t)
	var buf bytes.Buffer
	err := ToPCD(pc, rimage.NewImage(2, 2), &buf, PCDAscii)
	test.That(t, err, test.ShouldNotBeNil)
	err = ToPCD(pc, nil, &buf, PCDCompressed)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadPCD(strings.NewReader("VERSION .6\n"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadPCD(strings.NewReader("VERSION .7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n" +
		"WIDTH 2\nHEIGHT 2\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 3\nDATA ascii\n"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ReadPCD(strings.NewReader("VERSION .7\nFIELDS x y z\nSIZE 4 4 4\nTYPE F F F\nCOUNT 1 1 1\n" +
		"WIDTH 1\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS 1\nDATA ascii\n"))
	test.That(t, err, test.ShouldNotBeNil)

	typ, err := ParsePCDType("BINARY")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, typ, test.ShouldEqual, PCDBinary)
	_, err = ParsePCDType("lzf")
	test.That(t, err, test.ShouldNotBeNil)
}
