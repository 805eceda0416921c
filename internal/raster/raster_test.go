package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// delhiTransform is a 0.01 degree grid anchored at the north-west corner of
// the default bbox.
var delhiTransform = [6]float64{77.18, 0.01, 0, 28.66, 0, -0.01}

func testGrid(t *testing.T, w, h int) *Grid {
	t.Helper()
	values := make([]float64, w*h)
	for i := range values {
		values[i] = 20 + float64(i)*0.25
	}
	g, err := NewGrid(w, h, delhiTransform, values)
	require.NoError(t, err)
	return g
}

func TestGrid_SampleNearestPixel(t *testing.T) {
	g := testGrid(t, 4, 3)

	v, err := g.Sample(77.185, 28.655) // pixel (0,0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)

	v, err = g.Sample(77.2199, 28.6401) // pixel (3,1)
	require.NoError(t, err)
	assert.Equal(t, g.At(3, 1), v)
}

func TestGrid_SampleOutOfBounds(t *testing.T) {
	g := testGrid(t, 4, 3)

	for _, pt := range [][2]float64{{77.17, 28.65}, {77.23, 28.65}, {77.19, 28.67}, {77.19, 28.62}} {
		_, err := g.Sample(pt[0], pt[1])
		var oob *OutOfBoundsError
		require.ErrorAs(t, err, &oob, "point %v", pt)
		assert.Equal(t, pt[0], oob.X)
	}
}

func TestGrid_SampleNoData(t *testing.T) {
	g := testGrid(t, 2, 2)
	g.Values[1] = -9999
	g.Values[2] = math.NaN()
	g.WithNoData(-9999)

	_, err := g.Sample(77.195, 28.655)
	require.ErrorIs(t, err, ErrNoData)
	_, err = g.Sample(77.185, 28.645)
	require.ErrorIs(t, err, ErrNoData)
	_, err = g.Sample(77.185, 28.655)
	require.NoError(t, err)
}

func TestGrid_Bounds(t *testing.T) {
	g := testGrid(t, 8, 14)
	minX, minY, maxX, maxY := g.Bounds()
	assert.InDelta(t, 77.18, minX, 1e-12)
	assert.InDelta(t, 28.52, minY, 1e-12)
	assert.InDelta(t, 77.26, maxX, 1e-12)
	assert.InDelta(t, 28.66, maxY, 1e-12)
}

func TestNewGrid_Invalid(t *testing.T) {
	_, err := NewGrid(2, 2, delhiTransform, []float64{1, 2, 3})
	require.Error(t, err)
	_, err = NewGrid(0, 2, delhiTransform, nil)
	require.Error(t, err)
	_, err = NewGrid(1, 1, [6]float64{0, 0, 0, 0, 0, 0}, []float64{1})
	require.Error(t, err)
}

func TestSameGeometry(t *testing.T) {
	a := testGrid(t, 3, 3)
	b := testGrid(t, 3, 3)
	assert.True(t, SameGeometry(a, b))
	c := testGrid(t, 3, 2)
	assert.False(t, SameGeometry(a, c))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts WriteOptions
	}{
		{"uncompressed strips", WriteOptions{}},
		{"deflate strips", WriteOptions{Compression: CompressionDeflate}},
		{"deflate float predictor", WriteOptions{Compression: CompressionDeflate, Predictor: PredictorFloat}},
		{"uncompressed float predictor", WriteOptions{Predictor: PredictorFloat}},
		{"deflate tiles", WriteOptions{Compression: CompressionDeflate, Predictor: PredictorFloat, TileSize: 16}},
		{"uncompressed tiles", WriteOptions{TileSize: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testGrid(t, 21, 18)
			src.Values[5] = -3.4028234663852886e+38
			src.WithNoData(-3.4028234663852886e+38)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, src, tt.opts))

			got, err := Decode(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, src.Width, got.Width)
			assert.Equal(t, src.Height, got.Height)
			assert.InDeltaSlice(t, src.Transform[:], got.Transform[:], 1e-12)
			require.True(t, got.HasNoData)
			for i := range src.Values {
				assert.Equal(t, float64(float32(src.Values[i])), got.Values[i], "value %d", i)
			}

			_, err = got.Sample(77.18+5*0.01+0.005, 28.655)
			require.ErrorIs(t, err, ErrNoData)
		})
	}
}

func TestWriteFileOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lst.tif")
	src := testGrid(t, 5, 5)
	require.NoError(t, WriteFile(path, src, WriteOptions{Compression: CompressionDeflate}))

	got, err := Open(path)
	require.NoError(t, err)
	v, err := got.Sample(77.205, 28.635)
	require.NoError(t, err)
	assert.Equal(t, src.At(2, 2), v)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.tif"))
	require.Error(t, err)
}

// bigEndianUint16Tiff builds a 3x2 big-endian uint16 strip image with
// horizontal differencing.
func bigEndianUint16Tiff() []byte {
	be := binary.BigEndian
	var b bytes.Buffer
	b.WriteString("MM")
	_ = binary.Write(&b, be, uint16(42))
	_ = binary.Write(&b, be, uint32(20))

	// Rows 10 12 15 and 100 90 95, differenced.
	for _, v := range []uint16{10, 2, 3, 100, 0xFFF6, 5} {
		_ = binary.Write(&b, be, v)
	}

	type ent struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	extra := uint32(20 + 2 + 12*11 + 4)
	ents := []ent{
		{tagImageWidth, typeShort, 1, 3 << 16},
		{tagImageLength, typeShort, 1, 2 << 16},
		{tagBitsPerSample, typeShort, 1, 16 << 16},
		{tagCompression, typeShort, 1, 1 << 16},
		{tagStripOffsets, typeLong, 1, 8},
		{tagSamplesPerPixel, typeShort, 1, 1 << 16},
		{tagRowsPerStrip, typeShort, 1, 2 << 16},
		{tagStripByteCounts, typeLong, 1, 12},
		{tagPredictor, typeShort, 1, 2 << 16},
		{tagModelPixelScale, typeDouble, 3, extra},
		{tagModelTiepoint, typeDouble, 6, extra + 24},
	}
	_ = binary.Write(&b, be, uint16(len(ents)))
	for _, e := range ents {
		_ = binary.Write(&b, be, e.tag)
		_ = binary.Write(&b, be, e.typ)
		_ = binary.Write(&b, be, e.count)
		_ = binary.Write(&b, be, e.value)
	}
	_ = binary.Write(&b, be, uint32(0))
	for _, v := range []float64{0.5, 0.5, 0, 0, 0, 0, 10, 20, 0} {
		_ = binary.Write(&b, be, v)
	}
	return b.Bytes()
}

func TestDecode_BigEndianHorizontalPredictor(t *testing.T) {
	g, err := Decode(bigEndianUint16Tiff())
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 12, 15, 100, 90, 95}, g.Values)
	assert.Equal(t, [6]float64{10, 0.5, 0, 20, 0, -0.5}, g.Transform)
	assert.False(t, g.HasNoData)

	v, err := g.Sample(10.75, 19.4)
	require.NoError(t, err)
	assert.Equal(t, 90.0, v)
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte("GIF89a.."))
	require.Error(t, err)

	bigtiff := []byte{'I', 'I', 43, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err = Decode(bigtiff)
	require.True(t, errors.Is(err, ErrUnsupported))

	_, err = Decode([]byte{'I', 'I'})
	require.Error(t, err)
}

func TestEncode_RejectsRotation(t *testing.T) {
	g, err := NewGrid(1, 1, [6]float64{0, 1, 0.1, 0, 0, -1}, []float64{1})
	require.NoError(t, err)
	err = Encode(&bytes.Buffer{}, g, WriteOptions{})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestUndoFloat_InvertsApply(t *testing.T) {
	vals := []float32{1.5, -2.25, 3e-7, 65504}
	row := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(row[i*4:], math.Float32bits(v))
	}
	applyFloatPredictor(row, 4)
	undoFloat(row, 4)
	for i, v := range vals {
		assert.Equal(t, v, math.Float32frombits(binary.BigEndian.Uint32(row[i*4:])))
	}
}
