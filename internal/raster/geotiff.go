package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

// ErrUnsupported is returned for valid TIFF files using features the reader
// does not implement (BigTIFF, multi-band, JPEG compression, ...).
var ErrUnsupported = errors.New("unsupported tiff")

// field is one decoded IFD entry.
type field struct {
	ints   []uint64
	floats []float64
	ascii  string
}

// ReadFile reads a GeoTIFF file from disk with the built-in decoder.
func ReadFile(path string) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raster: %w", err)
	}
	g, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return g, nil
}

// Decode parses the first image of a classic (non-Big) GeoTIFF.
func Decode(data []byte) (*Grid, error) {
	if len(data) < 8 {
		return nil, errors.New("file too short for tiff header")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.New("not a tiff file")
	}
	switch magic := order.Uint16(data[2:4]); magic {
	case 42:
	case 43:
		return nil, fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return nil, fmt.Errorf("bad tiff magic %d", magic)
	}

	d := &decoder{data: data, order: order}
	if err := d.readIFD(int64(order.Uint32(data[4:8]))); err != nil {
		return nil, err
	}
	return d.decode()
}

type decoder struct {
	data   []byte
	order  binary.ByteOrder
	fields map[uint16]field

	width, height int
	bits          int
	format        int
	compression   int
	predictor     int
}

func (d *decoder) readIFD(off int64) error {
	if off < 8 || off+2 > int64(len(d.data)) {
		return fmt.Errorf("ifd offset %d out of range", off)
	}
	n := int64(d.order.Uint16(d.data[off:]))
	end := off + 2 + n*12
	if end > int64(len(d.data)) {
		return errors.New("truncated ifd")
	}

	d.fields = make(map[uint16]field, n)
	for i := int64(0); i < n; i++ {
		e := d.data[off+2+i*12 : off+2+(i+1)*12]
		tag := d.order.Uint16(e[0:2])
		typ := d.order.Uint16(e[2:4])
		count := int64(d.order.Uint32(e[4:8]))

		size, ok := typeSize[typ]
		if !ok {
			continue
		}
		raw := e[8:12]
		if total := count * int64(size); total > 4 {
			p := int64(d.order.Uint32(e[8:12]))
			if p+total > int64(len(d.data)) {
				return fmt.Errorf("tag %d data out of range", tag)
			}
			raw = d.data[p : p+total]
		} else {
			raw = raw[:total]
		}
		d.fields[tag] = d.parseField(typ, int(count), raw)
	}
	return nil
}

func (d *decoder) parseField(typ uint16, count int, raw []byte) field {
	var f field
	switch typ {
	case typeASCII:
		f.ascii = strings.TrimRight(string(raw), "\x00 ")
	case typeByte, typeUndefined:
		for _, b := range raw {
			f.ints = append(f.ints, uint64(b))
		}
	case typeSByte:
		for _, b := range raw {
			f.ints = append(f.ints, uint64(int8(b)))
		}
	case typeShort, typeSShort:
		for i := 0; i < count; i++ {
			f.ints = append(f.ints, uint64(d.order.Uint16(raw[i*2:])))
		}
	case typeLong, typeSLong:
		for i := 0; i < count; i++ {
			f.ints = append(f.ints, uint64(d.order.Uint32(raw[i*4:])))
		}
	case typeRational, typeSRational:
		for i := 0; i < count; i++ {
			num := float64(d.order.Uint32(raw[i*8:]))
			den := float64(d.order.Uint32(raw[i*8+4:]))
			f.floats = append(f.floats, num/den)
		}
	case typeFloat:
		for i := 0; i < count; i++ {
			f.floats = append(f.floats, float64(math.Float32frombits(d.order.Uint32(raw[i*4:]))))
		}
	case typeDouble:
		for i := 0; i < count; i++ {
			f.floats = append(f.floats, math.Float64frombits(d.order.Uint64(raw[i*8:])))
		}
	}
	return f
}

func (d *decoder) intTag(tag uint16, def uint64) uint64 {
	f, ok := d.fields[tag]
	if !ok || len(f.ints) == 0 {
		return def
	}
	return f.ints[0]
}

func (d *decoder) decode() (*Grid, error) {
	d.width = int(d.intTag(tagImageWidth, 0))
	d.height = int(d.intTag(tagImageLength, 0))
	if d.width == 0 || d.height == 0 {
		return nil, errors.New("missing image dimensions")
	}
	if spp := d.intTag(tagSamplesPerPixel, 1); spp != 1 {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, spp)
	}
	d.bits = int(d.intTag(tagBitsPerSample, 1))
	d.format = int(d.intTag(tagSampleFormat, sampleUint))
	d.compression = int(d.intTag(tagCompression, CompressionNone))
	d.predictor = int(d.intTag(tagPredictor, PredictorNone))

	if err := d.checkFormat(); err != nil {
		return nil, err
	}

	transform, err := d.transform()
	if err != nil {
		return nil, err
	}

	values := make([]float64, d.width*d.height)
	if _, tiled := d.fields[tagTileWidth]; tiled {
		err = d.decodeTiles(values)
	} else {
		err = d.decodeStrips(values)
	}
	if err != nil {
		return nil, err
	}

	g, err := NewGrid(d.width, d.height, transform, values)
	if err != nil {
		return nil, err
	}
	if nd, ok := d.fields[tagGDALNoData]; ok && nd.ascii != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(nd.ascii), 64)
		if err != nil {
			return nil, fmt.Errorf("parse nodata %q: %w", nd.ascii, err)
		}
		if d.format == sampleFloat && d.bits == 32 {
			v = float64(float32(v))
		}
		g.WithNoData(v)
	}
	return g, nil
}

func (d *decoder) checkFormat() error {
	switch d.format {
	case sampleUint, sampleInt:
		if d.bits != 8 && d.bits != 16 && d.bits != 32 {
			return fmt.Errorf("%w: %d-bit integers", ErrUnsupported, d.bits)
		}
	case sampleFloat:
		if d.bits != 32 && d.bits != 64 {
			return fmt.Errorf("%w: %d-bit floats", ErrUnsupported, d.bits)
		}
	default:
		return fmt.Errorf("%w: sample format %d", ErrUnsupported, d.format)
	}
	switch d.compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, compressionDeflateOld:
	default:
		return fmt.Errorf("%w: compression %d", ErrUnsupported, d.compression)
	}
	switch d.predictor {
	case PredictorNone, PredictorHorizontal:
	case PredictorFloat:
		if d.format != sampleFloat {
			return fmt.Errorf("%w: float predictor on integer samples", ErrUnsupported)
		}
	default:
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, d.predictor)
	}
	return nil
}

// transform derives the GDAL-order affine transform from the GeoTIFF model
// tags. PixelIsArea is assumed.
func (d *decoder) transform() ([6]float64, error) {
	if m, ok := d.fields[tagModelTransformation]; ok && len(m.floats) >= 16 {
		f := m.floats
		return [6]float64{f[3], f[0], f[1], f[7], f[4], f[5]}, nil
	}
	scale, okS := d.fields[tagModelPixelScale]
	tie, okT := d.fields[tagModelTiepoint]
	if !okS || !okT || len(scale.floats) < 2 || len(tie.floats) < 6 {
		return [6]float64{}, errors.New("raster is not georeferenced")
	}
	sx, sy := scale.floats[0], scale.floats[1]
	i, j := tie.floats[0], tie.floats[1]
	x, y := tie.floats[3], tie.floats[4]
	return [6]float64{x - i*sx, sx, 0, y + j*sy, 0, -sy}, nil
}

func (d *decoder) blocks(offTag, countTag uint16) ([][]byte, error) {
	offs, counts := d.fields[offTag].ints, d.fields[countTag].ints
	if len(offs) == 0 || len(offs) != len(counts) {
		return nil, errors.New("missing or mismatched block offsets")
	}
	out := make([][]byte, len(offs))
	for i := range offs {
		start, n := offs[i], counts[i]
		if start+n > uint64(len(d.data)) {
			return nil, fmt.Errorf("block %d out of range", i)
		}
		out[i] = d.data[start : start+n]
	}
	return out, nil
}

func (d *decoder) decodeStrips(values []float64) error {
	rowsPerStrip := int(d.intTag(tagRowsPerStrip, uint64(d.height)))
	rowsPerStrip = min(rowsPerStrip, d.height)
	strips, err := d.blocks(tagStripOffsets, tagStripByteCounts)
	if err != nil {
		return err
	}
	for i, raw := range strips {
		y0 := i * rowsPerStrip
		if y0 >= d.height {
			break
		}
		rows := min(rowsPerStrip, d.height-y0)
		buf, err := d.inflate(raw, d.width, rows)
		if err != nil {
			return fmt.Errorf("strip %d: %w", i, err)
		}
		for r := 0; r < rows; r++ {
			d.convertRow(buf, r*d.width, values[(y0+r)*d.width:], d.width)
		}
	}
	return nil
}

func (d *decoder) decodeTiles(values []float64) error {
	tw := int(d.intTag(tagTileWidth, 0))
	th := int(d.intTag(tagTileLength, 0))
	if tw == 0 || th == 0 {
		return errors.New("invalid tile size")
	}
	tiles, err := d.blocks(tagTileOffsets, tagTileByteCounts)
	if err != nil {
		return err
	}
	across := (d.width + tw - 1) / tw
	down := (d.height + th - 1) / th
	if len(tiles) < across*down {
		return fmt.Errorf("have %d tiles, want %d", len(tiles), across*down)
	}

	for ty := 0; ty < down; ty++ {
		for tx := 0; tx < across; tx++ {
			buf, err := d.inflate(tiles[ty*across+tx], tw, th)
			if err != nil {
				return fmt.Errorf("tile %d,%d: %w", tx, ty, err)
			}
			x0, y0 := tx*tw, ty*th
			cols := min(tw, d.width-x0)
			for r := 0; r < th && y0+r < d.height; r++ {
				d.convertRow(buf, r*tw, values[(y0+r)*d.width+x0:], cols)
			}
		}
	}
	return nil
}

// inflate decompresses one block of width*rows samples and undoes the predictor.
func (d *decoder) inflate(raw []byte, width, rows int) ([]byte, error) {
	bps := d.bits / 8
	want := width * rows * bps

	var buf []byte
	switch d.compression {
	case CompressionNone:
		buf = raw
	case CompressionLZW:
		r := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer r.Close()
		b, err := io.ReadAll(io.LimitReader(r, int64(want)))
		if err != nil {
			return nil, fmt.Errorf("lzw: %w", err)
		}
		buf = b
	case CompressionDeflate, compressionDeflateOld:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer r.Close()
		b, err := io.ReadAll(io.LimitReader(r, int64(want)))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		buf = b
	}
	if len(buf) < want {
		return nil, fmt.Errorf("block has %d bytes, want %d", len(buf), want)
	}
	// Never mutate the file buffer in place.
	if d.compression == CompressionNone && d.predictor != PredictorNone {
		buf = append([]byte(nil), buf[:want]...)
	}

	rowBytes := width * bps
	for r := 0; r < rows; r++ {
		row := buf[r*rowBytes : (r+1)*rowBytes]
		switch d.predictor {
		case PredictorHorizontal:
			undoHorizontal(row, bps, d.order)
		case PredictorFloat:
			undoFloat(row, bps)
		}
	}
	return buf, nil
}

// undoHorizontal reverses integer horizontal differencing in one row.
func undoHorizontal(row []byte, bps int, order binary.ByteOrder) {
	n := len(row) / bps
	switch bps {
	case 1:
		for i := 1; i < n; i++ {
			row[i] += row[i-1]
		}
	case 2:
		for i := 1; i < n; i++ {
			order.PutUint16(row[i*2:], order.Uint16(row[i*2:])+order.Uint16(row[(i-1)*2:]))
		}
	case 4:
		for i := 1; i < n; i++ {
			order.PutUint32(row[i*4:], order.Uint32(row[i*4:])+order.Uint32(row[(i-1)*4:]))
		}
	case 8:
		for i := 1; i < n; i++ {
			order.PutUint64(row[i*8:], order.Uint64(row[i*8:])+order.Uint64(row[(i-1)*8:]))
		}
	}
}

// undoFloat reverses the floating-point predictor in one row: byte-wise
// differencing followed by splitting each sample's bytes into planes, most
// significant first. The row is rewritten in big-endian sample order.
func undoFloat(row []byte, bps int) {
	for i := 1; i < len(row); i++ {
		row[i] += row[i-1]
	}
	n := len(row) / bps
	planes := append([]byte(nil), row...)
	for k := 0; k < n; k++ {
		for p := 0; p < bps; p++ {
			row[k*bps+p] = planes[p*n+k]
		}
	}
}

// convertRow decodes n samples starting at sample index start of buf into dst.
func (d *decoder) convertRow(buf []byte, start int, dst []float64, n int) {
	bps := d.bits / 8
	order := d.order
	if d.predictor == PredictorFloat {
		order = binary.BigEndian
	}
	for i := 0; i < n; i++ {
		b := buf[(start+i)*bps:]
		var v float64
		switch {
		case d.format == sampleFloat && bps == 4:
			v = float64(math.Float32frombits(order.Uint32(b)))
		case d.format == sampleFloat && bps == 8:
			v = math.Float64frombits(order.Uint64(b))
		case d.format == sampleInt && bps == 1:
			v = float64(int8(b[0]))
		case d.format == sampleInt && bps == 2:
			v = float64(int16(order.Uint16(b)))
		case d.format == sampleInt && bps == 4:
			v = float64(int32(order.Uint32(b)))
		case bps == 1:
			v = float64(b[0])
		case bps == 2:
			v = float64(order.Uint16(b))
		default:
			v = float64(order.Uint32(b))
		}
		dst[i] = v
	}
}
