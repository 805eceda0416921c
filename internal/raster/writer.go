package raster

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// WriteOptions controls the layout of an encoded GeoTIFF.
type WriteOptions struct {
	Compression int // CompressionNone or CompressionDeflate
	Predictor   int // PredictorNone or PredictorFloat
	TileSize    int // 0 writes one strip per row
}

// WriteFile encodes g as a little-endian float32 GeoTIFF at path.
func WriteFile(path string, g *Grid, opts WriteOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, g, opts); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write raster: %w", err)
	}
	return f.Close()
}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode writes g as a single-band float32 GeoTIFF. Only north-up
// transforms are supported.
func Encode(w io.Writer, g *Grid, opts WriteOptions) error {
	t := g.Transform
	if t[2] != 0 || t[4] != 0 {
		return fmt.Errorf("%w: rotated transform", ErrUnsupported)
	}
	if opts.Compression == 0 {
		opts.Compression = CompressionNone
	}
	if opts.Predictor == 0 {
		opts.Predictor = PredictorNone
	}
	if opts.Compression != CompressionNone && opts.Compression != CompressionDeflate {
		return fmt.Errorf("%w: write compression %d", ErrUnsupported, opts.Compression)
	}
	if opts.Predictor != PredictorNone && opts.Predictor != PredictorFloat {
		return fmt.Errorf("%w: write predictor %d", ErrUnsupported, opts.Predictor)
	}

	blocks, blockW, blockH, err := encodeBlocks(g, opts)
	if err != nil {
		return err
	}

	le := binary.LittleEndian
	offsets := make([]uint32, len(blocks))
	counts := make([]uint32, len(blocks))
	pos := uint32(8)
	for i, b := range blocks {
		offsets[i] = pos
		counts[i] = uint32(len(b))
		pos += uint32(len(b))
		pos += pos & 1
	}

	entries := []entry{
		shortEntry(tagBitsPerSample, 32),
		shortEntry(tagCompression, uint16(opts.Compression)),
		shortEntry(tagPhotometric, 1),
		shortEntry(tagSamplesPerPixel, 1),
		shortEntry(tagPlanarConfig, 1),
		shortEntry(tagPredictor, uint16(opts.Predictor)),
		shortEntry(tagSampleFormat, sampleFloat),
		longEntry(tagImageWidth, uint32(g.Width)),
		longEntry(tagImageLength, uint32(g.Height)),
		doubleEntry(tagModelPixelScale, t[1], -t[5], 0),
		doubleEntry(tagModelTiepoint, 0, 0, 0, t[0], t[3], 0),
	}
	if opts.TileSize > 0 {
		entries = append(entries,
			longEntry(tagTileWidth, uint32(blockW)),
			longEntry(tagTileLength, uint32(blockH)),
			longEntry(tagTileOffsets, offsets...),
			longEntry(tagTileByteCounts, counts...),
		)
	} else {
		entries = append(entries,
			longEntry(tagRowsPerStrip, uint32(blockH)),
			longEntry(tagStripOffsets, offsets...),
			longEntry(tagStripByteCounts, counts...),
		)
	}
	if g.HasNoData {
		s := strconv.FormatFloat(g.NoData, 'g', -1, 64) + "\x00"
		entries = append(entries, entry{tag: tagGDALNoData, typ: typeASCII, count: uint32(len(s)), data: []byte(s)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdOff := pos
	extraOff := ifdOff + 2 + 12*uint32(len(entries)) + 4
	var ifd, extra bytes.Buffer
	var scratch [12]byte
	le.PutUint16(scratch[:2], uint16(len(entries)))
	ifd.Write(scratch[:2])
	for _, e := range entries {
		le.PutUint16(scratch[0:], e.tag)
		le.PutUint16(scratch[2:], e.typ)
		le.PutUint32(scratch[4:], e.count)
		clear(scratch[8:])
		if len(e.data) <= 4 {
			copy(scratch[8:], e.data)
		} else {
			le.PutUint32(scratch[8:], extraOff+uint32(extra.Len()))
			extra.Write(e.data)
			if extra.Len()&1 == 1 {
				extra.WriteByte(0)
			}
		}
		ifd.Write(scratch[:])
	}
	ifd.Write([]byte{0, 0, 0, 0})

	header := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	le.PutUint32(header[4:], ifdOff)

	out := [][]byte{header}
	for _, b := range blocks {
		out = append(out, b)
		if len(b)&1 == 1 {
			out = append(out, []byte{0})
		}
	}
	out = append(out, ifd.Bytes(), extra.Bytes())
	for _, b := range out {
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("write raster: %w", err)
		}
	}
	return nil
}

func encodeBlocks(g *Grid, opts WriteOptions) ([][]byte, int, int, error) {
	bw, bh := g.Width, 1
	if opts.TileSize > 0 {
		if opts.TileSize%16 != 0 {
			return nil, 0, 0, errors.New("tile size must be a multiple of 16")
		}
		bw, bh = opts.TileSize, opts.TileSize
	}
	across := (g.Width + bw - 1) / bw
	down := (g.Height + bh - 1) / bh

	blocks := make([][]byte, 0, across*down)
	row := make([]byte, bw*4)
	for by := 0; by < down; by++ {
		for bx := 0; bx < across; bx++ {
			var raw bytes.Buffer
			for r := 0; r < bh; r++ {
				clear(row)
				y := by*bh + r
				for c := 0; c < bw; c++ {
					x := bx*bw + c
					if x >= g.Width || y >= g.Height {
						continue
					}
					bits := math.Float32bits(float32(g.At(x, y)))
					binary.LittleEndian.PutUint32(row[c*4:], bits)
				}
				if opts.Predictor == PredictorFloat {
					applyFloatPredictor(row, 4)
				}
				raw.Write(row)
			}
			block, err := compress(raw.Bytes(), opts.Compression)
			if err != nil {
				return nil, 0, 0, err
			}
			blocks = append(blocks, block)
		}
	}
	return blocks, bw, bh, nil
}

// applyFloatPredictor is the inverse of undoFloat for a little-endian row.
func applyFloatPredictor(row []byte, bps int) {
	n := len(row) / bps
	planes := make([]byte, len(row))
	for k := 0; k < n; k++ {
		for p := 0; p < bps; p++ {
			planes[p*n+k] = row[k*bps+bps-1-p]
		}
	}
	for i := len(planes) - 1; i > 0; i-- {
		planes[i] -= planes[i-1]
	}
	copy(row, planes)
}

func compress(raw []byte, scheme int) ([]byte, error) {
	if scheme == CompressionNone {
		return append([]byte(nil), raw...), nil
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}

func shortEntry(tag uint16, v uint16) entry {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return entry{tag: tag, typ: typeShort, count: 1, data: b}
}

func longEntry(tag uint16, vs ...uint32) entry {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return entry{tag: tag, typ: typeLong, count: uint32(len(vs)), data: b}
}

func doubleEntry(tag uint16, vs ...float64) entry {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: uint32(len(vs)), data: b}
}
