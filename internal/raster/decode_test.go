package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/solar-overlay/internal/domain"
)

func encodeRaster(t *testing.T, r *Raster, opts EncodeOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, r, opts))
	return buf.Bytes()
}

func rampRaster(w, h, bands int) *Raster {
	r := New(w, h, bands, testBounds)
	for b := range r.Bands {
		for i := range r.Bands[b] {
			r.Bands[b][i] = float64(b*1000 + i)
		}
	}
	return r
}

func TestDecode_RoundTripGeographic(t *testing.T) {
	tests := []struct {
		name string
		opts EncodeOptions
	}{
		{"uncompressed", EncodeOptions{}},
		{"deflate", EncodeOptions{Compression: CompressDeflate}},
		{"lzw", EncodeOptions{Compression: CompressLZW}},
		{"planar", EncodeOptions{Planar: true}},
		{"planar deflate", EncodeOptions{Planar: true, Compression: CompressDeflate}},
		{"floating point predictor", EncodeOptions{Compression: CompressDeflate, Predictor: 3}},
		{"tiled", EncodeOptions{TileSize: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := rampRaster(7, 5, 3)
			dec, err := Decode(context.Background(), encodeRaster(t, src, tt.opts), NewProjections())
			require.NoError(t, err)

			assert.Equal(t, domain.OutcomeSucceeded, dec.Projection)
			assert.NoError(t, dec.ProjectionErr)
			assert.Equal(t, CRS{EPSG: EPSGWGS84, Geographic: true}, dec.CRS)
			assert.Equal(t, 7, dec.Raster.Width)
			assert.Equal(t, 5, dec.Raster.Height)
			require.NoError(t, dec.Raster.Validate())
			if diff := cmp.Diff(src.Bands, dec.Raster.Bands); diff != "" {
				t.Errorf("bands mismatch (-want +got):\n%s", diff)
			}
			assert.InDelta(t, testBounds.South, dec.Raster.Bounds.South, 1e-9)
			assert.InDelta(t, testBounds.West, dec.Raster.Bounds.West, 1e-9)
			assert.InDelta(t, testBounds.North, dec.Raster.Bounds.North, 1e-9)
			assert.InDelta(t, testBounds.East, dec.Raster.Bounds.East, 1e-9)
		})
	}
}

func TestDecode_IntegerSamples(t *testing.T) {
	src := New(3, 1, 1, testBounds)
	src.Bands[0] = []float64{-1, 127, -128}

	dec, err := Decode(context.Background(), encodeRaster(t, src, EncodeOptions{Sample: SampleInt16, Compression: CompressLZW, Predictor: 2}), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 127, -128}, dec.Raster.Bands[0])

	mask := New(4, 1, 1, testBounds)
	mask.Bands[0] = []float64{0, 1, 1, 0}
	dec, err = Decode(context.Background(), encodeRaster(t, mask, EncodeOptions{Sample: SampleByte}), nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 0}, dec.Raster.Bands[0])
}

func TestDecode_NoData(t *testing.T) {
	src := constRaster(2, 2, 5)
	nd := -9999.0
	src.NoData = &nd

	dec, err := Decode(context.Background(), encodeRaster(t, src, EncodeOptions{}), nil)
	require.NoError(t, err)
	require.NotNil(t, dec.Raster.NoData)
	assert.Equal(t, -9999.0, *dec.Raster.NoData)
}

func TestDecode_ProjectedUTM(t *testing.T) {
	box := [4]float64{500000, 0, 500100, 100}
	src := constRaster(10, 10, 1)
	data := encodeRaster(t, src, EncodeOptions{EPSG: 32631, Box: &box})

	projections := NewProjections()
	defer projections.Close()
	dec, err := Decode(context.Background(), data, projections)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSucceeded, dec.Projection)
	assert.Equal(t, CRS{EPSG: 32631}, dec.CRS)
	assert.Equal(t, box, dec.NativeBox)
	b := dec.Raster.Bounds
	assert.InDelta(t, 3.0, b.West, 1e-6)
	assert.InDelta(t, 0.0, b.South, 1e-6)
	assert.Greater(t, b.East, b.West)
	assert.Greater(t, b.North, b.South)
	assert.Less(t, b.North, 0.01)
	assert.Equal(t, 1, projections.Len())
}

func TestDecode_ReprojectionFailureDegrades(t *testing.T) {
	box := [4]float64{500000, 4100000, 500050, 4100050}
	data := encodeRaster(t, constRaster(4, 4, 1), EncodeOptions{EPSG: 32610, Box: &box})

	dec, err := Decode(context.Background(), data, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeDegraded, dec.Projection)
	assert.ErrorIs(t, dec.ProjectionErr, ErrUnsupportedCRS)
	assert.Equal(t, domain.Bounds{South: 4100000, West: 500000, North: 4100050, East: 500050}, dec.Raster.Bounds)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad byte order", []byte("XX*\x00\x08\x00\x00\x00")},
		{"bigtiff without ifd", []byte("II+\x00\x08\x00\x00\x00")},
		{"ifd out of range", []byte("II*\x00\xff\x00\x00\x00")},
		{"png bytes", []byte("\x89PNG\r\n\x1a\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(context.Background(), tt.data, nil)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
	assert.Zero(t, memFiles.len(), "in-memory files are released after each decode")
}

// headerOnlyTIFF is a classic little-endian TIFF whose single IFD declares
// width x height 8-bit pixels in one strip that is never actually present.
func headerOnlyTIFF(width, height uint32) []byte {
	type entry struct {
		tag, typ uint16
		value    uint32
	}
	const short, long = 3, 4
	entries := []entry{
		{256, long, width},
		{257, long, height},
		{258, short, 8},
		{259, short, 1},
		{262, short, 1},
		{273, long, 8},
		{277, short, 1},
		{278, long, height},
		{279, long, 1},
	}
	buf := binary.LittleEndian.AppendUint32([]byte("II*\x00"), 8)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		buf = binary.LittleEndian.AppendUint16(buf, e.tag)
		buf = binary.LittleEndian.AppendUint16(buf, e.typ)
		buf = binary.LittleEndian.AppendUint32(buf, 1)
		if e.typ == short {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(e.value))
			buf = binary.LittleEndian.AppendUint16(buf, 0)
		} else {
			buf = binary.LittleEndian.AppendUint32(buf, e.value)
		}
	}
	return binary.LittleEndian.AppendUint32(buf, 0)
}

func TestDecode_OversizedDimensionsRejected(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
	}{
		{"max uint32 square", 0xFFFFFFFF, 0xFFFFFFFF},
		{"product over ceiling", 20000, 20000},
		{"single huge row", 1 << 30, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = Decode(context.Background(), headerOnlyTIFF(tt.width, tt.height), nil)
			})
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestCheckDimensions(t *testing.T) {
	tests := []struct {
		name                 string
		width, height, bands int
		ok                   bool
	}{
		{"typical", 400, 300, 12, true},
		{"at ceiling", 1 << 14, 1 << 14, 1, true},
		{"over ceiling", 1 << 14, 1 << 14, 2, false},
		{"overflowing product", 1 << 28, 1 << 28, 1, false},
		{"huge side", 1 << 29, 1, 1, false},
		{"zero width", 0, 10, 1, false},
		{"no bands", 10, 10, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkDimensions(tt.width, tt.height, tt.bands)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestDecode_NotGeoreferenced(t *testing.T) {
	require.NoError(t, initGDAL())
	path := filepath.Join(t.TempDir(), "plain.tif")
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, 2, 2)
	require.NoError(t, err)
	require.NoError(t, ds.Bands()[0].Write(0, 0, []byte{1, 2, 3, 4}, 2, 2))
	require.NoError(t, ds.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = Decode(context.Background(), data, nil)
	assert.ErrorIs(t, err, ErrNotGeoreferenced)
}

func TestDecode_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decode(ctx, encodeRaster(t, constRaster(2, 2, 1), EncodeOptions{}), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecode_ConcurrentDecodesShareRegistry(t *testing.T) {
	box := [4]float64{500000, 0, 500100, 100}
	data := encodeRaster(t, constRaster(4, 4, 7), EncodeOptions{EPSG: 32631, Box: &box, Compression: CompressDeflate})
	projections := NewProjections()
	defer projections.Close()

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			dec, err := Decode(context.Background(), data, projections)
			if err == nil && dec.Projection != domain.OutcomeSucceeded {
				err = dec.ProjectionErr
			}
			errs <- err
		}()
	}
	for range 8 {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, 1, projections.Len())
}

func TestEncodeRGBA_RoundTrip(t *testing.T) {
	m := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	m.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	m.SetNRGBA(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 0})

	var buf bytes.Buffer
	require.NoError(t, EncodeRGBA(&buf, m, testBounds, EncodeOptions{Compression: CompressDeflate}))

	dec, err := Decode(context.Background(), buf.Bytes(), nil)
	require.NoError(t, err)
	require.Len(t, dec.Raster.Bands, 4)
	assert.Equal(t, []float64{10, 40}, dec.Raster.Bands[0])
	assert.Equal(t, []float64{20, 50}, dec.Raster.Bands[1])
	assert.Equal(t, []float64{255, 0}, dec.Raster.Bands[3])
}

func TestEncode_UnknownEPSG(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, constRaster(2, 2, 1), EncodeOptions{EPSG: 999999})
	assert.ErrorIs(t, err, ErrUnsupportedCRS)
	assert.Zero(t, buf.Len())
}
