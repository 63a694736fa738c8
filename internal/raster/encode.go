package raster

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"golang.org/x/image/draw"

	"github.com/couchcryptid/solar-overlay/internal/domain"
)

// Compression selects how the encoder stores pixel data.
type Compression int

const (
	CompressNone Compression = iota
	CompressDeflate
	CompressLZW
)

// SampleType is the on-disk type of each band.
type SampleType int

const (
	SampleFloat32 SampleType = iota
	SampleInt16
	SampleByte
)

func (s SampleType) dataType() godal.DataType {
	switch s {
	case SampleInt16:
		return godal.Int16
	case SampleByte:
		return godal.Byte
	}
	return godal.Float32
}

// EncodeOptions controls GeoTIFF output.
type EncodeOptions struct {
	Compression Compression
	// Predictor is the TIFF predictor, 2 for horizontal differencing or 3
	// for floating point. It is ignored without compression.
	Predictor int
	// EPSG is the CRS of the output. Zero means WGS-84.
	EPSG int
	// Box is [minX, minY, maxX, maxY] in EPSG units. When nil the raster
	// bounds are used, which only makes sense for geographic CRSs.
	Box *[4]float64
	// Planar stores each band separately instead of interleaving pixels.
	Planar bool
	// TileSize switches from strips to square tiles; it must be a multiple of 16.
	TileSize int
	Sample   SampleType
}

func (o EncodeOptions) creationOptions() []string {
	var out []string
	switch o.Compression {
	case CompressDeflate:
		out = append(out, "COMPRESS=DEFLATE")
	case CompressLZW:
		out = append(out, "COMPRESS=LZW")
	}
	if o.Compression != CompressNone && o.Predictor > 0 {
		out = append(out, "PREDICTOR="+strconv.Itoa(o.Predictor))
	}
	if o.Planar {
		out = append(out, "INTERLEAVE=BAND")
	} else {
		out = append(out, "INTERLEAVE=PIXEL")
	}
	if o.TileSize > 0 {
		size := strconv.Itoa(o.TileSize)
		out = append(out, "TILED=YES", "BLOCKXSIZE="+size, "BLOCKYSIZE="+size)
	}
	return out
}

// Encode writes r as a GeoTIFF with one band per raster band.
func Encode(w io.Writer, r *Raster, opts EncodeOptions) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return writeGTiff(w, r.Width, r.Height, len(r.Bands), opts.Sample.dataType(), r.Bounds, opts, nil,
		func(ds *godal.Dataset) error {
			for i, band := range ds.Bands() {
				if err := band.Write(0, 0, r.Bands[i], r.Width, r.Height); err != nil {
					return fmt.Errorf("write band %d: %w", i+1, err)
				}
				if r.NoData != nil {
					if err := band.SetNoData(*r.NoData); err != nil {
						return fmt.Errorf("set nodata on band %d: %w", i+1, err)
					}
				}
			}
			return nil
		})
}

// EncodeRGBA writes img as an 8-bit RGBA GeoTIFF covering bounds.
func EncodeRGBA(w io.Writer, img image.Image, bounds domain.Bounds, opts EncodeOptions) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("image size %dx%d must be positive", b.Dx(), b.Dy())
	}
	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	planes := make([][]byte, 4)
	for c := range planes {
		planes[c] = make([]byte, b.Dx()*b.Dy())
		for i := range planes[c] {
			planes[c][i] = rgba.Pix[i*4+c]
		}
	}
	return writeGTiff(w, b.Dx(), b.Dy(), 4, godal.Byte, bounds, opts, []string{"PHOTOMETRIC=RGB", "ALPHA=YES"},
		func(ds *godal.Dataset) error {
			for c, band := range ds.Bands() {
				if err := band.Write(0, 0, planes[c], b.Dx(), b.Dy()); err != nil {
					return fmt.Errorf("write band %d: %w", c+1, err)
				}
			}
			return nil
		})
}

// writeGTiff creates a georeferenced GTiff in a scratch directory, lets fill
// write the pixels, and copies the finished file to w.
func writeGTiff(w io.Writer, width, height, nBands int, dtype godal.DataType, bounds domain.Bounds,
	opts EncodeOptions, extra []string, fill func(*godal.Dataset) error,
) error {
	if err := initGDAL(); err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "raster-encode-*")
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "out.tif")

	ds, err := godal.Create(godal.GTiff, path, nBands, dtype, width, height,
		godal.CreationOption(append(opts.creationOptions(), extra...)...))
	if err != nil {
		return fmt.Errorf("create geotiff: %w", err)
	}
	if err := georeference(ds, width, height, bounds, opts); err != nil {
		_ = ds.Close()
		return err
	}
	if err := fill(ds); err != nil {
		_ = ds.Close()
		return err
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close geotiff: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read geotiff: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func georeference(ds *godal.Dataset, width, height int, bounds domain.Bounds, opts EncodeOptions) error {
	box := [4]float64{bounds.West, bounds.South, bounds.East, bounds.North}
	if opts.Box != nil {
		box = *opts.Box
	}
	gt := [6]float64{
		box[0], (box[2] - box[0]) / float64(width), 0,
		box[3], 0, -(box[3] - box[1]) / float64(height),
	}
	if err := ds.SetGeoTransform(gt); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}

	epsg := opts.EPSG
	if epsg == 0 {
		epsg = EPSGWGS84
	}
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("%w: EPSG:%d: %v", ErrUnsupportedCRS, epsg, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("set spatial ref: %w", err)
	}
	return nil
}
