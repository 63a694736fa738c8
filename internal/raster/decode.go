package raster

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/solar-overlay/internal/domain"
)

// MaxSamples caps width*height*bands for a decoded raster. Solar-data
// rasters are a few hundred pixels on a side.
const MaxSamples = 1 << 28

// CRS is the coordinate reference system declared by a GeoTIFF.
type CRS struct {
	EPSG int
	// Geographic is true when coordinates are already longitude/latitude.
	Geographic bool
}

// Decoded is the result of decoding one GeoTIFF.
type Decoded struct {
	Raster *Raster
	CRS    CRS
	// NativeBox is [minX, minY, maxX, maxY] in CRS units.
	NativeBox [4]float64
	// Projection is OutcomeDegraded when the native box could not be
	// converted to WGS-84 and Raster.Bounds holds the native box instead.
	Projection    domain.Outcome
	ProjectionErr error
}

// Decode reads a GeoTIFF through GDAL into a raster with WGS-84 bounds.
// Projected rasters have their SW and NE corners converted through
// projections; if that fails the native box is kept and the result is marked
// degraded. Open and pixel errors are returned as errors.
func Decode(ctx context.Context, data []byte, projections *Projections) (Decoded, error) {
	if err := ctx.Err(); err != nil {
		return Decoded{}, err
	}
	if !hasTIFFHeader(data) {
		return Decoded{}, fmt.Errorf("%w: missing tiff header", ErrUnsupported)
	}
	if err := initGDAL(); err != nil {
		return Decoded{}, err
	}

	name, release := memFiles.put(data)
	defer release()
	ds, err := godal.Open(name, godal.Drivers("GTiff"))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: open: %v", ErrUnsupported, err)
	}
	defer ds.Close()

	st := ds.Structure()
	bands := ds.Bands()
	if err := checkDimensions(st.SizeX, st.SizeY, len(bands)); err != nil {
		return Decoded{}, err
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrNotGeoreferenced, err)
	}
	box, err := nativeBox(gt, st.SizeX, st.SizeY)
	if err != nil {
		return Decoded{}, err
	}

	r := &Raster{Width: st.SizeX, Height: st.SizeY, Bands: make([][]float64, len(bands))}
	for i, band := range bands {
		if err := ctx.Err(); err != nil {
			return Decoded{}, err
		}
		buf := make([]float64, r.Width*r.Height)
		if err := band.Read(0, 0, buf, r.Width, r.Height); err != nil {
			return Decoded{}, fmt.Errorf("read band %d: %w", i+1, err)
		}
		r.Bands[i] = buf
	}
	if nd, ok := bands[0].NoData(); ok {
		r.NoData = &nd
	}

	out := Decoded{Raster: r, CRS: datasetCRS(ds), NativeBox: box, Projection: domain.OutcomeSucceeded}
	r.Bounds, out.ProjectionErr = geographicBounds(box, out.CRS, projections)
	if out.ProjectionErr != nil {
		out.Projection = domain.OutcomeDegraded
		r.Bounds = nativeBounds(box)
	}
	return out, nil
}

func hasTIFFHeader(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	switch string(data[:4]) {
	case "II*\x00", "MM\x00*", "II+\x00", "MM\x00+":
		return true
	}
	return false
}

// checkDimensions rejects rasters whose sample count would not fit in memory
// before any buffer is allocated.
func checkDimensions(width, height, bands int) error {
	if width <= 0 || height <= 0 || bands <= 0 {
		return fmt.Errorf("%w: %dx%d with %d bands", ErrUnsupported, width, height, bands)
	}
	if width > MaxSamples || height > MaxSamples || bands > MaxSamples ||
		int64(width)*int64(height) > MaxSamples/int64(bands) {
		return fmt.Errorf("%w: %dx%d with %d bands exceeds %d samples", ErrUnsupported, width, height, bands, MaxSamples)
	}
	return nil
}

// identity is GDAL's geotransform for a dataset with no georeferencing.
var identity = [6]float64{0, 1, 0, 0, 0, 1}

func nativeBox(gt [6]float64, width, height int) ([4]float64, error) {
	if gt == identity || gt[1] == 0 || gt[5] == 0 {
		return [4]float64{}, ErrNotGeoreferenced
	}
	if gt[2] != 0 || gt[4] != 0 {
		return [4]float64{}, fmt.Errorf("%w: rotated geotransform %v", ErrUnsupported, gt)
	}
	x1, y1 := gt[0], gt[3]
	x2 := x1 + float64(width)*gt[1]
	y2 := y1 + float64(height)*gt[5]
	return [4]float64{math.Min(x1, x2), math.Min(y1, y2), math.Max(x1, x2), math.Max(y1, y2)}, nil
}

func datasetCRS(ds *godal.Dataset) CRS {
	sr := ds.SpatialRef()
	if sr == nil {
		return CRS{}
	}
	defer sr.Close()

	c := CRS{Geographic: sr.Geographic()}
	if strings.EqualFold(sr.AuthorityName(""), "EPSG") {
		c.EPSG, _ = strconv.Atoi(sr.AuthorityCode(""))
	}
	return c
}

func nativeBounds(box [4]float64) domain.Bounds {
	return domain.Bounds{South: box[1], West: box[0], North: box[3], East: box[2]}
}

func geographicBounds(box [4]float64, crs CRS, projections *Projections) (domain.Bounds, error) {
	if crs.Geographic || crs.EPSG == EPSGWGS84 {
		return nativeBounds(box), nil
	}
	if crs.EPSG == 0 {
		return domain.Bounds{}, ErrUnknownCRS
	}
	if projections == nil {
		return domain.Bounds{}, fmt.Errorf("%w: no projection registry", ErrUnsupportedCRS)
	}
	t, err := projections.ToWGS84(crs.EPSG)
	if err != nil {
		return domain.Bounds{}, err
	}
	west, south, err := t(box[0], box[1])
	if err != nil {
		return domain.Bounds{}, fmt.Errorf("reproject SW corner: %w", err)
	}
	east, north, err := t(box[2], box[3])
	if err != nil {
		return domain.Bounds{}, fmt.Errorf("reproject NE corner: %w", err)
	}
	b := domain.Bounds{South: south, West: west, North: north, East: east}
	if !inRange(b) {
		return domain.Bounds{}, fmt.Errorf("%w: %+v", ErrNotGeographic, b)
	}
	return b, nil
}

func inRange(b domain.Bounds) bool {
	for _, v := range []float64{b.South, b.West, b.North, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.South >= -90 && b.North <= 90 && b.West >= -180 && b.East <= 180 && b.Valid()
}
