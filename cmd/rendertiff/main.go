// Command rendertiff renders a local flux GeoTIFF, optionally clipped by a roof
// mask, into a palette-colored overlay. The output is a PNG or an 8-bit RGBA
// GeoTIFF tagged EPSG:4326 with the overlay bounds.
//
// Usage:
//
//	go run ./cmd/rendertiff \
//	  -flux testdata/annual_flux.tif \
//	  -mask testdata/mask.tif \
//	  -out overlay.png
//
//	go run ./cmd/rendertiff -flux monthly_flux.tif -band 6 -max 200 -format tiff -out june.tif
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/raster"
)

type options struct {
	fluxPath string
	maskPath string
	outPath  string
	format   string
	band     int
	min      float64
	max      float64
	maxPx    int
	palette  string
	deflate  bool
}

func main() {
	var o options
	flag.StringVar(&o.fluxPath, "flux", "", "flux GeoTIFF to render (required)")
	flag.StringVar(&o.maskPath, "mask", "", "optional roof mask GeoTIFF")
	flag.StringVar(&o.outPath, "out", "overlay.png", "output file")
	flag.StringVar(&o.format, "format", "", "png or tiff (default: from -out extension)")
	flag.IntVar(&o.band, "band", 0, "zero-based band to render")
	flag.Float64Var(&o.min, "min", 0, "value mapped to the first palette color")
	flag.Float64Var(&o.max, "max", 1800, "value mapped to the last palette color")
	flag.IntVar(&o.maxPx, "max-px", raster.MaxOverlayPx, "longest output side in pixels")
	flag.StringVar(&o.palette, "palette", "", "comma-separated hex stops (default: iron)")
	flag.BoolVar(&o.deflate, "deflate", false, "deflate-compress GeoTIFF output")
	flag.Parse()

	if err := run(context.Background(), o); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, o options) error {
	if o.fluxPath == "" {
		return errors.New("-flux is required")
	}
	format := o.format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(o.outPath)), ".")
	}
	if format == "tif" {
		format = "tiff"
	}
	if format != "png" && format != "tiff" {
		return fmt.Errorf("unsupported output format %q", format)
	}

	palette := raster.IronPalette
	if o.palette != "" {
		p, err := raster.ParseHexPalette(strings.Split(o.palette, ",")...)
		if err != nil {
			return fmt.Errorf("parse palette: %w", err)
		}
		palette = p
	}

	projections := raster.NewProjections()
	defer projections.Close()
	flux, err := decodeFile(ctx, o.fluxPath, projections)
	if err != nil {
		return err
	}
	var mask *raster.Raster
	bounds := flux.Bounds
	if o.maskPath != "" {
		mask, err = decodeFile(ctx, o.maskPath, projections)
		if err != nil {
			return err
		}
		bounds = mask.Bounds
	}

	mask, flux = raster.FitPair(mask, flux, o.maxPx)
	img, err := raster.Rasterize(flux, mask, o.band, &palette, o.min, o.max)
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		data, err := raster.EncodePNG(img)
		if err != nil {
			return err
		}
		buf.Write(data)
	case "tiff":
		opts := raster.EncodeOptions{}
		if o.deflate {
			opts.Compression = raster.CompressDeflate
		}
		if err := raster.EncodeRGBA(&buf, img, bounds, opts); err != nil {
			return err
		}
	}

	if err := os.WriteFile(o.outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", o.outPath, err)
	}
	log.Printf("wrote %s (%dx%d, bounds %s)", o.outPath, img.Bounds().Dx(), img.Bounds().Dy(), formatBounds(bounds))
	return nil
}

func decodeFile(ctx context.Context, path string, projections *raster.Projections) (*raster.Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	d, err := raster.Decode(ctx, data, projections)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if d.Projection == domain.OutcomeDegraded {
		log.Printf("warning: %s: bounds left in EPSG:%d: %v", path, d.CRS.EPSG, d.ProjectionErr)
	}
	return d.Raster, nil
}

func formatBounds(b domain.Bounds) string {
	return fmt.Sprintf("S%.6f W%.6f N%.6f E%.6f", b.South, b.West, b.North, b.East)
}
