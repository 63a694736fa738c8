package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Rasterize maps one band of data through the palette over [lo, hi]. The
// image takes the mask's size when a mask is given, sampling data by nearest
// neighbour, and each pixel's alpha is mask*255. Without a mask the image has
// the data's size and is fully opaque. Invalid values take the first palette
// color.
func Rasterize(data, mask *Raster, band int, p *Palette, lo, hi float64) (*image.NRGBA, error) {
	if band < 0 || band >= len(data.Bands) {
		return nil, fmt.Errorf("band %d out of range (raster has %d)", band, len(data.Bands))
	}
	w, h := data.Width, data.Height
	var alpha []float64
	if mask != nil {
		w, h = mask.Width, mask.Height
		alpha = mask.Bands[0]
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	values := data.Bands[band]
	dw := float64(data.Width) / float64(w)
	dh := float64(data.Height) / float64(h)

	for y := 0; y < h; y++ {
		sy := min(int(float64(y)*dh), data.Height-1)
		for x := 0; x < w; x++ {
			sx := min(int(float64(x)*dw), data.Width-1)
			v := values[sy*data.Width+sx]
			t := 0.0
			if data.Valid(v) {
				t = Normalize(v, lo, hi)
			}
			c := p[p.Index(t)]
			a := uint8(0xff)
			if alpha != nil {
				a = alphaByte(alpha[y*w+x])
			}
			i := img.PixOffset(x, y)
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = a
		}
	}
	return img, nil
}

func alphaByte(m float64) uint8 {
	if math.IsNaN(m) {
		return 0
	}
	return uint8(math.Max(0, math.Min(255, math.Round(m*255))))
}

// ScaleToFit shrinks img so its longer side is at most maxPx. Images that
// already fit are returned unchanged.
func ScaleToFit(img image.Image, maxPx int) image.Image {
	b := img.Bounds()
	w, h, ok := FitSize(b.Dx(), b.Dy(), maxPx)
	if !ok {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL wraps PNG bytes as a data:image/png;base64 URL.
func DataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
