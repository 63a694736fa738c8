package raster

import "math"

// MaxOverlayPx is the longest side, in pixels, of any overlay image.
const MaxOverlayPx = 256

// FitSize scales (w, h) so the longer side equals ceiling, keeping the aspect
// ratio. It reports false, and returns the input unchanged, when the longer
// side already fits.
func FitSize(w, h, ceiling int) (int, int, bool) {
	longest := max(w, h)
	if longest <= ceiling {
		return w, h, false
	}
	scale := float64(ceiling) / float64(longest)
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale))), true
}

// FitPair reduces an oversized mask/data pair to the mask's fitted size. The
// data raster is sized by the mask when one is present. Rasters that already
// fit are returned as-is.
func FitPair(mask, data *Raster, ceiling int) (*Raster, *Raster) {
	ref := mask
	if ref == nil {
		ref = data
	}
	w, h, ok := FitSize(ref.Width, ref.Height, ceiling)
	if !ok {
		return mask, data
	}
	if mask != nil {
		mask = ResampleMask(mask, w, h)
	}
	return mask, ResampleData(data, w, h)
}

// ResampleMask resizes r to w x h taking the maximum of the source cells that
// map into each destination cell, so partial coverage survives downsampling.
func ResampleMask(r *Raster, w, h int) *Raster {
	out := New(w, h, len(r.Bands), r.Bounds)
	for b, src := range r.Bands {
		dst := out.Bands[b]
		for j := 0; j < h; j++ {
			y0, y1 := cellRange(j, r.Height, h)
			for i := 0; i < w; i++ {
				x0, x1 := cellRange(i, r.Width, w)
				m := 0.0
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						if v := src[y*r.Width+x]; v > m {
							m = v
						}
					}
				}
				dst[j*w+i] = m
			}
		}
	}
	return out
}

// ResampleData resizes r to w x h averaging the valid source cells that map
// into each destination cell. Cells with no valid source are 0.
func ResampleData(r *Raster, w, h int) *Raster {
	out := New(w, h, len(r.Bands), r.Bounds)
	for b, src := range r.Bands {
		dst := out.Bands[b]
		for j := 0; j < h; j++ {
			y0, y1 := cellRange(j, r.Height, h)
			for i := 0; i < w; i++ {
				x0, x1 := cellRange(i, r.Width, w)
				var sum float64
				var n int
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						if v := src[y*r.Width+x]; r.Valid(v) {
							sum += v
							n++
						}
					}
				}
				if n > 0 {
					dst[j*w+i] = sum / float64(n)
				}
			}
		}
	}
	return out
}

// cellRange returns the source index range [lo, hi) covered by destination
// cell i. When upsampling leaves a cell empty the nearest source cell is used.
func cellRange(i, src, dst int) (int, int) {
	lo := i * src / dst
	hi := min((i+1)*src/dst, src)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}
