package raster

import "math"

// exactTailTaps bounds how many folded tail weights are summed term by term;
// longer tails use the midpoint integral, which is exact to float precision
// at the sigma such tails imply.
const exactTailTaps = 1 << 16

// gaussianKernel returns normalised weights for offsets -k..k with
// sigma = radius/2, truncated at 3 sigma. k never exceeds limit: taps beyond
// it are folded into the outermost kept taps, which is lossless when limit is
// at least the longest buffer side minus one because every further tap reads
// the same replicated edge sample.
func gaussianKernel(radius float64, limit int) []float64 {
	sigma := radius / 2
	full := math.Ceil(3 * sigma)
	k := max(limit, 1)
	if full < float64(k) {
		k = max(int(full), 1)
	}
	gauss := func(i float64) float64 { return math.Exp(-i * i / (2 * sigma * sigma)) }

	weights := make([]float64, 2*k+1)
	var sum float64
	for i := -k; i <= k; i++ {
		w := gauss(float64(i))
		weights[i+k] = w
		sum += w
	}
	if full > float64(k) {
		var tail float64
		if full-float64(k) <= exactTailTaps {
			for i := float64(k + 1); i <= full; i++ {
				tail += gauss(i)
			}
		} else {
			s := sigma * math.Sqrt2
			tail = sigma * math.Sqrt(math.Pi/2) * (math.Erf((full+0.5)/s) - math.Erf((float64(k)+0.5)/s))
		}
		weights[0] += tail
		weights[2*k] += tail
		sum += 2 * tail
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// gaussianBlur convolves each channel separably, replicating border pixels.
func gaussianBlur(buf *Buffer, radius float64) *Buffer {
	w, h := buf.Width, buf.Height
	weights := gaussianKernel(radius, max(w, h)-1)
	k := len(weights) / 2

	// Horizontal pass keeps full precision so rounding happens once.
	tmp := make([]float64, len(buf.Pix))
	for y := 0; y < h; y++ {
		row := y * w * 4
		for x := 0; x < w; x++ {
			var acc [4]float64
			for i := -k; i <= k; i++ {
				sx := min(max(x+i, 0), w-1)
				s := row + sx*4
				wt := weights[i+k]
				acc[0] += float64(buf.Pix[s]) * wt
				acc[1] += float64(buf.Pix[s+1]) * wt
				acc[2] += float64(buf.Pix[s+2]) * wt
				acc[3] += float64(buf.Pix[s+3]) * wt
			}
			d := row + x*4
			tmp[d], tmp[d+1], tmp[d+2], tmp[d+3] = acc[0], acc[1], acc[2], acc[3]
		}
	}

	out := newBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for i := -k; i <= k; i++ {
				sy := min(max(y+i, 0), h-1)
				s := (sy*w + x) * 4
				wt := weights[i+k]
				acc[0] += tmp[s] * wt
				acc[1] += tmp[s+1] * wt
				acc[2] += tmp[s+2] * wt
				acc[3] += tmp[s+3] * wt
			}
			d := out.offset(x, y)
			out.Pix[d] = toByte(acc[0])
			out.Pix[d+1] = toByte(acc[1])
			out.Pix[d+2] = toByte(acc[2])
			out.Pix[d+3] = toByte(acc[3])
		}
	}
	return out
}
