package signature

import (
	"image"
	"math"
)

const (
	dilateKernel  = 7
	medianKernel  = 21
	truncateLevel = 230
)

// grayscale converts to 8-bit luma with BT.601 weights. Transparent pixels
// are composited over white so a transparent pad capture reads as paper.
func grayscale(src *image.NRGBA) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			a := uint32(px[3])
			r := onWhite(uint32(px[0]), a)
			g := onWhite(uint32(px[1]), a)
			b := onWhite(uint32(px[2]), a)
			dst.Pix[y*dst.Stride+x] = uint8((299*r + 587*g + 114*b + 500) / 1000)
		}
	}
	return dst
}

func onWhite(c, a uint32) uint32 {
	return (c*a + 255*(255-a) + 127) / 255
}

// dilate is a max filter with a ksize x ksize rectangular window.
// Out-of-image pixels do not take part.
func dilate(src *image.Gray, ksize int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	r := ksize / 2

	horizontal := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var m uint8
			for dx := max(0, x-r); dx <= min(w-1, x+r); dx++ {
				if v := src.Pix[y*src.Stride+dx]; v > m {
					m = v
				}
			}
			horizontal.Pix[y*horizontal.Stride+x] = m
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var m uint8
			for dy := max(0, y-r); dy <= min(h-1, y+r); dy++ {
				if v := horizontal.Pix[dy*horizontal.Stride+x]; v > m {
					m = v
				}
			}
			dst.Pix[y*dst.Stride+x] = m
		}
	}
	return dst
}

// medianBlur applies a ksize x ksize median filter with replicated borders,
// sliding a 256-bin histogram along each row.
func medianBlur(src *image.Gray, ksize int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	r := ksize / 2
	rank := ksize * ksize / 2
	dst := image.NewGray(image.Rect(0, 0, w, h))

	at := func(x, y int) uint8 {
		return src.Pix[clamp(y, h-1)*src.Stride+clamp(x, w-1)]
	}

	for y := 0; y < h; y++ {
		var hist [256]int
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				hist[at(dx, y+dy)]++
			}
		}
		dst.Pix[y*dst.Stride] = histogramRank(&hist, rank)

		for x := 1; x < w; x++ {
			for dy := -r; dy <= r; dy++ {
				hist[at(x-r-1, y+dy)]--
				hist[at(x+r, y+dy)]++
			}
			dst.Pix[y*dst.Stride+x] = histogramRank(&hist, rank)
		}
	}
	return dst
}

func histogramRank(hist *[256]int, rank int) uint8 {
	count := 0
	for v := 0; v < 256; v++ {
		count += hist[v]
		if count > rank {
			return uint8(v)
		}
	}
	return 255
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// invertedDifference computes 255 - |a - b| per pixel
func invertedDifference(a, b *image.Gray) *image.Gray {
	dst := image.NewGray(a.Rect)
	for i := range a.Pix {
		d := int(a.Pix[i]) - int(b.Pix[i])
		if d < 0 {
			d = -d
		}
		dst.Pix[i] = uint8(255 - d)
	}
	return dst
}

// normalizeMinMax stretches values to 0..255 in place. A flat image
// becomes all zeros.
func normalizeMinMax(img *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, v := range img.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	if hi == lo {
		for i := range img.Pix {
			img.Pix[i] = 0
		}
		return
	}

	scale := 255.0 / float64(hi-lo)
	for i, v := range img.Pix {
		img.Pix[i] = uint8(math.Round(float64(v-lo) * scale))
	}
}

// truncate caps every value at level in place
func truncate(img *image.Gray, level uint8) {
	for i, v := range img.Pix {
		if v > level {
			img.Pix[i] = level
		}
	}
}

// otsuThreshold picks the level that maximises between-class variance.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}

	total := float64(len(img.Pix))
	if total == 0 {
		return 0
	}

	mu := 0.0
	for i, c := range hist {
		mu += float64(i) * float64(c)
	}
	mu /= total

	const eps = 1.1920929e-07
	q1, mu1, maxSigma, best := 0.0, 0.0, 0.0, 0
	for i, c := range hist {
		p := float64(c) / total
		mu1 *= q1
		q1 += p
		q2 := 1 - q1

		if math.Min(q1, q2) < eps || math.Max(q1, q2) > 1-eps {
			continue
		}

		mu1 = (mu1 + float64(i)*p) / q1
		mu2 := (mu - q1*mu1) / q2
		sigma := q1 * q2 * (mu1 - mu2) * (mu1 - mu2)
		if sigma > maxSigma {
			maxSigma = sigma
			best = i
		}
	}
	return uint8(best)
}

// binarize maps values above t to 255 and the rest to 0 in place
func binarize(img *image.Gray, t uint8) {
	for i, v := range img.Pix {
		if v > t {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
}

// enhance runs the background-subtraction pipeline and returns a black
// ink on white mask.
func enhance(src *image.NRGBA) *image.Gray {
	gray := grayscale(src)
	background := medianBlur(dilate(gray, dilateKernel), medianKernel)

	diff := invertedDifference(gray, background)
	normalizeMinMax(diff)
	truncate(diff, truncateLevel)
	normalizeMinMax(diff)

	binarize(diff, otsuThreshold(diff))
	return diff
}
