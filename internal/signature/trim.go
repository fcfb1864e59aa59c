package signature

import (
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	nearWhite = 235
	nearBlack = 20
)

// TrimWhitespace crops blank margins from the image at inputPath and writes
// the result to outputPath, or back to inputPath when outputPath is empty.
// A row or column is blank when all of its pixels are near white, or all
// are near black. A fully blank image is returned and written unchanged.
func (n *Normalizer) TrimWhitespace(inputPath, outputPath string) (image.Image, error) {
	if outputPath == "" {
		outputPath = inputPath
	}

	img, err := openImage(inputPath)
	if err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	rect, ok := contentBounds(src)
	if !ok {
		n.logger.Debug("Image is blank, leaving uncropped", zap.String("path", inputPath))
		if outputPath != inputPath {
			return src, savePNG(src, outputPath)
		}
		return src, nil
	}

	cropped := imaging.Crop(src, rect)
	if err := savePNG(cropped, outputPath); err != nil {
		return nil, err
	}

	n.logger.Debug("Trimmed signature whitespace",
		zap.String("path", outputPath),
		zap.Int("width", rect.Dx()),
		zap.Int("height", rect.Dy()))
	return cropped, nil
}

// contentBounds finds the inclusive crop rectangle between the first
// non-blank rows and columns from each edge. ok is false when every row
// is blank.
func contentBounds(img *image.NRGBA) (image.Rectangle, bool) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	top := 0
	for top < h && blankRow(img, top) {
		top++
	}
	bottom := h - 1
	for bottom >= 0 && blankRow(img, bottom) {
		bottom--
	}
	left := 0
	for left < w && blankColumn(img, left) {
		left++
	}
	right := w - 1
	for right >= 0 && blankColumn(img, right) {
		right--
	}

	if top > bottom || left > right {
		return image.Rectangle{}, false
	}
	return image.Rect(left, top, right+1, bottom+1), true
}

func blankRow(img *image.NRGBA, y int) bool {
	w := img.Rect.Dx()
	white, black := true, true
	for x := 0; x < w && (white || black); x++ {
		white, black = classify(img, x, y, white, black)
	}
	return white || black
}

func blankColumn(img *image.NRGBA, x int) bool {
	h := img.Rect.Dy()
	white, black := true, true
	for y := 0; y < h && (white || black); y++ {
		white, black = classify(img, x, y, white, black)
	}
	return white || black
}

func classify(img *image.NRGBA, x, y int, white, black bool) (bool, bool) {
	i := y*img.Stride + x*4
	r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
	if white && !(r > nearWhite && g > nearWhite && b > nearWhite) {
		white = false
	}
	if black && !(r < nearBlack && g < nearBlack && b < nearBlack) {
		black = false
	}
	return white, black
}
