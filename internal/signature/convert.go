package signature

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

const (
	// DefaultConversionMaxWidth caps the width of a converted signature
	DefaultConversionMaxWidth = 400
	// DefaultThumbnailMaxWidth caps the width of the embedded signature
	DefaultThumbnailMaxWidth = 200
)

// Config holds the width caps used by the Normalizer
type Config struct {
	ConversionMaxWidth int
	ThumbnailMaxWidth  int
}

// Normalizer turns uploaded signatures into small cropped PNGs
type Normalizer struct {
	config Config
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer. Zero caps fall back to the defaults.
func NewNormalizer(config Config, logger *zap.Logger) *Normalizer {
	if config.ConversionMaxWidth <= 0 {
		config.ConversionMaxWidth = DefaultConversionMaxWidth
	}
	if config.ThumbnailMaxWidth <= 0 {
		config.ThumbnailMaxWidth = DefaultThumbnailMaxWidth
	}
	return &Normalizer{
		config: config,
		logger: logger,
	}
}

// ConvertToPNG converts a PNG, JPEG, GIF or PDF signature at inputPath into an
// RGBA PNG at outputPath, downscaled to the conversion width cap.
// A PDF contributes its first page only.
func (n *Normalizer) ConvertToPNG(inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		n.logger.Error("Failed to read signature", zap.String("path", inputPath), zap.Error(err))
		return fmt.Errorf("failed to read signature: %w", err)
	}

	encoded, err := n.ConvertBytes(data, filepath.Ext(inputPath))
	if err != nil {
		n.logger.Error("Failed to convert signature", zap.String("path", inputPath), zap.Error(err))
		return err
	}

	if err := os.WriteFile(outputPath, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write converted signature: %w", err)
	}

	n.logger.Info("Signature converted to PNG", zap.String("output", outputPath))
	return nil
}

// ConvertBytes is ConvertToPNG for in-memory data. ext is a filename
// extension hint such as ".pdf"; PDFs are also recognised by their header.
func (n *Normalizer) ConvertBytes(data []byte, ext string) ([]byte, error) {
	img, err := decode(data, ext)
	if err != nil {
		return nil, err
	}

	rgba := limitWidth(img, n.config.ConversionMaxWidth)
	keepAlphaChannel(rgba)

	var buf bytes.Buffer
	if err := encodePNG(&buf, rgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, ext string) (image.Image, error) {
	if isPDF(data, ext) {
		return renderFirstPage(data)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}

func isPDF(data []byte, ext string) bool {
	return strings.EqualFold(ext, ".pdf") || bytes.HasPrefix(data, []byte("%PDF"))
}

func renderFirstPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, ErrNoPages
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("failed to render PDF page: %w", err)
	}
	return img, nil
}

// limitWidth returns an NRGBA copy of img no wider than maxWidth,
// keeping the aspect ratio.
func limitWidth(img image.Image, maxWidth int) *image.NRGBA {
	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return imaging.Clone(img)
	}

	height := int(float64(bounds.Dy()) * float64(maxWidth) / float64(bounds.Dx()))
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, maxWidth, height, imaging.Lanczos)
}

// keepAlphaChannel lowers the top-left pixel of a fully opaque image to
// alpha 254. png.Encoder writes opaque images as colour type 2 (RGB); one
// translucent pixel makes it write colour type 6 (RGBA).
func keepAlphaChannel(img *image.NRGBA) {
	if img.Rect.Empty() || !img.Opaque() {
		return
	}
	img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y)+3] = 0xfe
}

func encodePNG(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// savePNG writes img to path as PNG regardless of the path's extension
func savePNG(img image.Image, path string) error {
	var buf bytes.Buffer
	if err := encodePNG(&buf, img); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write PNG: %w", err)
	}
	return nil
}

func openImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}
