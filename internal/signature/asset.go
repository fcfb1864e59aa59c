package signature

import (
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// File names of the signature variants inside a session folder
const (
	ProcessedName   = "signature.png"
	OriginalPNGName = "signature_original.png"
	RawBaseName     = "signature_upload"
)

// Variant identifies which signature file was selected for embedding
type Variant string

const (
	VariantProcessed   Variant = "processed"
	VariantOriginalPNG Variant = "original_png"
	VariantRaw         Variant = "original"
)

// ImageEmbedder places an image file at a cell with a fixed display size
type ImageEmbedder interface {
	EmbedImage(cell, imagePath string, width, height int) error
}

// Asset records the signature files written into a session folder
type Asset struct {
	Folder          string
	RawPath         string
	OriginalPNGPath string // empty when conversion failed
	ProcessedPath   string // empty when cropping failed
}

// Best returns the preferred existing variant: processed, converted, raw.
func (a *Asset) Best() string {
	switch {
	case a.ProcessedPath != "":
		return a.ProcessedPath
	case a.OriginalPNGPath != "":
		return a.OriginalPNGPath
	default:
		return a.RawPath
	}
}

var contentTypeExtensions = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/gif":       "gif",
	"application/pdf": "pdf",
}

// Extension picks a file extension for signature bytes from the declared
// content type, falling back to sniffing the data.
func Extension(contentType string, data []byte) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ext, ok := contentTypeExtensions[mediaType]; ok {
		return ext
	}
	sniffed := strings.SplitN(http.DetectContentType(data), ";", 2)[0]
	if ext, ok := contentTypeExtensions[sniffed]; ok {
		return ext
	}
	return "png"
}

// Normalize writes a user's stored signature into folder and derives the
// converted and processed variants. Conversion and cropping failures degrade
// to the previous variant; only failing to write the raw file is an error.
func (n *Normalizer) Normalize(folder string, raw []byte, contentType string) (*Asset, error) {
	asset := &Asset{
		Folder:  folder,
		RawPath: filepath.Join(folder, RawBaseName+"."+Extension(contentType, raw)),
	}
	if err := os.WriteFile(asset.RawPath, raw, 0644); err != nil {
		return nil, fmt.Errorf("failed to write signature upload: %w", err)
	}

	originalPath := filepath.Join(folder, OriginalPNGName)
	if err := n.ConvertToPNG(asset.RawPath, originalPath); err != nil {
		n.logger.Warn("Signature conversion failed, using raw upload", zap.Error(err))
		return asset, nil
	}
	asset.OriginalPNGPath = originalPath

	processedPath := filepath.Join(folder, ProcessedName)
	if err := copyFile(originalPath, processedPath); err != nil {
		n.logger.Warn("Could not stage signature for cropping", zap.Error(err))
		return asset, nil
	}

	if err := n.DetectAndCrop(processedPath, ""); err != nil {
		n.logger.Warn("Signature cropping failed, using converted PNG", zap.Error(err))
		os.Remove(processedPath)
		return asset, nil
	}

	if err := n.limitFileWidth(processedPath, n.config.ThumbnailMaxWidth); err != nil {
		n.logger.Warn("Could not shrink processed signature", zap.Error(err))
	}
	asset.ProcessedPath = processedPath

	n.logger.Info("Signature normalized", zap.String("folder", folder))
	return asset, nil
}

func (n *Normalizer) limitFileWidth(path string, maxWidth int) error {
	img, err := openImage(path)
	if err != nil {
		return err
	}
	if img.Bounds().Dx() <= maxWidth {
		return nil
	}
	return savePNG(limitWidth(img, maxWidth), path)
}

// Find returns the best signature variant present in folder
func (n *Normalizer) Find(folder string) (string, Variant, error) {
	if path := filepath.Join(folder, ProcessedName); fileExists(path) {
		return path, VariantProcessed, nil
	}
	if path := filepath.Join(folder, OriginalPNGName); fileExists(path) {
		return path, VariantOriginalPNG, nil
	}

	matches, err := filepath.Glob(filepath.Join(folder, RawBaseName+".*"))
	if err != nil {
		return "", "", fmt.Errorf("failed to search for signature: %w", err)
	}
	for _, path := range matches {
		if fileExists(path) {
			return path, VariantRaw, nil
		}
	}
	return "", "", ErrNoSignature
}

// Prepare makes sure the canonical processed PNG exists for the variant
// found by Find and returns its path.
func (n *Normalizer) Prepare(folder, path string, variant Variant) (string, error) {
	target := filepath.Join(folder, ProcessedName)

	switch variant {
	case VariantProcessed:
		return target, nil
	case VariantOriginalPNG:
		if filepath.Clean(path) == filepath.Clean(target) {
			return target, nil
		}
		if err := copyFile(path, target); err != nil {
			return "", fmt.Errorf("failed to copy signature PNG: %w", err)
		}
		return target, nil
	default:
		if err := n.ConvertToPNG(path, target); err != nil {
			return "", err
		}
		return target, nil
	}
}

// InsertAtCell embeds the best available signature at cell. Failures are
// logged and reported as false so document generation can carry on.
func (n *Normalizer) InsertAtCell(embedder ImageEmbedder, folder, cell string, width, height int) bool {
	path, variant, err := n.Find(folder)
	if err != nil {
		n.logger.Warn("No signature file found", zap.String("cell", cell), zap.String("folder", folder))
		return false
	}

	n.logger.Debug("Selected signature variant",
		zap.String("cell", cell),
		zap.String("variant", string(variant)),
		zap.String("path", path))

	prepared, err := n.Prepare(folder, path, variant)
	if err != nil {
		n.logger.Warn("Failed to prepare signature", zap.String("cell", cell), zap.Error(err))
		return false
	}

	if err := embedder.EmbedImage(cell, prepared, width, height); err != nil {
		n.logger.Error("Failed to insert signature", zap.String("cell", cell), zap.Error(err))
		return false
	}

	n.logger.Info("Signature inserted",
		zap.String("cell", cell),
		zap.String("variant", string(variant)))
	return true
}

// Dimensions reports the pixel size of an image file from its header
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
