package workbook

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// sheetWriter writes cells on one sheet, logging and skipping failed writes
type sheetWriter struct {
	file   *excelize.File
	sheet  string
	logger *zap.Logger
}

func (w *sheetWriter) set(cell string, value interface{}) {
	if d, ok := value.(decimal.Decimal); ok {
		value = d.InexactFloat64()
	}
	if err := w.file.SetCellValue(w.sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set cell",
			zap.String("sheet", w.sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func (w *sheetWriter) setRow(column string, row int, value interface{}) {
	w.set(fmt.Sprintf("%s%d", column, row), value)
}

// EmbedImage places the image at cell scaled to width x height pixels
func (w *sheetWriter) EmbedImage(cell, imagePath string, width, height int) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	config, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read image size: %w", err)
	}
	if config.Width == 0 || config.Height == 0 {
		return fmt.Errorf("image %s has no pixels", imagePath)
	}

	opts := &excelize.GraphicOptions{
		ScaleX:      float64(width) / float64(config.Width),
		ScaleY:      float64(height) / float64(config.Height),
		Positioning: "oneCell",
		AltText:     "Signature",
	}
	if err := w.file.AddPicture(w.sheet, cell, imagePath, opts); err != nil {
		return fmt.Errorf("failed to add picture: %w", err)
	}
	return nil
}

func openTemplate(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
	}
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	return file, nil
}

func templatePath(dir, name string) string {
	return filepath.Join(dir, name)
}
