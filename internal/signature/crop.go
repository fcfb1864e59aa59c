package signature

import (
	"fmt"

	"go.uber.org/zap"
)

// DetectAndCrop removes paper texture and uneven lighting from the signature
// at inputPath, binarizes it and trims it to the ink. The result is written
// to outputPath, or over inputPath when outputPath is empty.
// Nothing is written when the input cannot be read.
func (n *Normalizer) DetectAndCrop(inputPath, outputPath string) error {
	if outputPath == "" {
		outputPath = inputPath
	}

	img, err := openImage(inputPath)
	if err != nil {
		n.logger.Warn("Could not read signature for cropping",
			zap.String("path", inputPath),
			zap.Error(err))
		return err
	}

	mask := enhance(limitWidth(img, n.config.ConversionMaxWidth))

	if err := savePNG(mask, outputPath); err != nil {
		return fmt.Errorf("failed to write enhanced signature: %w", err)
	}

	if _, err := n.TrimWhitespace(outputPath, ""); err != nil {
		return fmt.Errorf("failed to trim signature: %w", err)
	}

	n.logger.Info("Signature enhanced and cropped", zap.String("output", outputPath))
	return nil
}
