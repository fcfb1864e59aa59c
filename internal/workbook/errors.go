package workbook

import "errors"

// ErrTemplateNotFound is returned when a workbook template is missing
var ErrTemplateNotFound = errors.New("template file not found")
