package signature

import "errors"

var (
	// ErrNoPages is returned when a PDF signature has no page to render
	ErrNoPages = errors.New("pdf has no pages")

	// ErrNoSignature is returned when no signature variant exists in a session folder
	ErrNoSignature = errors.New("no signature file found")

	// ErrEmptyImage is returned for a decoded image with zero width or height
	ErrEmptyImage = errors.New("image has no pixels")
)
