package app

import "errors"

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrForbidden        = errors.New("forbidden")
	ErrEmptyDocument    = errors.New("document has no extracted text")
	ErrNotReady         = errors.New("document not ready")
)
