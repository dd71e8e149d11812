package app

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already exists")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrForbidden          = errors.New("forbidden")
	ErrSkinNotFound       = errors.New("skin not found")
	ErrSkinLocked         = errors.New("skin locked")
	ErrUnknownAction      = errors.New("unknown action")
)
