package store

import (
	"github.com/xtxerr/dossier/internal/errors"
)

var (
	ErrNotFound    = errors.ErrNotFound
	ErrInvalidName = errors.ErrInvalidName
	ErrStoreClosed = errors.ErrStoreClosed
	ErrUnsupported = errors.ErrUnsupported
)
