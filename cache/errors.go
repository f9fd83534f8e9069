package cache

import "github.com/pkg/errors"

var (
	ErrInvalidConfiguration = errors.New("invalid cache configuration")
	ErrAlreadyInTransaction = errors.New("already in transaction")
	ErrNotInTransaction     = errors.New("not in transaction")
)
