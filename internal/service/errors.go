package service

import "errors"

var (
	ErrNotFound           = errors.New("error not found")
	ErrForbidden          = errors.New("error owner belongs to another user")
	ErrInvalidTransaction = errors.New("error invalid transaction")
)
