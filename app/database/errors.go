package database

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate link")
	ErrValidation = errors.New("validation failed")
)

// DuplicateError reports an href that already exists.
type DuplicateError struct {
	Href string
}

func (e *DuplicateError) Error() string {
	return e.Href + " is a duplicate"
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}
