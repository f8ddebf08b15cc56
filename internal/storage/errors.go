package storage

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or belongs to
	// another user. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned on unique constraint violations
	// (email, category name per user, subcategory name per category).
	ErrDuplicate = errors.New("already exists")

	// ErrInUse is returned when deleting a category or subcategory that
	// expense or income rows still reference.
	ErrInUse = errors.New("in use")
)
