package datastore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row is not found on the item index.
	ErrNotFound = errors.New("not found")
	// ErrItemNotFound is returned when an item is not indexed.
	ErrItemNotFound = fmt.Errorf("item %w", ErrNotFound)
)
