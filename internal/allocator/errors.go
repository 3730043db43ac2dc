package allocator

import "errors"

var (
	// ErrNoItems is returned when the batch contains no items.
	ErrNoItems = errors.New("allocation requires at least one item")
	// ErrInvalidItem is returned when an item carries a non-positive weight or multiplicity.
	ErrInvalidItem = errors.New("items must have a positive weight and multiplicity")
	// ErrInvalidTarget is returned when the target sum is not positive.
	ErrInvalidTarget = errors.New("target sum must be a positive number")
	// ErrZeroWeightedSum is returned when the total weighted sum is zero and no scaling factor exists.
	ErrZeroWeightedSum = errors.New("total weighted sum is zero, cannot derive a scaling factor")
)
