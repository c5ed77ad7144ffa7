// Package repository defines the cupcake record store and its SQL implementation.
package repository

import (
	"context"

	"github.com/okian/cupcakes/internal/domain/model"
)

// Store provides read/write access to cupcake records.
type Store interface {
	// List returns every record in insertion (id) order. Empty store yields an empty slice.
	List(ctx context.Context) ([]model.Cupcake, error)

	// Get returns the record with id or ErrNotFound.
	Get(ctx context.Context, id int64) (model.Cupcake, error)

	// Create validates p, assigns a new id and persists the record.
	// A missing or blank image is replaced by the store's default image.
	Create(ctx context.Context, p model.CreateParams) (model.Cupcake, error)

	// Update overwrites only the fields set in p. Returns ErrNotFound if id is unknown.
	Update(ctx context.Context, id int64, p model.UpdateParams) (model.Cupcake, error)

	// Delete physically removes the record. Returns ErrNotFound if id is unknown.
	Delete(ctx context.Context, id int64) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}
