// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultImage is stored when a cupcake is created or updated without an image.
const DefaultImage = "https://tinyurl.com/demo-cupcake"

// ErrValidation marks input that violates the cupcake field rules.
var ErrValidation = errors.New("validation failed")

// Cupcake is a stored cupcake record. ID is assigned by the store and never changes.
type Cupcake struct {
	ID     int64
	Flavor string
	Size   string
	Rating float64
	Image  string
}

// FieldError reports which field failed validation and why.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes every FieldError match ErrValidation.
func (e *FieldError) Is(target error) bool {
	return target == ErrValidation
}

func missing(field string) error { return &FieldError{Field: field, Reason: "is required"} }

// CreateParams carries the fields for a new cupcake. Flavor, Size and Rating are required.
type CreateParams struct {
	Flavor Optional[string]
	Size   Optional[string]
	Rating Optional[float64]
	Image  Optional[string]
}

// Validate checks that required fields are present and well formed.
func (p CreateParams) Validate() error {
	if v, ok := p.Flavor.Get(); !ok || strings.TrimSpace(v) == "" {
		return missing("flavor")
	}
	if v, ok := p.Size.Get(); !ok || strings.TrimSpace(v) == "" {
		return missing("size")
	}
	r, ok := p.Rating.Get()
	if !ok {
		return missing("rating")
	}
	return validRating(r)
}

// UpdateParams carries a partial update: unset fields keep their stored value.
type UpdateParams struct {
	Flavor Optional[string]
	Size   Optional[string]
	Rating Optional[float64]
	Image  Optional[string]
}

// IsEmpty reports whether no field is set.
func (p UpdateParams) IsEmpty() bool {
	return !p.Flavor.IsSet() && !p.Size.IsSet() && !p.Rating.IsSet() && !p.Image.IsSet()
}

// Validate checks the fields that are set.
func (p UpdateParams) Validate() error {
	if v, ok := p.Flavor.Get(); ok && strings.TrimSpace(v) == "" {
		return &FieldError{Field: "flavor", Reason: "must not be blank"}
	}
	if v, ok := p.Size.Get(); ok && strings.TrimSpace(v) == "" {
		return &FieldError{Field: "size", Reason: "must not be blank"}
	}
	if r, ok := p.Rating.Get(); ok {
		return validRating(r)
	}
	return nil
}

// Apply merges the set fields into c. The id is never touched.
func (p UpdateParams) Apply(c Cupcake, defaultImage string) Cupcake {
	c.Flavor = p.Flavor.OrElse(c.Flavor)
	c.Size = p.Size.OrElse(c.Size)
	c.Rating = p.Rating.OrElse(c.Rating)
	if img, ok := p.Image.Get(); ok {
		c.Image = ResolveImage(img, defaultImage)
	}
	return c
}

// ResolveImage returns image, or def when image is blank.
func ResolveImage(image, def string) string {
	if strings.TrimSpace(image) == "" {
		return def
	}
	return image
}

func validRating(r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return &FieldError{Field: "rating", Reason: "must be a finite number"}
	}
	return nil
}
