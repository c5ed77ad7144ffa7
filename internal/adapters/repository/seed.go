package repository

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/okian/cupcakes/internal/domain/model"
)

// Fixture is a cupcake definition used to seed an empty store.
type Fixture struct {
	Flavor string   `yaml:"flavor"`
	Size   string   `yaml:"size"`
	Rating *float64 `yaml:"rating"`
	Image  string   `yaml:"image,omitempty"`
}

// Params converts the fixture into create parameters.
func (f Fixture) Params() model.CreateParams {
	p := model.CreateParams{
		Flavor: model.Some(f.Flavor),
		Size:   model.Some(f.Size),
	}
	if f.Rating != nil {
		p.Rating = model.Some(*f.Rating)
	}
	if f.Image != "" {
		p.Image = model.Some(f.Image)
	}
	return p
}

// DefaultFixtures returns the two sample cupcakes shipped with the service.
func DefaultFixtures() []Fixture {
	five, nine := 5.0, 9.0
	return []Fixture{
		{Flavor: "cherry", Size: "large", Rating: &five},
		{
			Flavor: "chocolate",
			Size:   "small",
			Rating: &nine,
			Image:  "https://www.bakedbyrachel.com/wp-content/uploads/2018/01/chocolatecupcakesccfrosting1_bakedbyrachel.jpg",
		},
	}
}

// LoadFixtures decodes a YAML list of fixtures.
func LoadFixtures(r io.Reader) ([]Fixture, error) {
	var out []Fixture
	if err := yaml.NewDecoder(r).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return out, nil
}

// Seeder is the subset of SQLStore needed to seed.
type Seeder interface {
	Store
	Reset(ctx context.Context) error
}

// Seed optionally resets s, then creates every fixture in order.
func Seed(ctx context.Context, s Seeder, fixtures []Fixture, reset bool) ([]model.Cupcake, error) {
	if reset {
		if err := s.Reset(ctx); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}
	created := make([]model.Cupcake, 0, len(fixtures))
	for i, f := range fixtures {
		c, err := s.Create(ctx, f.Params())
		if err != nil {
			return created, fmt.Errorf("seed: fixture %d: %w", i, err)
		}
		created = append(created, c)
	}
	return created, nil
}
