package smoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/cupcakes/pkg/logger"
)

// ErrStepFailed wraps every deviation from the expected API behaviour.
var ErrStepFailed = errors.New("smoke step failed")

// Report summarises a successful run.
type Report struct {
	CreatedID int64         `json:"created_id"`
	Steps     []string      `json:"steps"`
	Duration  time.Duration `json:"duration"`
}

type run struct {
	client *HTTPClient
	log    logger.Logger
	report *Report
}

// Run performs health, create, get, partial update, list, delete and a
// final not-found check. The first failing step aborts the run.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		client: newHTTPClient(cfg.BaseURL, cfg.Timeout),
		log:    logger.Named("smoke"),
		report: &Report{},
	}

	r.log.Info(ctx, "starting cupcake smoke run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("timeout", cfg.Timeout.String()))

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"health", r.health},
		{"create", r.create},
		{"get", r.get},
		{"update", r.update},
		{"list", r.list},
		{"delete", r.delete},
		{"verify_deleted", r.verifyDeleted},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			r.log.Error(ctx, "smoke step failed", logger.String("step", s.name), logger.Error(err))
			return r.report, fmt.Errorf("%w: %s: %w", ErrStepFailed, s.name, err)
		}
		r.report.Steps = append(r.report.Steps, s.name)
		r.log.Debug(ctx, "smoke step passed", logger.String("step", s.name))
	}

	r.report.Duration = time.Since(start)
	r.log.Info(ctx, "cupcake smoke run completed",
		logger.Int64("created_id", r.report.CreatedID),
		logger.Int("steps", len(r.report.Steps)),
		logger.String("duration", r.report.Duration.String()))
	return r.report, nil
}

func expectStatus(got, want int) error {
	if got != want {
		return fmt.Errorf("status %d, want %d", got, want)
	}
	return nil
}

func (r *run) health(ctx context.Context) error {
	var h healthEnvelope
	code, err := r.client.do(ctx, http.MethodGet, "/healthz", nil, &h)
	if err != nil {
		return err
	}
	if err := expectStatus(code, http.StatusOK); err != nil {
		return err
	}
	if h.Status != "ok" {
		return fmt.Errorf("health status %q", h.Status)
	}
	return nil
}

var smokeCupcake = Cupcake{Flavor: "smoke-vanilla", Size: "medium", Rating: 6.5}

func (r *run) create(ctx context.Context) error {
	var env cupcakeEnvelope
	body := map[string]any{"flavor": smokeCupcake.Flavor, "size": smokeCupcake.Size, "rating": smokeCupcake.Rating}
	code, err := r.client.do(ctx, http.MethodPost, "/api/cupcakes", body, &env)
	if err != nil {
		return err
	}
	if err := expectStatus(code, http.StatusCreated); err != nil {
		return err
	}
	c := env.Cupcake
	switch {
	case c.ID <= 0:
		return fmt.Errorf("invalid id %d", c.ID)
	case c.Flavor != smokeCupcake.Flavor || c.Size != smokeCupcake.Size || c.Rating != smokeCupcake.Rating:
		return fmt.Errorf("created record %+v does not match request", c)
	case c.Image == "":
		return errors.New("default image not applied")
	}
	r.report.CreatedID = c.ID
	return nil
}

func (r *run) path() string {
	return fmt.Sprintf("/api/cupcakes/%d", r.report.CreatedID)
}

func (r *run) get(ctx context.Context) error {
	var env cupcakeEnvelope
	code, err := r.client.do(ctx, http.MethodGet, r.path(), nil, &env)
	if err != nil {
		return err
	}
	if err := expectStatus(code, http.StatusOK); err != nil {
		return err
	}
	if env.Cupcake.ID != r.report.CreatedID {
		return fmt.Errorf("got id %d, want %d", env.Cupcake.ID, r.report.CreatedID)
	}
	return nil
}

func (r *run) update(ctx context.Context) error {
	var env cupcakeEnvelope
	code, err := r.client.do(ctx, http.MethodPatch, r.path(), map[string]any{"rating": 8.75}, &env)
	if err != nil {
		return err
	}
	if err := expectStatus(code, http.StatusOK); err != nil {
		return err
	}
	c := env.Cupcake
	if c.Rating != 8.75 {
		return fmt.Errorf("rating %v, want 8.75", c.Rating)
	}
	if c.Flavor != smokeCupcake.Flavor || c.Size != smokeCupcake.Size {
		return fmt.Errorf("partial update changed untouched fields: %+v", c)
	}
	return nil
}

func (r *run) list(ctx context.Context) error {
	var env cupcakesEnvelope
	code, err := r.client.do(ctx, http.MethodGet, "/api/cupcakes", nil, &env)
	if err != nil {
		return err
	}
	if err := expectStatus(code, http.StatusOK); err != nil {
		return err
	}
	for _, c := range env.Cupcakes {
		if c.ID == r.report.CreatedID {
			return nil
		}
	}
	return fmt.Errorf("id %d missing from list of %d", r.report.CreatedID, len(env.Cupcakes))
}

func (r *run) delete(ctx context.Context) error {
	var env messageEnvelope
	code, err := r.client.do(ctx, http.MethodDelete, r.path(), nil, &env)
	if err != nil {
		return err
	}
	if err := expectStatus(code, http.StatusOK); err != nil {
		return err
	}
	if env.Message != "deleted" {
		return fmt.Errorf("message %q, want deleted", env.Message)
	}
	return nil
}

func (r *run) verifyDeleted(ctx context.Context) error {
	code, err := r.client.do(ctx, http.MethodGet, r.path(), nil, nil)
	if err != nil {
		return err
	}
	return expectStatus(code, http.StatusNotFound)
}
