// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/cupcakes/internal/adapters/repository"
	"github.com/okian/cupcakes/internal/domain/model"
	"github.com/okian/cupcakes/pkg/logger"
	"github.com/okian/cupcakes/pkg/metrics"
)

// ErrNotStarted is returned by store operations before Start or after Stop.
var ErrNotStarted = errors.New("service not started")

// Service owns the record store and implements the API dependencies.
type Service struct {
	mu sync.RWMutex

	store *repository.SQLStore

	// Configuration
	driver          string
	dsn             string
	defaultImage    string
	storeTimeout    time.Duration
	maxOpenConns    int
	refreshInterval time.Duration

	// State
	started   bool
	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup

	base   logger.Logger
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDatabase selects the database driver and data source name.
func WithDatabase(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.driver = driver
		}
		if dsn != "" {
			s.dsn = dsn
		}
	}
}

// WithDefaultImage sets the image stored when a cupcake has none.
func WithDefaultImage(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.defaultImage = url
		}
	}
}

// WithStoreTimeout bounds store calls whose context has no deadline.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithMaxOpenConns caps the database connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithRefreshInterval sets how often gauge metrics are refreshed.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithLogger sets the root logger; the service and its store log under their own component names.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.base = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		driver:          repository.DriverSQLite,
		dsn:             ":memory:",
		refreshInterval: metrics.RefreshInterval(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, ensures the schema exists and starts the gauge refresher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.base == nil {
		s.base = logger.Get()
	}
	s.logger = s.base.Named("service")

	s.logger.Info(ctx, "starting cupcake service...", logger.String("driver", s.driver))

	store, err := repository.Open(ctx, s.driver, s.dsn,
		repository.WithDefaultImage(s.defaultImage),
		repository.WithTimeout(s.storeTimeout),
		repository.WithMaxOpenConns(s.maxOpenConns),
		repository.WithLogger(s.base.Named("repository")),
	)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start: %w", err)
	}

	s.store = store
	s.started = true
	s.startedAt = time.Now()
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.refreshLoop(s.stopCh)

	s.logger.Info(ctx, "cupcake service started",
		logger.String("driver", s.driver),
		logger.String("default_image", store.DefaultImage()))
	return nil
}

// Stop stops the refresher and closes the store. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.logger.Info(context.Background(), "stopping cupcake service...")
	close(s.stopCh)
	s.started = false
	store := s.store
	s.store = nil
	s.mu.Unlock()

	s.wg.Wait()
	if err := store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}
	s.logger.Info(context.Background(), "cupcake service stopped")
}

func (s *Service) refreshLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	s.refreshGauges()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.refreshGauges()
		}
	}
}

func (s *Service) refreshGauges() {
	store, err := s.current()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshInterval)
	defer cancel()

	if n, err := store.Count(ctx); err == nil {
		metrics.UpdateCupcakesTotal(n)
	}
	metrics.UpdateStoreOpenConnections(store.Stats().OpenConnections)
}

func (s *Service) current() (*repository.SQLStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || s.store == nil {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// List returns every cupcake in id order.
func (s *Service) List(ctx context.Context) ([]model.Cupcake, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// Get returns the cupcake with id.
func (s *Service) Get(ctx context.Context, id int64) (model.Cupcake, error) {
	store, err := s.current()
	if err != nil {
		return model.Cupcake{}, err
	}
	return store.Get(ctx, id)
}

// Create stores a new cupcake.
func (s *Service) Create(ctx context.Context, p model.CreateParams) (model.Cupcake, error) {
	store, err := s.current()
	if err != nil {
		return model.Cupcake{}, err
	}
	return store.Create(ctx, p)
}

// Update applies a partial update to the cupcake with id.
func (s *Service) Update(ctx context.Context, id int64, p model.UpdateParams) (model.Cupcake, error) {
	store, err := s.current()
	if err != nil {
		return model.Cupcake{}, err
	}
	return store.Update(ctx, id, p)
}

// Delete removes the cupcake with id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	store, err := s.current()
	if err != nil {
		return err
	}
	return store.Delete(ctx, id)
}

// Count returns the number of stored cupcakes.
func (s *Service) Count(ctx context.Context) (int64, error) {
	store, err := s.current()
	if err != nil {
		return 0, err
	}
	return store.Count(ctx)
}

// Ping reports whether the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	store, err := s.current()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// Seed loads fixtures into the store, dropping existing rows first when reset is set.
func (s *Service) Seed(ctx context.Context, fixtures []repository.Fixture, reset bool) ([]model.Cupcake, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	created, err := repository.Seed(ctx, store, fixtures, reset)
	if err != nil {
		return created, err
	}
	s.logger.Info(ctx, "seeded cupcakes",
		logger.Int("count", len(created)),
		logger.Any("reset", reset))
	return created, nil
}

// ResetSchema drops and recreates the cupcakes table.
func (s *Service) ResetSchema(ctx context.Context) error {
	store, err := s.current()
	if err != nil {
		return err
	}
	return store.Reset(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (map[string]any, error) {
	s.mu.RLock()
	started, startedAt, store := s.started, s.startedAt, s.store
	s.mu.RUnlock()

	stats := map[string]any{
		"started": started,
		"driver":  s.driver,
	}
	if !started || store == nil {
		return stats, nil
	}

	n, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	open := store.Stats().OpenConnections

	stats["cupcakes"] = n
	stats["uptime_seconds"] = time.Since(startedAt).Seconds()
	stats["db_open_connections"] = open

	metrics.UpdateCupcakesTotal(n)
	metrics.UpdateStoreOpenConnections(open)
	return stats, nil
}
