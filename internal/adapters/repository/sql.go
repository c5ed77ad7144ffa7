package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/cupcakes/internal/domain/model"
	"github.com/okian/cupcakes/pkg/logger"
	"github.com/okian/cupcakes/pkg/metrics"
)

const defaultTimeout = 5 * time.Second

const (
	sqlListCupcakes = `
		SELECT id, flavor, size, rating, image
		FROM   cupcakes
		ORDER  BY id`

	sqlGetCupcake = `
		SELECT id, flavor, size, rating, image
		FROM   cupcakes
		WHERE  id = ?`

	sqlInsertCupcake = `
		INSERT INTO cupcakes (flavor, size, rating, image)
		VALUES (?, ?, ?, ?)`

	sqlUpdateCupcake = `
		UPDATE cupcakes
		SET    flavor = ?, size = ?, rating = ?, image = ?
		WHERE  id = ?`

	sqlDeleteCupcake = `DELETE FROM cupcakes WHERE id = ?`

	sqlCountCupcakes = `SELECT COUNT(*) FROM cupcakes`

	sqlDropCupcakes = `DROP TABLE IF EXISTS cupcakes`
)

// SQLStore is a Store backed by database/sql.
type SQLStore struct {
	db           *sql.DB
	dialect      dialect
	defaultImage string
	timeout      time.Duration
	maxOpenConns int
	logger       logger.Logger
}

// Open connects to dsn with the named driver and verifies connectivity.
// Callers own the returned store and must Close it.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("repository: dsn must not be empty")
	}

	s := &SQLStore{
		dialect:      d,
		defaultImage: model.DefaultImage,
		timeout:      defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("repository")
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn, s.timeout)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", driver, err)
	}
	s.db = db

	switch {
	case driver == DriverSQLite && strings.Contains(dsn, ":memory:"):
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	case s.maxOpenConns > 0:
		db.SetMaxOpenConns(s.maxOpenConns)
	}

	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping %s: %w", driver, err)
	}
	return s, nil
}

// sqliteDSN makes transactions take the write lock on BEGIN and wait up to busy for it,
// so the read-then-write in Update cannot fail with "database is locked".
// Parameters already present in dsn win.
func sqliteDSN(dsn string, busy time.Duration) string {
	q := url.Values{}
	if !strings.Contains(dsn, "_txlock=") {
		q.Set("_txlock", "immediate")
	}
	if !strings.Contains(dsn, "_busy_timeout=") && !strings.Contains(dsn, "_timeout=") {
		q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	}
	if len(q) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}

// DefaultImage returns the image substituted for missing images.
func (s *SQLStore) DefaultImage() string { return s.defaultImage }

// Driver returns the database driver name.
func (s *SQLStore) Driver() string { return s.dialect.name }

// Stats returns connection pool statistics.
func (s *SQLStore) Stats() sql.DBStats { return s.db.Stats() }

// Close releases the connection pool. Safe to call more than once.
func (s *SQLStore) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the cupcakes table when it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "ensure_schema", start, err) }()

	ddl, err := s.dialect.schema()
	if err != nil {
		return err
	}
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err = s.db.ExecContext(qctx, ddl); err != nil {
		return fmt.Errorf("repository.ensure_schema: %w", err)
	}
	return nil
}

// Reset drops and recreates the cupcakes table, discarding every record.
func (s *SQLStore) Reset(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "reset", start, err) }()

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err = s.db.ExecContext(qctx, sqlDropCupcakes); err != nil {
		return fmt.Errorf("repository.reset: %w", err)
	}
	return s.EnsureSchema(ctx)
}

// List returns all cupcakes ordered by id.
func (s *SQLStore) List(ctx context.Context) (_ []model.Cupcake, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "list", start, err) }()

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(qctx, s.dialect.rebind(sqlListCupcakes))
	if err != nil {
		return nil, fmt.Errorf("repository.list: %w", err)
	}
	defer rows.Close()

	out := make([]model.Cupcake, 0)
	for rows.Next() {
		c, scanErr := scanCupcake(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("repository.list: scan: %w", scanErr)
		}
		out = append(out, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.list: %w", err)
	}
	return out, nil
}

// Get returns the cupcake with id.
func (s *SQLStore) Get(ctx context.Context, id int64) (_ model.Cupcake, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "get", start, err) }()

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := scanCupcake(s.db.QueryRowContext(qctx, s.dialect.rebind(sqlGetCupcake), id))
	if err != nil {
		return model.Cupcake{}, notFound("repository.get", err)
	}
	return c, nil
}

// Create inserts a new cupcake and returns it with the assigned id.
func (s *SQLStore) Create(ctx context.Context, p model.CreateParams) (_ model.Cupcake, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "create", start, err) }()

	if err = p.Validate(); err != nil {
		return model.Cupcake{}, fmt.Errorf("repository.create: %w", err)
	}

	c := model.Cupcake{
		Flavor: p.Flavor.OrElse(""),
		Size:   p.Size.OrElse(""),
		Rating: p.Rating.OrElse(0),
		Image:  model.ResolveImage(p.Image.OrElse(""), s.defaultImage),
	}
	args := []any{c.Flavor, c.Size, c.Rating, c.Image}

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.dialect.returning {
		q := s.dialect.rebind(sqlInsertCupcake + "\n\t\tRETURNING id")
		if err = s.db.QueryRowContext(qctx, q, args...).Scan(&c.ID); err != nil {
			return model.Cupcake{}, fmt.Errorf("repository.create: %w", err)
		}
		return c, nil
	}

	res, err := s.db.ExecContext(qctx, s.dialect.rebind(sqlInsertCupcake), args...)
	if err != nil {
		return model.Cupcake{}, fmt.Errorf("repository.create: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return model.Cupcake{}, fmt.Errorf("repository.create: last insert id: %w", err)
	}
	return c, nil
}

// Update merges the set fields of p into the stored record inside a single-row transaction.
func (s *SQLStore) Update(ctx context.Context, id int64, p model.UpdateParams) (_ model.Cupcake, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "update", start, err) }()

	if err = p.Validate(); err != nil {
		return model.Cupcake{}, fmt.Errorf("repository.update: %w", err)
	}

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(qctx, nil)
	if err != nil {
		return model.Cupcake{}, fmt.Errorf("repository.update: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := scanCupcake(tx.QueryRowContext(qctx, s.dialect.rebind(sqlGetCupcake+s.dialect.forUpdate), id))
	if err != nil {
		return model.Cupcake{}, notFound("repository.update", err)
	}

	next := p.Apply(current, s.defaultImage)
	if next != current {
		_, err = tx.ExecContext(qctx, s.dialect.rebind(sqlUpdateCupcake),
			next.Flavor, next.Size, next.Rating, next.Image, id)
		if err != nil {
			return model.Cupcake{}, fmt.Errorf("repository.update: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return model.Cupcake{}, fmt.Errorf("repository.update: commit: %w", err)
	}
	return next, nil
}

// Delete removes the cupcake with id.
func (s *SQLStore) Delete(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "delete", start, err) }()

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(qctx, s.dialect.rebind(sqlDeleteCupcake), id)
	if err != nil {
		return fmt.Errorf("repository.delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository.delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository.delete: %w", ErrNotFound)
	}
	return nil
}

// Count returns the number of stored cupcakes.
func (s *SQLStore) Count(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "count", start, err) }()

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err = s.db.QueryRowContext(qctx, sqlCountCupcakes).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository.count: %w", err)
	}
	return n, nil
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// observe records latency for every call and logs failures other than
// not-found and validation errors, which are part of the normal contract.
func (s *SQLStore) observe(ctx context.Context, op string, start time.Time, err error) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordStoreLatency(op, ms)

	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, model.ErrValidation) {
		metrics.RecordStoreError(op)
		s.logger.Error(ctx, "store operation failed",
			logger.String("op", op),
			logger.Float64("duration_ms", ms),
			logger.Error(err))
		return
	}
	s.logger.Debug(ctx, "store operation",
		logger.String("op", op),
		logger.Float64("duration_ms", ms))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCupcake(row scanner) (model.Cupcake, error) {
	var c model.Cupcake
	err := row.Scan(&c.ID, &c.Flavor, &c.Size, &c.Rating, &c.Image)
	return c, err
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Store = (*SQLStore)(nil)
