package repository

import (
	"time"

	"github.com/okian/cupcakes/pkg/logger"
)

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithDefaultImage sets the image stored when a cupcake has none.
func WithDefaultImage(url string) Option {
	return func(s *SQLStore) {
		if url != "" {
			s.defaultImage = url
		}
	}
}

// WithTimeout bounds each store call whose context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *SQLStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithLogger sets the logger used for statement tracing.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}
