package audition

import (
	"context"

	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/workerpool"
)

// WithWorkerPool sets up the pool that runs background refetches.
// Capacity comes from the configuration unless an option overrides it.
func WithWorkerPool(options ...workerpool.Option) Option {
	return func(ctx context.Context, s *Service) {
		var opts []workerpool.Option
		if cfg, ok := s.Config().(config.ConfigurationWorkerPool); ok {
			opts = append(opts, workerpool.WithCapacity(cfg.GetCapacity()))
		}
		opts = append(opts, workerpool.WithPoolLogger(s.logger))
		opts = append(opts, options...)

		pool, err := workerpool.New(ctx, opts...)
		if err != nil {
			s.AddStartupError(err)
			return
		}
		s.pool = pool
	}
}
