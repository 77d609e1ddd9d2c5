package audition

import (
	"context"

	"github.com/tjddyd55-crypto/global-audition/config"
)

// WithConfig specifies the configuration object of the service. The logger is rebuilt from it.
func WithConfig(cfg any) Option {
	return func(ctx context.Context, s *Service) {
		s.configuration = cfg

		serviceCfg, ok := cfg.(config.ConfigurationService)
		if ok {
			if serviceCfg.Name() != "" {
				WithName(serviceCfg.Name())(ctx, s)
			}

			if serviceCfg.Environment() != "" {
				WithEnvironment(serviceCfg.Environment())(ctx, s)
			}

			if serviceCfg.Version() != "" {
				WithVersion(serviceCfg.Version())(ctx, s)
			}
		}

		WithLogger()(ctx, s)
	}
}

// Config returns the configuration object the service was built with.
func (s *Service) Config() any {
	return s.configuration
}
