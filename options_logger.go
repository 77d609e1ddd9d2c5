package audition

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/config"
)

// WithLogger builds the service logger, taking level, time format and colour from the configuration.
func WithLogger(opts ...util.Option) Option {
	return func(ctx context.Context, s *Service) {
		if s.Config() != nil {
			cfg, ok := s.Config().(config.ConfigurationLogLevel)
			if ok {
				logLevel, err := util.ParseLevel(cfg.LoggingLevel())
				if err == nil {
					opts = append(opts, util.WithLogLevel(logLevel))
				}
				opts = append(opts,
					util.WithLogTimeFormat(cfg.LoggingTimeFormat()),
					util.WithLogNoColor(!cfg.LoggingColored()))
				if cfg.LoggingShowStackTrace() {
					opts = append(opts, util.WithLogStackTrace())
				}
			}
		}

		log := util.NewLogger(ctx, opts...)
		s.logger = log.WithField("service", s.Name())
	}
}

// Log returns the service logger bound to ctx.
func (s *Service) Log(ctx context.Context) *util.LogEntry {
	return s.logger.WithContext(ctx)
}
