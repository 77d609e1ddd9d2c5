package audition

import (
	"context"
	"errors"

	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
)

// WithAPIClient builds the shared backend client from the configuration.
// A configuration without API_URL is a startup error.
func WithAPIClient(opts ...client.Option) Option {
	return func(_ context.Context, s *Service) {
		cfg, ok := s.Config().(config.ConfigurationAPI)
		if !ok {
			s.AddStartupError(errors.New("configuration does not describe the backend API"))
			return
		}

		c, err := client.New(cfg, opts...)
		if err != nil {
			s.AddStartupError(err)
			return
		}
		s.client = c
		s.api = api.New(c)
	}
}
