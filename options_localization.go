package audition

import (
	"context"

	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/localization"
)

// WithTranslations loads the message catalog and the locale routing rules.
// An empty folder uses the catalog built into the binary; languages default to the configured locales.
func WithTranslations(translationsFolder string, languages ...string) Option {
	return func(_ context.Context, s *Service) {
		cfg, ok := s.Config().(config.ConfigurationLocale)
		if !ok {
			cfg = &config.ConfigurationDefault{
				DefaultLocale:    "ko",
				SupportedLocales: []string{"ko", "en", "ja", "zh", "es", "fr", "de"},
			}
		}
		if len(languages) == 0 {
			languages = cfg.Locales()
		}

		routing, err := localization.NewRouting(languages, cfg.DefaultLocaleCode())
		if err != nil {
			s.AddStartupError(err)
			return
		}

		manager, err := localization.NewManager(translationsFolder, languages...)
		if err != nil {
			s.AddStartupError(err)
			return
		}
		s.routing = routing
		s.localization = manager
	}
}

// DefaultLocale is the locale used when a request carries none.
func (s *Service) DefaultLocale() string {
	if s.routing == nil {
		return "ko"
	}
	return s.routing.Default()
}
