package localization_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/tjddyd55-crypto/global-audition/localization"
)

type ManagerSuite struct {
	suite.Suite
	manager localization.Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupSuite() {
	manager, err := localization.NewManager("", localization.DefaultLocales...)
	s.Require().NoError(err)
	s.manager = manager
}

func (s *ManagerSuite) TestTranslateByLocale() {
	ctx := context.Background()

	s.Equal("이미 지원하셨습니다.", s.manager.Translate(ctx, "ko", "application.duplicate"))
	s.Equal("You have already applied to this audition.", s.manager.Translate(ctx, "en", "application.duplicate"))
	s.Equal("지원에 실패했습니다.", s.manager.Translate(ctx, []string{"pt", "ko"}, "application.failed"))
}

func (s *ManagerSuite) TestTranslateFromContextAndRequest() {
	ctx := localization.ToContext(context.Background(), "ja")
	s.Equal("ja", localization.FromContext(ctx))
	s.Equal("すでに応募済みです。", s.manager.Translate(ctx, ctx, "application.duplicate"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	s.Equal("Sie haben sich bereits beworben.", s.manager.Translate(ctx, req, "application.duplicate"))

	req = req.WithContext(localization.ToContext(req.Context(), "fr"))
	s.Equal("Vous avez déjà postulé à cette audition.", s.manager.Translate(ctx, req, "application.duplicate"))
}

func (s *ManagerSuite) TestDefaultsWhenNoLanguage() {
	ctx := context.Background()

	s.Equal("이미 지원하셨습니다.", s.manager.Translate(ctx, ctx, "application.duplicate"))
	s.Equal("unknown.message", s.manager.Translate(ctx, "ko", "unknown.message"))
	s.Equal("application.duplicate", s.manager.Translate(ctx, 42, "application.duplicate"))
}

func (s *ManagerSuite) TestEveryLocaleHasTheCatalog() {
	ctx := context.Background()
	ko := s.manager.Bundle().LanguageTags()
	s.Len(ko, len(localization.DefaultLocales))

	for _, locale := range localization.DefaultLocales {
		s.NotEqual("error.network", s.manager.Translate(ctx, locale, "error.network"), locale)
	}
}

func (s *ManagerSuite) TestMissingFolderFails() {
	_, err := localization.NewManager(s.T().TempDir(), "ko")
	s.Require().Error(err)
}
