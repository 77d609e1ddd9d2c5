package localization

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pitabwire/util"
	"golang.org/x/text/language"
)

type contextKey string

func (c contextKey) String() string {
	return "audition/localization/" + string(c)
}

const ctxKeyLocale = contextKey("localeKey")

//go:embed translations/*.toml
var embeddedTranslations embed.FS

// ToContext adds the resolved locale to the supplied context.
func ToContext(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ctxKeyLocale, locale)
}

// FromContext extracts the resolved locale from the supplied context, empty when none was resolved.
func FromContext(ctx context.Context) string {
	locale, ok := ctx.Value(ctxKeyLocale).(string)
	if !ok {
		return ""
	}
	return locale
}

type Manager interface {
	Bundle() *i18n.Bundle
	Translate(ctx context.Context, request any, messageID string) string
	TranslateWithMap(
		ctx context.Context,
		request any,
		messageID string,
		variables map[string]any,
	) string
	TranslateWithMapAndCount(
		ctx context.Context,
		request any,
		messageID string,
		variables map[string]any,
		count int,
	) string
}

type managerImpl struct {
	bundle *i18n.Bundle
}

// NewManager loads messages.<lang>.toml for every language. An empty folder selects the catalog built into the binary.
func NewManager(translationsFolder string, languages ...string) (Manager, error) {
	var fsys fs.FS
	if translationsFolder == "" {
		sub, err := fs.Sub(embeddedTranslations, "translations")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(translationsFolder)
	}

	bundle := i18n.NewBundle(language.Korean)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, lang := range languages {
		if _, err := bundle.LoadMessageFileFS(fsys, fmt.Sprintf("messages.%s.toml", lang)); err != nil {
			return nil, fmt.Errorf("load %s translations: %w", lang, err)
		}
	}

	return &managerImpl{bundle: bundle}, nil
}

// Bundle Access the translation bundle instantiated in the system.
func (s *managerImpl) Bundle() *i18n.Bundle {
	return s.bundle
}

// Translate performs a quick translation based on the supplied message id.
func (s *managerImpl) Translate(ctx context.Context, request any, messageID string) string {
	return s.TranslateWithMap(ctx, request, messageID, map[string]any{})
}

// TranslateWithMap performs a translation with variables based on the supplied message id.
func (s *managerImpl) TranslateWithMap(
	ctx context.Context,
	request any,
	messageID string,
	variables map[string]any,
) string {
	return s.localize(ctx, request, messageID, variables, nil)
}

// TranslateWithMapAndCount performs a translation with variables and pluralizes on count.
func (s *managerImpl) TranslateWithMapAndCount(
	ctx context.Context,
	request any,
	messageID string,
	variables map[string]any,
	count int,
) string {
	return s.localize(ctx, request, messageID, variables, count)
}

// localize translates messageID for the languages carried by request.
// request may be a locale string, a []string, an *http.Request or a context holding a resolved locale.
func (s *managerImpl) localize(
	ctx context.Context,
	request any,
	messageID string,
	variables map[string]any,
	count any,
) string {
	var languageSlice []string

	switch v := request.(type) {
	case *http.Request:
		languageSlice = ExtractLanguageFromHTTPRequest(v)
	case context.Context:
		if locale := FromContext(v); locale != "" {
			languageSlice = []string{locale}
		}
	case string:
		languageSlice = []string{v}
	case []string:
		languageSlice = v
	default:
		util.Log(ctx).WithField("messageID", messageID).
			Warn("no usable language source, pass a locale, []string, context or *http.Request")
		return messageID
	}

	localizer := i18n.NewLocalizer(s.bundle, languageSlice...)

	translated, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:      messageID,
		DefaultMessage: &i18n.Message{ID: messageID, Other: messageID},
		TemplateData:   variables,
		PluralCount:    count,
	})
	if err != nil {
		util.Log(ctx).WithError(err).WithField("messageID", messageID).Error("could not perform translation")
	}

	return translated
}

// ExtractLanguageFromHTTPRequest lists the resolved path locale first, then Accept-Language entries.
func ExtractLanguageFromHTTPRequest(req *http.Request) []string {
	var languages []string
	if locale := FromContext(req.Context()); locale != "" {
		languages = append(languages, locale)
	}
	return append(languages, ExtractLanguageFromHTTPHeader(req.Header)...)
}

func ExtractLanguageFromHTTPHeader(header http.Header) []string {
	acceptLanguageHeader := header.Get("Accept-Language")
	if acceptLanguageHeader == "" {
		return nil
	}
	return strings.Split(acceptLanguageHeader, ",")
}
