package audition

import (
	"context"
	"errors"
	"net/http"

	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/localization"
)

// Problem is an error as shown to the visitor.
type Problem struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// sentinelMessages is checked in order, the first match names the message.
var sentinelMessages = []struct {
	err       error
	messageID string
}{
	{ErrAlreadyApplied, "application.duplicate"},
	{ErrBusinessOnly, "audition.businessOnly"},
	{api.ErrDeleteUnsupported, "audition.deleteUnsupported"},
	{api.ErrMissingToken, "auth.invalidLoginResponse"},
	{client.ErrNotImplemented, "error.notImplemented"},
	{client.ErrNetwork, "error.network"},
	{client.ErrUnauthorized, "auth.loginRequired"},
	{client.ErrForbidden, "error.forbidden"},
	{client.ErrNotFound, "error.notFound"},
	{client.ErrConflict, "error.conflict"},
}

// Describe converts err into a localized Problem for the locale carried by ctx.
// Client side field checks are translated; backend messages are shown as sent.
func (a *Agent) Describe(ctx context.Context, err error) Problem {
	if err == nil {
		return Problem{}
	}
	p := Problem{Status: statusOf(err)}

	var fields api.FieldErrors
	if errors.As(err, &fields) {
		p.Message = a.translate(ctx, "error.validation")
		p.Fields = make(map[string]string, len(fields))
		for name, messageID := range fields {
			p.Fields[name] = a.translate(ctx, messageID)
		}
		return p
	}

	for _, m := range sentinelMessages {
		if errors.Is(err, m.err) {
			p.Message = a.translate(ctx, m.messageID)
			return p
		}
	}

	var apiErr *client.Error
	if errors.As(err, &apiErr) {
		p.Fields = apiErr.Fields
		switch {
		case apiErr.Message != "":
			p.Message = apiErr.Message
		case errors.Is(err, client.ErrValidation):
			p.Message = a.translate(ctx, "error.validation")
		case errors.Is(err, client.ErrServer):
			p.Message = a.translate(ctx, "error.server")
		}
		if p.Message != "" {
			return p
		}
	}

	p.Message = a.translate(ctx, "error.generic")
	return p
}

func (a *Agent) translate(ctx context.Context, messageID string) string {
	locale := localization.FromContext(ctx)
	if locale == "" {
		locale = a.locale
	}
	return a.catalog.Translate(ctx, locale, messageID)
}

func statusOf(err error) int {
	var fields api.FieldErrors
	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyApplied):
		return http.StatusConflict
	case errors.Is(err, client.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, client.ErrNotImplemented):
		return http.StatusNotImplemented
	}
	if code := client.StatusCode(err); code != 0 {
		return code
	}
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, client.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
