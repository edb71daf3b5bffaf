// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/mkadlec/gatekeeper/internal/i18n"
	"codeberg.org/mkadlec/gatekeeper/internal/services/cas"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
)

// Callback handles the provider redirect carrying the service ticket
// and the state token. The outcome pages are bilingual and never echo
// provider error codes or token material.
func (h *Handlers) Callback(c echo.Context) error {
	ticket := c.QueryParam("ticket")
	if ticket == "" {
		return h.renderFailure(c, http.StatusBadRequest, "error_missing_ticket")
	}
	state := c.QueryParam("state")
	if state == "" {
		return h.renderFailure(c, http.StatusBadRequest, "error_invalid_state")
	}

	outcome, err := h.verifier.HandleCallback(c.Request().Context(), ticket, state)
	if err != nil {
		statusCode, messageID := classifyCallbackError(err)
		return h.renderFailure(c, statusCode, messageID)
	}

	data := map[string]any{"DisplayName": outcome.Profile.DisplayName}
	return renderPage(c, http.StatusOK, page{
		Lang:  i18n.GetLocale(c.Request().Context()),
		Title: bilingualTitle("callback_success_title"),
		Messages: []string{
			i18n.TLang(language.Czech, "callback_success_body", data),
			i18n.TLang(language.English, "callback_success_body", data),
		},
	})
}

func (h *Handlers) renderFailure(c echo.Context, statusCode int, messageID string) error {
	return renderPage(c, statusCode, page{
		Lang:  i18n.GetLocale(c.Request().Context()),
		Title: bilingualTitle("callback_error_title"),
		Messages: []string{
			i18n.TLang(language.Czech, messageID, nil),
			i18n.TLang(language.English, messageID, nil),
		},
	})
}

func bilingualTitle(messageID string) string {
	return i18n.TLang(language.Czech, messageID, nil) + " / " + i18n.TLang(language.English, messageID, nil)
}

// classifyCallbackError maps a verification failure to a status code
// and a redacted message. Provider-side failures stay client errors;
// only our own persistence problems surface as 500.
func classifyCallbackError(err error) (int, string) {
	var validationErr *cas.ValidationError
	switch {
	case errors.Is(err, token.ErrInvalidOrExpired):
		return http.StatusBadRequest, "error_invalid_state"
	case errors.As(err, &validationErr):
		if validationErr.Kind == cas.FailureRejected {
			return http.StatusBadRequest, "error_provider_rejected"
		}
		return http.StatusBadRequest, "error_provider_unavailable"
	default:
		return http.StatusInternalServerError, "error_server_issue"
	}
}
