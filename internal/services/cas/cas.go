// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package cas validates single-sign-on tickets against a CAS v3
// identity provider and extracts the directory attributes the rest of
// the application works with.
package cas

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
)

// maxResponseBytes caps how much of the provider response is read.
const maxResponseBytes = 1 << 20

// FailureKind classifies why ticket validation did not produce an identity.
type FailureKind int

const (
	// FailureUnreachable covers network errors talking to the provider.
	FailureUnreachable FailureKind = iota
	// FailureTimeout covers validation calls that exceeded the deadline.
	FailureTimeout
	// FailureRejected covers tickets the provider explicitly refused.
	FailureRejected
	// FailureMalformed covers responses that could not be interpreted.
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnreachable:
		return "unreachable"
	case FailureTimeout:
		return "timeout"
	case FailureRejected:
		return "rejected"
	case FailureMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ValidationError reports a failed ticket validation. Code and Message
// carry the provider's own failure details when it rejected the ticket.
type ValidationError struct {
	err     error
	Code    string
	Message string
	Kind    FailureKind
}

func (e *ValidationError) Error() string {
	msg := "ticket validation failed"
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += " (" + e.Message + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

// Identity holds the attributes the provider asserted for a verified user.
type Identity struct {
	Login        string
	DisplayName  string
	Email        string
	GivenName    string
	Surname      string
	Groups       []string
	Affiliations []string
}

// Validator checks service tickets against the provider's CAS v3
// serviceValidate endpoint.
type Validator struct {
	client      *http.Client
	validateURL string
}

// New creates a validator for the configured identity provider.
func New(cfg *config.ProviderConfig) *Validator {
	return &Validator{
		client:      &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		validateURL: cfg.ValidateURL,
	}
}

// Validate redeems a service ticket with the provider. The service URL
// must match the one the user was sent to the login page with, state
// parameter included, or the provider rejects the ticket.
func (v *Validator) Validate(ctx context.Context, ticket, service string) (*Identity, error) {
	query := url.Values{"ticket": {ticket}, "service": {service}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.validateURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		kind := FailureUnreachable
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			kind = FailureTimeout
		}
		slog.Warn("ticket_validation_unreachable", "kind", kind.String(), "error", err)
		return nil, &ValidationError{Kind: kind, Message: "identity provider did not respond", err: err}
	}
	defer resp.Body.Close()

	// Failure details arrive as a CAS failure document with a non-200
	// status on some deployments, so the body is parsed regardless.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ValidationError{Kind: FailureUnreachable, Message: "failed to read provider response", err: err}
	}

	return parseResponse(body)
}

func parseResponse(body []byte) (*Identity, error) {
	var parsed serviceResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &ValidationError{Kind: FailureMalformed, Message: "provider response is not valid XML", err: err}
	}

	switch {
	case parsed.Failure != nil:
		code := strings.TrimSpace(parsed.Failure.Code)
		if code == "" {
			code = "UNKNOWN"
		}
		slog.Info("ticket_rejected", "code", code)
		return nil, &ValidationError{
			Kind:    FailureRejected,
			Code:    code,
			Message: strings.TrimSpace(parsed.Failure.Message),
		}
	case parsed.Success != nil:
		login := strings.ToLower(strings.TrimSpace(parsed.Success.User))
		if login == "" {
			return nil, &ValidationError{Kind: FailureMalformed, Message: "authentication success carries no user"}
		}
		attrs := parsed.Success.Attributes
		identity := &Identity{
			Login:        login,
			DisplayName:  displayName(attrs),
			Email:        strings.TrimSpace(attrs.Mail),
			GivenName:    strings.TrimSpace(attrs.GivenName),
			Surname:      strings.TrimSpace(attrs.Surname),
			Groups:       splitList(attrs.Groups),
			Affiliations: splitList(attrs.EduPersonAffiliation),
		}
		return identity, nil
	default:
		return nil, &ValidationError{Kind: FailureMalformed, Message: "provider response carries neither success nor failure"}
	}
}

// displayName prefers the directory common name and falls back to the
// given name and surname pair.
func displayName(attrs attributesElement) string {
	if cn := strings.TrimSpace(attrs.CN); cn != "" {
		return cn
	}
	return strings.TrimSpace(strings.TrimSpace(attrs.GivenName) + " " + strings.TrimSpace(attrs.Surname))
}

// splitList breaks a comma-separated attribute value into its entries.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type serviceResponse struct {
	XMLName xml.Name        `xml:"http://www.yale.edu/tp/cas serviceResponse"`
	Success *successElement `xml:"authenticationSuccess"`
	Failure *failureElement `xml:"authenticationFailure"`
}

type successElement struct {
	User       string            `xml:"user"`
	Attributes attributesElement `xml:"attributes"`
}

type attributesElement struct {
	CN                   string `xml:"cn"`
	Mail                 string `xml:"mail"`
	GivenName            string `xml:"givenName"`
	Surname              string `xml:"sn"`
	Groups               string `xml:"groups"`
	EduPersonAffiliation string `xml:"eduPersonAffiliation"`
}

type failureElement struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}
