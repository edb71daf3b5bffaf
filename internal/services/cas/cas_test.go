// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package cas_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/services/cas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successResponse = `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationSuccess>
    <cas:user>NOV0025</cas:user>
    <cas:attributes>
      <cas:cn>Jan Novák</cas:cn>
      <cas:mail>jan.novak@univ.example</cas:mail>
      <cas:givenName>Jan</cas:givenName>
      <cas:sn>Novák</cas:sn>
      <cas:groups>students, FEI-B0101</cas:groups>
      <cas:eduPersonAffiliation>student, member</cas:eduPersonAffiliation>
    </cas:attributes>
  </cas:authenticationSuccess>
</cas:serviceResponse>`

func newValidator(t *testing.T, handler http.HandlerFunc) *cas.Validator {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return cas.New(&config.ProviderConfig{
		LoginURL:    srv.URL + "/login",
		ValidateURL: srv.URL + "/p3/serviceValidate",
		Timeout:     5,
	})
}

func respondWith(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(body))
	}
}

func TestValidate(t *testing.T) {
	var gotTicket, gotService string
	validator := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		gotTicket = r.URL.Query().Get("ticket")
		gotService = r.URL.Query().Get("service")
		_, _ = w.Write([]byte(successResponse))
	})

	identity, err := validator.Validate(context.Background(), "ST-12345", "https://gate.example.com/auth/callback?state=abc")

	require.NoError(t, err)
	assert.Equal(t, "ST-12345", gotTicket)
	assert.Equal(t, "https://gate.example.com/auth/callback?state=abc", gotService)
	assert.Equal(t, "nov0025", identity.Login)
	assert.Equal(t, "Jan Novák", identity.DisplayName)
	assert.Equal(t, "jan.novak@univ.example", identity.Email)
	assert.Equal(t, "Jan", identity.GivenName)
	assert.Equal(t, "Novák", identity.Surname)
	assert.Equal(t, []string{"students", "FEI-B0101"}, identity.Groups)
	assert.Equal(t, []string{"student", "member"}, identity.Affiliations)
}

func TestValidate_DisplayNameFallback(t *testing.T) {
	validator := newValidator(t, respondWith(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
	  <cas:authenticationSuccess>
	    <cas:user>nov0025</cas:user>
	    <cas:attributes>
	      <cas:givenName>Jan</cas:givenName>
	      <cas:sn>Novák</cas:sn>
	    </cas:attributes>
	  </cas:authenticationSuccess>
	</cas:serviceResponse>`))

	identity, err := validator.Validate(context.Background(), "ST-1", "https://gate.example.com/auth/callback")

	require.NoError(t, err)
	assert.Equal(t, "Jan Novák", identity.DisplayName)
	assert.Nil(t, identity.Groups)
	assert.Nil(t, identity.Affiliations)
}

func TestValidate_Rejected(t *testing.T) {
	validator := newValidator(t, respondWith(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
	  <cas:authenticationFailure code="INVALID_TICKET">
	    Ticket ST-12345 not recognized
	  </cas:authenticationFailure>
	</cas:serviceResponse>`))

	_, err := validator.Validate(context.Background(), "ST-12345", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureRejected, vErr.Kind)
	assert.Equal(t, "INVALID_TICKET", vErr.Code)
	assert.Equal(t, "Ticket ST-12345 not recognized", vErr.Message)
}

func TestValidate_RejectedWithoutCode(t *testing.T) {
	validator := newValidator(t, respondWith(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
	  <cas:authenticationFailure></cas:authenticationFailure>
	</cas:serviceResponse>`))

	_, err := validator.Validate(context.Background(), "ST-1", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureRejected, vErr.Kind)
	assert.Equal(t, "UNKNOWN", vErr.Code)
}

func TestValidate_RejectedDespiteErrorStatus(t *testing.T) {
	validator := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
		  <cas:authenticationFailure code="INTERNAL_ERROR">backend unavailable</cas:authenticationFailure>
		</cas:serviceResponse>`))
	})

	_, err := validator.Validate(context.Background(), "ST-1", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureRejected, vErr.Kind)
	assert.Equal(t, "INTERNAL_ERROR", vErr.Code)
}

func TestValidate_MissingUser(t *testing.T) {
	validator := newValidator(t, respondWith(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
	  <cas:authenticationSuccess>
	    <cas:user>  </cas:user>
	  </cas:authenticationSuccess>
	</cas:serviceResponse>`))

	_, err := validator.Validate(context.Background(), "ST-1", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureMalformed, vErr.Kind)
}

func TestValidate_NotXML(t *testing.T) {
	validator := newValidator(t, respondWith(`<html>maintenance page</html>`))

	_, err := validator.Validate(context.Background(), "ST-1", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureMalformed, vErr.Kind)
}

func TestValidate_NeitherOutcome(t *testing.T) {
	validator := newValidator(t, respondWith(`<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas"></cas:serviceResponse>`))

	_, err := validator.Validate(context.Background(), "ST-1", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureMalformed, vErr.Kind)
}

func TestValidate_Timeout(t *testing.T) {
	validator := newValidator(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := validator.Validate(ctx, "ST-1", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureTimeout, vErr.Kind)
}

func TestValidate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	validateURL := srv.URL + "/p3/serviceValidate"
	srv.Close()

	validator := cas.New(&config.ProviderConfig{
		LoginURL:    "https://sso.example.edu/cas/login",
		ValidateURL: validateURL,
		Timeout:     1,
	})

	_, err := validator.Validate(context.Background(), "ST-1", "https://gate.example.com/auth/callback")

	var vErr *cas.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, cas.FailureUnreachable, vErr.Kind)
}
