package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"auth", Auth("Invalid token"), http.StatusUnauthorized},
		{"forbidden", Forbidden("Tenant not approved"), http.StatusForbidden},
		{"not found", NotFound("Tenant not found"), http.StatusNotFound},
		{"conflict", Conflict("Invoice already sent"), http.StatusConflict},
		{"validation", Validation("Maximum 2 users per tenant allowed"), http.StatusBadRequest},
		{"external", External("Accounting export failed", `{"message":"bad"}`, nil), http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("generate invoice: %w", NotFound("Tenant not found"))

	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Tenant not found", Message(err))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestIsConflictCoversValidation(t *testing.T) {
	assert.True(t, IsConflict(Conflict("x")))
	assert.True(t, IsConflict(Validation("x")))
	assert.False(t, IsConflict(NotFound("x")))
}

func TestExternalKeepsUpstreamBody(t *testing.T) {
	cause := errors.New("status 422")
	err := External("Accounting export failed", `{"error":"invalid contact"}`, cause)

	assert.True(t, IsExternal(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `{"error":"invalid contact"}`, DetailsOf(err))
	assert.Equal(t, "Internal server error", Message(errors.New("db down")))
}
