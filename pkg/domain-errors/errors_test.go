package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("finds code on wrapped chain", func(t *testing.T) {
		inner := New(CodeNotFound, "identity not found")
		outer := Wrap(inner, CodeInternal, "lookup failed")

		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeNotFound))
		assert.False(t, HasCode(outer, CodeConflict))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("register: %w", Conflict("email", "email already registered"))
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestIsMatchesOutermostOnly(t *testing.T) {
	inner := New(CodeNotFound, "missing")
	outer := Wrap(inner, CodeInternal, "failed")

	assert.True(t, Is(outer, CodeInternal))
	assert.False(t, Is(outer, CodeNotFound))
}

func TestDetailsAreCarried(t *testing.T) {
	t.Run("conflict keeps field", func(t *testing.T) {
		de, ok := As(Conflict("matric_number", "matric number already registered"))
		require.True(t, ok)
		assert.Equal(t, "matric_number", de.Field)
	})

	t.Run("domain rejection copies allow-list", func(t *testing.T) {
		allowed := []string{"futo.edu.ng"}
		de, ok := As(DomainRejected("email domain not allowed", allowed))
		require.True(t, ok)
		allowed[0] = "mutated"
		assert.Equal(t, []string{"futo.edu.ng"}, de.AllowedDomains)
	})

	t.Run("validation keeps field pairs", func(t *testing.T) {
		de, ok := As(Validation("validation failed", []FieldError{{Field: "grad_year", Message: "required"}}))
		require.True(t, ok)
		assert.Len(t, de.Fields, 1)
	})
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:       http.StatusNotFound,
		CodeConflict:       http.StatusConflict,
		CodeValidation:     http.StatusBadRequest,
		CodeDomainRejected: http.StatusBadRequest,
		CodeBadRequest:     http.StatusBadRequest,
		CodeTimeout:        http.StatusGatewayTimeout,
		CodeInternal:       http.StatusInternalServerError,
		Code("unknown"):    http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), string(code))
	}
}
