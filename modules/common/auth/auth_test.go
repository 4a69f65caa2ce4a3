package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-composer-server/modules/common/apperr"
)

type countingVerifier struct {
	calls int
	users map[string]string
}

func (v *countingVerifier) Verify(ctx context.Context, token string) (User, error) {
	v.calls++
	if id, ok := v.users[token]; ok {
		return User{ID: id, Name: "name-" + id}, nil
	}
	return User{}, apperr.ErrUnauthorized
}

func TestResolveBearerCachesToken(t *testing.T) {
	v := &countingVerifier{users: map[string]string{"tok": "user-1"}}
	r := NewResolver(v, false)

	req := httptest.NewRequest("GET", "/api/studio", nil)
	req.Header.Set("Authorization", "Bearer tok")

	for i := 0; i < 3; i++ {
		u, err := r.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, User{ID: "user-1", Name: "name-user-1"}, u)
	}
	assert.Equal(t, 1, v.calls)
}

func TestResolveQueryToken(t *testing.T) {
	v := &countingVerifier{users: map[string]string{"tok": "user-1"}}
	r := NewResolver(v, false)

	u, err := r.Resolve(httptest.NewRequest("GET", "/ws?access_token=tok", nil))
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)
}

func TestResolveRejectsBadToken(t *testing.T) {
	r := NewResolver(&countingVerifier{}, true)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer nope")

	_, err := r.Resolve(req)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestResolveAnonymous(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Session-Id", "abc")

	_, err := NewResolver(&countingVerifier{}, false).Resolve(req)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	u, err := NewResolver(&countingVerifier{}, true).Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, User{ID: "anon:abc", Anonymous: true}, u)

	_, err = NewResolver(&countingVerifier{}, true).Resolve(httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestDisplayName(t *testing.T) {
	id := "0f8e2a4c-1111-2222-3333-444455556666"

	assert.Equal(t, "Aisha", DisplayName(id, "a@x.io", map[string]interface{}{"name": " Aisha "}))
	assert.Equal(t, "Aisha Khan", DisplayName(id, "a@x.io", map[string]interface{}{"full_name": "Aisha Khan"}))
	assert.Equal(t, "aisha_art", DisplayName(id, "a@x.io", map[string]interface{}{"name": "", "user_name": "aisha_art"}))
	assert.Equal(t, "aisha", DisplayName(id, "aisha@x.io", nil))
	assert.Equal(t, "0f8e2a4c", DisplayName(id, "", map[string]interface{}{"name": 42}))
}
