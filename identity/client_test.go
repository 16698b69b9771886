package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "web-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		switch payload["idToken"] {
		case "good":
			_, _ = w.Write([]byte(`{"kind":"identitytoolkit#GetAccountInfoResponse","users":[{"localId":"uid-42","email":"a@b.c","displayName":"Ada"}]}`))
		case "no-users":
			_, _ = w.Write([]byte(`{"users":[]}`))
		case "empty-id":
			_, _ = w.Write([]byte(`{"users":[{"localId":""}]}`))
		case "empty-body":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"INVALID_ID_TOKEN"}}`))
		}
	}))
	defer server.Close()

	client := New(server.URL, "web-key", 2*time.Second)
	ctx := context.Background()

	t.Run("Verified", func(t *testing.T) {
		user, err := client.Lookup(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "uid-42", user.LocalID)
		assert.Equal(t, "a@b.c", user.Email)
		assert.Equal(t, "Ada", user.DisplayName)
	})

	for _, token := range []string{"no-users", "empty-id", "empty-body", "bad"} {
		t.Run("Rejected_"+token, func(t *testing.T) {
			user, err := client.Lookup(ctx, token)
			assert.ErrorIs(t, err, ErrRejected)
			assert.Nil(t, user)
		})
	}

	t.Run("NoCallWithoutKeyOrToken", func(t *testing.T) {
		before := calls.Load()

		_, err := New(server.URL, "  ", time.Second).Lookup(ctx, "good")
		assert.ErrorIs(t, err, ErrNotConfigured)

		_, err = client.Lookup(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyToken)

		assert.Equal(t, before, calls.Load(), "No request should reach the lookup service")
	})
}

func TestLookup_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"users":[{"localId":"late"}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "web-key", 50*time.Millisecond)
	user, err := client.Lookup(context.Background(), "slow")
	assert.Error(t, err)
	assert.Nil(t, user)
}
