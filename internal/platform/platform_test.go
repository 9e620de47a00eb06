package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bredsky212/Logiq212/internal/servicetoken"
)

func TestWebhookApplyAndLift(t *testing.T) {
	signer, err := servicetoken.NewSigner(strings.Repeat("k", 32))
	require.NoError(t, err)

	var got []Command
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := signer.Parse(tok)
		if err != nil || !claims.Has(servicetoken.ScopeWrite) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var cmd Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got = append(got, cmd)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, signer, srv.Client())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, wh.Apply(ctx, "c1", "u1", 15*time.Minute))
	require.NoError(t, wh.Lift(ctx, "c1", "u1"))

	require.Len(t, got, 2)
	assert.Equal(t, Command{Action: ActionApply, CommunityID: "c1", UserID: "u1", DurationMS: 900000}, got[0])
	assert.Equal(t, Command{Action: ActionLift, CommunityID: "c1", UserID: "u1"}, got[1])
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, nil, nil)
	require.NoError(t, err)
	err = wh.Apply(context.Background(), "c1", "u1", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewWebhookRequiresURL(t *testing.T) {
	_, err := NewWebhook("  ", nil, nil)
	assert.Error(t, err)
}

func TestLogOnly(t *testing.T) {
	var r LogOnly
	assert.NoError(t, r.Apply(context.Background(), "c1", "u1", time.Minute))
	assert.NoError(t, r.Lift(context.Background(), "c1", "u1"))
}
