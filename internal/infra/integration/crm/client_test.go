package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/lead-relay/internal/entity"
)

func lead() entity.Lead {
	return entity.Lead{ID: "lead-1", FullName: "Maria Clara", Phone: "+63 917 555 0101", Email: "maria@example.com", PreferredClass: "Muay Thai"}
}

func TestClientPostsPayload(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	res := NewClient(srv.URL, time.Second).Send(context.Background(), lead())

	assert.True(t, res.Success)
	assert.Equal(t, WebhookPayload{Name: "Maria Clara", Phone: "+63 917 555 0101", Email: "maria@example.com", PreferredClass: "Muay Thai"}, got)
}

func TestClientNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	res := NewClient(srv.URL, time.Second).Send(context.Background(), lead())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "status 502")
	assert.Contains(t, res.Error, "upstream down")
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	res := NewClient(srv.URL, 30*time.Millisecond).Send(context.Background(), lead())
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestClientUnreachable(t *testing.T) {
	res := NewClient("http://127.0.0.1:1", time.Second).Send(context.Background(), lead())
	assert.False(t, res.Success)

	res = NewClient("", time.Second).Send(context.Background(), lead())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "CRM_URL")
}
