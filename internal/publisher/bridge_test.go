package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgePublish(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotKey = r.Header.Get("Idempotency-Key")

		var req bridgeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello world.", req.Text)

		json.NewEncoder(w).Encode(bridgeResponse{PostID: "post_1"})
	}))
	defer srv.Close()

	b := NewBridge(srv.URL, 5*time.Second)
	id, err := b.Publish(context.Background(), "hello world.", "sch_1:abc")
	require.NoError(t, err)
	assert.Equal(t, "post_1", id)
	assert.Equal(t, "sch_1:abc", gotKey)
}

func TestBridgeOmitsEmptyIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["Idempotency-Key"]
		assert.False(t, present)
		json.NewEncoder(w).Encode(bridgeResponse{PostID: "post_1"})
	}))
	defer srv.Close()

	b := NewBridge(srv.URL, 5*time.Second)
	_, err := b.Publish(context.Background(), "hello world.", "")
	require.NoError(t, err)
}

func TestBridgeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewBridge(srv.URL, 5*time.Second)
	_, err := b.Publish(context.Background(), "hello world.", "sch_1:abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestBridgeMissingPostID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bridgeResponse{})
	}))
	defer srv.Close()

	b := NewBridge(srv.URL, 5*time.Second)
	_, err := b.Publish(context.Background(), "hello world.", "sch_1:abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing post id")
}

func TestBridgeRejectionMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bridgeResponse{Message: "duplicate status"})
	}))
	defer srv.Close()

	b := NewBridge(srv.URL, 5*time.Second)
	_, err := b.Publish(context.Background(), "hello world.", "sch_1:abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate status")
}
