package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_DeliversPerTarget(t *testing.T) {
	var mu sync.Mutex
	var got []envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, 2, nil)
	sent, err := n.Send(context.Background(), []int64{1, 2, 3}, "maintenance tonight")
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 3)
	for _, e := range got {
		assert.Equal(t, "maintenance tonight", e.Payload)
	}
}

func TestSend_PartialDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		if e.UserID == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, 1, nil)
	sent, err := n.Send(context.Background(), []int64{1, 2, 3}, "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestSend_AllFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, 4, nil)
	sent, err := n.Send(context.Background(), []int64{1, 2}, "hello")
	require.Error(t, err)
	assert.Zero(t, sent)
}

func TestSend_NoTargets(t *testing.T) {
	n := NewWebhookNotifier("http://localhost:1", 1, nil)
	sent, err := n.Send(context.Background(), nil, "hello")
	require.NoError(t, err)
	assert.Zero(t, sent)
}
