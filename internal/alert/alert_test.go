// Copyright (c) 2026 City Access Media

package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitPostsWebhookPayload(t *testing.T) {
	var mu sync.Mutex
	var got webhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL)
	s.Emit(context.Background(), LevelWarning, "mount unreadable", map[string]string{"mount": "/vod/city-1"})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "mount unreadable", got.Text)
	require.Len(t, got.Fields, 1)
	require.Equal(t, "mount", got.Fields[0].K)
	require.Equal(t, "/vod/city-1", got.Fields[0].V)
}

func TestEmitWithoutWebhookDoesNotPanic(t *testing.T) {
	s := New("")
	require.NotPanics(t, func() {
		s.Emit(context.Background(), LevelError, "pipeline stalled", map[string]string{"video_id": "abc"})
	})
}

func TestEmitToleratesWebhookFailure(t *testing.T) {
	s := New("http://127.0.0.1:0")
	require.NotPanics(t, func() {
		s.Emit(context.Background(), LevelInfo, "discovery complete", nil)
	})
}

func TestEmitToleratesNonOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL)
	require.NotPanics(t, func() {
		s.Emit(context.Background(), LevelError, "upload rejected", nil)
	})
}
