// Copyright (c) 2026 City Access Media

package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	netutil "github.com/cityaccess/vod-orchestrator/internal/platform/net"
)

func newTestServer(t *testing.T, body []byte, contentType string, failHeadsFirst int) *httptest.Server {
	t.Helper()
	heads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/video.mp4", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads++
			if heads <= failHeadsFirst {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Content-Length", "")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	})
	return httptest.NewServer(mux)
}

func TestDownloadSucceeds(t *testing.T) {
	body := make([]byte, 1024)
	srv := newTestServer(t, body, "video/mp4", 0)
	defer srv.Close()

	dl := New(Options{})
	dest := filepath.Join(t.TempDir(), "out.mp4")

	err := dl.Download(context.Background(), srv.URL+"/video.mp4", dest, 5*time.Second)
	require.NoError(t, err)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), info.Size())
}

func TestDownloadRejectsDisallowedContentType(t *testing.T) {
	srv := newTestServer(t, []byte("x"), "text/html", 0)
	defer srv.Close()

	dl := New(Options{})
	dest := filepath.Join(t.TempDir(), "out.mp4")

	err := dl.Download(context.Background(), srv.URL+"/video.mp4", dest, 5*time.Second)
	require.Error(t, err)
	var de *DownloadError
	require.ErrorAs(t, err, &de)
	require.Equal(t, ErrType, de.Kind)
}

func TestDownloadFailsWhenDestinationDirUnwritable(t *testing.T) {
	dl := New(Options{})
	dest := filepath.Join(string([]byte{0}), "out.mp4")

	err := dl.Download(context.Background(), "http://example.invalid/video.mp4", dest, time.Second)
	require.Error(t, err)
}

func TestSanitizeLogStripsQuery(t *testing.T) {
	require.Equal(t, "https://host/video.mp4", netutil.SanitizeURL("https://host/video.mp4?token=secret"))
	require.Equal(t, "https://host/video.mp4", netutil.SanitizeURL("https://host/video.mp4"))
}

func TestDownloadRejectsDisallowedHostUnderOutboundPolicy(t *testing.T) {
	srv := newTestServer(t, []byte("x"), "video/mp4", 0)
	defer srv.Close()

	dl := New(Options{OutboundPolicy: netutil.OutboundPolicy{
		Enabled: true,
		Allow: netutil.OutboundAllowlist{
			Hosts:   []string{"vod.example.com"},
			Ports:   []int{80, 443},
			Schemes: []string{"http", "https"},
		},
	}})
	dest := filepath.Join(t.TempDir(), "out.mp4")

	err := dl.Download(context.Background(), srv.URL+"/video.mp4", dest, 5*time.Second)
	require.Error(t, err)
	var de *DownloadError
	require.ErrorAs(t, err, &de)
	require.Equal(t, ErrRejected, de.Kind)
}

func TestContentAcceptable(t *testing.T) {
	dl := New(Options{})
	require.True(t, dl.contentAcceptable("https://host/a.mp4", "video/mp4"))
	require.True(t, dl.contentAcceptable("https://host/a.scc", "text/plain"))
	require.False(t, dl.contentAcceptable("https://host/a.exe", "application/x-msdownload"))
}
