package publish

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingblang/atlas-fluvial/pkg/config"
	"github.com/blingblang/atlas-fluvial/pkg/request"
)

func testPublisher(apiBase string, retries int) *Publisher {
	return New(
		request.New(5*time.Second),
		&config.PublishConfig{APIBase: apiBase},
		&config.RequestConfig{
			Retries: retries,
			Backoff: config.BackoffConfig{
				BaseDelay: config.Duration(time.Millisecond),
				MaxDelay:  config.Duration(5 * time.Millisecond),
			},
		},
		config.Credentials{SiteID: "site-1", AccessToken: "tok-secret"},
	)
}

func TestPublisher_Upload(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake document")
	filename := "atlas_51-5074N_0-1278W_20260830_120000.pdf"
	digest := sha1.Sum(pdf)

	var uploaded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-secret", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sites/site-1/deploys":
			var body struct {
				Files map[string]string `json:"files"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, hex.EncodeToString(digest[:]), body.Files["/"+filename])
			fmt.Fprint(w, `{"id": "deploy-1"}`)

		case r.Method == http.MethodPut && r.URL.Path == "/deploys/deploy-1/files/"+filename:
			uploaded, _ = io.ReadAll(r.Body)
			fmt.Fprint(w, `{}`)

		case r.Method == http.MethodGet && r.URL.Path == "/sites/site-1":
			fmt.Fprint(w, `{"name": "atlas-fluvial"}`)

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	artifact, attempts, err := testPublisher(srv.URL, 3).Upload(context.Background(), filename, pdf)
	require.NoError(t, err)

	assert.Equal(t, 1, attempts)
	assert.Equal(t, "https://atlas-fluvial.netlify.app/"+filename, artifact.URL)
	assert.Equal(t, filename, artifact.Filename)
	assert.Equal(t, int64(len(pdf)), artifact.SizeBytes)
	assert.Equal(t, pdf, uploaded)
	assert.False(t, artifact.PublishedAt.IsZero())
}

func TestPublisher_SubdomainFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/deploys"):
			fmt.Fprint(w, `{"id": "deploy-1"}`)
		case r.Method == http.MethodPut:
			fmt.Fprint(w, `{}`)
		default:
			fmt.Fprint(w, `{"subdomain": "fallback-site"}`)
		}
	}))
	defer srv.Close()

	artifact, _, err := testPublisher(srv.URL, 3).Upload(context.Background(), "doc.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "https://fallback-site.netlify.app/doc.pdf", artifact.URL)
}

func TestPublisher_UnauthorizedIsFatal(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, attempts, err := testPublisher(srv.URL, 3).Upload(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, attempts, "credential failures must not be retried")
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestPublisher_TransientRetriesToCeiling(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, attempts, err := testPublisher(srv.URL, 3).Upload(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, attempts)
	assert.EqualValues(t, 3, atomic.LoadInt64(&calls), "one deploy call per attempt")
}

func TestPublisher_BadDeployResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": ""}`)
	}))
	defer srv.Close()

	_, _, err := testPublisher(srv.URL, 3).Upload(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
