package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sawdisk/internal/storage/gcs"
)

func testClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPutObjectUploadsReport(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/evidence/o")
		assert.Equal(t, "reports/scan-1/report.json", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), `{"scan_id":"scan-1"}`)
		assert.Contains(t, string(body), "application/json")
		fmt.Fprintln(w, `{"name":"reports/scan-1/report.json","bucket":"evidence"}`)
	})

	store, err := gcs.New(testClient(t, handler), gcs.Config{Bucket: "evidence"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "/reports/scan-1/report.json", "application/json",
		strings.NewReader(`{"scan_id":"scan-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "gs://evidence/reports/scan-1/report.json", uri)
	assert.NoError(t, store.Close())
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store, err := gcs.New(testClient(t, handler), gcs.Config{Bucket: "evidence"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "r.json", "", strings.NewReader("{}"))
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.Error(t, err)

	client := testClient(t, http.NotFoundHandler())
	_, err = gcs.New(client, gcs.Config{})
	require.Error(t, err)

	store, err := gcs.New(client, gcs.Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "  ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)
	_, err := gcs.Open(context.Background(), gcs.Config{Bucket: "absent"}, nil,
		option.WithEndpoint(missing.URL), option.WithoutAuthentication())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent")

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/b/evidence")
		fmt.Fprintln(w, `{"name":"evidence"}`)
	}))
	t.Cleanup(ok.Close)
	store, err := gcs.Open(context.Background(), gcs.Config{Bucket: "evidence"}, nil,
		option.WithEndpoint(ok.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = gcs.Open(context.Background(), gcs.Config{}, nil)
	require.Error(t, err)
}
