package blacklist

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(0))
}

func TestLookup_Success(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bulklookup", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "v1", r.URL.Query().Get("ver"))
		assert.Equal(t, "json", r.URL.Query().Get("resp"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Phones []string `json:"phones"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"5551111", "5552222"}, body.Phones)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","supression":["5552222"],"wireless":[]}`))
	})

	got, err := c.Lookup(context.Background(), []string{"5551111", "5552222"})
	require.NoError(t, err)
	assert.Equal(t, []string{"5552222"}, got)
}

func TestLookup_MissingFieldIsEmpty(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	got, err := c.Lookup(context.Background(), []string{"5551111"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookup_NumericEntries(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"supression":[5551111,"5552222"]}`))
	})

	got, err := c.Lookup(context.Background(), []string{"5551111", "5552222"})
	require.NoError(t, err)
	assert.Equal(t, []string{"5551111", "5552222"}, got)
}

func TestLookup_NonOKStatus(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte("payload too large"))
	})

	_, err := c.Lookup(context.Background(), []string{"5551111"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusRequestEntityTooLarge, se.StatusCode)
	assert.Equal(t, "payload too large", se.Body)
	assert.Contains(t, err.Error(), "413")
}

func TestLookup_MalformedJSON(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := c.Lookup(context.Background(), []string{"5551111"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse lookup response")
}

func TestLookup_Timeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithTimeouts(50*time.Millisecond, 0))

	_, err := c.Lookup(context.Background(), []string{"5551111"})
	assert.Error(t, err)
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestBulkUpload_Success(t *testing.T) {
	t.Parallel()
	archive := zipBytes(t, map[string]string{
		"all_clean.csv":   "555-1111,0,L1\n",
		"federal_dnc.csv": "555-2222,1,L1\n",
		"summary.txt":     "ignored",
	})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bulk/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "csv", r.FormValue("filetype"))
		assert.Equal(t, ",", r.FormValue("splitchar"))
		assert.Equal(t, "test-key", r.FormValue("key"))
		assert.Equal(t, "1", r.FormValue("colnum"))
		assert.Equal(t, "true", r.FormValue("download_invalid"))
		assert.Equal(t, "true", r.FormValue("download_federal_dnc"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close() //nolint:errcheck
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "phone,phone_order,lead\n555-1111,0,L1\n", string(data))

		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	})

	got, err := c.BulkUpload(context.Background(), []byte("phone,phone_order,lead\n555-1111,0,L1\n"))
	require.NoError(t, err)
	assert.Equal(t, []CategoryCSV{
		{Category: "clean", Entry: "all_clean.csv", Data: []byte("555-1111,0,L1\n")},
		{Category: "federal_dnc", Entry: "federal_dnc.csv", Data: []byte("555-2222,1,L1\n")},
	}, got)
}

func TestBulkUpload_RepeatedCategoryEntries(t *testing.T) {
	t.Parallel()
	archive := zipBytes(t, map[string]string{
		"a/all_clean.csv": "phone,phone_order,lead\n555-1111,0,L1",
		"b/all_clean.csv": "phone,phone_order,lead\n555-2222,1,L1\n",
	})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	})

	got, err := c.BulkUpload(context.Background(), []byte("phone,phone_order,lead\n"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "clean", got[0].Category)
	assert.Equal(t, "clean", got[1].Category)
	assert.Equal(t, "phone,phone_order,lead\n555-1111,0,L1", string(got[0].Data))
	assert.Equal(t, "phone,phone_order,lead\n555-2222,1,L1\n", string(got[1].Data))
}

func TestBulkUpload_CustomCategories(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "true", r.FormValue("download_wireless"))
		assert.Empty(t, r.FormValue("download_invalid"))
		_, _ = w.Write(zipBytes(t, map[string]string{"wireless.csv": ""}))
	}))
	t.Cleanup(srv.Close)
	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(0), WithCategories("wireless"))

	got, err := c.BulkUpload(context.Background(), []byte("phone,phone_order\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wireless", got[0].Category)
}

func TestBulkUpload_NonOKStatus(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.BulkUpload(context.Background(), []byte("phone,phone_order\n"))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestBulkUpload_NotAZip(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>error</html>"))
	})

	_, err := c.BulkUpload(context.Background(), []byte("phone,phone_order\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unpack bulk response")
}

func TestRateLimit_Waits(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Lookup(ctx, []string{"1"})
	require.NoError(t, err)
	_, err = c.Lookup(ctx, []string{"2"})
	assert.Error(t, err)
}
