package httptransport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fy0/odatakit"
	"github.com/fy0/odatakit/httptransport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_RoundTrip(t *testing.T) {
	var gotMethod, gotPath, gotVersion string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.RequestURI()
		gotVersion = r.Header.Get("OData-Version")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("OData-EntityId", "https://example/contacts(1)")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"contactid":"1"}`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	reg := prometheus.NewRegistry()
	tr, err := httptransport.New(
		httptransport.WithHTTPClient(srv.Client()),
		httptransport.WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)),
		httptransport.WithMetrics(reg),
	)
	require.NoError(t, err)

	header := make(http.Header)
	header.Set("OData-Version", "4.0")
	resp, err := tr.Send(context.Background(), &odatakit.Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/api/data/v9.2/contacts?$select=contactid",
		Header: header,
		Body:   []byte(`{"lastname":"Doe"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"contactid":"1"}`, string(resp.Body))
	assert.Equal(t, "https://example/contacts(1)", resp.Header.Get("OData-EntityId"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/data/v9.2/contacts?$select=contactid", gotPath)
	assert.Equal(t, "4.0", gotVersion)
	assert.Equal(t, `{"lastname":"Doe"}`, string(gotBody))

	assert.Contains(t, logs.String(), `"message":"odata_request"`)
	assert.Contains(t, logs.String(), `"status":201`)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter(t, reg, "POST", "201")))
}

func counter(t *testing.T, reg *prometheus.Registry, method, status string) prometheus.Collector {
	t.Helper()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odatakit",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total OData HTTP round trips.",
	}, []string{"method", "status"})
	err := reg.Register(vec)
	var already prometheus.AlreadyRegisteredError
	require.True(t, errors.As(err, &already))
	return already.ExistingCollector.(*prometheus.CounterVec).WithLabelValues(method, status)
}

func TestTransport_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := httptransport.New(httptransport.WithMetrics(reg))
	require.NoError(t, err)
	_, err = httptransport.New(httptransport.WithMetrics(reg))
	assert.NoError(t, err)
}

func TestTransport_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"0x80040217"}}`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	tr, err := httptransport.New(httptransport.WithLogger(zerolog.New(&logs)))
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), &odatakit.Request{Method: http.MethodDelete, URL: srv.URL + "/contacts(x)"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, logs.String(), `"level":"warn"`)
}

func TestTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	reg := prometheus.NewRegistry()
	tr, err := httptransport.New(httptransport.WithTimeout(50*time.Millisecond), httptransport.WithMetrics(reg))
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), &odatakit.Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter(t, reg, "GET", "error")))
}

func TestTransport_WithClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"value":[{"name":"Contoso"}]}`))
	}))
	defer srv.Close()

	tr, err := httptransport.New()
	require.NoError(t, err)
	client, err := odatakit.NewClient(srv.URL, tr, odatakit.WithBearerToken("tok"))
	require.NoError(t, err)

	resp, err := client.Query(context.Background(), odatakit.NewQuery("accounts").Select("name"))
	require.NoError(t, err)
	require.Equal(t, 1, resp.Len())
	assert.Equal(t, "Contoso", resp.Value[0]["name"])
}
