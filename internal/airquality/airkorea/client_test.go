package airkorea_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/airdata-extract/internal/airquality"
	"github.com/breatheroute/airdata-extract/internal/airquality/airkorea"
)

const sampleBody = `{"response":{"body":{"totalCount":1,"items":[{"so2Value":"0.01","coValue":"0.4","pm10Value":"30","no2Value":"0.03","o3Value":"0.02","dataTime":"2023-09-09 10:00"}],"pageNo":1,"numOfRows":100},"header":{"resultMsg":"NORMAL_CODE","resultCode":"00"}}}`

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getMsrstnAcctoRltmMesureDnsty", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "secret-key", q.Get("serviceKey"))
		assert.Equal(t, "json", q.Get("returnType"))
		assert.Equal(t, "마포구", q.Get("stationName"))
		assert.Equal(t, "1", q.Get("pageNo"))
		assert.Equal(t, "100", q.Get("numOfRows"))
		assert.Equal(t, "MONTH", q.Get("dataTerm"))
		assert.Equal(t, "1.0", q.Get("ver"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer server.Close()

	client := airkorea.NewClient(airkorea.ClientConfig{
		BaseURL:    server.URL + "/",
		ServiceKey: "secret-key",
		HTTPClient: http.DefaultClient,
	})

	resp, err := client.Fetch(context.Background(), airquality.DefaultQuery())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sampleBody, string(resp.Body))
	assert.NotContains(t, resp.URL, "secret-key")
	assert.Contains(t, resp.URL, "serviceKey=REDACTED")

	records, err := airquality.Parse(resp.Body)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestClient_Fetch_NonOKIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("SERVICE_TIMEOUT_ERROR"))
	}))
	defer server.Close()

	client := airkorea.NewClient(airkorea.ClientConfig{BaseURL: server.URL})

	resp, err := client.Fetch(context.Background(), airquality.DefaultQuery())
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SERVICE_TIMEOUT_ERROR", string(resp.Body))
}

func TestClient_Fetch_SingleAttempt(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := airkorea.NewClient(airkorea.ClientConfig{BaseURL: server.URL})

	_, err := client.Fetch(context.Background(), airquality.DefaultQuery())
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "the client must not retry")
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestClient_Fetch_TransportError(t *testing.T) {
	client := airkorea.NewClient(airkorea.ClientConfig{HTTPClient: failingDoer{}})

	resp, err := client.Fetch(context.Background(), airquality.DefaultQuery())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, airkorea.ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
}

type errDoer struct{ err error }

func (d errDoer) Do(*http.Request) (*http.Response, error) {
	return nil, d.err
}

func TestClient_Fetch_TransportErrorKeepsCause(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		t.Run(cause.Error(), func(t *testing.T) {
			client := airkorea.NewClient(airkorea.ClientConfig{HTTPClient: errDoer{err: cause}})

			_, err := client.Fetch(context.Background(), airquality.DefaultQuery())
			assert.ErrorIs(t, err, airkorea.ErrTransport)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestClient_Fetch_ServerClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := server.URL
	server.Close()

	client := airkorea.NewClient(airkorea.ClientConfig{BaseURL: url})

	_, err := client.Fetch(context.Background(), airquality.DefaultQuery())
	assert.ErrorIs(t, err, airkorea.ErrTransport)

	var urlErr *neturl.Error
	assert.ErrorAs(t, err, &urlErr)
}
