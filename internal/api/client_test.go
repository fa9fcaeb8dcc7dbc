package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClock struct {
	mu       sync.Mutex
	observed []int64
}

func (r *recordingClock) Observe(_ context.Context, serverSeconds int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed = append(r.observed, serverSeconds)
}

func (r *recordingClock) last() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.observed) == 0 {
		return 0, false
	}
	return r.observed[len(r.observed)-1], true
}

type recordingSink struct {
	dataToken string
	fileToken string
	calls     int
}

func (r *recordingSink) SaveTokens(_ context.Context, dataToken, fileToken string) error {
	r.dataToken = dataToken
	r.fileToken = fileToken
	r.calls++
	return nil
}

func newTestClient(t *testing.T, backendURL string, clock ClockObserver, tokens TokenSink) *Client {
	t.Helper()
	c, err := New(Config{
		BackendURL:     backendURL,
		UserKey:        "user-1",
		EnvironmentKey: "env-1",
		DataToken:      "token-0",
		FileToken:      "file-0",
		RequestIDs:     NewFixedGenerator("req-1", "req-2", "req-3"),
	}, clock, tokens, slog.Default())
	require.NoError(t, err)
	return c
}

func TestSignature(t *testing.T) {
	// md5("user-1" + "env-1" + "token-0")
	assert.Equal(t, "abff0d1b4e69595f6edcc19e4b222f21", Signature("user-1", "env-1", "token-0"))
}

func TestData_SendsAuthParams(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "/data", r.URL.Path)
		assert.Equal(t, "req-1", r.Header.Get("X-Request-Id"))
		w.Header().Set(HeaderServerTime, "1000000")
		json.NewEncoder(w).Encode(DataPayload{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &recordingClock{}, nil)
	_, err := c.Data(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"user-1"}, gotQuery[ParamUser])
	assert.Equal(t, []string{"env-1"}, gotQuery[ParamEnvironment])
	assert.Equal(t, []string{Signature("user-1", "env-1", "token-0")}, gotQuery[ParamSignature])
}

func TestNew_PreservesBackendURLQuery(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "/data", r.URL.Path)
		json.NewEncoder(w).Encode(DataPayload{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"?client_id=ilias&ref_id=42", &recordingClock{}, nil)
	_, err := c.Data(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ilias"}, gotQuery["client_id"])
	assert.Equal(t, []string{"42"}, gotQuery["ref_id"])
	assert.Equal(t, []string{"user-1"}, gotQuery[ParamUser])
}

func TestDo_FeedsServerTimeToClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderServerTime, "1234567")
		json.NewEncoder(w).Encode(DataPayload{})
	}))
	defer srv.Close()

	clock := &recordingClock{}
	c := newTestClient(t, srv.URL, clock, nil)
	_, err := c.Data(context.Background())
	require.NoError(t, err)

	last, ok := clock.last()
	require.True(t, ok)
	assert.Equal(t, int64(1234567), last)
}

func TestDo_RotatesTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderDataToken, "token-1")
		w.Header().Set(HeaderFileToken, "file-1")
		json.NewEncoder(w).Encode(DataPayload{})
	}))
	defer srv.Close()

	sink := &recordingSink{}
	c := newTestClient(t, srv.URL, &recordingClock{}, sink)
	_, err := c.Data(context.Background())
	require.NoError(t, err)

	dataToken, fileToken := c.Tokens()
	assert.Equal(t, "token-1", dataToken)
	assert.Equal(t, "file-1", fileToken)
	assert.Equal(t, "token-1", sink.dataToken)
	assert.Equal(t, "file-1", sink.fileToken)
}

func TestDo_MissingTokenHeadersKeepTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(DataPayload{})
	}))
	defer srv.Close()

	sink := &recordingSink{}
	c := newTestClient(t, srv.URL, &recordingClock{}, sink)
	_, err := c.Data(context.Background())
	require.NoError(t, err)

	dataToken, fileToken := c.Tokens()
	assert.Equal(t, "token-0", dataToken)
	assert.Equal(t, "file-0", fileToken)
	assert.Zero(t, sink.calls, "sink must not be called without rotation")
}

func TestDo_NextCallSignsWithRotatedToken(t *testing.T) {
	call := 0
	var secondSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			w.Header().Set(HeaderDataToken, "token-1")
		} else {
			secondSignature = r.URL.Query().Get(ParamSignature)
		}
		json.NewEncoder(w).Encode(DataPayload{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &recordingClock{}, nil)
	_, err := c.Data(context.Background())
	require.NoError(t, err)
	_, err = c.Data(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Signature("user-1", "env-1", "token-1"), secondSignature)
}

func TestItem_DecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/item-1", r.URL.Path)
		io.WriteString(w, `{
			"essay": {"text": "<p>essay</p>", "started": 100, "ended": 200, "authorized": true},
			"correctors": [{"key": "corr-1", "title": "First"}],
			"summary": {"text": "<p>summary</p>", "points": 12.5, "grade_key": "passed", "is_authorized": false}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &recordingClock{}, nil)
	payload, err := c.Item(context.Background(), "item-1")
	require.NoError(t, err)

	assert.Equal(t, "<p>essay</p>", payload.Essay.Text)
	require.Len(t, payload.Correctors, 1)
	assert.Equal(t, 12.5, payload.Summary.Points)
	assert.Equal(t, "passed", payload.Summary.GradeKey)
}

func TestSaveSummary_SendsBody(t *testing.T) {
	var gotBody SummaryBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/summary/item-1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, &recordingClock{}, nil)
	err := c.SaveSummary(context.Background(), "item-1", SummaryBody{
		Text:         "<p>done</p>",
		Points:       18,
		GradeKey:     "excellent",
		IsAuthorized: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "<p>done</p>", gotBody.Text)
	assert.Equal(t, 18.0, gotBody.Points)
	assert.True(t, gotBody.IsAuthorized)
}

func TestDo_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderServerTime, "999")
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	clock := &recordingClock{}
	c := newTestClient(t, srv.URL, clock, nil)
	_, err := c.Data(context.Background())
	require.Error(t, err)

	// protocol metadata is processed even on failed calls
	last, ok := clock.last()
	require.True(t, ok)
	assert.Equal(t, int64(999), last)
}

func TestResourceURL_SignsWithFileToken(t *testing.T) {
	c := newTestClient(t, "https://backend.example.com/rest?client_id=ilias", &recordingClock{}, nil)

	u := c.ResourceURL("res-1")
	assert.Contains(t, u, "https://backend.example.com/rest/file/res-1?")
	assert.Contains(t, u, "client_id=ilias")
	assert.Contains(t, u, ParamSignature+"="+Signature("user-1", "env-1", "file-0"))
}
