package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDoer is a mock implementation of Doer for simulating network failures.
type MockDoer struct {
	mock.Mock
}

func (m *MockDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// newTestServer starts a routed fake API and returns a client bound to it.
func newTestServer(t *testing.T, register func(r *mux.Router)) (*Client, *httptest.Server) {
	t.Helper()

	r := mux.NewRouter()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, Options{Timeout: 2 * time.Second, UserAgent: "coincap-test"})
	require.NoError(t, err)
	return client, srv
}

func Test_NewClient(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		expectError bool
		expectedURL string
		description string
	}{
		{
			name:        "Valid https URL",
			baseURL:     "https://coincap.io/",
			expectedURL: "https://coincap.io/",
			description: "Should accept absolute https URL",
		},
		{
			name:        "Missing trailing slash",
			baseURL:     "http://localhost:8080/api",
			expectedURL: "http://localhost:8080/api/",
			description: "Should append trailing slash to base path",
		},
		{
			name:        "Query is dropped",
			baseURL:     "https://coincap.io/?x=1#frag",
			expectedURL: "https://coincap.io/",
			description: "Should strip query and fragment",
		},
		{
			name:        "Websocket scheme",
			baseURL:     "wss://coincap.io",
			expectError: true,
			description: "Should reject non HTTP schemes",
		},
		{
			name:        "Relative URL",
			baseURL:     "/global",
			expectError: true,
			description: "Should reject URLs without scheme and host",
		},
		{
			name:        "Unparseable URL",
			baseURL:     "http://[::1",
			expectError: true,
			description: "Should reject malformed URLs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.baseURL, Options{})

			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidBaseURL, tt.description)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err, tt.description)
			assert.Equal(t, tt.expectedURL, client.BaseURL())
			assert.Equal(t, DefaultTimeout, client.Timeout(), "Should apply default timeout")
		})
	}
}

func Test_URL(t *testing.T) {
	client, err := NewClient("https://coincap.io/api", Options{})
	require.NoError(t, err)

	assert.Equal(t, "https://coincap.io/api/global", client.URL([]string{"global"}, nil))
	assert.Equal(t, "https://coincap.io/api/coins/BTC", client.URL([]string{"coins", "BTC"}, nil))
	assert.Equal(t, "https://coincap.io/api/coins/A%2FB", client.URL([]string{"coins", "A/B"}, nil),
		"Should escape each segment separately")

	q := url.Values{}
	q.Set("start", "1")
	q.Set("interval", "h1")
	assert.Equal(t, "https://coincap.io/api/history/ETH?interval=h1&start=1",
		client.URL([]string{"history", "ETH"}, q))
}

func Test_Get_Success(t *testing.T) {
	client, _ := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/items/{name}", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "application/json", req.Header.Get("Accept"))
			assert.Equal(t, "coincap-test", req.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"name":"` + mux.Vars(req)["name"] + `","count":3}`))
		}).Methods(http.MethodGet)
	})

	var out payload
	err := client.Get(context.Background(), []string{"items", "widget"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "widget", Count: 3}, out)
}

func Test_Get_Failures(t *testing.T) {
	client, _ := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/missing", func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "no such thing", http.StatusNotFound)
		})
		r.HandleFunc("/broken", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(strings.Repeat("x", 2*maxErrorBody)))
		})
		r.HandleFunc("/garbage", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`{"name": oops`))
		})
		r.HandleFunc("/wrongshape", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`["a","b"]`))
		})
		r.HandleFunc("/empty", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.HandleFunc("/null", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`null`))
		})
	})

	tests := []struct {
		name        string
		path        string
		expectedErr error
		description string
	}{
		{name: "Not found", path: "missing", expectedErr: ErrStatus, description: "Should classify 404 as status error"},
		{name: "Server error", path: "broken", expectedErr: ErrStatus, description: "Should classify 500 as status error"},
		{name: "Malformed JSON", path: "garbage", expectedErr: ErrDecode, description: "Should classify bad JSON as decode error"},
		{name: "Unexpected shape", path: "wrongshape", expectedErr: ErrDecode, description: "Should classify shape mismatch as decode error"},
		{name: "Empty body", path: "empty", expectedErr: ErrDecode, description: "Should reject empty bodies"},
		{name: "Null body", path: "null", expectedErr: ErrDecode, description: "Should reject null bodies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out payload
			err := client.Get(context.Background(), []string{tt.path}, nil, &out)
			assert.ErrorIs(t, err, tt.expectedErr, tt.description)
		})
	}

	t.Run("Status error details", func(t *testing.T) {
		var out payload
		err := client.Get(context.Background(), []string{"broken"}, nil, &out)

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Equal(t, http.MethodGet, statusErr.Method)
		assert.True(t, strings.HasSuffix(statusErr.Body, "..."), "Should truncate long bodies")
		assert.LessOrEqual(t, len(statusErr.Body), maxErrorBody+3)
		assert.Contains(t, statusErr.Error(), "500 Internal Server Error")
	})
}

func Test_Get_Timeout(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/slow", func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-req.Context().Done():
		}
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	client, err := NewClient(srv.URL, Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	var out payload
	err = client.Get(context.Background(), []string{"slow"}, nil, &out)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "Should honour the configured timeout")
}

func Test_Get_NetworkError(t *testing.T) {
	doer := new(MockDoer)
	netErr := errors.New("connection refused")
	doer.On("Do", mock.AnythingOfType("*http.Request")).Return(nil, netErr)

	client, err := NewClient("https://coincap.io", Options{HTTPClient: doer})
	require.NoError(t, err)

	var out payload
	err = client.Get(context.Background(), []string{"global"}, nil, &out)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, netErr)
	doer.AssertNumberOfCalls(t, "Do", 1)
}

func Test_Get_ReadError(t *testing.T) {
	doer := new(MockDoer)
	doer.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(&failingReader{}),
	}, nil)

	client, err := NewClient("https://coincap.io", Options{HTTPClient: doer})
	require.NoError(t, err)

	var out payload
	err = client.Get(context.Background(), []string{"global"}, nil, &out)
	assert.ErrorIs(t, err, ErrTransport)
}

func Test_Get_CancelledContext(t *testing.T) {
	client, _ := newTestServer(t, func(r *mux.Router) {
		r.HandleFunc("/global", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`{}`))
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out payload
	err := client.Get(ctx, []string{"global"}, nil, &out)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
