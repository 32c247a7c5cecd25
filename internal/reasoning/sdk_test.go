package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// apiServer answers every request with a fixed status and body, and records
// how many requests arrived and the last request body.
type apiServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests int
	lastBody map[string]any
}

func newAPIServer(t *testing.T, status int, body string) *apiServer {
	t.Helper()
	s := &apiServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		json.Unmarshal(data, &decoded)

		s.mu.Lock()
		s.requests++
		s.lastBody = decoded
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *apiServer) Body() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBody
}

const (
	anthropicOK    = `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"{\"decision\":\"x\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`
	anthropicError = `{"type":"error","error":{"type":"api_error","message":"failure"}}`
	openaiOK       = `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"decision\":\"x\"}"}}]}`
	openaiError    = `{"error":{"message":"failure","type":"api_error"}}`
)

type sdkCase struct {
	name    string
	ok      string
	errBody string
	backend func(url string) Backend
}

var sdkCases = []sdkCase{
	{
		name:    "anthropic",
		ok:      anthropicOK,
		errBody: anthropicError,
		backend: func(url string) Backend {
			return NewAnthropicBackend("test-key", "m", option.WithBaseURL(url+"/"))
		},
	},
	{
		name:    "openai",
		ok:      openaiOK,
		errBody: openaiError,
		backend: func(url string) Backend {
			return NewOpenAIBackend("test-key", url+"/v1/", "m")
		},
	},
}

func TestSDKBackends_StatusClassification(t *testing.T) {
	statuses := []struct {
		code      int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}

	for _, sc := range sdkCases {
		for _, st := range statuses {
			t.Run(sc.name+"/"+http.StatusText(st.code), func(t *testing.T) {
				srv := newAPIServer(t, st.code, sc.errBody)
				b := sc.backend(srv.URL)

				_, err := b.Complete(context.Background(), testRequest())
				if err == nil {
					t.Fatal("Complete() succeeded, want error")
				}
				var se *StatusError
				if !errors.As(err, &se) {
					t.Fatalf("error %v is not a *StatusError", err)
				}
				if se.Code != st.code {
					t.Errorf("StatusError.Code = %d, want %d", se.Code, st.code)
				}
				if IsTransient(err) != st.transient {
					t.Errorf("IsTransient(%v) = %v, want %v", err, IsTransient(err), st.transient)
				}
				if got := srv.Requests(); got != 1 {
					t.Errorf("server saw %d requests, want 1 (SDK retries must stay off)", got)
				}
			})
		}
	}
}

func TestSDKBackends_OneRequestPerAttempt(t *testing.T) {
	for _, sc := range sdkCases {
		t.Run(sc.name, func(t *testing.T) {
			srv := newAPIServer(t, http.StatusInternalServerError, sc.errBody)
			c := NewClient(sc.backend(srv.URL), WithRetryPolicy(fastPolicy(3)), WithLogger(quietLogger()))

			resp, err := c.Invoke(context.Background(), testRequest())
			var unavailable *UnavailableError
			if !errors.As(err, &unavailable) {
				t.Fatalf("Invoke() error = %v, want *UnavailableError", err)
			}
			if resp.Attempts != 3 {
				t.Errorf("Attempts = %d, want 3", resp.Attempts)
			}
			if got := srv.Requests(); got != 3 {
				t.Errorf("server saw %d requests, want 3", got)
			}
		})
	}
}

func TestSDKBackends_Success(t *testing.T) {
	for _, sc := range sdkCases {
		t.Run(sc.name, func(t *testing.T) {
			srv := newAPIServer(t, http.StatusOK, sc.ok)
			c := NewClient(sc.backend(srv.URL), WithRetryPolicy(fastPolicy(3)), WithLogger(quietLogger()))

			resp, err := c.Invoke(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("Invoke(): %v", err)
			}
			if string(resp.Structured) != `{"decision":"x"}` {
				t.Errorf("Structured = %s", resp.Structured)
			}
			if resp.Attempts != 1 || srv.Requests() != 1 {
				t.Errorf("attempts = %d, requests = %d, want 1 and 1", resp.Attempts, srv.Requests())
			}
		})
	}
}

func TestAnthropicBackend_ClampsTemperature(t *testing.T) {
	tests := []struct {
		temperature float64
		want        float64
	}{
		{0.3, 0.3},
		{1.0, 1.0},
		{1.7, MaxAnthropicTemperature},
	}

	for _, tt := range tests {
		srv := newAPIServer(t, http.StatusOK, anthropicOK)
		b := NewAnthropicBackend("test-key", "m", option.WithBaseURL(srv.URL+"/"))
		req := testRequest()
		req.Params.Temperature = tt.temperature

		if _, err := b.Complete(context.Background(), req); err != nil {
			t.Fatalf("Complete(): %v", err)
		}
		if got, _ := srv.Body()["temperature"].(float64); got != tt.want {
			t.Errorf("temperature %g sent as %v, want %g", tt.temperature, srv.Body()["temperature"], tt.want)
		}
	}
}
