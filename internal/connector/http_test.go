package connector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Conveyor/internal/domain"
)

// httpRecord строит запись, адрес которой указывает на тестовый сервер.
func httpRecord(t *testing.T, serverURL, content, option string, params map[string]any) *domain.Record {
	t.Helper()
	host, port, err := net.SplitHostPort(serverURL[len("http://"):])
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	identity := domain.NewIdentity(
		domain.Account{Username: "svc", Password: "pw"},
		domain.Address{Host: host, Port: port},
		domain.Terminal{Name: "api", Version: "1"},
		domain.Protocol{Category: domain.ProtocolHTTP, Name: "rest", Version: "1"},
	)
	cmd := domain.NewCommand(domain.CommandBuiltIn, content, params, domain.WithOption(option))
	return domain.NewRecord(identity, cmd)
}

func TestHTTPConnector_DefaultPostsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/messages" {
			t.Errorf("expected /messages, got %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "pw" {
			t.Errorf("expected basic auth, got %q %q", user, pass)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"text":"hi"}` {
			t.Errorf("unexpected body %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "m-1"})
	}))
	defer server.Close()

	r := NewRegistry(Config{})
	r.Register(HTTPType, HTTPFactory(server.Client(), time.Second))

	rec := httpRecord(t, server.URL, `{"text":"hi"}`, "", map[string]any{"path": "messages"})
	res, err := r.Dispatch(context.Background(), HTTPType, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Category != domain.ResultSuccess || res.Code != http.StatusCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	payload, ok := res.Payload.(map[string]any)
	if !ok {
		t.Fatal("payload should be map")
	}
	body, ok := payload["body"].(map[string]any)
	if !ok || body["id"] != "m-1" {
		t.Errorf("expected parsed JSON body, got %v", payload["body"])
	}
}

func TestHTTPConnector_GetRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("X-Trace") != "abc" {
			t.Errorf("expected X-Trace header")
		}
		w.Write([]byte("plain"))
	}))
	defer server.Close()

	r := NewRegistry(Config{})
	r.Register(HTTPType, HTTPFactory(server.Client(), time.Second))

	rec := httpRecord(t, server.URL, "status", "#[get]", map[string]any{
		"headers": map[string]any{"X-Trace": "abc"},
	})
	res, err := r.Dispatch(context.Background(), HTTPType, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := res.Payload.(map[string]any)
	if payload["body"] != "plain" {
		t.Errorf("expected string body, got %v", payload["body"])
	}
}

func TestHTTPConnector_ServerErrorIsFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	r := NewRegistry(Config{})
	r.Register(HTTPType, HTTPFactory(server.Client(), time.Second))

	res, err := r.Dispatch(context.Background(), HTTPType, httpRecord(t, server.URL, "x", "", nil))
	if err != nil {
		t.Fatalf("HTTP error status should not be a dispatch error: %v", err)
	}
	if res.Category != domain.ResultFailed || res.Code != http.StatusServiceUnavailable {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHTTPConnector_LargeBodyIsCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("ж", maxResponseBody)))
	}))
	defer server.Close()

	r := NewRegistry(Config{})
	r.Register(HTTPType, HTTPFactory(server.Client(), 5*time.Second))

	res, err := r.Dispatch(context.Background(), HTTPType, httpRecord(t, server.URL, "x", "", nil))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	payload, ok := res.Payload.(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload %T", res.Payload)
	}
	if payload["truncated"] != true {
		t.Error("payload should be marked truncated")
	}
	if body, _ := payload["body"].(string); len(body) != maxResponseBody {
		t.Errorf("body length = %d, want %d", len(body), maxResponseBody)
	}
	if !utf8.ValidString(res.Message) {
		t.Errorf("message is not valid UTF-8: %q", res.Message)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"привет", 2, "пр..."},
		{"ошибка", 6, "ошибка"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestHTTPConnector_TransportErrorIsDispatchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	r := NewRegistry(Config{})
	r.Register(HTTPType, HTTPFactory(server.Client(), 20*time.Millisecond))

	res, err := r.Dispatch(context.Background(), HTTPType, httpRecord(t, server.URL, "x", "", nil))
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
	if res.Category != domain.ResultAbnormal {
		t.Errorf("expected ABNORMAL, got %s", res.Category)
	}
}

func TestHTTPConnector_HTTPSScheme(t *testing.T) {
	identity := domain.NewIdentity(
		domain.Account{},
		domain.Address{Host: "api.example.com", Port: "443"},
		domain.Terminal{},
		domain.Protocol{Category: domain.ProtocolHTTPS},
	)
	c := NewHTTPConnector(identity, nil, 0)
	if c.BaseURL() != "https://api.example.com:443" {
		t.Errorf("unexpected base url %s", c.BaseURL())
	}
	if _, ok := c.Operation(domain.DefaultRouteKey); !ok {
		t.Error("DEFAULT operation must exist")
	}
}
