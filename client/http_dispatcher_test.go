package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sardine-ai/go-config-sync/model"
)

func TestHTTPDispatcherUpdateConfig(t *testing.T) {
	type capturedRequest struct {
		method, path, key, body string
	}
	requests := make(chan capturedRequest, 1)
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			key:    r.Header.Get("X-API-KEY"),
			body:   string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	}))
	defer testServer.Close()

	dispatcher, err := NewHTTPDispatcher(testServer.URL, "secret")
	if err != nil {
		t.Fatal(err)
	}
	defer dispatcher.HTTPClient.CloseIdleConnections()

	s := NewConfigSync(dispatcher)
	if err := s.UpdateConfig(context.Background(), scenarioConfig); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	var got capturedRequest
	select {
	case got = <-requests:
	default:
		t.Fatal("backend saw no request")
	}
	if len(requests) != 0 {
		t.Error("expected exactly one request")
	}
	if got.method != http.MethodPost {
		t.Errorf("expected POST, got %s", got.method)
	}
	if got.path != "/invoke/set_config" {
		t.Errorf("expected /invoke/set_config, got %s", got.path)
	}
	if got.key != "secret" {
		t.Errorf("expected api key header, got %q", got.key)
	}
	want := `{"newCfg":{"autoOpen":true,"autoAccept":false,"acceptDelay":500,"multiProvider":"default","autoReport":true}}`
	if got.body != want {
		t.Errorf("expected body %s, got %s", want, got.body)
	}
}

func TestHTTPDispatcherGetConfig(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/base/invoke/get_config" {
			http.NotFound(w, r)
			return
		}
		if r.ContentLength > 0 {
			http.Error(w, "unexpected body", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"autoOpen":true,"autoAccept":true,"acceptDelay":2000,"multiProvider":"opgg","autoReport":false}`))
	}))
	defer testServer.Close()

	dispatcher, err := NewHTTPDispatcher(testServer.URL+"/base", "")
	if err != nil {
		t.Fatal(err)
	}
	defer dispatcher.HTTPClient.CloseIdleConnections()

	got, err := NewConfigSync(dispatcher).GetConfig(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(model.Default(), got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPDispatcherErrors(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{name: "json error", status: http.StatusBadRequest, body: `{"error":"invalid config: missing [autoReport]"}`, wantMessage: "invalid config: missing [autoReport]"},
		{name: "plain error", status: http.StatusUnauthorized, body: "Unauthorized\n", wantMessage: "Unauthorized"},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"disk full"}`, wantMessage: "disk full"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer testServer.Close()

			dispatcher, err := NewHTTPDispatcher(testServer.URL, "")
			if err != nil {
				t.Fatal(err)
			}
			defer dispatcher.HTTPClient.CloseIdleConnections()

			err = NewConfigSync(dispatcher).UpdateConfig(context.Background(), scenarioConfig)
			var cmdErr *CommandError
			if !errors.As(err, &cmdErr) {
				t.Fatalf("expected CommandError, got %v", err)
			}
			if cmdErr.Status != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, cmdErr.Status)
			}
			if cmdErr.Message != tc.wantMessage {
				t.Errorf("expected message %q, got %q", tc.wantMessage, cmdErr.Message)
			}
			if cmdErr.Command != "set_config" {
				t.Errorf("expected command set_config, got %q", cmdErr.Command)
			}
		})
	}
}

func TestHTTPDispatcherUnreachable(t *testing.T) {
	testServer := httptest.NewServer(http.NotFoundHandler())
	url := testServer.URL
	testServer.Close()

	dispatcher, err := NewHTTPDispatcher(url, "")
	if err != nil {
		t.Fatal(err)
	}
	err = NewConfigSync(dispatcher).UpdateConfig(context.Background(), scenarioConfig)
	if err == nil {
		t.Fatal("expected an error")
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		t.Errorf("transport failure must not look like a backend rejection: %v", err)
	}
}

func TestNewHTTPDispatcherRejectsScheme(t *testing.T) {
	if _, err := NewHTTPDispatcher("ws://127.0.0.1:1", ""); err == nil {
		t.Error("expected an error for a ws url")
	}
}
