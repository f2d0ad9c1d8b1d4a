package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPDispatcher invokes backend commands with POST {BaseURL}/invoke/{command}.
type HTTPDispatcher struct {
	URL        *url.URL     // Base URL of the backend
	APIKey     string       // Optional API key for X-API-KEY header authentication
	HTTPClient *http.Client // Client used for requests
}

// NewHTTPDispatcher creates an HTTPDispatcher for the backend at rawURL.
func NewHTTPDispatcher(rawURL, apiKey string) (*HTTPDispatcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}
	return &HTTPDispatcher{
		URL:        u,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Invoke sends one command request and waits for the response.
func (h *HTTPDispatcher) Invoke(ctx context.Context, command string, args, reply any) error {
	var body io.Reader
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshalling %s arguments: %w", command, err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := h.URL.JoinPath("invoke", command)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return err
	}
	if args != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if h.APIKey != "" {
		request.Header.Set("X-API-KEY", h.APIKey)
	}

	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)

	if resp.StatusCode >= 300 {
		return commandErrorFromResponse(command, resp)
	}
	if reply == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return fmt.Errorf("decoding %s reply: %w", command, err)
	}
	return nil
}

func commandErrorFromResponse(command string, resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend returned %d (failed to read body: %w)", resp.StatusCode, err)
	}
	message := strings.TrimSpace(string(data))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}
	return &CommandError{Command: command, Status: resp.StatusCode, Message: message}
}
