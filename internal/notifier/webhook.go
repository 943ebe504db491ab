package notifier

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
)

// Hosts that render a separate notification title.
var titleHosts = []string{"api.pushcut.io"}

type Payload struct {
	Text  string `json:"text"`
	Title string `json:"title,omitempty"`
}

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook status %d: %s", e.Code, e.Body)
}

type Webhook struct {
	URL  string
	HTTP *http.Client
}

func NewWebhook(rawURL string, timeout time.Duration) *Webhook {
	return &Webhook{
		URL:  rawURL,
		HTTP: &http.Client{Timeout: timeout},
	}
}

// WantsTitle reports whether the destination is a notification service that
// shows a title separately from the body.
func (w *Webhook) WantsTitle() bool {
	u, err := url.Parse(w.URL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range titleHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Send posts the payload once. The returned status code is zero when no
// response was received.
func (w *Webhook) Send(ctx context.Context, p Payload) (int, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := w.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res.StatusCode, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(resp))}
	}
	return res.StatusCode, nil
}
