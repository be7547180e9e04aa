// Package webhook calls the n8n workflows that perform image and photoshoot
// generation.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// ImageEditTimeout bounds a single image-edit webhook call.
const ImageEditTimeout = 90 * time.Second

// ErrNoWebhook is returned when no URL is configured for a request.
var ErrNoWebhook = errors.New("webhook URL not configured")

// StatusError is a non-2xx answer from a webhook.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook error (%d): %s", e.StatusCode, e.Message)
}

// Resolver finds webhook URLs. Lookups go through the environment on every
// call so edits made in the admin editor take effect without a restart.
type Resolver struct {
	lookup func(string) string
}

// NewResolver returns a Resolver over os.Getenv.
func NewResolver() *Resolver {
	return &Resolver{lookup: os.Getenv}
}

// NewResolverFunc returns a Resolver over an arbitrary lookup.
func NewResolverFunc(lookup func(string) string) *Resolver {
	return &Resolver{lookup: lookup}
}

// ImageEdit returns the image-edit webhook.
func (r *Resolver) ImageEdit() (string, error) {
	if u := strings.TrimSpace(r.lookup("N8N_IMAGE_EDIT_WEBHOOK")); u != "" {
		return u, nil
	}
	if u := strings.TrimSpace(r.lookup("N8N_WEBHOOK_URL")); u != "" {
		return u, nil
	}
	return "", ErrNoWebhook
}

// Card returns CARD<n>_N8N_WEBHOOK, falling back to N8N_WEBHOOK_URL.
func (r *Resolver) Card(card int) (string, error) {
	if card > 0 {
		if u := strings.TrimSpace(r.lookup("CARD" + strconv.Itoa(card) + "_N8N_WEBHOOK")); u != "" {
			return u, nil
		}
	}
	if u := strings.TrimSpace(r.lookup("N8N_WEBHOOK_URL")); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("card %d: %w", card, ErrNoWebhook)
}

// Client posts JSON payloads to webhooks.
type Client struct {
	httpClient *http.Client
}

// NewClient returns a Client. A nil httpClient uses a client without a global
// timeout; callers bound each call through the context.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient}
}

// Post sends payload to url and decodes a JSON object response. A non-JSON
// success body is returned under the "raw" key.
func (c *Client) Post(ctx context.Context, url string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, 10<<20)); err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	var result map[string]any
	jsonErr := json.Unmarshal(buf.Bytes(), &result)

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(buf.String())
		if jsonErr == nil {
			if m, ok := result["message"].(string); ok && m != "" {
				msg = m
			} else if m, ok := result["error"].(string); ok && m != "" {
				msg = m
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if jsonErr != nil {
		result = map[string]any{"raw": buf.String()}
	}
	return result, nil
}

// EditImage runs the image-edit workflow.
func (c *Client) EditImage(ctx context.Context, url, prompt, imageURL string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, ImageEditTimeout)
	defer cancel()

	result, err := c.Post(ctx, url, map[string]string{
		"prompt":    prompt,
		"image_url": imageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("edit image: %w", err)
	}
	log.Printf("[webhook] image edit completed")
	return result, nil
}
