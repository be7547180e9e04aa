// Package proxy is the authenticated edge in front of the backend. It checks
// the caller presented credentials, validates image-edit requests locally and
// forwards everything else unchanged.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/validation"
)

const maxValidatedBody = 1 << 20

// Headers that describe a single connection and must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Gateway forwards requests to one backend base URL.
type Gateway struct {
	backend *url.URL
	client  *http.Client
}

// New creates a Gateway for backendURL. A nil client uses one without a
// global timeout; every route sets its own deadline.
func New(backendURL string, client *http.Client) (*Gateway, error) {
	u, err := url.Parse(strings.TrimRight(backendURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https, got %q", backendURL)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Gateway{backend: u, client: client}, nil
}

// Forward relays the request to the same path on the backend with the given
// deadline. Requests without an Authorization header are refused.
func (g *Gateway) Forward(timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			apperr.Write(w, apperr.Unauthorized("Authentication required"))
			return
		}
		g.forward(w, r, r.Body, timeout)
	}
}

// ImageEdit validates the edit request before forwarding it, so malformed
// calls never reach the backend or spend credits.
func (g *Gateway) ImageEdit(timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
			apperr.Write(w, apperr.Unauthorized("Authentication required"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxValidatedBody))
		if err != nil {
			apperr.Write(w, apperr.BadRequest("could not read request body"))
			return
		}
		var req models.ImageEditRequest
		if err := json.Unmarshal(body, &req); err != nil {
			apperr.Write(w, apperr.MalformedBody())
			return
		}
		if errs := validation.Struct(&req); errs != nil {
			apperr.Write(w, apperr.Validation("Validation failed", errs))
			return
		}

		r.ContentLength = int64(len(body))
		g.forward(w, r, bytes.NewReader(body), timeout)
	}
}

func (g *Gateway) target(r *http.Request) string {
	u := *g.backend
	u.Path = g.backend.Path + r.URL.Path
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, body io.Reader, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, r.Method, g.target(r), body)
	if err != nil {
		log.Printf("[proxy] Forward: build request for %s: %v", r.URL.Path, err)
		apperr.Write(w, apperr.Internal(err))
		return
	}
	out.Header = r.Header.Clone()
	removeHopHeaders(out.Header)
	out.ContentLength = r.ContentLength
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		out.Header.Set("X-Forwarded-For", appendForwarded(r.Header.Get("X-Forwarded-For"), ip))
	}

	resp, err := g.client.Do(out)
	if err != nil {
		writeTransportError(w, r, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[proxy] Forward: backend answered %d for %s %s", resp.StatusCode, r.Method, r.URL.Path)
	}

	removeHopHeaders(resp.Header)
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("[proxy] Forward: copy response for %s: %v", r.URL.Path, err)
	}
}

// writeTransportError answers 504 for deadlines and 500 for anything else.
// Requests are never retried.
func writeTransportError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("[proxy] Forward: %s %s failed: %v", r.Method, r.URL.Path, err)

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		apperr.Write(w, apperr.Timeout(err.Error(), err))
		return
	}
	apperr.Write(w, apperr.Internal(err))
}

func removeHopHeaders(h http.Header) {
	for _, name := range h.Values("Connection") {
		for _, f := range strings.Split(name, ",") {
			if f = strings.TrimSpace(f); f != "" {
				h.Del(f)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func appendForwarded(prior, ip string) string {
	if prior == "" {
		return ip
	}
	return prior + ", " + ip
}
