package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/config"
)

type captured struct {
	method string
	path   string
	query  string
	auth   string
	body   string
	calls  int
}

func newBackend(t *testing.T, status int, respBody string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls++
		c.method = r.Method
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		c.body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func gatewayFor(t *testing.T, backendURL string) http.Handler {
	t.Helper()
	g, err := New(backendURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g.Routes(config.GatewayConfig{ImageEditTimeout: 2 * time.Second, DefaultTimeout: 2 * time.Second})
}

func TestMissingAuthorizationIsRejected(t *testing.T) {
	srv, c := newBackend(t, http.StatusOK, `{}`)
	h := gatewayFor(t, srv.URL)

	for _, path := range []string{"/api/user/profile", "/api/user/credits"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
	if c.calls != 0 {
		t.Fatalf("backend must not be called, got %d calls", c.calls)
	}
}

func TestForwardPreservesRequest(t *testing.T) {
	srv, c := newBackend(t, http.StatusOK, `{"status":"success"}`)
	h := gatewayFor(t, srv.URL)

	req := httptest.NewRequest(http.MethodPut, "/api/user/profile?x=1", strings.NewReader(`{"name":"Cy"}`))
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if c.method != http.MethodPut || c.path != "/api/user/profile" || c.query != "x=1" {
		t.Fatalf("unexpected forwarded request: %+v", c)
	}
	if c.auth != "Bearer abc" || c.body != `{"name":"Cy"}` {
		t.Fatalf("headers or body not forwarded: %+v", c)
	}
}

func TestBackendErrorsAreRelayed(t *testing.T) {
	srv, _ := newBackend(t, http.StatusPaymentRequired, `{"status":"fail","message":"Insufficient credits"}`)
	h := gatewayFor(t, srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/user/credits", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected relayed 402, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Insufficient credits") {
		t.Fatalf("expected relayed body, got %q", rr.Body.String())
	}
}

func TestImageEditValidatesLocally(t *testing.T) {
	srv, c := newBackend(t, http.StatusOK, `{}`)
	h := gatewayFor(t, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/image-edit", strings.NewReader(`{"prompt":"","image_url":"not a url"}`))
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "fail" || body.Errors["prompt"] == "" || body.Errors["image_url"] == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if c.calls != 0 {
		t.Fatal("invalid image edit must not reach the backend")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/image-edit", strings.NewReader(`{"prompt":"red","image_url":"https://a.example/x.png"}`))
	req.Header.Set("Authorization", "Bearer abc")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || c.calls != 1 {
		t.Fatalf("valid edit should be forwarded, got %d after %d calls", rr.Code, c.calls)
	}
	if !strings.Contains(c.body, `"prompt":"red"`) {
		t.Fatalf("body not forwarded: %q", c.body)
	}
}

func TestImageEditMalformedJSONIs422(t *testing.T) {
	srv, c := newBackend(t, http.StatusOK, `{}`)
	h := gatewayFor(t, srv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/image-edit", strings.NewReader(`{"prompt":`))
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"body"`) {
		t.Fatalf("expected body field error, got %s", rr.Body.String())
	}
	if c.calls != 0 {
		t.Fatal("malformed edit must not reach the backend")
	}
}

func TestTimeoutAnswers504(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g, err := New(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/user/credits", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	g.Forward(50*time.Millisecond).ServeHTTP(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}
}

func TestTransportErrorAnswers500(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g, err := New(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	g.Forward(time.Second).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"message":"Internal server error"`) {
		t.Fatalf("expected generic message, got %q", rr.Body.String())
	}
}

func TestNewRejectsBadBackendURL(t *testing.T) {
	if _, err := New("ftp://backend", nil); err == nil {
		t.Fatal("expected error for non-http backend")
	}
}
