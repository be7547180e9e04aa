package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/envvars"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/store"
	"github.com/PortNumber53/fashion-shoot/backend/internal/webhook"
)

func asUser(r *http.Request, id int64, role string) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: id, Role: role}))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

type mockAccounts struct {
	change  *models.AccountChange
	deleted int64
	err     error
}

func (m *mockAccounts) ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserPage, error) {
	return &models.UserPage{Limit: filter.Limit}, m.err
}

func (m *mockAccounts) GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error) {
	return &models.UserDetail{User: models.User{ID: id}}, m.err
}

func (m *mockAccounts) ApplyAccountChange(ctx context.Context, id int64, change models.AccountChange) (*models.UserDetail, error) {
	m.change = &change
	if m.err != nil {
		return nil, m.err
	}
	acct := credits.NewAccount(credits.PlanFree)
	acct.Apply(change.Credits)
	return &models.UserDetail{User: models.User{ID: id, Plan: acct.Plan}, Credits: acct}, nil
}

func (m *mockAccounts) DeleteUser(ctx context.Context, id int64) error {
	m.deleted = id
	return m.err
}

func accountRouter(accounts AccountStore) http.Handler {
	r := chi.NewRouter()
	r.Put("/users/{id}/account", SaveAccount(accounts))
	r.Patch("/users/{id}/role", UpdateUserRole(accounts))
	r.Patch("/users/{id}/status", UpdateUserStatus(accounts))
	r.Delete("/users/{id}", DeleteUser(accounts))
	return r
}

func TestSaveAccountAppliesChangeset(t *testing.T) {
	accounts := &mockAccounts{}
	req := asUser(jsonRequest(http.MethodPut, "/users/7/account", `{"plan":"Pro","totalUsed":12,"name":"Ana"}`), 1, auth.RoleAdmin)
	rr := httptest.NewRecorder()

	accountRouter(accounts).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if accounts.change == nil || accounts.change.Credits.Plan == nil || *accounts.change.Credits.Plan != "Pro" {
		t.Fatalf("expected plan change to reach the store, got %+v", accounts.change)
	}
	if accounts.change.Name == nil || *accounts.change.Name != "Ana" {
		t.Fatalf("expected name change, got %+v", accounts.change)
	}

	data := decodeBody(t, rr)["data"].(map[string]any)
	user := data["user"].(map[string]any)
	acct := user["credits"].(map[string]any)
	if acct["balance"].(float64) != 188 {
		t.Fatalf("expected balance 188, got %v", acct["balance"])
	}
}

func TestSaveAccountRejectsUnknownPlan(t *testing.T) {
	accounts := &mockAccounts{}
	req := asUser(jsonRequest(http.MethodPut, "/users/7/account", `{"plan":"Platinum"}`), 1, auth.RoleAdmin)
	rr := httptest.NewRecorder()

	accountRouter(accounts).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if accounts.change != nil {
		t.Fatal("store must not be called for an invalid plan")
	}
	errs := decodeBody(t, rr)["errors"].(map[string]any)
	if _, ok := errs["plan"]; !ok {
		t.Fatalf("expected plan error, got %v", errs)
	}
}

func TestAdminCannotDemoteOrDeleteSelf(t *testing.T) {
	accounts := &mockAccounts{}
	router := accountRouter(accounts)

	cases := []*http.Request{
		jsonRequest(http.MethodPatch, "/users/1/role", `{"role":"user"}`),
		jsonRequest(http.MethodPatch, "/users/1/status", `{"status":"suspended"}`),
		httptest.NewRequest(http.MethodDelete, "/users/1", nil),
	}
	for _, req := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, asUser(req, 1, auth.RoleAdmin))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", req.Method, req.URL.Path, rr.Code)
		}
	}
	if accounts.change != nil || accounts.deleted != 0 {
		t.Fatal("store must not be touched by self-lockout requests")
	}
}

func TestAccountStoreErrorsMapToStatus(t *testing.T) {
	accounts := &mockAccounts{err: store.ErrEmailTaken}
	req := asUser(jsonRequest(http.MethodPut, "/users/7/account", `{"email":"taken@example.com"}`), 1, auth.RoleAdmin)
	rr := httptest.NewRecorder()

	accountRouter(accounts).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

type mockCredits struct {
	consumeErr error
	consumed   int
	refunded   int
	recorded   []credits.UsageField
}

func (m *mockCredits) ConsumeCredits(ctx context.Context, userID int64, n int) error {
	if m.consumeErr != nil {
		return m.consumeErr
	}
	m.consumed += n
	return nil
}

func (m *mockCredits) RefundCredits(ctx context.Context, userID int64, n int) error {
	m.refunded += n
	return nil
}

func (m *mockCredits) RecordGeneration(ctx context.Context, userID int64, field credits.UsageField) error {
	m.recorded = append(m.recorded, field)
	return nil
}

type mockEditor struct {
	calls  int
	result map[string]any
	err    error
}

func (m *mockEditor) EditImage(ctx context.Context, url, prompt, imageURL string) (map[string]any, error) {
	m.calls++
	return m.result, m.err
}

func imageEditHandler(c *mockCredits, e *mockEditor) *ImageEditHandler {
	return &ImageEditHandler{
		Credits: c,
		Editor:  e,
		Resolver: webhook.NewResolverFunc(func(key string) string {
			if key == "N8N_IMAGE_EDIT_WEBHOOK" {
				return "http://n8n.local/edit"
			}
			return ""
		}),
	}
}

const validEdit = `{"prompt":"make it red","image_url":"https://cdn.example.com/a.png"}`

func TestImageEditRecordsGeneration(t *testing.T) {
	c := &mockCredits{}
	e := &mockEditor{result: map[string]any{"url": "https://cdn.example.com/b.png"}}
	rr := httptest.NewRecorder()

	imageEditHandler(c, e).ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/image-edit", validEdit), 5, auth.RoleUser))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if c.consumed != 1 || c.refunded != 0 {
		t.Fatalf("expected one credit consumed, got consumed=%d refunded=%d", c.consumed, c.refunded)
	}
	if len(c.recorded) != 1 || c.recorded[0] != credits.UsageImages {
		t.Fatalf("expected image generation recorded, got %v", c.recorded)
	}
}

func TestImageEditRefundsOnUpstreamFailure(t *testing.T) {
	c := &mockCredits{}
	e := &mockEditor{err: &webhook.StatusError{StatusCode: http.StatusInternalServerError, Message: "workflow crashed"}}
	rr := httptest.NewRecorder()

	imageEditHandler(c, e).ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/image-edit", validEdit), 5, auth.RoleUser))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if c.refunded != 1 {
		t.Fatalf("expected refund of 1 credit, got %d", c.refunded)
	}
	if len(c.recorded) != 0 {
		t.Fatal("failed edit must not count as a generation")
	}
	if msg := decodeBody(t, rr)["message"]; msg != "workflow crashed" {
		t.Fatalf("expected upstream message relayed, got %v", msg)
	}
}

func TestImageEditInsufficientCredits(t *testing.T) {
	c := &mockCredits{consumeErr: store.ErrInsufficientCredits}
	e := &mockEditor{}
	rr := httptest.NewRecorder()

	imageEditHandler(c, e).ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/image-edit", validEdit), 5, auth.RoleUser))

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
	if e.calls != 0 {
		t.Fatal("webhook must not be called without credits")
	}
}

func TestImageEditValidation(t *testing.T) {
	c := &mockCredits{}
	e := &mockEditor{}
	rr := httptest.NewRecorder()

	body := `{"prompt":"   ","image_url":"ftp://example.com/a.png"}`
	imageEditHandler(c, e).ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/image-edit", body), 5, auth.RoleUser))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	out := decodeBody(t, rr)
	if out["status"] != "fail" {
		t.Fatalf("expected fail status, got %v", out["status"])
	}
	errs := out["errors"].(map[string]any)
	if _, ok := errs["prompt"]; !ok {
		t.Fatalf("expected prompt error, got %v", errs)
	}
	if _, ok := errs["image_url"]; !ok {
		t.Fatalf("expected image_url error, got %v", errs)
	}
	if c.consumed != 0 || e.calls != 0 {
		t.Fatal("invalid requests must not spend credits")
	}

	rr = httptest.NewRecorder()
	imageEditHandler(c, e).ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/image-edit", `{"prompt":`), 5, auth.RoleUser))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed body: expected 422, got %d", rr.Code)
	}
	if _, ok := decodeBody(t, rr)["errors"].(map[string]any)["body"]; !ok {
		t.Fatalf("expected body error, got %s", rr.Body.String())
	}
}

type mockUploads struct {
	saved []*models.Upload
}

func (m *mockUploads) CreateUpload(ctx context.Context, u *models.Upload) error {
	m.saved = append(m.saved, u)
	return nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func multipartRequest(t *testing.T, target string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "upload.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadStoresImage(t *testing.T) {
	dir := t.TempDir()
	uploads := &mockUploads{}
	h := &UploadHandler{Store: uploads, Dir: dir, BaseURL: "http://localhost:5000/uploads", MaxBytes: 1 << 20}
	rr := httptest.NewRecorder()

	h.Upload(models.UploadImage).ServeHTTP(rr, asUser(multipartRequest(t, "/api/upload/image", pngHeader), 3, auth.RoleUser))

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if len(uploads.saved) != 1 {
		t.Fatalf("expected upload recorded, got %d", len(uploads.saved))
	}
	u := uploads.saved[0]
	if u.ContentType != "image/png" || u.UserID != 3 {
		t.Fatalf("unexpected upload record: %+v", u)
	}
	if !strings.HasPrefix(u.URL, "http://localhost:5000/uploads/images/") || !strings.HasSuffix(u.URL, ".png") {
		t.Fatalf("unexpected url %q", u.URL)
	}
	if _, err := os.Stat(filepath.Join(dir, "images", u.ID+".png")); err != nil {
		t.Fatalf("expected stored file: %v", err)
	}
}

func TestUploadRejectsWrongType(t *testing.T) {
	uploads := &mockUploads{}
	h := &UploadHandler{Store: uploads, Dir: t.TempDir(), BaseURL: "/uploads", MaxBytes: 1 << 20}
	rr := httptest.NewRecorder()

	h.Upload(models.UploadAudio).ServeHTTP(rr, asUser(multipartRequest(t, "/api/upload/audio", pngHeader), 3, auth.RoleUser))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if len(uploads.saved) != 0 {
		t.Fatal("rejected upload must not be recorded")
	}
}

func TestUploadRejectsSVG(t *testing.T) {
	uploads := &mockUploads{}
	h := &UploadHandler{Store: uploads, Dir: t.TempDir(), BaseURL: "/uploads", MaxBytes: 1 << 20}
	rr := httptest.NewRecorder()

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
	h.Upload(models.UploadImage).ServeHTTP(rr, asUser(multipartRequest(t, "/api/upload/image", svg), 3, auth.RoleUser))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(uploads.saved) != 0 {
		t.Fatal("rejected upload must not be recorded")
	}
}

func TestUploadTooLarge(t *testing.T) {
	h := &UploadHandler{Store: &mockUploads{}, Dir: t.TempDir(), BaseURL: "/uploads", MaxBytes: 16}
	rr := httptest.NewRecorder()

	content := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	h.Upload(models.UploadImage).ServeHTTP(rr, asUser(multipartRequest(t, "/api/upload/image", content), 3, auth.RoleUser))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

type mockQueue struct {
	job  *models.Job
	cost int
	err  error
}

func (m *mockQueue) EnqueuePaid(ctx context.Context, job *models.Job, cost int) error {
	if m.err != nil {
		return m.err
	}
	job.ID = 42
	job.Status = models.JobStatusPending
	m.job, m.cost = job, cost
	return nil
}

func (m *mockQueue) GetForUser(ctx context.Context, id, userID int64) (*models.Job, error) {
	if m.job == nil || m.job.ID != id || *m.job.UserID != userID {
		return nil, store.ErrJobNotFound
	}
	return m.job, nil
}

type planUser string

func (p planUser) GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error) {
	return &models.UserDetail{User: models.User{ID: id, Plan: string(p)}}, nil
}

func TestCreatePhotoshootQueuesPaidJob(t *testing.T) {
	queue := &mockQueue{}
	h := &PhotoshootHandler{Jobs: queue, Users: planUser(credits.PlanBusiness)}
	body := `{"card":2,"productImageUrl":"https://cdn.example.com/p.png","kind":"video"}`
	rr := httptest.NewRecorder()

	h.Create().ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/photoshoots", body), 9, auth.RoleUser))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if queue.cost != credits.CostOf(credits.UsageVideos) {
		t.Fatalf("expected video cost, got %d", queue.cost)
	}
	if queue.job.Priority != models.JobPriorityHigh {
		t.Fatalf("expected high priority for business plan, got %s", queue.job.Priority)
	}
	payload, err := models.PhotoshootPayloadFromJSONB(queue.job.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if payload.UserID != 9 || payload.Card != 2 || payload.Kind != "video" || payload.Cost != queue.cost {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// The owner can read it back; anyone else gets 404.
	r := chi.NewRouter()
	r.Get("/api/photoshoots/{id}", h.Get())
	own := httptest.NewRecorder()
	r.ServeHTTP(own, asUser(httptest.NewRequest(http.MethodGet, "/api/photoshoots/42", nil), 9, auth.RoleUser))
	if own.Code != http.StatusOK {
		t.Fatalf("expected owner to read job, got %d", own.Code)
	}
	other := httptest.NewRecorder()
	r.ServeHTTP(other, asUser(httptest.NewRequest(http.MethodGet, "/api/photoshoots/42", nil), 10, auth.RoleUser))
	if other.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user, got %d", other.Code)
	}
}

func TestCreatePhotoshootInsufficientCredits(t *testing.T) {
	h := &PhotoshootHandler{Jobs: &mockQueue{err: store.ErrInsufficientCredits}, Users: planUser(credits.PlanFree)}
	body := `{"card":1,"productImageUrl":"https://cdn.example.com/p.png"}`
	rr := httptest.NewRecorder()

	h.Create().ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/photoshoots", body), 9, auth.RoleUser))

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rr.Code)
	}
}

type mockCanceller struct{ err error }

func (m mockCanceller) CancelJob(ctx context.Context, id int64) (*models.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Job{ID: id, Status: models.JobStatusCancelled}, nil
}

func TestCancelJobStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{store.ErrJobNotFound, http.StatusNotFound},
		{store.ErrJobNotCancellable, http.StatusConflict},
	}
	for _, tt := range tests {
		h := &JobHandler{Worker: mockCanceller{err: tt.err}}
		r := chi.NewRouter()
		r.Post("/jobs/{id}/cancel", h.CancelJob())
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/3/cancel", nil))
		if rr.Code != tt.want {
			t.Fatalf("err=%v: expected %d, got %d", tt.err, tt.want, rr.Code)
		}
	}
}

type mockAuthStore struct {
	users    map[string]*models.UserDetail
	otps     map[int64]string
	verified []int64
}

func (m *mockAuthStore) CreateUser(ctx context.Context, nu models.NewUser) (*models.UserDetail, error) {
	if _, ok := m.users[nu.Email]; ok {
		return nil, store.ErrEmailTaken
	}
	code, exp := nu.OTPCode, nu.OTPExpiresAt
	u := &models.UserDetail{User: models.User{
		ID: int64(len(m.users) + 1), Name: nu.Name, Email: nu.Email, PasswordHash: nu.PasswordHash,
		Role: nu.Role, Status: models.UserStatusActive, Plan: nu.Plan, OTPCode: &code, OTPExpiresAt: &exp,
	}, Credits: credits.NewAccount(nu.Plan)}
	m.users[nu.Email] = u
	return u, nil
}

func (m *mockAuthStore) GetUserByEmail(ctx context.Context, email string) (*models.UserDetail, error) {
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

func (m *mockAuthStore) SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	m.otps[id] = code
	return nil
}

func (m *mockAuthStore) MarkVerified(ctx context.Context, id int64) error {
	m.verified = append(m.verified, id)
	return nil
}

func (m *mockAuthStore) TouchLogin(ctx context.Context, id int64) error { return nil }

type stubTokens struct{}

func (stubTokens) Issue(userID int64, role string) (string, error) { return "token-" + role, nil }

type captureMail struct{ codes []string }

func (c *captureMail) SendVerificationCode(ctx context.Context, to, name, code string) error {
	c.codes = append(c.codes, code)
	return nil
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	st := &mockAuthStore{users: map[string]*models.UserDetail{}, otps: map[int64]string{}}
	mail := &captureMail{}
	h := &AuthHandler{Store: st, Tokens: stubTokens{}, Mail: mail}

	signup := `{"name":"Bea","email":"bea@example.com","password":"supersecret"}`
	rr := httptest.NewRecorder()
	h.Signup().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/signup", signup))
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: unexpected status %d body=%s", rr.Code, rr.Body.String())
	}
	if len(mail.codes) != 1 || len(mail.codes[0]) != 6 {
		t.Fatalf("expected a 6-digit code mailed, got %v", mail.codes)
	}
	if st.users["bea@example.com"].Plan != credits.PlanFree {
		t.Fatal("new accounts start on the free plan")
	}

	rr = httptest.NewRecorder()
	h.Signup().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/signup", signup))
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", rr.Code)
	}

	login := `{"email":"bea@example.com","password":"supersecret"}`
	rr = httptest.NewRecorder()
	h.Login().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/login", login))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified login: expected 403, got %d", rr.Code)
	}

	wrong := "000000"
	if mail.codes[0] == wrong {
		wrong = "111111"
	}
	rr = httptest.NewRecorder()
	h.VerifyEmail().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/verify-email", `{"email":"bea@example.com","otp":"`+wrong+`"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("wrong otp: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.VerifyEmail().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/verify-email", `{"email":"bea@example.com","otp":"`+mail.codes[0]+`"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: unexpected status %d body=%s", rr.Code, rr.Body.String())
	}
	if len(st.verified) != 1 {
		t.Fatal("expected account marked verified")
	}

	rr = httptest.NewRecorder()
	h.Login().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"bea@example.com","password":"wrongpass"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Login().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/login", login))
	if rr.Code != http.StatusOK {
		t.Fatalf("login: unexpected status %d body=%s", rr.Code, rr.Body.String())
	}
	data := decodeBody(t, rr)["data"].(map[string]any)
	if data["token"] != "token-user" {
		t.Fatalf("unexpected token %v", data["token"])
	}
}

func TestResendOTPDoesNotRevealAccounts(t *testing.T) {
	st := &mockAuthStore{users: map[string]*models.UserDetail{
		"new@example.com":  {User: models.User{ID: 1, Email: "new@example.com"}},
		"done@example.com": {User: models.User{ID: 2, Email: "done@example.com", IsVerified: true}},
	}, otps: map[int64]string{}}
	mail := &captureMail{}
	h := &AuthHandler{Store: st, Tokens: stubTokens{}, Mail: mail}

	bodies := map[string]string{}
	for _, email := range []string{"new@example.com", "done@example.com", "nobody@example.com"} {
		rr := httptest.NewRecorder()
		h.ResendOTP().ServeHTTP(rr, jsonRequest(http.MethodPost, "/api/auth/resend-otp", `{"email":"`+email+`"}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d body=%s", email, rr.Code, rr.Body.String())
		}
		bodies[email] = rr.Body.String()
	}
	if bodies["new@example.com"] != bodies["nobody@example.com"] || bodies["done@example.com"] != bodies["nobody@example.com"] {
		t.Fatalf("responses differ: %v", bodies)
	}
	if len(mail.codes) != 1 || st.otps[1] != mail.codes[0] {
		t.Fatalf("expected one code for the unverified account, got %v", mail.codes)
	}
}

func TestEnvironmentSaveRejectsDuplicateKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("APP_NAME=shoot\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	h := &EnvironmentHandler{Store: envvars.NewFileStore(path, false), Categorizer: envvars.DefaultCategorizer()}

	body := `{"variables":[{"key":"PORT","value":"1"},{"key":"PORT","value":"2"}]}`
	rr := httptest.NewRecorder()
	h.Save().ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/api/admin/environment", body), 1, auth.RoleAdmin))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "APP_NAME=shoot") {
		t.Fatalf("file must be untouched after a rejected save, got %q", raw)
	}
}

func TestEnvironmentSetAndDeleteByKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	h := &EnvironmentHandler{Store: envvars.NewFileStore(path, false), Categorizer: envvars.DefaultCategorizer()}
	r := chi.NewRouter()
	r.Post("/env/variables", h.Set())
	r.Delete("/env/variables/{key}", h.Delete())
	r.Get("/env", h.List())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/env/variables", `{"key":"DATABASE_URL","value":"postgres://x"}`), 1, auth.RoleAdmin))
	if rr.Code != http.StatusOK {
		t.Fatalf("set: unexpected status %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(jsonRequest(http.MethodPost, "/env/variables", `{"key":"1BAD","value":"x"}`), 1, auth.RoleAdmin))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid key: expected 422, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/env?q=database", nil))
	data := decodeBody(t, rr)["data"].(map[string]any)
	if data["total"].(float64) != 1 {
		t.Fatalf("expected one match, got %v", data["total"])
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/env/variables/DATABASE_URL", nil), 1, auth.RoleAdmin))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: unexpected status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, asUser(httptest.NewRequest(http.MethodDelete, "/env/variables/DATABASE_URL", nil), 1, auth.RoleAdmin))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rr.Code)
	}
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(pinger{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	Health(pinger{err: errors.New("down")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
