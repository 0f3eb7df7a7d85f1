package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/config"
	"github.com/finitixhub/finitix_be/internal/middleware"
	"github.com/finitixhub/finitix_be/internal/realtime"
	"github.com/finitixhub/finitix_be/internal/server"
	"github.com/finitixhub/finitix_be/internal/services/chatbot"
	"github.com/finitixhub/finitix_be/internal/services/session"
	"github.com/finitixhub/finitix_be/internal/testutil"
)

const testMaxBytes = 1024

// fakeBucket records every upload that reaches it.
type fakeBucket struct {
	mu      sync.Mutex
	uploads []string
}

func (b *fakeBucket) Upload(_ context.Context, folder, filename string, src io.Reader, _ int64) (string, error) {
	if _, err := io.Copy(io.Discard, src); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, folder+"/"+filename)
	return "http://files.test/" + folder + "/" + filename, nil
}

func (b *fakeBucket) Remove(context.Context, string) error { return nil }

func (b *fakeBucket) MaxBytes() int64 { return testMaxBytes }

func (b *fakeBucket) Uploads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploads...)
}

type harness struct {
	app      *fiber.App
	db       *gorm.DB
	feed     *testutil.Recorder
	bucket   *fakeBucket
	sessions *session.Store
}

func newHarness(t *testing.T, opts ...func(*config.Config)) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bot, err := chatbot.New("", 0)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		db:       testutil.NewDB(t),
		feed:     &testutil.Recorder{},
		bucket:   &fakeBucket{},
		sessions: session.NewStore(rdb),
	}
	cfg := config.Config{
		JWTSecret:      "test-secret",
		JWTExpiresMin:  60,
		UploadDir:      t.TempDir(),
		CORSOrigins:    "http://localhost:3000",
		AuthRateLimit:  100,
		AuthRateWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.app = server.New(server.Deps{
		Config:   cfg,
		DB:       h.db,
		Redis:    rdb,
		Hub:      realtime.NewHub(),
		Feed:     h.feed,
		Sessions: h.sessions,
		Bucket:   h.bucket,
		Bot:      bot,
	})
	return h
}

type envelope struct {
	Success  bool                `json:"success"`
	Message  string              `json:"message"`
	Data     json.RawMessage     `json:"data"`
	Meta     map[string]any      `json:"meta"`
	Errors   map[string][]string `json:"errors"`
	Changed  *bool               `json:"changed"`
	Rejected []struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
	} `json:"rejected"`
}

func (h *harness) send(t *testing.T, req *http.Request, token string) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, env
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.send(t, req, token)
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

type account struct {
	ID    string
	Token string
}

func (h *harness) signUp(t *testing.T, username string) account {
	t.Helper()
	code, env := h.do(t, "POST", "/api/auth/signup", "", map[string]string{
		"email":     username + "@example.com",
		"password":  "secret123",
		"username":  username,
		"full_name": strings.ToUpper(username[:1]) + username[1:],
	})
	if code != fiber.StatusCreated {
		t.Fatalf("signup %s: %d %s %v", username, code, env.Message, env.Errors)
	}
	data := decode[struct {
		User  struct{ ID string } `json:"user"`
		Token string              `json:"token"`
	}](t, env.Data)
	return account{ID: data.User.ID, Token: data.Token}
}

// signIn returns the status and, on success, the session token.
func (h *harness) signIn(t *testing.T, email, password string) (int, string) {
	t.Helper()
	code, env := h.do(t, "POST", "/api/auth/signin", "", map[string]string{"email": email, "password": password})
	if code != fiber.StatusOK {
		return code, ""
	}
	return code, decode[struct {
		Token string `json:"token"`
	}](t, env.Data).Token
}

// admin signs up username and promotes it, returning a token carrying the admin role.
func (h *harness) admin(t *testing.T, username string) account {
	t.Helper()
	acc := h.signUp(t, username)
	if err := h.db.Exec("UPDATE users SET role = ? WHERE id = ?", "admin", acc.ID).Error; err != nil {
		t.Fatal(err)
	}
	code, token := h.signIn(t, username+"@example.com", "secret123")
	if code != fiber.StatusOK {
		t.Fatalf("admin signin: %d", code)
	}
	return account{ID: acc.ID, Token: token}
}

func (h *harness) postJob(t *testing.T, token, title, category string) string {
	t.Helper()
	code, env := h.do(t, "POST", "/api/jobs", token, map[string]any{
		"title":       title,
		"company":     "Acme",
		"description": "Build and ship things",
		"category":    category,
		"job_type":    "freelance",
		"budget_min":  100,
		"budget_max":  500,
		"skills":      []string{"go", "Go", "sql"},
	})
	if code != fiber.StatusCreated {
		t.Fatalf("post job: %d %s %v", code, env.Message, env.Errors)
	}
	return decode[struct{ ID string }](t, env.Data).ID
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)
	alice := h.signUp(t, "alice")

	code, env := h.do(t, "POST", "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "password": "secret123", "username": "alice", "full_name": "Alice",
	})
	if code != fiber.StatusUnprocessableEntity || len(env.Errors["email"]) == 0 || len(env.Errors["username"]) == 0 {
		t.Fatalf("duplicate signup: %d %v", code, env.Errors)
	}

	code, _ = h.do(t, "POST", "/api/auth/signin", "", map[string]string{"email": "alice@example.com", "password": "wrong-pass"})
	if code != fiber.StatusUnauthorized {
		t.Fatalf("wrong password: %d", code)
	}

	code, env = h.do(t, "POST", "/api/auth/signin", "", map[string]string{"email": "ALICE@example.com", "password": "secret123"})
	if code != fiber.StatusOK {
		t.Fatalf("signin: %d %s", code, env.Message)
	}

	code, env = h.do(t, "GET", "/api/me", alice.Token, nil)
	if code != fiber.StatusOK {
		t.Fatalf("me: %d %s", code, env.Message)
	}
	if me := decode[struct{ ID string }](t, env.Data); me.ID != alice.ID {
		t.Fatalf("me id = %s, want %s", me.ID, alice.ID)
	}

	if code, _ = h.do(t, "POST", "/api/auth/signout", alice.Token, nil); code != fiber.StatusOK {
		t.Fatalf("signout: %d", code)
	}

	// the signed-out token is dead for the API and for protected pages
	if code, _ = h.do(t, "GET", "/api/me", alice.Token, nil); code != fiber.StatusUnauthorized {
		t.Fatalf("me after signout: %d", code)
	}
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: alice.Token})
	resp, err := h.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusFound || resp.Header.Get("Location") != "/signin?next=%2Fdashboard" {
		t.Fatalf("dashboard after signout: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestInactiveAccountCannotSignIn(t *testing.T) {
	h := newHarness(t)
	bob := h.signUp(t, "bob")

	if err := h.db.Exec("UPDATE users SET is_active = ? WHERE id = ?", false, bob.ID).Error; err != nil {
		t.Fatal(err)
	}
	// the password is checked first, so a wrong guess learns nothing about the account
	if code, _ := h.signIn(t, "bob@example.com", "wrong-pass"); code != fiber.StatusUnauthorized {
		t.Fatalf("inactive signin with wrong password: %d", code)
	}
	if code, _ := h.signIn(t, "bob@example.com", "secret123"); code != fiber.StatusForbidden {
		t.Fatalf("inactive signin: %d", code)
	}
}

func TestPostJobAppearsOnceOnBoard(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")

	id := h.postJob(t, owner.Token, "Go backend developer", "Engineering")

	code, env := h.do(t, "GET", "/api/jobs", "", nil)
	if code != fiber.StatusOK {
		t.Fatalf("list: %d", code)
	}
	jobs := decode[[]struct {
		ID     string   `json:"id"`
		Skills []string `json:"skills"`
	}](t, env.Data)
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("jobs = %+v", jobs)
	}
	if len(jobs[0].Skills) != 2 {
		t.Fatalf("skills not deduplicated: %v", jobs[0].Skills)
	}
	if env.Meta["total_items"] != float64(1) {
		t.Fatalf("meta = %v", env.Meta)
	}

	if events := h.feed.Events("job_postings"); len(events) != 1 || events[0].Type != realtime.ChangeInsert {
		t.Fatalf("events = %+v", events)
	}
}

func TestJobValidation(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")

	code, env := h.do(t, "POST", "/api/jobs", owner.Token, map[string]any{
		"description": "x",
		"category":    "Engineering",
		"job_type":    "gig",
		"budget_min":  500,
		"budget_max":  100,
	})
	if code != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d", code)
	}
	for _, field := range []string{"title", "job_type", "budget_max"} {
		if len(env.Errors[field]) == 0 {
			t.Errorf("missing error for %s in %v", field, env.Errors)
		}
	}

	if code, _ := h.do(t, "POST", "/api/jobs", "", map[string]any{"title": "anon"}); code != fiber.StatusUnauthorized {
		t.Fatalf("anonymous post: %d", code)
	}
}

func TestJobCategoryFilterIsExact(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")
	h.postJob(t, owner.Token, "Logo designer", "Design")
	h.postJob(t, owner.Token, "Game designer", "Design Games")

	cases := []struct {
		query string
		want  int
	}{
		{"?category=Design", 1},
		{"?category=Design%20Games", 1},
		{"?category=Des", 0},
		{"?q=DESIGNER", 2},
		{"?q=logo&category=Design", 1},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			_, env := h.do(t, "GET", "/api/jobs"+tc.query, "", nil)
			if got := len(decode[[]json.RawMessage](t, env.Data)); got != tc.want {
				t.Fatalf("got %d jobs, want %d", got, tc.want)
			}
		})
	}

	_, env := h.do(t, "GET", "/api/jobs/categories", "", nil)
	if cats := decode[[]string](t, env.Data); len(cats) != 2 || cats[0] != "Design" {
		t.Fatalf("categories = %v", cats)
	}
}

func TestMineRoutesBeforeIDRoutes(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")
	h.postJob(t, owner.Token, "Data engineer", "Engineering")

	if code, _ := h.do(t, "GET", "/api/jobs/mine", "", nil); code != fiber.StatusUnauthorized {
		t.Fatalf("anonymous mine: %d", code)
	}
	code, env := h.do(t, "GET", "/api/jobs/mine", owner.Token, nil)
	if code != fiber.StatusOK || len(decode[[]json.RawMessage](t, env.Data)) != 1 {
		t.Fatalf("mine: %d %s", code, env.Data)
	}
	if code, _ := h.do(t, "GET", "/api/jobs/not-a-uuid", "", nil); code != fiber.StatusBadRequest {
		t.Fatalf("bad id: %d", code)
	}
}

func TestApplicationFlow(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")
	dev := h.signUp(t, "dev")
	jobID := h.postJob(t, owner.Token, "Go backend developer", "Engineering")

	apply := map[string]any{"cover_letter": "I have shipped many Go services.", "proposed_rate": 300}

	if code, _ := h.do(t, "POST", "/api/jobs/"+jobID+"/applications", owner.Token, apply); code != fiber.StatusBadRequest {
		t.Fatalf("own job: %d", code)
	}
	code, env := h.do(t, "POST", "/api/jobs/"+jobID+"/applications", dev.Token, apply)
	if code != fiber.StatusCreated {
		t.Fatalf("apply: %d %s %v", code, env.Message, env.Errors)
	}
	appID := decode[struct{ ID string }](t, env.Data).ID
	if code, _ := h.do(t, "POST", "/api/jobs/"+jobID+"/applications", dev.Token, apply); code != fiber.StatusConflict {
		t.Fatalf("second apply: %d", code)
	}

	if code, _ := h.do(t, "PATCH", "/api/applications/"+appID+"/status", dev.Token, map[string]string{"status": "accepted"}); code != fiber.StatusForbidden {
		t.Fatalf("applicant status change: %d", code)
	}

	code, env = h.do(t, "PATCH", "/api/applications/"+appID+"/status", owner.Token, map[string]string{"status": "accepted"})
	if code != fiber.StatusOK || env.Changed == nil || !*env.Changed {
		t.Fatalf("accept: %d changed=%v", code, env.Changed)
	}
	code, env = h.do(t, "PATCH", "/api/applications/"+appID+"/status", owner.Token, map[string]string{"status": "accepted"})
	if code != fiber.StatusOK || env.Changed == nil || *env.Changed {
		t.Fatalf("repeat accept: %d changed=%v", code, env.Changed)
	}

	// only pending applications can be withdrawn
	if code, _ := h.do(t, "POST", "/api/applications/"+appID+"/withdraw", dev.Token, nil); code != fiber.StatusBadRequest {
		t.Fatalf("withdraw accepted: %d", code)
	}

	events := h.feed.Events("job_applications")
	if len(events) != 2 {
		t.Fatalf("got %d application events, want 2 (insert + one update)", len(events))
	}
	for _, ev := range events {
		if len(ev.Audience) != 2 {
			t.Fatalf("audience = %v", ev.Audience)
		}
		seen := map[string]bool{}
		for _, u := range ev.Audience {
			seen[u.String()] = true
		}
		if !seen[owner.ID] || !seen[dev.ID] {
			t.Fatalf("audience %v lacks owner or applicant", ev.Audience)
		}
	}

	_, env = h.do(t, "GET", "/api/dashboard/stats", owner.Token, nil)
	stats := decode[map[string]int64](t, env.Data)
	if stats["jobs_posted"] != 1 || stats["jobs_open"] != 1 || stats["applications_received"] != 1 || stats["applications_pending"] != 0 {
		t.Fatalf("owner stats = %v", stats)
	}
	_, env = h.do(t, "GET", "/api/dashboard/stats", dev.Token, nil)
	if stats := decode[map[string]int64](t, env.Data); stats["applications_sent"] != 1 || stats["jobs_posted"] != 0 {
		t.Fatalf("applicant stats = %v", stats)
	}
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]namedFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for field, list := range files {
		for _, f := range list {
			part, err := w.CreateFormFile(field, f.name)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := part.Write(f.body); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type namedFile struct {
	name string
	body []byte
}

func TestApplyWithAttachments_OversizeRejected(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")
	dev := h.signUp(t, "dev")
	jobID := h.postJob(t, owner.Token, "Go backend developer", "Engineering")

	req := multipartRequest(t, "/api/jobs/"+jobID+"/applications",
		map[string]string{"cover_letter": "Please see my attached work.", "proposed_rate": "250"},
		map[string][]namedFile{"attachments": {
			{"small.pdf", bytes.Repeat([]byte("a"), 100)},
			{"huge.pdf", bytes.Repeat([]byte("b"), testMaxBytes+1)},
		}},
	)
	code, env := h.send(t, req, dev.Token)
	if code != fiber.StatusCreated {
		t.Fatalf("apply: %d %s", code, env.Message)
	}
	if len(env.Rejected) != 1 || env.Rejected[0].Name != "huge.pdf" {
		t.Fatalf("rejected = %+v", env.Rejected)
	}
	app := decode[struct {
		Attachments []string `json:"attachments"`
	}](t, env.Data)
	if len(app.Attachments) != 1 {
		t.Fatalf("attachments = %v", app.Attachments)
	}
	if uploads := h.bucket.Uploads(); len(uploads) != 1 || uploads[0] != "applications/small.pdf" {
		t.Fatalf("bucket saw %v", uploads)
	}
}

func TestStorageUpload(t *testing.T) {
	h := newHarness(t)
	user := h.signUp(t, "uploader")

	big := multipartRequest(t, "/api/storage/upload?folder=docs", nil,
		map[string][]namedFile{"file": {{"big.png", bytes.Repeat([]byte("x"), testMaxBytes+1)}}})
	if code, _ := h.send(t, big, user.Token); code != fiber.StatusBadRequest {
		t.Fatalf("oversize: %d", code)
	}
	if n := len(h.bucket.Uploads()); n != 0 {
		t.Fatalf("oversize file reached the bucket (%d uploads)", n)
	}

	small := multipartRequest(t, "/api/storage/upload?folder=docs", nil,
		map[string][]namedFile{"file": {{"ok.png", []byte("png")}}})
	code, env := h.send(t, small, user.Token)
	if code != fiber.StatusOK {
		t.Fatalf("upload: %d %s", code, env.Message)
	}
	if got := decode[struct{ URL string }](t, env.Data).URL; got != "http://files.test/docs/ok.png" {
		t.Fatalf("url = %q", got)
	}
}

func TestBookingTransitions(t *testing.T) {
	h := newHarness(t)
	seller := h.signUp(t, "seller")
	buyer := h.signUp(t, "buyer")

	code, env := h.do(t, "POST", "/api/gigs", seller.Token, map[string]any{
		"title": "Logo design", "category": "Design", "price": 150, "delivery_days": 3,
	})
	if code != fiber.StatusCreated {
		t.Fatalf("create gig: %d %v", code, env.Errors)
	}
	gigID := decode[struct{ ID string }](t, env.Data).ID

	if code, _ := h.do(t, "POST", "/api/gigs/"+gigID+"/bookings", seller.Token, map[string]string{"requirements": "my own gig"}); code != fiber.StatusBadRequest {
		t.Fatalf("self booking: %d", code)
	}
	code, env = h.do(t, "POST", "/api/gigs/"+gigID+"/bookings", buyer.Token, map[string]string{"requirements": "A fox logo, please"})
	if code != fiber.StatusCreated {
		t.Fatalf("book: %d %s", code, env.Message)
	}
	booking := decode[struct {
		ID    string
		Price int64
		GigID string `json:"gig_id"`
	}](t, env.Data)
	if booking.Price != 150 || booking.GigID != gigID {
		t.Fatalf("booking = %+v", booking)
	}
	path := "/api/bookings/" + booking.ID + "/status"

	steps := []struct {
		name    string
		token   string
		status  string
		code    int
		changed bool
	}{
		{"buyer cannot accept", buyer.Token, "accepted", fiber.StatusForbidden, false},
		{"seller accepts", seller.Token, "accepted", fiber.StatusOK, true},
		{"repeat accept", seller.Token, "accepted", fiber.StatusOK, false},
		{"seller completes", seller.Token, "completed", fiber.StatusOK, true},
		{"buyer cannot cancel completed", buyer.Token, "cancelled", fiber.StatusBadRequest, false},
	}
	for _, st := range steps {
		code, env := h.do(t, "PATCH", path, st.token, map[string]string{"status": st.status})
		if code != st.code {
			t.Fatalf("%s: status %d, want %d (%s)", st.name, code, st.code, env.Message)
		}
		if code == fiber.StatusOK && (env.Changed == nil || *env.Changed != st.changed) {
			t.Fatalf("%s: changed = %v, want %v", st.name, env.Changed, st.changed)
		}
	}

	for _, ev := range h.feed.Events("gig_bookings") {
		if len(ev.Audience) != 2 {
			t.Fatalf("booking event audience = %v", ev.Audience)
		}
	}

	_, env = h.do(t, "GET", "/api/bookings?role=seller", seller.Token, nil)
	if got := decode[[]json.RawMessage](t, env.Data); len(got) != 1 {
		t.Fatalf("seller bookings = %d", len(got))
	}
	if code, _ := h.do(t, "GET", "/api/bookings?role=owner", seller.Token, nil); code != fiber.StatusBadRequest {
		t.Fatalf("bad role: %d", code)
	}
}

func TestChatbot(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(t, "POST", "/api/chatbot", "", map[string]string{"message": "How do I post a job?"})
	if code != fiber.StatusOK {
		t.Fatalf("chatbot: %d %s", code, env.Message)
	}
	if reply := decode[struct{ Reply string }](t, env.Data).Reply; !strings.Contains(reply, "Post Job") {
		t.Fatalf("reply = %q", reply)
	}

	if code, env := h.do(t, "POST", "/api/chatbot", "", map[string]string{"message": ""}); code != fiber.StatusUnprocessableEntity || len(env.Errors["message"]) == 0 {
		t.Fatalf("empty message: %d %v", code, env.Errors)
	}
}

func TestAdminRoutesNeedAdminRole(t *testing.T) {
	h := newHarness(t)
	user := h.signUp(t, "plain")

	if code, _ := h.do(t, "GET", "/api/admin/users", user.Token, nil); code != fiber.StatusForbidden {
		t.Fatalf("admin list as user: %d", code)
	}
}

func TestErrorEnvelope(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(t, "GET", "/api/me", "", nil)
	if code != fiber.StatusUnauthorized || env.Success || env.Message == "" {
		t.Fatalf("unauthenticated: %d %+v", code, env)
	}

	req := httptest.NewRequest("POST", "/api/auth/signin", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	if code, env := h.send(t, req, ""); code != fiber.StatusBadRequest || env.Success {
		t.Fatalf("bad body: %d %+v", code, env)
	}
}
