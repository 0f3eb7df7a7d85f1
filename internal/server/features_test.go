package server_test

import (
	"bytes"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/finitixhub/finitix_be/internal/config"
)

func TestProposalAcceptMatchesExchange(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")
	proposers := []account{h.signUp(t, "ann"), h.signUp(t, "ben"), h.signUp(t, "cat")}
	late := h.signUp(t, "dan")

	code, env := h.do(t, "POST", "/api/skill-exchanges", owner.Token, map[string]string{
		"skill_offered": "Go", "skill_wanted": "Illustration",
	})
	if code != fiber.StatusCreated {
		t.Fatalf("create exchange: %d %v", code, env.Errors)
	}
	exID := decode[struct{ ID string }](t, env.Data).ID

	if code, _ := h.do(t, "POST", "/api/skill-exchanges/"+exID+"/proposals", owner.Token, map[string]string{"skill_offered": "Go"}); code != fiber.StatusBadRequest {
		t.Fatalf("own proposal: %d", code)
	}

	ids := make([]string, 0, len(proposers))
	for _, p := range proposers {
		code, env := h.do(t, "POST", "/api/skill-exchanges/"+exID+"/proposals", p.Token, map[string]string{
			"skill_offered": "Illustration", "message": "Happy to swap",
		})
		if code != fiber.StatusCreated {
			t.Fatalf("propose: %d %s", code, env.Message)
		}
		ids = append(ids, decode[struct{ ID string }](t, env.Data).ID)
	}
	if code, _ := h.do(t, "POST", "/api/skill-exchanges/"+exID+"/proposals", proposers[0].Token, map[string]string{"skill_offered": "Illustration"}); code != fiber.StatusConflict {
		t.Fatalf("second pending proposal: %d", code)
	}

	path := "/api/exchange-proposals/" + ids[0] + "/status"
	if code, _ := h.do(t, "PATCH", path, proposers[0].Token, map[string]string{"status": "accepted"}); code != fiber.StatusForbidden {
		t.Fatalf("proposer answers own proposal: %d", code)
	}
	code, env = h.do(t, "PATCH", path, owner.Token, map[string]string{"status": "accepted"})
	if code != fiber.StatusOK || env.Changed == nil || !*env.Changed {
		t.Fatalf("accept: %d changed=%v", code, env.Changed)
	}

	_, env = h.do(t, "GET", "/api/skill-exchanges/"+exID, "", nil)
	if ex := decode[struct{ Status string }](t, env.Data); ex.Status != "matched" {
		t.Fatalf("exchange status = %s", ex.Status)
	}

	_, env = h.do(t, "GET", "/api/skill-exchanges/"+exID+"/proposals", owner.Token, nil)
	got := map[string]string{}
	for _, p := range decode[[]struct{ ID, Status string }](t, env.Data) {
		got[p.ID] = p.Status
	}
	want := map[string]string{ids[0]: "accepted", ids[1]: "rejected", ids[2]: "rejected"}
	for id, status := range want {
		if got[id] != status {
			t.Errorf("proposal %s = %q, want %q", id, got[id], status)
		}
	}

	if code, _ := h.do(t, "PATCH", "/api/exchange-proposals/"+ids[1]+"/status", owner.Token, map[string]string{"status": "accepted"}); code != fiber.StatusBadRequest {
		t.Fatalf("accept rejected proposal: %d", code)
	}
	if code, _ := h.do(t, "POST", "/api/skill-exchanges/"+exID+"/proposals", late.Token, map[string]string{"skill_offered": "Illustration"}); code != fiber.StatusBadRequest {
		t.Fatalf("propose on matched exchange: %d", code)
	}

	// every proposal event reaches only its proposer and the owner
	for _, ev := range h.feed.Events("exchange_proposals") {
		if len(ev.Audience) != 2 {
			t.Fatalf("proposal event audience = %v", ev.Audience)
		}
	}
}

func TestAcceptedAnswerIsSingle(t *testing.T) {
	h := newHarness(t)
	asker := h.signUp(t, "asker")
	first := h.signUp(t, "first")
	second := h.signUp(t, "second")

	code, env := h.do(t, "POST", "/api/questions", asker.Token, map[string]any{
		"title": "Which ORM for Go?", "body": "Comparing gorm with plain database/sql.", "tags": []string{"go", "sql"},
	})
	if code != fiber.StatusCreated {
		t.Fatalf("question: %d %v", code, env.Errors)
	}
	qID := decode[struct{ ID string }](t, env.Data).ID

	answer := func(acc account, body string) string {
		code, env := h.do(t, "POST", "/api/questions/"+qID+"/answers", acc.Token, map[string]string{"body": body})
		if code != fiber.StatusCreated {
			t.Fatalf("answer: %d %v", code, env.Errors)
		}
		return decode[struct{ ID string }](t, env.Data).ID
	}
	a1 := answer(first, "gorm, for the migrations.")
	a2 := answer(second, "database/sql with sqlc.")

	type detail struct {
		Status  string `json:"status"`
		Answers []struct {
			ID         string `json:"id"`
			IsAccepted bool   `json:"is_accepted"`
		} `json:"answers"`
	}
	load := func() detail {
		code, env := h.do(t, "GET", "/api/questions/"+qID, "", nil)
		if code != fiber.StatusOK {
			t.Fatalf("get question: %d", code)
		}
		return decode[detail](t, env.Data)
	}
	accepted := func(d detail) []string {
		var out []string
		for _, a := range d.Answers {
			if a.IsAccepted {
				out = append(out, a.ID)
			}
		}
		return out
	}

	if code, _ := h.do(t, "POST", "/api/answers/"+a1+"/accept", first.Token, nil); code != fiber.StatusForbidden {
		t.Fatalf("answerer accepts: %d", code)
	}

	steps := []struct {
		answer  string
		changed bool
	}{
		{a1, true},
		{a1, false},
		{a2, true},
	}
	for _, st := range steps {
		code, env := h.do(t, "POST", "/api/answers/"+st.answer+"/accept", asker.Token, nil)
		if code != fiber.StatusOK || env.Changed == nil || *env.Changed != st.changed {
			t.Fatalf("accept %s: %d changed=%v", st.answer, code, env.Changed)
		}
	}

	d := load()
	if d.Status != "answered" {
		t.Fatalf("status = %s", d.Status)
	}
	if acc := accepted(d); len(acc) != 1 || acc[0] != a2 {
		t.Fatalf("accepted = %v, want [%s]", acc, a2)
	}
	if d.Answers[0].ID != a2 {
		t.Fatalf("accepted answer not listed first: %+v", d.Answers)
	}

	if code, _ := h.do(t, "DELETE", "/api/answers/"+a2, first.Token, nil); code != fiber.StatusForbidden {
		t.Fatalf("foreign answer delete: %d", code)
	}
	if code, _ := h.do(t, "DELETE", "/api/answers/"+a2, second.Token, nil); code != fiber.StatusOK {
		t.Fatalf("delete accepted answer: %d", code)
	}
	d = load()
	if d.Status != "open" || len(d.Answers) != 1 || len(accepted(d)) != 0 {
		t.Fatalf("after delete = %+v", d)
	}
}

func TestProfileUpdateAndAvatar(t *testing.T) {
	h := newHarness(t)
	alice := h.signUp(t, "alice")
	h.signUp(t, "bobby")

	updates := []struct {
		name  string
		body  map[string]any
		code  int
		field string
	}{
		{"taken username", map[string]any{"username": "bobby"}, fiber.StatusUnprocessableEntity, "username"},
		{"taken username any case", map[string]any{"username": "BOBBY"}, fiber.StatusUnprocessableEntity, "username"},
		{"bad characters", map[string]any{"username": "al ice!"}, fiber.StatusUnprocessableEntity, "username"},
		{"bad website", map[string]any{"website": "not a url"}, fiber.StatusUnprocessableEntity, "website"},
		{"keep own username", map[string]any{"username": "alice", "headline": "Gopher"}, fiber.StatusOK, ""},
		{"rename", map[string]any{"username": "alice.dev", "skills": []string{"go", "Go", "sql"}}, fiber.StatusOK, ""},
	}
	for _, u := range updates {
		t.Run(u.name, func(t *testing.T) {
			code, env := h.do(t, "PUT", "/api/profile", alice.Token, u.body)
			if code != u.code {
				t.Fatalf("status %d, want %d (%v)", code, u.code, env.Errors)
			}
			if u.field != "" && len(env.Errors[u.field]) == 0 {
				t.Fatalf("no error for %s: %v", u.field, env.Errors)
			}
		})
	}

	code, env := h.do(t, "GET", "/api/profiles/alice.dev", "", nil)
	if code != fiber.StatusOK {
		t.Fatalf("public profile: %d", code)
	}
	pub := decode[struct {
		Profile struct {
			Headline string   `json:"headline"`
			Skills   []string `json:"skills"`
		} `json:"profile"`
	}](t, env.Data)
	if pub.Profile.Headline != "Gopher" || len(pub.Profile.Skills) != 2 {
		t.Fatalf("public profile = %+v", pub.Profile)
	}
	if code, _ := h.do(t, "GET", "/api/profiles/alice", "", nil); code != fiber.StatusNotFound {
		t.Fatalf("old username: %d", code)
	}

	avatars := []struct {
		name string
		file namedFile
		code int
	}{
		{"not an image", namedFile{"me.pdf", []byte("pdf")}, fiber.StatusBadRequest},
		{"too large", namedFile{"me.png", bytes.Repeat([]byte("p"), testMaxBytes+1)}, fiber.StatusBadRequest},
		{"ok", namedFile{"me.png", []byte("png")}, fiber.StatusOK},
	}
	for _, a := range avatars {
		req := multipartRequest(t, "/api/profile/avatar", nil, map[string][]namedFile{"avatar": {a.file}})
		code, env := h.send(t, req, alice.Token)
		if code != a.code {
			t.Fatalf("%s: %d %s", a.name, code, env.Message)
		}
		if code == fiber.StatusOK {
			if got := decode[struct {
				AvatarURL string `json:"avatar_url"`
			}](t, env.Data).AvatarURL; got != "http://files.test/avatars/me.png" {
				t.Fatalf("avatar_url = %q", got)
			}
		}
	}
	if uploads := h.bucket.Uploads(); len(uploads) != 1 {
		t.Fatalf("bucket saw %v", uploads)
	}
}

func TestProjectUploadFiles(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "maker")

	bad := multipartRequest(t, "/api/projects",
		map[string]string{"title": "Robot arm", "category": "Hardware"},
		map[string][]namedFile{"cover": {{"cover.txt", []byte("txt")}}})
	if code, _ := h.send(t, bad, owner.Token); code != fiber.StatusBadRequest {
		t.Fatalf("non-image cover: %d", code)
	}

	req := multipartRequest(t, "/api/projects",
		map[string]string{"title": "Robot arm", "category": "Hardware", "repo_url": "https://github.com/example/arm"},
		map[string][]namedFile{
			"cover": {{"cover.png", []byte("png")}},
			"files": {
				{"wiring.pdf", []byte("pdf")},
				{"demo.mp4", bytes.Repeat([]byte("v"), testMaxBytes+1)},
				{"empty.txt", nil},
			},
		})
	code, env := h.send(t, req, owner.Token)
	if code != fiber.StatusCreated {
		t.Fatalf("create: %d %s %v", code, env.Message, env.Errors)
	}
	rejected := map[string]bool{}
	for _, r := range env.Rejected {
		rejected[r.Name] = true
	}
	if len(env.Rejected) != 2 || !rejected["demo.mp4"] || !rejected["empty.txt"] {
		t.Fatalf("rejected = %+v", env.Rejected)
	}
	project := decode[struct {
		ID       string   `json:"id"`
		Status   string   `json:"status"`
		CoverURL string   `json:"cover_url"`
		Files    []string `json:"files"`
	}](t, env.Data)
	if project.Status != "published" || project.CoverURL != "http://files.test/projects/covers/cover.png" {
		t.Fatalf("project = %+v", project)
	}
	if len(project.Files) != 1 || project.Files[0] != "http://files.test/projects/wiring.pdf" {
		t.Fatalf("files = %v", project.Files)
	}

	// files sent with an update are appended
	upd := multipartRequest(t, "/api/projects/"+project.ID,
		map[string]string{"title": "Robot arm v2", "category": "Hardware"},
		map[string][]namedFile{"files": {{"bom.csv", []byte("csv")}}})
	upd.Method = "PUT"
	code, env = h.send(t, upd, owner.Token)
	if code != fiber.StatusOK {
		t.Fatalf("update: %d %s", code, env.Message)
	}
	if files := decode[struct{ Files []string }](t, env.Data).Files; len(files) != 2 {
		t.Fatalf("files after update = %v", files)
	}
}

func TestEduTasks(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "tutor")
	other := h.signUp(t, "pupil")

	if code, env := h.do(t, "POST", "/api/edutasks", owner.Token, map[string]any{"title": "Algebra"}); code != fiber.StatusUnprocessableEntity || len(env.Errors["subject"]) == 0 {
		t.Fatalf("missing subject: %d %v", code, env.Errors)
	}
	code, env := h.do(t, "POST", "/api/edutasks", owner.Token, map[string]any{
		"title": "Algebra homework", "subject": "Math", "reward": 50,
	})
	if code != fiber.StatusCreated {
		t.Fatalf("create: %d %v", code, env.Errors)
	}
	taskID := decode[struct{ ID string }](t, env.Data).ID
	h.do(t, "POST", "/api/edutasks", other.Token, map[string]any{"title": "Essay outline", "subject": "English"})

	lists := []struct {
		query string
		token string
		code  int
		want  int
	}{
		{"", "", fiber.StatusOK, 2},
		{"?subject=Math", "", fiber.StatusOK, 1},
		{"?subject=Ma", "", fiber.StatusOK, 0},
		{"?mine=true", "", fiber.StatusUnauthorized, 0},
		{"?mine=true", other.Token, fiber.StatusOK, 1},
		{"?status=done", "", fiber.StatusOK, 0},
	}
	for _, l := range lists {
		code, env := h.do(t, "GET", "/api/edutasks"+l.query, l.token, nil)
		if code != l.code {
			t.Fatalf("list %q: %d, want %d", l.query, code, l.code)
		}
		if code == fiber.StatusOK {
			if got := len(decode[[]json.RawMessage](t, env.Data)); got != l.want {
				t.Fatalf("list %q: %d tasks, want %d", l.query, got, l.want)
			}
		}
	}

	path := "/api/edutasks/" + taskID + "/status"
	steps := []struct {
		token   string
		status  string
		code    int
		changed bool
	}{
		{other.Token, "in_progress", fiber.StatusForbidden, false},
		{owner.Token, "finished", fiber.StatusUnprocessableEntity, false},
		{owner.Token, "in_progress", fiber.StatusOK, true},
		{owner.Token, "in_progress", fiber.StatusOK, false},
		{owner.Token, "done", fiber.StatusOK, true},
	}
	for i, st := range steps {
		code, env := h.do(t, "PATCH", path, st.token, map[string]string{"status": st.status})
		if code != st.code {
			t.Fatalf("step %d: %d, want %d", i, code, st.code)
		}
		if code == fiber.StatusOK && (env.Changed == nil || *env.Changed != st.changed) {
			t.Fatalf("step %d: changed = %v", i, env.Changed)
		}
	}

	if code, _ := h.do(t, "DELETE", "/api/edutasks/"+taskID, other.Token, nil); code != fiber.StatusForbidden {
		t.Fatalf("foreign delete: %d", code)
	}
	if code, _ := h.do(t, "DELETE", "/api/edutasks/"+taskID, owner.Token, nil); code != fiber.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if n := len(h.feed.Events("edu_tasks")); n != 5 {
		t.Fatalf("edu task events = %d, want 5", n)
	}
}

func TestDashboardActivity(t *testing.T) {
	h := newHarness(t)
	owner := h.signUp(t, "owner")
	dev := h.signUp(t, "dev")

	jobID := h.postJob(t, owner.Token, "Go backend developer", "Engineering")
	if code, _ := h.do(t, "POST", "/api/jobs/"+jobID+"/applications", dev.Token, map[string]any{"cover_letter": "Hire me for this role, please.", "proposed_rate": 200}); code != fiber.StatusCreated {
		t.Fatalf("apply: %d", code)
	}

	code, env := h.do(t, "POST", "/api/gigs", dev.Token, map[string]any{
		"title": "API review", "category": "Engineering", "price": 80, "delivery_days": 2,
	})
	if code != fiber.StatusCreated {
		t.Fatalf("gig: %d %v", code, env.Errors)
	}
	gigID := decode[struct{ ID string }](t, env.Data).ID
	if code, _ := h.do(t, "POST", "/api/gigs/"+gigID+"/bookings", owner.Token, map[string]string{"requirements": "Review my handlers"}); code != fiber.StatusCreated {
		t.Fatalf("book: %d", code)
	}

	type activity struct {
		Applications []struct {
			JobID string `json:"job_id"`
		} `json:"applications"`
		Bookings []json.RawMessage `json:"bookings"`
	}
	cases := []struct {
		name     string
		token    string
		apps     int
		bookings int
	}{
		{"job owner and buyer", owner.Token, 1, 1},
		{"applicant and seller", dev.Token, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := h.do(t, "GET", "/api/dashboard/activity", tc.token, nil)
			if code != fiber.StatusOK {
				t.Fatalf("activity: %d", code)
			}
			a := decode[activity](t, env.Data)
			if len(a.Applications) != tc.apps || len(a.Bookings) != tc.bookings {
				t.Fatalf("activity = %d applications, %d bookings", len(a.Applications), len(a.Bookings))
			}
			if tc.apps > 0 && a.Applications[0].JobID != jobID {
				t.Fatalf("application job = %s", a.Applications[0].JobID)
			}
		})
	}

	if code, _ := h.do(t, "GET", "/api/dashboard/activity", "", nil); code != fiber.StatusUnauthorized {
		t.Fatalf("anonymous activity: %d", code)
	}
}

func TestGigFiltersAndEncryptedIDs(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.IDEncryptKey = "0123456789abcdef" })
	seller := h.signUp(t, "seller")

	titles := map[int64]string{50: "Icon set", 150: "Logo design", 300: "Brand book"}
	for _, price := range []int64{50, 150, 300} {
		code, env := h.do(t, "POST", "/api/gigs", seller.Token, map[string]any{
			"title": titles[price], "category": "Design", "price": price, "delivery_days": 3,
		})
		if code != fiber.StatusCreated {
			t.Fatalf("create gig: %d %v", code, env.Errors)
		}
	}

	type row struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Price int64  `json:"price"`
	}
	cases := []struct {
		query     string
		want      int
		firstCost int64
	}{
		{"", 3, 0},
		{"?min=100", 2, 0},
		{"?max=100", 1, 50},
		{"?min=100&max=200", 1, 150},
		{"?sort=price_low", 3, 50},
		{"?sort=price_high", 3, 300},
		{"?category=Design&sort=price_high&min=60", 2, 300},
		{"?q=logo", 1, 150},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			_, env := h.do(t, "GET", "/api/gigs"+tc.query, "", nil)
			rows := decode[[]row](t, env.Data)
			if len(rows) != tc.want {
				t.Fatalf("got %d gigs, want %d", len(rows), tc.want)
			}
			if tc.firstCost != 0 && rows[0].Price != tc.firstCost {
				t.Fatalf("first price = %d, want %d", rows[0].Price, tc.firstCost)
			}
		})
	}

	_, env := h.do(t, "GET", "/api/gigs?sort=price_low", "", nil)
	for _, r := range decode[[]row](t, env.Data) {
		if _, err := strconv.Atoi(r.ID); err == nil {
			t.Fatalf("gig id %q is not opaque", r.ID)
		}
		code, env := h.do(t, "GET", "/api/gigs/"+r.ID, "", nil)
		if code != fiber.StatusOK {
			t.Fatalf("get %s: %d", r.ID, code)
		}
		got := decode[struct {
			Gig struct{ Title string } `json:"gig"`
		}](t, env.Data)
		if got.Gig.Title != r.Title {
			t.Fatalf("round trip %s = %q, want %q", r.ID, got.Gig.Title, r.Title)
		}
	}

	for _, id := range []string{"1", "not-an-id"} {
		if code, _ := h.do(t, "GET", "/api/gigs/"+id, "", nil); code != fiber.StatusBadRequest {
			t.Fatalf("get %q: %d", id, code)
		}
	}
}
