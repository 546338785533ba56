package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/herdbook/internal/handler"
	"github.com/iliyamo/herdbook/internal/middleware"
	"github.com/iliyamo/herdbook/internal/repository/memory"
	"github.com/iliyamo/herdbook/internal/router"
	"github.com/iliyamo/herdbook/internal/service"
	"github.com/iliyamo/herdbook/internal/storage"
)

const jwtSecret = "router-test-secret"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{7}, 40)...)

type app struct {
	url       string
	uploadDir string
	users     *memory.UserRepo
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := filepath.Join(t.TempDir(), "uploads")
	assets, err := storage.NewLocal(dir, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	users := memory.NewUserRepo()
	authSvc := service.NewAuthService(users, memory.NewTokenRepo(), nil, service.AuthConfig{
		Secret:     jwtSecret,
		AccessTTL:  time.Hour,
		RefreshTTL: time.Hour,
		VerifyTTL:  time.Hour,
		BcryptCost: 4,
	}, logger)
	animalSvc := service.NewAnimalService(memory.NewAnimalRepo(), assets, logger)

	e := router.New(router.Deps{
		Logger:    logger,
		Auth:      handler.NewAuthHandler(authSvc, time.Second, logger),
		Animals:   handler.NewAnimalHandler(animalSvc, time.Second, logger),
		Users:     handler.NewUserHandler(service.NewProfileService(users), time.Second, logger),
		JWTAuth:   middleware.JWTAuth(jwtSecret, users, logger),
		UploadDir: dir,
		UploadMax: 1 << 20,
	})
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return &app{url: ts.URL, uploadDir: dir, users: users}
}

func (a *app) do(t *testing.T, method, p, token string, body io.Reader, contentType string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, a.url+p, body)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res.StatusCode, b
}

func (a *app) json(t *testing.T, method, p, token string, payload any) (int, []byte) {
	t.Helper()
	b, _ := json.Marshal(payload)
	return a.do(t, method, p, token, bytes.NewReader(b), "application/json")
}

type upload struct {
	name    string
	content []byte
}

func (a *app) form(t *testing.T, method, p, token string, fields map[string]string, img *upload) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	if img != nil {
		part, err := w.CreateFormFile("image", img.name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(img.content)
	}
	_ = w.Close()
	return a.do(t, method, p, token, &buf, w.FormDataContentType())
}

func (a *app) register(t *testing.T, email string) (token string, id uint64) {
	t.Helper()
	st, body := a.json(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "User " + email, "email": email, "password": "secret1",
	})
	if st != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, st, body)
	}
	var out struct {
		User   struct{ ID uint64 }
		Access struct{ Token string }
	}
	mustDecode(t, body, &out)
	return out.Access.Token, out.User.ID
}

type animalJSON struct {
	ID        uint64  `json:"id"`
	Number    string  `json:"number"`
	Type      string  `json:"type"`
	Age       string  `json:"age"`
	Status    string  `json:"status"`
	Color     string  `json:"status_color"`
	Gender    string  `json:"gender"`
	Image     *string `json:"image"`
	UserID    uint64  `json:"user_id"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func mustDecode(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func (a *app) fileExists(urlPath string) bool {
	_, err := os.Stat(filepath.Join(a.uploadDir, path.Base(urlPath)))
	return err == nil
}

func cowFields(number string) map[string]string {
	return map[string]string{"number": number, "type": "cow", "age": "2020-06-15", "status": "active", "gender": "female"}
}

func TestHTTP_AnimalLifecycle(t *testing.T) {
	a := newApp(t)
	tok, uid := a.register(t, "owner@herd.test")
	other, _ := a.register(t, "other@herd.test")

	// Create with a photo.
	st, body := a.form(t, http.MethodPost, "/animals", tok, cowFields("A1"), &upload{"cow.png", pngBytes})
	if st != http.StatusCreated {
		t.Fatalf("create: %d %s", st, body)
	}
	var created animalJSON
	mustDecode(t, body, &created)
	if created.Number != "A1" || created.Type != "cow" || created.Age != "2020-06-15" ||
		created.Status != "active" || created.Color != "success" || created.Gender != "female" ||
		created.UserID != uid || created.Image == nil {
		t.Fatalf("created = %+v", created)
	}
	if !a.fileExists(*created.Image) {
		t.Fatal("uploaded image not on disk")
	}
	if st, _ := a.do(t, http.MethodGet, *created.Image, "", nil, ""); st != http.StatusOK {
		t.Fatalf("serving %s: %d", *created.Image, st)
	}

	// GET returns the identical record.
	idPath := fmt.Sprintf("/animals/%d", created.ID)
	st, body = a.do(t, http.MethodGet, idPath, tok, nil, "")
	var fetched animalJSON
	mustDecode(t, body, &fetched)
	if st != http.StatusOK || fetched.ID != created.ID || fetched.Number != created.Number ||
		*fetched.Image != *created.Image || fetched.CreatedAt != created.CreatedAt {
		t.Fatalf("get: %d %+v", st, fetched)
	}

	// Another owner cannot see, change or delete it.
	for _, m := range []string{http.MethodGet, http.MethodDelete} {
		if st, body := a.do(t, m, idPath, other, nil, ""); st != http.StatusNotFound || !strings.Contains(string(body), "Animal not found") {
			t.Fatalf("%s as other owner: %d %s", m, st, body)
		}
	}
	if st, _ := a.form(t, http.MethodPut, idPath, other, map[string]string{"status": "sold"}, nil); st != http.StatusNotFound {
		t.Fatalf("update as other owner: %d", st)
	}

	// Duplicate number, even for another owner.
	st, body = a.form(t, http.MethodPost, "/animals", other, cowFields("A1"), nil)
	if st != http.StatusBadRequest || !strings.Contains(string(body), "Animal number already exists") {
		t.Fatalf("duplicate: %d %s", st, body)
	}
	st, body = a.do(t, http.MethodGet, "/animals", other, nil, "")
	if st != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("other owner's list: %d %s", st, body)
	}

	// Partial update: status only.
	st, body = a.form(t, http.MethodPut, idPath, tok, map[string]string{"status": "sold"}, nil)
	if st != http.StatusOK {
		t.Fatalf("update: %d %s", st, body)
	}
	var updated animalJSON
	mustDecode(t, body, &updated)
	if updated.Status != "sold" || updated.Color != "warning" || updated.Number != "A1" || updated.Type != "cow" ||
		updated.Age != created.Age || updated.Gender != "female" || *updated.Image != *created.Image {
		t.Fatalf("partial update changed other fields: %+v", updated)
	}

	// Replace the photo.
	st, body = a.form(t, http.MethodPut, idPath, tok, nil, &upload{"new.gif", []byte("GIF89a\x01\x00\x01\x00")})
	if st != http.StatusOK {
		t.Fatalf("replace image: %d %s", st, body)
	}
	mustDecode(t, body, &updated)
	if *updated.Image == *created.Image || !a.fileExists(*updated.Image) {
		t.Fatalf("new image missing: %+v", updated)
	}
	if a.fileExists(*created.Image) {
		t.Fatal("old image was not removed")
	}

	// Delete removes row and file.
	st, body = a.do(t, http.MethodDelete, idPath, tok, nil, "")
	if st != http.StatusOK || !strings.Contains(string(body), "Animal deleted successfully") {
		t.Fatalf("delete: %d %s", st, body)
	}
	if a.fileExists(*updated.Image) {
		t.Fatal("image left behind after delete")
	}
	if st, _ := a.do(t, http.MethodGet, idPath, tok, nil, ""); st != http.StatusNotFound {
		t.Fatalf("get after delete: %d", st)
	}
}

func TestHTTP_CreateValidation(t *testing.T) {
	a := newApp(t)
	tok, _ := a.register(t, "v@herd.test")

	missing := cowFields("X1")
	delete(missing, "gender")
	badType := cowFields("X2")
	badType["type"] = "sheep"

	cases := []struct {
		name   string
		fields map[string]string
		img    *upload
		msg    string
	}{
		{"missing field", missing, nil, "All fields are required"},
		{"bad type", badType, nil, "Invalid animal type"},
		{"non-image upload", cowFields("X3"), &upload{"doc.pdf", []byte("%PDF-1.4")}, "Only image files are allowed"},
		{"oversized image", cowFields("X4"), &upload{"big.png", append(pngBytes, make([]byte, 1<<20)...)}, "Image exceeds size limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, body := a.form(t, http.MethodPost, "/animals", tok, tc.fields, tc.img)
			if st != http.StatusBadRequest || !strings.Contains(string(body), tc.msg) {
				t.Fatalf("got %d %s, want 400 %q", st, body, tc.msg)
			}
		})
	}
	entries, _ := os.ReadDir(a.uploadDir)
	if len(entries) != 0 {
		t.Fatalf("rejected creates left %d files", len(entries))
	}
}

func TestHTTP_ListFilters(t *testing.T) {
	a := newApp(t)
	tok, _ := a.register(t, "list@herd.test")

	if st, body := a.form(t, http.MethodPost, "/animals", tok, cowFields("A1"), nil); st != http.StatusCreated {
		t.Fatalf("create A1: %d %s", st, body)
	}
	goat := map[string]string{"number": "A2", "type": "goat", "age": "2022-01-01", "status": "sold", "gender": "male"}
	if st, body := a.form(t, http.MethodPost, "/animals", tok, goat, nil); st != http.StatusCreated {
		t.Fatalf("create A2: %d %s", st, body)
	}

	numbers := func(q string) []string {
		st, body := a.do(t, http.MethodGet, "/animals"+q, tok, nil, "")
		if st != http.StatusOK {
			t.Fatalf("list %s: %d %s", q, st, body)
		}
		var list []animalJSON
		mustDecode(t, body, &list)
		out := []string{}
		for _, x := range list {
			out = append(out, x.Number)
		}
		return out
	}
	check := func(q string, want ...string) {
		t.Helper()
		got := numbers(q)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("list %q = %v, want %v", q, got, want)
		}
	}
	check("?type=cow", "A1")
	check("?search=A2", "A2")
	check("", "A2", "A1")
	check("?type=goat&status=active")
	check("?gender=male&status=sold", "A2")

	st, body := a.do(t, http.MethodGet, "/animals/stats", tok, nil, "")
	if st != http.StatusOK {
		t.Fatalf("stats: %d %s", st, body)
	}
	var stats struct {
		Total    int            `json:"total"`
		ByType   map[string]int `json:"by_type"`
		ByStatus map[string]int `json:"by_status"`
	}
	mustDecode(t, body, &stats)
	if stats.Total != 2 || stats.ByType["cow"] != 1 || stats.ByType["goat"] != 1 ||
		stats.ByStatus["active"] != 1 || stats.ByStatus["sold"] != 1 || len(stats.ByStatus) != 4 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHTTP_Authentication(t *testing.T) {
	a := newApp(t)
	tok, uid := a.register(t, "auth@herd.test")

	if st, body := a.do(t, http.MethodGet, "/animals", "", nil, ""); st != http.StatusUnauthorized || !strings.Contains(string(body), "Access token required") {
		t.Fatalf("no token: %d %s", st, body)
	}
	if st, _ := a.do(t, http.MethodGet, "/users/profile", "not-a-token", nil, ""); st != http.StatusForbidden {
		t.Fatalf("garbage token: %d", st)
	}
	tampered := tok[:len(tok)-4] + "AAAA"
	if tampered == tok {
		tampered = tok[:len(tok)-4] + "BBBB"
	}
	if st, _ := a.do(t, http.MethodGet, "/animals", tampered, nil, ""); st != http.StatusForbidden {
		t.Fatalf("tampered token: %d", st)
	}

	st, body := a.do(t, http.MethodGet, "/users/profile", tok, nil, "")
	if st != http.StatusOK {
		t.Fatalf("profile: %d %s", st, body)
	}
	var prof struct {
		ID    uint64 `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	mustDecode(t, body, &prof)
	if prof.ID != uid || prof.Email != "auth@herd.test" || prof.Name == "" {
		t.Fatalf("profile = %+v", prof)
	}
	if strings.Contains(string(body), "password") {
		t.Fatal("profile leaks the password hash")
	}

	a.users.Delete(uid)
	if st, body := a.do(t, http.MethodGet, "/users/profile", tok, nil, ""); st != http.StatusForbidden || !strings.Contains(string(body), "User not found") {
		t.Fatalf("deleted account: %d %s", st, body)
	}
}

func TestHTTP_AuthFlow(t *testing.T) {
	a := newApp(t)
	a.register(t, "flow@herd.test")

	if st, body := a.json(t, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Dup", "email": "FLOW@herd.test", "password": "secret1",
	}); st != http.StatusBadRequest || !strings.Contains(string(body), "User already exists") {
		t.Fatalf("duplicate register: %d %s", st, body)
	}
	if st, _ := a.json(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "flow@herd.test", "password": "nope12"}); st != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", st)
	}

	st, body := a.json(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "flow@herd.test", "password": "secret1"})
	if st != http.StatusOK {
		t.Fatalf("login: %d %s", st, body)
	}
	var sess struct {
		Refresh struct{ Token string }
	}
	mustDecode(t, body, &sess)

	st, body = a.json(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": sess.Refresh.Token})
	if st != http.StatusOK {
		t.Fatalf("refresh: %d %s", st, body)
	}
	var rotated struct {
		Refresh struct{ Token string }
	}
	mustDecode(t, body, &rotated)

	if st, _ := a.json(t, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": rotated.Refresh.Token}); st != http.StatusNoContent {
		t.Fatalf("logout: %d", st)
	}
	if st, _ := a.json(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": rotated.Refresh.Token}); st != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: %d", st)
	}
	if st, _ := a.do(t, http.MethodGet, "/auth/verify/garbage", "", nil, ""); st != http.StatusBadRequest {
		t.Fatalf("bad verify link: %d", st)
	}
}

func TestHTTP_Operational(t *testing.T) {
	a := newApp(t)
	if st, body := a.do(t, http.MethodGet, "/healthz", "", nil, ""); st != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: %d %s", st, body)
	}
	if st, _ := a.do(t, http.MethodGet, "/readyz", "", nil, ""); st != http.StatusOK {
		t.Fatalf("readyz: %d", st)
	}
	a.do(t, http.MethodGet, "/animals", "", nil, "")
	st, body := a.do(t, http.MethodGet, "/metrics", "", nil, "")
	if st != http.StatusOK || !strings.Contains(string(body), "herdbook_http_requests_total") {
		t.Fatalf("metrics: %d", st)
	}
}

func TestHTTP_FrameworkErrorsUseErrorBody(t *testing.T) {
	a := newApp(t)
	tok, _ := a.register(t, "limits@herd.test")

	// Well past the photo limit plus multipart slack, so the body limit fires
	// before the form is parsed.
	huge := &upload{"huge.png", append(pngBytes, make([]byte, 3<<20)...)}
	st, body := a.form(t, http.MethodPost, "/animals", tok, cowFields("BIG"), huge)
	if st != http.StatusBadRequest || !strings.Contains(string(body), `"error":"Image exceeds size limit"`) {
		t.Fatalf("oversized body: %d %s", st, body)
	}
	entries, _ := os.ReadDir(a.uploadDir)
	if len(entries) != 0 {
		t.Fatalf("rejected upload left %d files", len(entries))
	}

	st, body = a.do(t, http.MethodGet, "/nope", "", nil, "")
	if st != http.StatusNotFound || !strings.Contains(string(body), `"error":"Not Found"`) {
		t.Fatalf("unknown route: %d %s", st, body)
	}
	if strings.Contains(string(body), `"message"`) {
		t.Fatalf("framework error leaked echo's default body: %s", body)
	}
}

func TestHTTP_CreateTrimsSurroundingSpace(t *testing.T) {
	a := newApp(t)
	tok, _ := a.register(t, "trim@herd.test")

	fields := map[string]string{"number": "  A7  ", "type": " goat ", "age": "2022-02-02", "status": "active ", "gender": " male"}
	st, body := a.form(t, http.MethodPost, "/animals", tok, fields, nil)
	if st != http.StatusCreated {
		t.Fatalf("create: %d %s", st, body)
	}
	var got animalJSON
	mustDecode(t, body, &got)
	if got.Number != "A7" || got.Type != "goat" || got.Status != "active" || got.Gender != "male" {
		t.Fatalf("stored values not trimmed: %+v", got)
	}
	// The trimmed number is what uniqueness is checked against.
	if st, _ := a.form(t, http.MethodPost, "/animals", tok, cowFields("A7"), nil); st != http.StatusBadRequest {
		t.Fatalf("trimmed duplicate accepted: %d", st)
	}
}
