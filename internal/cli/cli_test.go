package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/unlabel/internal/capture"
)

func unsignedToken(sub string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(`{"sub":"`+sub+`"}`)) + ".c2ln"
}

// fakeAPI is a minimal stand-in for the Unlabel REST API.
type fakeAPI struct {
	mu       sync.Mutex
	uploads  []string
	lastAuth string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": unsignedToken("user-42"), "token_type": "bearer"})
	})
	mux.HandleFunc("GET /api/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"email": "ada@example.com", "name": "Ada"})
	})
	mux.HandleFunc("POST /api/analyze/decision", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"verdict":       "Limit Frequent Use",
			"quick_insight": map[string]any{"summary": "Soda is mostly sugar."},
			"key_signals":   []string{"High added sugar"},
		})
	})
	mux.HandleFunc("POST /api/analyze/image", func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"insight":            "A sweet cereal.",
			"detailed_reasoning": "Sugar is listed second.",
			"trade_offs":         map[string]any{"pros": []string{"Fortified"}, "cons": []string{"Added sugar"}},
		})
	})
	mux.HandleFunc("GET /api/analyze/history", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "1", "date": "Jan 2", "time": "10:00", "title": "Cola", "preview": "Limit", "variant": "red"}})
	})
	mux.HandleFunc("GET /api/food/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"data":   []map[string]any{{"id": "737628064502", "product_name": "Oat Drink", "brands": "Oatly"}},
		})
	})
	mux.HandleFunc("GET /api/food/product/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"data":   map[string]any{"id": r.PathValue("id"), "product_name": "Oat Drink", "ingredients_text": "water, oats"},
		})
	})
	return mux
}

func (f *fakeAPI) snapshot() ([]string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...), f.lastAuth
}

type testEnv struct {
	t          *testing.T
	api        *fakeAPI
	captureDir string
	camera     capture.Camera
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	captureDir := filepath.Join(dir, "captures")
	t.Setenv("UNLABEL_CONFIG", "")
	t.Setenv("UNLABEL_API_URL", srv.URL+"/api")
	t.Setenv("UNLABEL_DB_PATH", filepath.Join(dir, "unlabel.db"))
	t.Setenv("CAPTURE_DIR", captureDir)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FILE", "")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	return &testEnv{t: t, api: api, captureDir: captureDir}
}

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	var out bytes.Buffer
	app := NewApp(strings.NewReader(stdin), &out)
	if e.camera != nil {
		cam := e.camera
		app.newCamera = func() capture.Camera { return cam }
	}
	defer app.Close()

	root := NewRootCmd(app)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("", "ask", "Is", "soda", "okay", "daily?")
	require.NoError(t, err)
	assert.Contains(t, out, "Soda is mostly sugar.")
	assert.Contains(t, out, "LIMIT USE")
	assert.NotContains(t, out, "KEY SIGNALS")

	out, err = env.run("", "ask", "--details", "Is soda okay daily?")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY SIGNALS")
	assert.Contains(t, out, "High added sugar")
}

func TestScanFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.captureDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.captureDir, "cereal.png"), []byte("\x89PNG\r\n\x1a\nfake"), 0644))

	out, err := env.run("", "scan", "cereal.png")
	require.NoError(t, err)
	assert.Contains(t, out, "Image ready for analysis")
	assert.Contains(t, out, "A sweet cereal.")
	assert.Contains(t, out, "Added sugar")

	uploads, _ := env.api.snapshot()
	assert.Equal(t, []string{"cereal.png"}, uploads)
}

func TestScanPDF(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "label.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0644))

	out, err := env.run("", "scan", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PDF document ready for analysis")
	assert.Contains(t, out, "label.pdf")
}

func TestScanRejectsType(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "anim.gif")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a"), 0644))

	_, err := env.run("", "scan", path)
	require.Error(t, err)
	assert.Equal(t, "Please select an image (JPG, PNG, WebP) or PDF file.", err.Error())

	uploads, _ := env.api.snapshot()
	assert.Empty(t, uploads)
}

type stillStream struct{}

func (stillStream) Dimensions() (int, int) { return 4, 4 }
func (stillStream) Frame(context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}
func (stillStream) Close() error { return nil }

type stillCamera struct{ err error }

func (c stillCamera) Open(context.Context, capture.Constraints) (capture.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return stillStream{}, nil
}

func TestScanCameraAndSave(t *testing.T) {
	env := newTestEnv(t)
	env.camera = stillCamera{}

	out, err := env.run("", "scan", "--camera", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved ")
	assert.Contains(t, out, "A sweet cereal.")

	saved, err := filepath.Glob(filepath.Join(env.captureDir, "food-scan-*.jpg"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestScanCameraDenied(t *testing.T) {
	env := newTestEnv(t)
	env.camera = stillCamera{err: capture.ErrPermissionDenied}

	_, err := env.run("", "scan", "--camera")
	require.Error(t, err)
	assert.Equal(t, "Camera permission was denied. Allow camera access or upload a file instead.", err.Error())
}

func TestLoginWhoamiHistoryLogout(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("", "history")
	assert.ErrorIs(t, err, errSignInRequired)

	_, err = env.run("", "login", "--email", "ada@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", err.Error())

	out, err := env.run("ada@example.com\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ada@example.com")

	out, err = env.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "id user-42")

	out, err = env.run("", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Cola")
	_, auth := env.api.snapshot()
	assert.Equal(t, "Bearer "+unsignedToken("user-42"), auth)

	out, err = env.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = env.run("", "whoami")
	assert.ErrorIs(t, err, errSignInRequired)
}

func TestSearchAndProduct(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("", "search", "oat", "milk")
	require.NoError(t, err)
	assert.Contains(t, out, "Oat Drink")
	assert.Contains(t, out, "[737628064502]")

	out, err = env.run("", "product", "737628064502")
	require.NoError(t, err)
	assert.Contains(t, out, "water, oats")
}

func TestChat(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.captureDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(env.captureDir, "label.jpg"), []byte("\xff\xd8\xff\xe0jpeg"), 0644))

	script := strings.Join([]string{
		"Is soda okay daily?",
		"/scan",
		"/scan label.jpg",
		"/scan missing.jpg",
		"/quit",
		"never sent",
	}, "\n")
	out, err := env.run(script, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "Unlabel Co-pilot")
	assert.Contains(t, out, "You: Is soda okay daily?")
	assert.Contains(t, out, "Soda is mostly sugar.")
	assert.Contains(t, out, "Usage: /scan <file>")
	assert.Contains(t, out, "A sweet cereal.")
	assert.Contains(t, out, "file not found")
	assert.NotContains(t, out, "never sent")

	uploads, _ := env.api.snapshot()
	assert.Equal(t, []string{"label.jpg"}, uploads)
}
