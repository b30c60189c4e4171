package rest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/logging"
	"github.com/dmitrijs2005/storykeeper/internal/server/assets"
	"github.com/dmitrijs2005/storykeeper/internal/server/auth"
	"github.com/dmitrijs2005/storykeeper/internal/server/config"
	"github.com/dmitrijs2005/storykeeper/internal/server/metrics"
	"github.com/dmitrijs2005/storykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storykeeper/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret      = "rest-test-secret"
	testBaseURL     = "http://localhost:8000"
	testPlaceholder = testBaseURL + "/assets/placeholder.png"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testEnv struct {
	srv     *Server
	h       http.Handler
	uploads string
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, tweak func(*Options)) *testEnv {
	t.Helper()

	opts := Options{
		AllowedOrigins:    []string{"http://localhost:5173"},
		AssetAuthRequired: true,
		UploadsDir:        filepath.Join(t.TempDir(), "uploads"),
		AssetsDir:         t.TempDir(),
		MaxUploadBytes:    1 << 20,
		ShutdownTimeout:   time.Second,
	}
	if tweak != nil {
		tweak(&opts)
	}

	m := metrics.New()
	repos := repomanager.NewMemoryRepositoryManager()
	store, err := assets.NewLocalStore(opts.UploadsDir, testBaseURL)
	require.NoError(t, err)
	mgr := assets.NewManager(store, testPlaceholder, opts.MaxUploadBytes, logging.Nop{}, m)
	issuer := auth.NewIssuer(testSecret, time.Hour)

	us := services.NewUserService(nil, repos, issuer, &config.Config{BcryptCost: bcrypt.MinCost})
	ss := services.NewStoryService(nil, repos, mgr)
	is := services.NewImageService(nil, repos, mgr)

	srv := NewServer(opts, logging.Nop{}, m, issuer, us, ss, is)
	return &testEnv{srv: srv, h: srv.Handler(), uploads: store.Dir(), metrics: m}
}

type envelope map[string]any

func (e envelope) isError() bool {
	v, _ := e["error"].(bool)
	return v
}

func (e envelope) message() string {
	v, _ := e["message"].(string)
	return v
}

func (e envelope) object(key string) map[string]any {
	v, _ := e[key].(map[string]any)
	return v
}

func (e envelope) list(key string) []any {
	v, _ := e[key].([]any)
	return v
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return env.serve(t, req)
}

func (env *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)

	var out envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (env *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	rec, out := env.do(t, http.MethodPost, "/create-account", "", map[string]string{
		"fullName": "Test User", "email": email, "password": "secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token, _ := out["accessToken"].(string)
	require.NotEmpty(t, token)
	return token
}

func storyBody(title, story, image string, visited time.Time) map[string]any {
	return map[string]any{
		"title":           title,
		"story":           story,
		"visitedLocation": []string{title + " Town"},
		"imageUrl":        image,
		"visitedDate":     visited.UnixMilli(),
	}
}

func (env *testEnv) addStory(t *testing.T, token string, body map[string]any) string {
	t.Helper()
	rec, out := env.do(t, http.MethodPost, "/add-travel-story", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := out.object("story")["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func (env *testEnv) upload(t *testing.T, token, filename string, content []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/image-upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return env.serve(t, req)
}

func titlesOf(items []any) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		m, _ := it.(map[string]any)
		title, _ := m["title"].(string)
		out = append(out, title)
	}
	return out
}
