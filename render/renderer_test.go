package render

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vlagserver/config"
	"vlagserver/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSource is an in-memory ProfileSource that counts lookups.
type mapSource struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	lookups  int
}

func (s *mapSource) GetProfileByCode(code string) (models.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	p, ok := s.profiles[code]
	return p, ok
}

func (s *mapSource) set(code string, p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[code] = p
}

func (s *mapSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func setupRenderer(t *testing.T, cache *ProfileCache) (http.Handler, *Renderer, *mapSource) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	source := &mapSource{profiles: map[string]models.Profile{
		"Ab3dE": {Nickname: "Ada", Subtitle: "Engines", DpURL: "https://img.example.com/ada.png"},
		"EMPTY": {},
		"BLANK": {Nickname: " ", Subtitle: " "},
		"XSS01": {Nickname: `<script>alert(1)</script>`, Subtitle: `"quoted" & more`},
	}}
	renderer, err := New(cfg, source, cache)
	require.NoError(t, err)
	return renderer.Router(), renderer, source
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServeProfile_Found(t *testing.T) {
	handler, _, _ := setupRenderer(t, nil)

	w := get(handler, "/Ab3dE")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=3600, s-maxage=3600", w.Header().Get("Cache-Control"))
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "<title>Ada - VLag Profile</title>")
	assert.Contains(t, body, `<meta name="description" content="Engines">`)
	assert.Contains(t, body, `<meta property="og:type" content="website">`)
	assert.Contains(t, body, `<meta property="og:url" content="https://vlagit.com/Ab3dE">`)
	assert.Contains(t, body, `<meta property="og:title" content="Ada - VLag Profile">`)
	assert.Contains(t, body, `<meta property="og:image" content="https://img.example.com/ada.png">`)
	assert.Contains(t, body, `<meta property="og:site_name" content="VLag">`)
	assert.Contains(t, body, `<meta property="twitter:card" content="summary_large_image">`)
	assert.Contains(t, body, `<meta property="twitter:image" content="https://img.example.com/ada.png">`)
	assert.Contains(t, body, "window.location.href = '/'")
}

func TestServeProfile_Defaults(t *testing.T) {
	handler, _, _ := setupRenderer(t, nil)

	w := get(handler, "/EMPTY")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<title>VLag Profile - VLag Profile</title>")
	assert.Contains(t, body, `content="Visit my VLag profile to see all my links in one place"`)
	assert.Contains(t, body, `<meta property="og:image" content="https://vlagit.com/static/vlag-meta.png">`)
}

func TestServeProfile_WhitespaceIsNotEmpty(t *testing.T) {
	handler, _, _ := setupRenderer(t, nil)

	w := get(handler, "/BLANK")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<title>  - VLag Profile</title>")
	assert.Contains(t, body, `<meta name="description" content=" ">`)
	assert.NotContains(t, body, "Visit my VLag profile")
}

func TestServeProfile_EscapesValues(t *testing.T) {
	handler, _, _ := setupRenderer(t, nil)

	w := get(handler, "/XSS01")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, body, "&#34;quoted&#34; &amp; more")
}

func TestServeProfile_Redirects(t *testing.T) {
	handler, _, _ := setupRenderer(t, nil)

	paths := []string{
		"/",
		"/abcd",     // too short
		"/abcdef",   // too long
		"/ab-de",    // not alphanumeric
		"/Ab3dE/x",  // extra segment
		"/Ab3dE/",   // trailing slash
		"/NOPE1",    // unknown code
		"/user/abc", // unrelated path
		"//Ab3dE",
		"/./Ab3dE",
		"/x/../Ab3dE",
		"/metrics/../Ab3dE",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := get(handler, path)
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/", w.Header().Get("Location"))
		})
	}
}

func TestServeProfile_Cache(t *testing.T) {
	cache := NewProfileCache(16, time.Minute)
	handler, renderer, source := setupRenderer(t, cache)

	require.Equal(t, http.StatusOK, get(handler, "/Ab3dE").Code)
	require.Equal(t, http.StatusOK, get(handler, "/Ab3dE").Code)
	assert.Equal(t, 1, source.count(), "Second request should be served from the cache")

	assert.Equal(t, http.StatusFound, get(handler, "/NEW99").Code)
	source.set("NEW99", models.Profile{Nickname: "Late"})
	assert.Equal(t, http.StatusFound, get(handler, "/NEW99").Code, "Misses are cached too")
	assert.Equal(t, 2, source.count())

	renderer.PurgeCache()
	assert.Equal(t, 0, cache.Len())

	w := get(handler, "/NEW99")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Late - VLag Profile")
}

func TestProfileCache_Expiry(t *testing.T) {
	cache := NewProfileCache(4, 20*time.Millisecond)
	cache.Set("Ab3dE", models.Profile{Nickname: "Ada"}, true)

	profile, found, ok := cache.Get("Ab3dE")
	require.True(t, ok)
	assert.True(t, found)
	assert.Equal(t, "Ada", profile.Nickname)

	assert.Eventually(t, func() bool {
		_, _, ok := cache.Get("Ab3dE")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRouter_Metrics(t *testing.T) {
	handler, _, _ := setupRenderer(t, nil)
	get(handler, "/Ab3dE")

	w := get(handler, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vlag_profile_renders_total")
}
