// Package render serves crawler-facing profile pages carrying Open Graph and Twitter Card tags.
// Browsers are sent on to the app at "/" by a script in the page.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"vlagserver/config"
	"vlagserver/models"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed templates/profile.html.tmpl
var templates embed.FS

const (
	defaultNickname = "VLag Profile"
	defaultSubtitle = "Visit my VLag profile to see all my links in one place"
	cacheControl    = "public, max-age=3600, s-maxage=3600"
)

var rendersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vlag_profile_renders_total",
		Help: "Renderer responses by outcome (rendered, not_found, invalid_path, error).",
	},
	[]string{"result"},
)

// ProfileSource looks up profiles by their 5-character code.
type ProfileSource interface {
	GetProfileByCode(code string) (models.Profile, bool)
}

// PageData is what the profile template sees.
type PageData struct {
	Title       string
	Description string
	URL         string
	Image       string
	SiteName    string
}

// Renderer answers /<code> requests. It is safe for concurrent use.
type Renderer struct {
	cfg    *config.Config
	source ProfileSource
	cache  *ProfileCache
	tmpl   *template.Template
}

// New creates a Renderer. cache may be nil, in which case every request reads the source.
func New(cfg *config.Config, source ProfileSource, cache *ProfileCache) (*Renderer, error) {
	tmpl, err := template.ParseFS(templates, "templates/profile.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile template: %w", err)
	}
	return &Renderer{cfg: cfg, source: source, cache: cache, tmpl: tmpl}, nil
}

// Router returns the renderer's routes. Anything that is not a profile code or /metrics
// is redirected to "/".
func (rd *Renderer) Router() *mux.Router {
	r := mux.NewRouter()
	// Paths are matched as sent; "//Ab3dE" or "/x/../Ab3dE" are not profile codes.
	r.SkipClean(true)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/{code:[A-Za-z0-9]{5}}", rd.ServeProfile)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rendersTotal.WithLabelValues("invalid_path").Inc()
		redirectHome(w, req)
	})
	return r
}

// ServeProfile renders the page for the code in the route, or redirects to "/" when
// the profile is unknown or the page cannot be built.
func (rd *Renderer) ServeProfile(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	profile, found := rd.lookup(code)
	if !found {
		rendersTotal.WithLabelValues("not_found").Inc()
		redirectHome(w, r)
		return
	}

	var buf bytes.Buffer
	if err := rd.tmpl.Execute(&buf, rd.pageData(code, profile)); err != nil {
		log.Printf("ERROR: Failed to render profile page for '%s': %v", code, err)
		rendersTotal.WithLabelValues("error").Inc()
		redirectHome(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	rendersTotal.WithLabelValues("rendered").Inc()
}

// PurgeCache forgets every cached lookup.
func (rd *Renderer) PurgeCache() {
	if rd.cache != nil {
		rd.cache.Purge()
	}
}

func (rd *Renderer) lookup(code string) (models.Profile, bool) {
	if rd.cache != nil {
		if profile, found, ok := rd.cache.Get(code); ok {
			return profile, found
		}
	}
	profile, found := rd.source.GetProfileByCode(code)
	if rd.cache != nil {
		rd.cache.Set(code, profile, found)
	}
	return profile, found
}

// pageData fills in defaults for empty profile fields. Whitespace counts as a value.
func (rd *Renderer) pageData(code string, p models.Profile) PageData {
	nickname := p.Nickname
	if nickname == "" {
		nickname = defaultNickname
	}
	subtitle := p.Subtitle
	if subtitle == "" {
		subtitle = defaultSubtitle
	}
	image := p.DpURL
	if image == "" {
		image = rd.cfg.DefaultImageURL
	}

	return PageData{
		Title:       nickname + " - VLag Profile",
		Description: subtitle,
		URL:         rd.cfg.SiteURL + "/" + code,
		Image:       image,
		SiteName:    rd.cfg.SiteName,
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}
