package main

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"noise-concert-map/pkg/api"
	"noise-concert-map/pkg/filter"
	"noise-concert-map/pkg/noiselevel"
	"noise-concert-map/pkg/qrshare"
	"noise-concert-map/pkg/reloadbus"
)

// =====================
// Translations
// =====================
var translations map[string]map[string]string

func loadTranslations(fs embed.FS, filename string) error {
	file, err := fs.Open(filename)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if err := json.Unmarshal(data, &translations); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	if _, ok := translations["en"]; !ok {
		return fmt.Errorf("%s: no en section", filename)
	}
	return nil
}

func translate(lang, key string) string {
	if val, ok := translations[lang][key]; ok {
		return val
	}
	if val, ok := translations["en"][key]; ok {
		return val
	}
	return key
}

// getPreferredLanguage picks the first supported language from
// Accept-Language and falls back to English.
func getPreferredLanguage(r *http.Request) string {
	langHeader := r.Header.Get("Accept-Language")
	if langHeader == "" {
		return "en"
	}

	supported := map[string]struct{}{"en": {}, "nl": {}, "zh": {}}

	// Regional variants collapse to the base code.
	aliases := map[string]string{
		"zh-cn":   "zh",
		"zh-sg":   "zh",
		"zh-hans": "zh",
		"zh-tw":   "zh",
		"zh-hk":   "zh",
		"zh-hant": "zh",
		"nl-be":   "nl",
		"nl-nl":   "nl",
	}

	for _, raw := range strings.Split(langHeader, ",") {
		code := strings.TrimSpace(strings.SplitN(raw, ";", 2)[0])
		code = strings.ToLower(strings.ReplaceAll(code, "_", "-"))

		base := code
		if i := strings.Index(code, "-"); i != -1 {
			base = code[:i]
		}
		if a, ok := aliases[code]; ok {
			base = a
		}
		if _, ok := supported[base]; ok {
			return base
		}
	}
	return "en"
}

// =====================
// Map view state
// =====================

// view is the map centre and zoom kept in the page URL.
type view struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}

// parseView reads lat, lon and zoom from q. Missing or out-of-range values
// keep the corresponding field of def.
func parseView(q url.Values, def view) view {
	v := def
	if lat, err := strconv.ParseFloat(q.Get("lat"), 64); err == nil && lat >= -90 && lat <= 90 {
		v.Lat = lat
	}
	if lon, err := strconv.ParseFloat(q.Get("lon"), 64); err == nil && lon >= -180 && lon <= 180 {
		v.Lon = lon
	}
	if zoom, err := strconv.Atoi(q.Get("zoom")); err == nil && zoom >= 1 && zoom <= 19 {
		v.Zoom = zoom
	}
	return v
}

// =====================
// WEB
// =====================

// app holds what the page handlers share. The JSON API lives in pkg/api;
// the page asks it for the selection so both parse queries the same way.
type app struct {
	api  *api.Handler
	bus  *reloadbus.Bus
	now  func() time.Time
	home view
	tmpl *template.Template
}

func newApp(h *api.Handler, bus *reloadbus.Bus, now func() time.Time, home view) (*app, error) {
	// translate is rebound per request once the language is known.
	tmpl, err := template.New("map.html").Funcs(template.FuncMap{
		"translate": func(key string) string { return translate("en", key) },
		"toJSON": func(data any) (string, error) {
			b, err := json.Marshal(data)
			return string(b), err
		},
	}).ParseFS(content, "public_html/map.html")
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &app{api: h, bus: bus, now: now, home: home, tmpl: tmpl}, nil
}

func (a *app) register(mux *http.ServeMux) {
	mux.HandleFunc("/", a.mapHandler)
	mux.HandleFunc("/qrpng", a.qrPngHandler)
	mux.HandleFunc("/stream_reload", a.streamReloadHandler)
}

// mapHandler renders the sidebar and map for the selection in the URL.
func (a *app) mapHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	lang := getPreferredLanguage(r)

	sel, err := a.api.Selection(r)
	if err != nil {
		var qe *filter.QueryError
		if errors.As(err, &qe) {
			http.Error(w, qe.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("selection error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	sources, err := a.api.Source.SourceTypes(r.Context())
	if err != nil {
		log.Printf("sources error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	tmpl, err := a.tmpl.Clone()
	if err != nil {
		log.Printf("Error cloning template: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	tmpl.Funcs(template.FuncMap{
		"translate": func(key string) string { return translate(lang, key) },
	})

	data := struct {
		Version      string
		Lang         string
		Translations map[string]string
		Selection    filter.Selection
		Levels       api.PeriodLevels
		AllLevels    []api.PeriodLevels
		Sources      []string
		View         view
		Home         view
		Night        bool
		Today        string
		QRMaxLength  int
	}{
		Version:      CompileVersion,
		Lang:         lang,
		Translations: translations[lang],
		Selection:    sel,
		Levels:       api.LevelsFor(sel.Period),
		AllLevels:    []api.PeriodLevels{api.LevelsFor(noiselevel.Day), api.LevelsFor(noiselevel.Night)},
		Sources:      sources,
		View:         parseView(r.URL.Query(), a.home),
		Home:         a.home,
		Night:        sel.Period == noiselevel.Night,
		Today:        a.now().Format("2006-01-02"),
		QRMaxLength:  qrshare.MaxURLLength,
	}

	// Render into a buffer so a template error still yields a clean 500.
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("Error executing template: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		if isClientDisconnect(err) {
			log.Printf("client disconnected while writing response")
		} else {
			log.Printf("Error writing response: %v", err)
		}
	}
}

// qrPngHandler renders the share link ?u= (or the referring page) as a QR
// code with a music-note badge.
func (a *app) qrPngHandler(w http.ResponseWriter, r *http.Request) {
	permit, err := a.api.Limiter.Acquire(r.Context(), api.ClientIP(r), api.RequestRender)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	u := r.URL.Query().Get("u")
	if u == "" {
		if ref := r.Referer(); ref != "" {
			u = ref
		} else {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			u = scheme + "://" + r.Host + "/"
		}
	}
	u = truncateURL(u, qrshare.MaxURLLength)

	var buf bytes.Buffer
	if err := qrshare.EncodePNG(&buf, u, qrshare.Options{}); err != nil {
		http.Error(w, "QR encode: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Disposition", "inline; filename=\"noise-map-qr.png\"")
	if _, err := buf.WriteTo(w); err != nil && !isClientDisconnect(err) {
		log.Printf("qr write: %v", err)
	}
}

// truncateURL cuts u to at most n bytes without splitting a UTF-8 rune.
func truncateURL(u string, n int) string {
	if len(u) <= n {
		return u
	}
	for n > 0 && !utf8.RuneStart(u[n]) {
		n--
	}
	return u[:n]
}

// sseKeepAlive keeps idle proxies from closing /stream_reload.
const sseKeepAlive = 25 * time.Second

// streamReloadHandler pushes a "reload" event each time the data files are
// re-imported, or "reload-error" when an import failed.
func (a *app) streamReloadHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	events := a.bus.Subscribe(ctx, 4)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			name := "reload"
			if ev.Error != "" {
				name = "reload-error"
			}
			b, _ := json.Marshal(ev)
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b); err != nil {
				if !isClientDisconnect(err) {
					log.Printf("stream_reload write: %v", err)
				}
				return
			}
			flusher.Flush()
		}
	}
}
