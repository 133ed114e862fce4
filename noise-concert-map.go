package main

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/acme/autocert"

	"noise-concert-map/pkg/api"
	"noise-concert-map/pkg/database"
	"noise-concert-map/pkg/reloadbus"
	"noise-concert-map/pkg/watcher"
)

//go:embed public_html/*
var content embed.FS

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dataDir = flag.String("data-dir", "data", "Directory with noise_map.csv (or noise_map.json), concert_plan.csv and construction_plan.csv")
var watchData = flag.Bool("watch", true, "Re-import the data files when they change on disk")
var dbType = flag.String("db-type", "memory", "Type of the database driver: memory, sqlite, genji, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for genji, sqlite, duckdb drivers)")
var dbConn = flag.String("db-conn", "", "Full PostgreSQL DSN; overrides the discrete pgx flags")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "NoiseConcertMap", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var redisAddr = flag.String("redis-addr", "", "Redis address for a shared layer cache; empty keeps the cache in memory")
var redisPass = flag.String("redis-pass", "", "Redis password")
var redisDB = flag.Int("redis-db", 0, "Redis database number")
var cacheTTL = flag.Duration("cache-ttl", 5*time.Minute, "How long rendered layers are cached; 0 disables caching")
var timeZone = flag.String("tz", "Europe/Amsterdam", "Time zone that decides which calendar day is \"today\"")
var port = flag.Int("port", 8765, "Port for running the server")
var version = flag.Bool("version", false, "Show the application version")
var defaultLat = flag.Float64("default-lat", 52.3676, "Default map latitude")
var defaultLon = flag.Float64("default-lon", 4.9041, "Default map longitude")
var defaultZoom = flag.Int("default-zoom", 12, "Default map zoom")

var CompileVersion = "dev"

// envPrefix namespaces environment overrides: -db-type is NCM_DB_TYPE.
const envPrefix = "NCM_"

// applyEnv copies NCM_* variables into the flag set so .env files and the
// environment provide defaults. Command-line flags parsed afterwards win.
func applyEnv(fset *flag.FlagSet, getenv func(string) string) error {
	var errs []error
	fset.VisitAll(func(f *flag.Flag) {
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v := getenv(key); v != "" {
			if err := fset.Set(f.Name, v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	})
	return errors.Join(errs...)
}

// withServerHeader adds "Server: noise-concert-map/<CompileVersion>" and
// answers HEAD / with an empty 200 so uptime probes stay cheap.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "noise-concert-map/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain runs
//   - :80 for ACME HTTP-01 challenges and a 301 redirect to https://<domain>/
//   - :443 with Let's Encrypt certificates from autocert.
//
// When autocert cannot issue a certificate for an odd SNI or a bare IP, the
// last good certificate for the domain is served instead.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			if host == domain || host == "www."+domain {
				return nil
			}
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// The fallback certificate is owned by one goroutine and handed out
	// through a channel, so the TLS callback never races with renewal.
	fallback := make(chan chan *tls.Certificate)
	go func() {
		var cert *tls.Certificate
		refresh := time.NewTicker(time.Minute)
		defer refresh.Stop()
		for {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				cert = c
				refresh.Reset(24 * time.Hour)
			} else {
				log.Printf("autocert check: %v", err)
			}
		wait:
			for {
				select {
				case reply := <-fallback:
					reply <- cert
				case <-refresh.C:
					break wait
				}
			}
		}
	}()

	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		reply := make(chan *tls.Certificate, 1)
		fallback <- reply
		if def := <-reply; def != nil {
			return def, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s ➜ :443", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}

// isClientDisconnect returns true for network errors indicating that the
// client has gone away while we were writing the response. These are normal
// and should not be logged as errors.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

// newCache picks Redis when -redis-addr is set and reachable, otherwise the
// in-process cache.
func newCache(ctx context.Context) api.Cache {
	if rc := api.OpenRedis(*redisAddr, *redisPass, *redisDB); rc != nil {
		cache, err := api.NewRedisCache(ctx, rc, *cacheTTL, "ncm")
		if err == nil {
			log.Printf("Layer cache: redis at %s", *redisAddr)
			return cache
		}
		_ = rc.Close()
		log.Printf("Layer cache: redis unavailable (%v), using memory", err)
	}
	if c := api.NewResponseCache(*cacheTTL); c != nil {
		return c
	}
	return nil
}

func main() {
	// 1. Config: .env, NCM_* variables, then flags
	_ = godotenv.Load(".env")
	if err := applyEnv(flag.CommandLine, os.Getenv); err != nil {
		log.Fatalf("environment: %v", err)
	}
	flag.Parse()

	if *version {
		fmt.Printf("noise-concert-map version %s\n", CompileVersion)
		return
	}
	if CompileVersion == "dev" {
		CompileVersion = "latest"
	}

	loc, err := time.LoadLocation(*timeZone)
	if err != nil {
		log.Fatalf("time zone %q: %v", *timeZone, err)
	}
	if err := loadTranslations(content, "public_html/translations.json"); err != nil {
		log.Fatalf("translations: %v", err)
	}

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	store, err := database.Open(database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	})
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	defer store.Close()

	cache := newCache(ctx)
	if cache != nil {
		defer cache.Close()
	}

	// 3. Data
	now := func() time.Time { return time.Now().In(loc) }
	apiHandler := api.NewHandler(store, cache, api.NewRateLimiter(2*time.Second), now, log.Printf)
	bus := reloadbus.NewBus(8)
	rl := &reloader{dir: *dataDir, store: store, purge: apiHandler.Purge, bus: bus}
	if err := rl.load(ctx); err != nil {
		log.Fatalf("initial load: %v", err)
	}

	if *watchData {
		w, err := watcher.New(*dataDir, watcher.DefaultDebounce, rl.onChange)
		if err != nil {
			log.Printf("data watcher disabled: %v", err)
		} else {
			go w.Run(ctx)
			log.Printf("Watching %s for changes", *dataDir)
		}
	}

	// 4. Routes
	a, err := newApp(apiHandler, bus, now, view{Lat: *defaultLat, Lon: *defaultLon, Zoom: *defaultZoom})
	if err != nil {
		log.Fatalf("templates: %v", err)
	}
	staticFS, err := fs.Sub(content, "public_html")
	if err != nil {
		log.Fatalf("static fs: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	a.register(mux)
	apiHandler.Register(mux)

	rootHandler := withServerHeader(mux)

	// 5. HTTP/HTTPS servers
	if *domain != "" {
		go serveWithDomain(*domain, rootHandler)
	} else {
		addr := fmt.Sprintf(":%d", *port)
		srv := &http.Server{Addr: addr, Handler: rootHandler, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Printf("HTTP server ➜ http://localhost%s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	log.Printf("shutting down")
}
