package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"graphscopeproxy/internal/config"
	"graphscopeproxy/internal/graphauth"
	"graphscopeproxy/internal/graphclient"
	"graphscopeproxy/internal/httpapi"
	"graphscopeproxy/internal/obs"
	"graphscopeproxy/internal/proxy"
	"graphscopeproxy/internal/scope"
	"graphscopeproxy/internal/scopecache"
	"graphscopeproxy/internal/scopecache/pg"
	"graphscopeproxy/internal/token"
)

var version = "0.1.0"

var commit = "dev"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	creds := graphauth.NewClientCredentials(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	directory := graphclient.New(cfg.UpstreamBase+"/v1.0", creds, nil)

	builder := scope.NewBuilder(directory, scope.Policy{
		AllowedPlaceTypes:     cfg.AllowedPlaceTypes,
		AllowGenericResources: cfg.AllowGenericResources,
		MaxScopeSize:          cfg.MaxScopeSize,
		UsePlacesAPI:          cfg.UsePlacesAPI,
		TTL:                   time.Duration(cfg.ScopeCacheTTLSeconds) * time.Second,
	})

	cache, revocations, closeCache := buildCacheBackend(cfg)
	defer closeCache()

	tokens := token.New(token.Config{
		SigningKey:  cfg.JwtSigningKey,
		Issuer:      cfg.JwtIssuer,
		Audience:    cfg.JwtAudience,
		TTL:         time.Duration(cfg.JwtExpirationSeconds) * time.Second,
		Cache:       cache,
		Revocations: revocations,
	})

	p := proxy.New(cfg.UpstreamBase, creds, nil, cfg.UpstreamTimeout)

	api := httpapi.New(cfg, builder, cache, tokens, p, directory)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting graphscopeproxy %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("stopped")
}

// buildCacheBackend selects the Scope Cache (and shared revocation store)
// implementation per Config.CacheBackend, returning a close func that is
// always safe to call.
func buildCacheBackend(cfg config.Config) (scopecache.Cache, token.RevocationStore, func()) {
	if cfg.CacheBackend != "distributed" {
		mem := scopecache.NewMemory()
		return mem, token.NewMemoryRevocations(), func() { _ = mem.Close() }
	}

	store, err := pg.Open(cfg.CacheConnString)
	if err != nil {
		log.Fatalf("open distributed cache: %v", err)
	}
	return store, store, func() { _ = store.Close() }
}
