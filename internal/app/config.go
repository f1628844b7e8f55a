package app

import (
	"strings"
	"time"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/envutil"
)

type Config struct {
	Addr          string
	Environment   string
	Version       string
	AllowOrigins  []string
	RunStoreKind  string
	RunStaleAfter time.Duration
	ReapInterval  time.Duration
}

func LoadConfig() Config {
	origins := []string{}
	for _, o := range strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{
		Addr:          ":" + envutil.Str("PORT", "8080"),
		Environment:   envutil.Str("ENVIRONMENT", "development"),
		Version:       envutil.Str("SERVICE_VERSION", "dev"),
		AllowOrigins:  origins,
		RunStoreKind:  envutil.Str("RUN_STORE", "memory"),
		RunStaleAfter: envutil.Duration("RUN_STALE_AFTER", time.Hour),
		ReapInterval:  envutil.Duration("RUN_REAP_INTERVAL", 5*time.Minute),
	}
}
