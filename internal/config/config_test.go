package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-comments-backend/internal/domain"
)

// configKeys is every variable Load reads.
var configKeys = []string{
	"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
	"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED",
	"API_BASE_PATH", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "DB_MAX_OPEN_CONNS",
	"DB_QUERY_TIMEOUT", "AUTO_MIGRATE", "DEFAULT_MODERATION_STATUS",
	"PREMODERATED_SITES", "SANITIZE_HTML", "RATE_RPS", "RATE_BURST",
	"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE", "IDEMPOTENCY_TTL",
	"IDEMPOTENCY_PURGE_INTERVAL", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
}

func TestMain(m *testing.M) {
	for _, k := range configKeys {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

func setenv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func mustLoad(t *testing.T) Config {
	t.Helper()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := mustLoad(t)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, "8080"},
		{"gin mode", cfg.GinMode, "release"},
		{"log level", cfg.LogLevel, "info"},
		{"base path", cfg.APIBasePath, "/api/v1"},
		{"driver", cfg.DB.Driver, "sqlite"},
		{"sqlite file", cfg.DB.Path, "comments.db"},
		{"auto migrate", cfg.DB.AutoMigrate, true},
		{"query timeout", cfg.DB.QueryTimeout, 30 * time.Second},
		{"pool", cfg.DB.MaxOpenConns, 10},
		{"default status", cfg.Comments.DefaultStatus, domain.StatusApproved},
		{"sanitize", cfg.Comments.SanitizeHTML, false},
		{"premoderated", len(cfg.Comments.PremoderatedSites), 0},
		{"write rps", cfg.RateRPS, 5.0},
		{"write burst", cfg.RateBurst, 10},
		{"idempotency ttl", cfg.IdempotencyTTL, 24 * time.Hour},
		{"idempotency purge", cfg.IdempotencyPurgeInterval, 10 * time.Minute},
		{"tracing", cfg.OTEL.Enabled, false},
		{"service name", cfg.OTEL.ServiceName, "go-comments-backend"},
		{"db tracing", cfg.DB.Tracing, false},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %v; want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_PostgresDeployment(t *testing.T) {
	siteA, siteB := uuid.New(), uuid.New()
	setenv(t, map[string]string{
		"DB_DRIVER":                   "pgx",
		"DATABASE_URL":                "postgres://comments:pw@db:5432/comments?sslmode=disable",
		"DB_MAX_OPEN_CONNS":           "40",
		"DB_QUERY_TIMEOUT":            "8s",
		"AUTO_MIGRATE":                "off",
		"DEFAULT_MODERATION_STATUS":   "Pending",
		"PREMODERATED_SITES":          siteA.String() + ", ," + siteB.String(),
		"SANITIZE_HTML":               "yes",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_SERVICE_NAME":           "comments-eu",
		"OTEL_TRACES_SAMPLER_ARG":     "0.1",
	})
	cfg := mustLoad(t)

	if cfg.DB.Driver != "postgres" || cfg.DB.MaxOpenConns != 40 || cfg.DB.QueryTimeout != 8*time.Second || cfg.DB.AutoMigrate {
		t.Fatalf("db = %+v", cfg.DB)
	}
	if !cfg.DB.Tracing {
		t.Fatalf("DB tracing should follow OTEL_ENABLED")
	}
	if cfg.Comments.DefaultStatus != domain.StatusPending || !cfg.Comments.SanitizeHTML {
		t.Fatalf("comments = %+v", cfg.Comments)
	}
	if !reflect.DeepEqual(cfg.Comments.PremoderatedSites, []uuid.UUID{siteA, siteB}) {
		t.Fatalf("premoderated = %v", cfg.Comments.PremoderatedSites)
	}
	want := OTELConfig{Enabled: true, Endpoint: "collector:4317", ServiceName: "comments-eu", SampleRatio: 0.1}
	if cfg.OTEL != want {
		t.Fatalf("otel = %+v; want %+v", cfg.OTEL, want)
	}
}

func TestLoad_ServerAndEdgeSettings(t *testing.T) {
	setenv(t, map[string]string{
		"PORT":                       "9090",
		"READ_TIMEOUT":               "2s",
		"READ_HEADER_TIMEOUT":        "1s",
		"WRITE_TIMEOUT":              "3s",
		"IDLE_TIMEOUT":               "4s",
		"MAX_HEADER_BYTES":           "16384",
		"SWAGGER_ENABLED":            "on",
		"RATE_RPS":                   "0.5",
		"RATE_BURST":                 "3",
		"CORS_ALLOWED_ORIGINS":       " https://blog.example , , https://news.example ",
		"ENABLE_HSTS":                "TRUE",
		"HSTS_MAX_AGE":               "24h",
		"IDEMPOTENCY_TTL":            "48h",
		"IDEMPOTENCY_PURGE_INTERVAL": "0s",
	})
	cfg := mustLoad(t)

	if cfg.Port != "9090" || cfg.ReadTimeout != 2*time.Second || cfg.ReadHeaderTimeout != time.Second ||
		cfg.WriteTimeout != 3*time.Second || cfg.IdleTimeout != 4*time.Second || cfg.MaxHeaderBytes != 16384 {
		t.Fatalf("server = %+v", cfg)
	}
	if !cfg.SwaggerEnabled || cfg.RateRPS != 0.5 || cfg.RateBurst != 3 {
		t.Fatalf("docs/rate = %v %v %v", cfg.SwaggerEnabled, cfg.RateRPS, cfg.RateBurst)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://blog.example", "https://news.example"}) {
		t.Fatalf("origins = %#v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Security != (SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}) {
		t.Fatalf("security = %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour || cfg.IdempotencyPurgeInterval != 0 {
		t.Fatalf("idempotency = %v / %v", cfg.IdempotencyTTL, cfg.IdempotencyPurgeInterval)
	}
}

func TestLoad_Normalization(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		check func(Config) bool
	}{
		{"unknown gin mode falls back to release", map[string]string{"GIN_MODE": "weird"},
			func(c Config) bool { return c.GinMode == "release" }},
		{"warning is warn", map[string]string{"LOG_LEVEL": "WARNING"},
			func(c Config) bool { return c.LogLevel == "warn" && !c.DB.LogQueries }},
		{"debug logs queries", map[string]string{"LOG_LEVEL": "debug", "LOG_PRETTY": "yes"},
			func(c Config) bool { return c.DB.LogQueries && c.LogPretty }},
		{"base path gains slash and loses trailing one", map[string]string{"API_BASE_PATH": "api/v2/"},
			func(c Config) bool { return c.APIBasePath == "/api/v2" }},
		{"postgresql alias", map[string]string{"DB_DRIVER": "PostgreSQL", "DATABASE_URL": "postgres://x"},
			func(c Config) bool { return c.DB.Driver == "postgres" }},
		{"unparsable numbers keep defaults", map[string]string{"RATE_RPS": "fast", "RATE_BURST": "lots", "DB_QUERY_TIMEOUT": "soon"},
			func(c Config) bool { return c.RateRPS == 5 && c.RateBurst == 10 && c.DB.QueryTimeout == 30*time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setenv(t, tc.env)
			if cfg := mustLoad(t); !tc.check(cfg) {
				t.Fatalf("unexpected config for %v: %+v", tc.env, cfg)
			}
		})
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{map[string]string{"WRITE_TIMEOUT": "0s"}, "timeouts must be positive"},
		{map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{map[string]string{"DB_PATH": "  "}, "DB_PATH must not be empty"},
		{map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{map[string]string{"DB_DRIVER": "mssql"}, "DB_DRIVER"},
		{map[string]string{"DB_MAX_OPEN_CONNS": "0"}, "DB_MAX_OPEN_CONNS"},
		{map[string]string{"DB_QUERY_TIMEOUT": "-1s"}, "DB_QUERY_TIMEOUT"},
		{map[string]string{"DEFAULT_MODERATION_STATUS": "deleted"}, "DEFAULT_MODERATION_STATUS"},
		{map[string]string{"PREMODERATED_SITES": "blog"}, "PREMODERATED_SITES"},
		{map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{map[string]string{"IDEMPOTENCY_PURGE_INTERVAL": "-1m"}, "IDEMPOTENCY_PURGE_INTERVAL"},
		{map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			setenv(t, tc.env)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load with %v: err = %v; want mention of %q", tc.env, err, tc.want)
			}
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("DEFAULT_MODERATION_STATUS", "hidden")
	defer func() {
		if recover() == nil {
			t.Fatalf("MustLoad did not panic")
		}
	}()
	MustLoad()
}

func TestGetbool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("SANITIZE_HTML", v)
		if !getbool("SANITIZE_HTML", false) {
			t.Errorf("getbool(%q) = false", v)
		}
	}
	for _, v := range []string{"0", "false", " no ", "N", "off", "Off"} {
		t.Setenv("AUTO_MIGRATE", v)
		if getbool("AUTO_MIGRATE", true) {
			t.Errorf("getbool(%q) = true", v)
		}
	}
	t.Setenv("ENABLE_HSTS", "")
	if !getbool("ENABLE_HSTS", true) || getbool("ENABLE_HSTS", false) {
		t.Errorf("empty value should yield the default")
	}
}

func TestNumericGetters_FallBack(t *testing.T) {
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("RATE_BURST", "7")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	if getfloat("RATE_RPS", 0) != 2.5 || getint("RATE_BURST", 0) != 7 || getdur("IDEMPOTENCY_TTL", 0) != 90*time.Minute {
		t.Fatalf("valid values not parsed")
	}

	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "x")
	t.Setenv("IDEMPOTENCY_TTL", "x")
	if getfloat("RATE_RPS", 1.5) != 1.5 || getint("RATE_BURST", 4) != 4 || getdur("IDEMPOTENCY_TTL", time.Hour) != time.Hour {
		t.Fatalf("invalid values should yield defaults")
	}

	t.Setenv("OTEL_SERVICE_NAME", "")
	if getenv("OTEL_SERVICE_NAME", "go-comments-backend") != "go-comments-backend" {
		t.Fatalf("empty string should yield default")
	}
}

func TestSplitCSVAndBasePath(t *testing.T) {
	if splitCSV("") != nil {
		t.Fatalf("splitCSV(\"\") should be nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}
	for in, want := range map[string]string{"": "/", " / ": "/", "v1": "/v1", "/v1/": "/v1", "/api/comments": "/api/comments"} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
