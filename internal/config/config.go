// Package config loads the MCP host's runtime configuration from flags
// with environment-variable fallback, matching the option set and
// defaults of the Python configuration loader this host was rebuilt from.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// DisabledTools controls which tools are skipped at registration time.
type DisabledTools struct {
	Categories []string
	Names      []string
	Types      []string
}

// Config holds every recognized option of the MCP host.
type Config struct {
	CompanyID             string
	MongoURI              string
	DBName                string
	ReadPreference        string
	AllowedCollections    []string // nil means unrestricted ("*")
	NonTenantCollections  []string
	LogPath               string
	LogLevel              string
	ReadOnly              bool
	DisabledTools         DisabledTools
	TelemetryEnabled      bool
	TelemetryCacheSize    int
	TelemetryFlushSeconds int
	TelemetryMaxRetries   int
	TelemetryTimeoutSecs  int
	APIBaseURL            string
	APIClientID           string
	APIClientSecret       string
	OpenAIAPIKey          string
	ModelName             string
	OpenAITimeoutSecs     int
	SearchScanLimit       int64
	HTTPAddr              string
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load parses the given argument list (typically os.Args[1:]) into a
// Config, falling back to environment variables and finally to the
// documented defaults.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("mcphost", pflag.ContinueOnError)

	companyID := fs.String("company-id", envOr("COMPANY_ID", ""), "tenant's company ID (ObjectId)")
	mongoURI := fs.String("mongo-uri", envOr("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	dbName := fs.String("db-name", envOr("DB_NAME", "test"), "MongoDB database name")
	readPref := fs.String("read-preference", envOr("MDB_MCP_READ_PREF", "secondaryPreferred"), "MongoDB read preference")
	collections := fs.String("collections", envOr("COLLECTIONS", "*"), "comma-separated allowed collections, or '*'")
	nonTenant := fs.String("non-tenant-collections", envOr("NON_TENANT_COLLECTIONS", "plans,countries,states,cities"), "collections exempt from tenant scoping")
	logPath := fs.String("log-path", envOr("LOG_PATH", ".mongodb-mcp/mcp.log"), "rotating log file path")
	logLevel := fs.String("log-level", envOr("LOG_LEVEL", "INFO"), "log level")
	readOnly := fs.Bool("read-only", envBool("MDB_MCP_READ_ONLY", false), "reserve flag disabling write-category tools")
	disabledCategories := fs.String("disable-tool-categories", envOr("MDB_MCP_DISABLED_TOOL_CATEGORIES", ""), "comma-separated tool categories to disable")
	disabledNames := fs.String("disable-tool-names", envOr("MDB_MCP_DISABLED_TOOL_NAMES", ""), "comma-separated tool names to disable")
	disabledTypes := fs.String("disable-tool-types", envOr("MDB_MCP_DISABLED_TOOL_TYPES", ""), "comma-separated tool operation types to disable")
	telemetryFlag := fs.String("telemetry", telemetryDefault(), "enabled or disabled")
	apiBaseURL := fs.String("api-base-url", envOr("API_BASE_URL", "https://cloud.mongodb.com/"), "base URL for telemetry/Atlas API")
	apiClientID := fs.String("api-client-id", envOr("API_CLIENT_ID", ""), "telemetry API public key")
	apiClientSecret := fs.String("api-client-secret", envOr("API_CLIENT_SECRET", ""), "telemetry API private key")
	openaiKey := fs.String("openai-api-key", envOr("OPENAI_API_KEY", ""), "OpenAI API key for function-calling")
	modelName := fs.String("model-name", envOr("MODEL_NAME", "gpt-4o-mini"), "OpenAI model name")
	httpAddr := fs.String("http-addr", envOr("HTTP_ADDR", ":8000"), "HTTP listen address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var allowed []string
	raw := strings.TrimSpace(*collections)
	if raw != "*" && raw != "" {
		allowed = splitCSV(raw)
	}

	cfg := &Config{
		CompanyID:            *companyID,
		MongoURI:             *mongoURI,
		DBName:               *dbName,
		ReadPreference:       *readPref,
		AllowedCollections:   allowed,
		NonTenantCollections: splitCSV(*nonTenant),
		LogPath:              *logPath,
		LogLevel:             strings.ToUpper(*logLevel),
		ReadOnly:             *readOnly,
		DisabledTools: DisabledTools{
			Categories: splitCSV(*disabledCategories),
			Names:      splitCSV(*disabledNames),
			Types:      splitCSV(*disabledTypes),
		},
		TelemetryEnabled:      strings.EqualFold(*telemetryFlag, "enabled"),
		TelemetryCacheSize:    envInt("MDB_MCP_TELEMETRY_CACHE_SIZE", 1000),
		TelemetryFlushSeconds: envInt("MDB_MCP_TELEMETRY_FLUSH_INTERVAL", 60),
		TelemetryMaxRetries:   envInt("MDB_MCP_TELEMETRY_MAX_RETRIES", 3),
		TelemetryTimeoutSecs:  envInt("MDB_MCP_TELEMETRY_TIMEOUT", 5),
		APIBaseURL:            *apiBaseURL,
		APIClientID:           *apiClientID,
		APIClientSecret:       *apiClientSecret,
		OpenAIAPIKey:          *openaiKey,
		ModelName:             *modelName,
		OpenAITimeoutSecs:     envInt("OPENAI_TIMEOUT", 30),
		SearchScanLimit:       int64(envInt("MDB_MCP_SEARCH_SCAN_LIMIT", 5000)),
		HTTPAddr:              *httpAddr,
	}
	return cfg, nil
}

func telemetryDefault() string {
	if envOr("DO_NOT_TRACK", "") == "1" {
		return "disabled"
	}
	return envOr("MDB_MCP_TELEMETRY", "enabled")
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// IsNonTenant reports whether coll is configured to skip tenant scoping.
func (c *Config) IsNonTenant(coll string) bool {
	for _, nt := range c.NonTenantCollections {
		if nt == coll {
			return true
		}
	}
	return false
}

// IsAllowed reports whether coll passes the configured allow-list. An
// empty allow-list means unrestricted.
func (c *Config) IsAllowed(coll string) bool {
	if len(c.AllowedCollections) == 0 {
		return true
	}
	for _, a := range c.AllowedCollections {
		if a == coll {
			return true
		}
	}
	return false
}

// AsResource returns the running configuration as exposed via the
// "config" RPC resource, with secrets omitted.
func (c *Config) AsResource() map[string]any {
	return map[string]any{
		"companyId":            c.CompanyID,
		"dbName":               c.DBName,
		"readPreference":       c.ReadPreference,
		"allowedCollections":   c.AllowedCollections,
		"nonTenantCollections": c.NonTenantCollections,
		"logPath":              c.LogPath,
		"logLevel":             c.LogLevel,
		"readOnly":             c.ReadOnly,
		"telemetryEnabled":     c.TelemetryEnabled,
		"modelName":            c.ModelName,
	}
}
