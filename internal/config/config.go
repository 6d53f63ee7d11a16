package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backends selectable with SOURCE_BACKEND.
const (
	BackendRemote = "remote"
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

// Config holds the runtime configuration of the server. Each field
// corresponds to an environment variable.
type Config struct {
	Env              string        // application environment (dev, prod)
	Port             string        // HTTP port to listen on
	JWTSecret        string        // HS256 secret operator tokens are signed with
	Backend          string        // remote, mysql or memory
	PollInterval     time.Duration // how often the reservation store is refreshed
	PolicyFile       string        // optional YAML file with venue profiles
	EstablishmentIDs []int64       // establishments kept warm by the poller
	RabbitURL        string        // AMQP URL; empty disables event publishing
	EventLogPath     string        // file the event worker appends to

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string
	// DBMigrate creates the schema at start-up.
	DBMigrate bool

	RemoteBaseURL string
	RemoteToken   string
	RemoteTimeout time.Duration
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}
}

// Load reads the configuration of the API server. Required variables are
// enforced by must() and missing values cause the program to exit with a
// fatal log message; which ones are required depends on the selected backend.
func Load() Config {
	LoadDotEnv()
	cfg := base()
	cfg.Port = envStr("APP_PORT", "8080")
	cfg.JWTSecret = must("JWT_SECRET")
	cfg.PollInterval = envDur("POLL_INTERVAL", 30*time.Second)
	cfg.PolicyFile = os.Getenv("POLICY_FILE")
	cfg.RabbitURL = os.Getenv("RABBITMQ_URL")
	ids, err := ParseIDs(os.Getenv("ESTABLISHMENT_IDS"))
	if err != nil {
		log.Fatalf("invalid ESTABLISHMENT_IDS: %v", err)
	}
	cfg.EstablishmentIDs = ids
	return cfg
}

// LoadWorker reads the configuration of the event worker. The broker URL is
// required; the backend settings locate the guest-list endpoint.
func LoadWorker() Config {
	LoadDotEnv()
	cfg := base()
	cfg.RabbitURL = must("RABBITMQ_URL")
	cfg.EventLogPath = envStr("EVENT_LOG_PATH", "logs/reservations.log")
	return cfg
}

// base reads the settings shared by every binary: environment and backend.
func base() Config {
	cfg := Config{
		Env:           envStr("APP_ENV", "dev"),
		Backend:       strings.ToLower(envStr("SOURCE_BACKEND", BackendRemote)),
		RemoteTimeout: envDur("REMOTE_TIMEOUT", 10*time.Second),
	}
	switch cfg.Backend {
	case BackendRemote:
		cfg.RemoteBaseURL = must("REMOTE_BASE_URL")
		cfg.RemoteToken = os.Getenv("REMOTE_TOKEN")
	case BackendMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = envStr("DB_PORT", "3306")
		cfg.DBName = must("DB_NAME")
		cfg.DBMigrate = envBool("DB_MIGRATE", false)
	case BackendMemory:
	default:
		log.Fatalf("unknown SOURCE_BACKEND %q", cfg.Backend)
	}
	return cfg
}

// ParseIDs reads a comma separated list of positive ids.
func ParseIDs(s string) ([]int64, error) {
	var out []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad id %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
