package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// NLU configuration (OpenAI-compatible protocol). When the API key is
	// empty the keyword classifier built from the flow config is used.
	NLUProvider string // Provider identifier: openai, keyword
	NLUAPIKey   string
	NLUBaseURL  string
	NLUModel    string
	NLUTimeout  int // NLU request timeout in seconds (default: 30)

	// Flow configuration files.
	DomainPath string
	FlowPath   string

	// Telegram channel token; the channel is disabled when empty.
	TelegramToken string

	// Other configurations
	Mode      string
	DSN       string
	Driver    string
	Version   string
	Addr      string
	Data      string
	Port      int
	UserLimit int // bound of the in-memory conversation working set
	TurnLimit int // bound of concurrent turns
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsNLUEnabled returns true if a remote NLU API key is configured.
func (p *Profile) IsNLUEnabled() bool {
	return p.NLUAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.NLUProvider = getEnvOrDefault("FLOWCHAT_NLU_PROVIDER", "keyword")
	p.NLUAPIKey = getEnvOrDefault("FLOWCHAT_NLU_API_KEY", "")
	p.NLUBaseURL = getEnvOrDefault("FLOWCHAT_NLU_BASE_URL", "https://api.openai.com/v1")
	p.NLUModel = getEnvOrDefault("FLOWCHAT_NLU_MODEL", "gpt-4o-mini")
	p.NLUTimeout = getEnvOrDefaultInt("FLOWCHAT_NLU_TIMEOUT_SECONDS", 30)

	p.DomainPath = getEnvOrDefault("FLOWCHAT_DOMAIN", "config/domain.yaml")
	p.FlowPath = getEnvOrDefault("FLOWCHAT_FLOW", "config/flow.yaml")

	p.TelegramToken = getEnvOrDefault("FLOWCHAT_TELEGRAM_TOKEN", "")

	p.UserLimit = getEnvOrDefaultInt("FLOWCHAT_USER_LIMIT", 1024)
	p.TurnLimit = getEnvOrDefaultInt("FLOWCHAT_TURN_LIMIT", 64)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "flowchat")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/flowchat"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("flowchat_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.UserLimit <= 0 {
		return errors.Errorf("user limit must be positive, got %d", p.UserLimit)
	}
	if p.TurnLimit <= 0 {
		return errors.Errorf("turn limit must be positive, got %d", p.TurnLimit)
	}

	return nil
}
