// Package config reads service settings from the environment, after an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/nubank/csvchat-backend/internal/chunk"
)

type Config struct {
	Port       string
	CORSOrigin string
	Debug      bool

	// Agent runtime; when EndpointID is empty the OpenAI or mock provider is used.
	EndpointID string
	Region     string
	BaseURL    string
	Token      string

	OpenAIKey   string
	OpenAIModel string

	MaxChars           int
	Overhead           int
	SessionName        string
	SessionDescription string
}

// Load reads .env if it exists (existing variables win) and then the environment.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	return FromEnv()
}

func FromEnv() (Config, error) {
	c := Config{
		Port:               getenv("PORT", "8080"),
		CORSOrigin:         getenv("CORS_ORIGIN", "http://localhost:5173"),
		Debug:              parseBool(os.Getenv("LOG_DEBUG")),
		EndpointID:         os.Getenv("AGENT_ENDPOINT_ID"),
		Region:             os.Getenv("AGENT_REGION"),
		BaseURL:            os.Getenv("AGENT_BASE_URL"),
		Token:              os.Getenv("AGENT_TOKEN"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		SessionName:        getenv("SESSION_NAME", "csv-chat-session"),
		SessionDescription: getenv("SESSION_DESCRIPTION", "CSV context for data questions"),
	}
	var err error
	if c.MaxChars, err = getint("CHUNK_MAX_CHARS", chunk.DefaultMaxChars); err != nil {
		return Config{}, err
	}
	if c.Overhead, err = getint("CHUNK_OVERHEAD", chunk.DefaultOverhead); err != nil {
		return Config{}, err
	}
	if c.Overhead < 0 || c.MaxChars <= c.Overhead {
		return Config{}, fmt.Errorf("config: CHUNK_MAX_CHARS (%d) must exceed CHUNK_OVERHEAD (%d) >= 0", c.MaxChars, c.Overhead)
	}
	if c.MaxChars > chunk.HardCap {
		return Config{}, fmt.Errorf("config: CHUNK_MAX_CHARS (%d) must not exceed %d", c.MaxChars, chunk.HardCap)
	}
	return c, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}
