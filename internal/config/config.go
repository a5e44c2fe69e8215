package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings.
type Config struct {
	Port        string
	Environment string

	DatabaseType     string
	DatabaseDSN      string
	RecordTTL        time.Duration
	TTLSweepInterval time.Duration

	TranscriptDir string
	ResultsDir    string
	UploadDir     string

	WorkerCount int
	QueueSize   int

	SummarizerBackend string
	SummarizerCommand []string
	SummarizerTimeout time.Duration
	LLMGatewayURL     string
	LLMAPIKey         string
	LLMModel          string

	TranscribeBackend string
	TranscribeCommand []string
	TranscribeURL     string
	TranscribeTimeout time.Duration

	LexiconPath   string
	WatchDir      string
	EnableWatcher bool
}

const (
	BackendCommand = "command"
	BackendGateway = "gateway"
	BackendHTTP    = "http"
	BackendMock    = "mock"
	BackendNone    = "none"
)

// Load reads configuration from environment and optional .env file.
func Load() Config {
	_ = godotenv.Load()

	transcribeBackend := strings.ToLower(getenv("TRANSCRIBE_BACKEND", BackendCommand))
	if getenvBool("USE_MOCK_TRANSCRIBE", false) {
		transcribeBackend = BackendMock
	}

	return Config{
		Port:        getenv("PORT", "8000"),
		Environment: getenv("ENVIRONMENT", "local"),

		DatabaseType:     strings.ToLower(getenv("DATABASE_TYPE", "sqlite")),
		DatabaseDSN:      getenv("DATABASE_DSN", "voiceai.db"),
		RecordTTL:        getenvDuration("RECORD_TTL", 30*24*time.Hour),
		TTLSweepInterval: getenvDuration("TTL_SWEEP_INTERVAL", time.Minute),

		TranscriptDir: getenv("TRANSCRIPT_DIR", "transcripts"),
		ResultsDir:    getenv("RESULTS_DIR", "results"),
		UploadDir:     getenv("UPLOAD_DIR", "uploads"),

		WorkerCount: clampInt(getenvInt("WORKER_COUNT", 4), 1, 64),
		QueueSize:   clampInt(getenvInt("QUEUE_SIZE", 64), 1, 1024),

		SummarizerBackend: strings.ToLower(getenv("SUMMARIZER_BACKEND", BackendCommand)),
		SummarizerCommand: strings.Fields(getenv("SUMMARIZER_COMMAND", "ollama run llama3.1:1b")),
		SummarizerTimeout: getenvDuration("SUMMARIZER_TIMEOUT", 45*time.Second),
		LLMGatewayURL:     os.Getenv("LLM_GATEWAY_URL"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModel:          os.Getenv("LLM_MODEL"),

		TranscribeBackend: transcribeBackend,
		TranscribeCommand: strings.Fields(getenv("TRANSCRIBE_COMMAND", "whisper-cli")),
		TranscribeURL:     os.Getenv("TRANSCRIBE_URL"),
		TranscribeTimeout: getenvDuration("TRANSCRIBE_TIMEOUT", 5*time.Minute),

		LexiconPath:   os.Getenv("LEXICON_PATH"),
		WatchDir:      os.Getenv("WATCH_DIR"),
		EnableWatcher: getenvBool("ENABLE_WATCHER", false),
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvDuration accepts Go durations ("45s") or a bare number of seconds.
func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
