package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	JWT         JWTConfig
	RateLimit   RateLimitConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Identity    IdentityConfig
	Interpreter InterpreterConfig
	GenAI       GenAIConfig
	Calendar    CalendarConfig
	OAuth       OAuthConfig
	Function    FunctionConfig
	Capture     CaptureConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	NotesPerHour    int
	InterpretPerMin int
}

// StorageConfig configures the S3-compatible voice-note bucket.
type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type DatabaseConfig struct {
	DSN string
}

// IdentityConfig points at the OIDC identity provider issuing user JWTs.
type IdentityConfig struct {
	Issuer   string
	ClientID string
}

// InterpreterConfig points at the remote interpretation endpoint.
type InterpreterConfig struct {
	URL         string
	FunctionKey string
}

// GenAIConfig configures the generative model behind /functions/interpret.
type GenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type CalendarConfig struct {
	BaseURL    string
	CalendarID string
}

// OAuthConfig is the Google OAuth app used to obtain delegated calendar
// tokens (offline access, consent prompt).
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// FunctionConfig guards the interpretation endpoint.
type FunctionConfig struct {
	Key string
}

// CaptureConfig configures the server-side microphone capture device.
type CaptureConfig struct {
	Command     string
	InputFormat string
	InputDevice string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GENAI_API_KEY")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("DATABASE_DSN")
	readSecret("OAUTH_CLIENT_SECRET")
	readSecret("FUNCTION_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.notes_per_hour", "RATELIMIT_NOTES_PER_HOUR")
	_ = viper.BindEnv("ratelimit.interpret_per_min", "RATELIMIT_INTERPRET_PER_MIN")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("database.dsn", "DATABASE_DSN")
	_ = viper.BindEnv("identity.issuer", "IDENTITY_ISSUER")
	_ = viper.BindEnv("identity.client_id", "IDENTITY_CLIENT_ID")
	_ = viper.BindEnv("interpreter.url", "INTERPRETER_URL")
	_ = viper.BindEnv("interpreter.function_key", "INTERPRETER_FUNCTION_KEY")
	_ = viper.BindEnv("genai.api_key", "GENAI_API_KEY")
	_ = viper.BindEnv("genai.base_url", "GENAI_BASE_URL")
	_ = viper.BindEnv("genai.model", "GENAI_MODEL")
	_ = viper.BindEnv("calendar.base_url", "CALENDAR_BASE_URL")
	_ = viper.BindEnv("calendar.calendar_id", "CALENDAR_ID")
	_ = viper.BindEnv("oauth.client_id", "OAUTH_CLIENT_ID")
	_ = viper.BindEnv("oauth.client_secret", "OAUTH_CLIENT_SECRET")
	_ = viper.BindEnv("oauth.redirect_url", "OAUTH_REDIRECT_URL")
	_ = viper.BindEnv("function.key", "FUNCTION_KEY")
	_ = viper.BindEnv("capture.command", "CAPTURE_COMMAND")
	_ = viper.BindEnv("capture.input_format", "CAPTURE_INPUT_FORMAT")
	_ = viper.BindEnv("capture.input_device", "CAPTURE_INPUT_DEVICE")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("ratelimit.notes_per_hour", 60)
	viper.SetDefault("ratelimit.interpret_per_min", 30)

	// Storage defaults
	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("storage.bucket_name", "voice-notes")

	// GenAI defaults
	viper.SetDefault("genai.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("genai.model", "gemini-flash-latest")

	// Calendar defaults
	viper.SetDefault("calendar.base_url", "https://www.googleapis.com/calendar/v3")
	viper.SetDefault("calendar.calendar_id", "primary")

	// OAuth defaults
	viper.SetDefault("oauth.redirect_url", "http://localhost:8000/auth/callback")

	// Capture defaults
	viper.SetDefault("capture.command", "ffmpeg")
	viper.SetDefault("capture.input_format", "pulse")
	viper.SetDefault("capture.input_device", "default")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			NotesPerHour:    viper.GetInt("ratelimit.notes_per_hour"),
			InterpretPerMin: viper.GetInt("ratelimit.interpret_per_min"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		Database: DatabaseConfig{
			DSN: viper.GetString("database.dsn"),
		},
		Identity: IdentityConfig{
			Issuer:   viper.GetString("identity.issuer"),
			ClientID: viper.GetString("identity.client_id"),
		},
		Interpreter: InterpreterConfig{
			URL:         viper.GetString("interpreter.url"),
			FunctionKey: viper.GetString("interpreter.function_key"),
		},
		GenAI: GenAIConfig{
			APIKey:  viper.GetString("genai.api_key"),
			BaseURL: viper.GetString("genai.base_url"),
			Model:   viper.GetString("genai.model"),
		},
		Calendar: CalendarConfig{
			BaseURL:    viper.GetString("calendar.base_url"),
			CalendarID: viper.GetString("calendar.calendar_id"),
		},
		OAuth: OAuthConfig{
			ClientID:     viper.GetString("oauth.client_id"),
			ClientSecret: viper.GetString("oauth.client_secret"),
			RedirectURL:  viper.GetString("oauth.redirect_url"),
		},
		Function: FunctionConfig{
			Key: viper.GetString("function.key"),
		},
		Capture: CaptureConfig{
			Command:     viper.GetString("capture.command"),
			InputFormat: viper.GetString("capture.input_format"),
			InputDevice: viper.GetString("capture.input_device"),
		},
	}

	return cfg, nil
}
