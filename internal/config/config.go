package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	JWTSecret string

	// PractitionerID is the single practitioner this deployment books for.
	PractitionerID string

	// PractitionerTZ is the IANA zone all slot math is done in. The service
	// books for a single practitioner, so the zone is fixed per deployment.
	PractitionerTZ string

	SlotGranularity time.Duration
	BookingLeadTime time.Duration

	// DefaultWeek is applied when no weekly template has been stored yet.
	// It is deliberately an explicit, named policy so product can change it
	// without touching the slot engine.
	DefaultWeekDaysOff  []time.Weekday
	DefaultWorkdayStart string
	DefaultWorkdayEnd   string

	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayTimeout       time.Duration
	GatewayWebhookSecret string

	MeetingBaseURL string
	MeetingAPIKey  string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	VelocityMaxAttempts int
	VelocityWindow      time.Duration

	CORSAllowedOrigins []string
	RateLimitPerSec    int
	RateLimitBurst     int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		PractitionerID: getEnv("PRACTITIONER_ID", ""),

		PractitionerTZ: getEnv("PRACTITIONER_TZ", "Asia/Seoul"),

		SlotGranularity: getEnvAsDuration("SLOT_GRANULARITY", 30*time.Minute),
		BookingLeadTime: getEnvAsDuration("BOOKING_LEAD_TIME", 0),

		DefaultWeekDaysOff:  parseWeekdays(getEnv("DEFAULT_WEEK_DAYS_OFF", "tue,wed")),
		DefaultWorkdayStart: getEnv("DEFAULT_WORKDAY_START", "10:00"),
		DefaultWorkdayEnd:   getEnv("DEFAULT_WORKDAY_END", "18:00"),

		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:        getEnv("GATEWAY_API_KEY", ""),
		GatewayTimeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),

		MeetingBaseURL: getEnv("MEETING_BASE_URL", ""),
		MeetingAPIKey:  getEnv("MEETING_API_KEY", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CallDoc"),

		VelocityMaxAttempts: getEnvAsInt("VELOCITY_MAX_ATTEMPTS", 10),
		VelocityWindow:      getEnvAsDuration("VELOCITY_WINDOW", time.Hour),

		CORSAllowedOrigins: splitCommaList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RateLimitPerSec:    getEnvAsInt("RATE_LIMIT_PER_SEC", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// parseWeekdays turns "tue,wed" into weekday values. Unknown tokens are skipped.
func parseWeekdays(raw string) []time.Weekday {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
		"sat": time.Saturday,
	}
	var days []time.Weekday
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if day, ok := names[tok]; ok {
			days = append(days, day)
		}
	}
	return days
}

// splitCommaList turns "a,b , c" into ["a","b","c"]. Empty input yields nil.
func splitCommaList(raw string) []string {
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
