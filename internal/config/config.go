package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port string

	// LINE channel credentials. The webhook cannot be verified and replies
	// cannot be sent without them, so the process refuses to start when they
	// are missing.
	ChannelSecret string
	ChannelToken  string

	// Row store selection: a spreadsheet when SpreadsheetID is set, otherwise
	// a database (PostgreSQL via DatabaseURL, or a local SQLite file).
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	DatabaseURL     string

	// Notification gateway: "line" (default) or "whatsapp". The whatsapp
	// gateway delivers through Twilio and can only route phone-number
	// recipient ids; LINE user ids are rejected at send time.
	Gateway              string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string

	ReconcileCron string
	PassTimeout   time.Duration
	Timezone      *time.Location
}

// Load reads configuration values and prepares defaults where applicable.
func Load() *Config {
	_ = godotenv.Load()

	timezoneName := getenvDefault("LOCAL_TIMEZONE", "Asia/Tokyo")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to system local: %v", timezoneName, err)
		location = time.Local
	}

	return &Config{
		Port:                 getenvDefault("PORT", "8080"),
		ChannelSecret:        os.Getenv("LINE_CHANNEL_SECRET"),
		ChannelToken:         os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		SpreadsheetID:        os.Getenv("SHEETS_SPREADSHEET_ID"),
		SheetName:            getenvDefault("SHEETS_SHEET_NAME", "Sheet1"),
		CredentialsFile:      getenvDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		Gateway:              getenvDefault("GATEWAY", "line"),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		ReconcileCron:        getenvDefault("RECONCILE_CRON", "* * * * *"),
		PassTimeout:          time.Duration(ParseIntEnv("PASS_TIMEOUT_SECONDS", 55)) * time.Second,
		Timezone:             location,
	}
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as int: %v", key, value, err)
		return def
	}
	return parsed
}
