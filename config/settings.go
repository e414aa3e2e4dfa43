package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	AppVersion = "3.0"
	AppPort    = "3000"
	AppDebug   = false

	PathMedia   = "statics/media"
	PathDebug   = "statics/debug"
	PathStorage = "storages"

	// Telegram
	TelegramToken    string
	ChatID           int64
	TargetChatID     int64 // chat whose full history is persisted
	AdminChatID      int64
	TargetUserID     int64 = 948182089
	ReactionEnabled        = false
	ReactionUserID   int64
	TargetReaction   string

	// External data APIs
	OpenWeatherAPIKey string
	RapidAPIKey       string
	DeepSeekAPIKey    string
	DeepSeekBaseURL   = "https://api.deepseek.com"

	// AI settings
	AIModel          = "deepseek-chat"
	AIMaxTokens      = int64(999)
	AITemperature    = 1.5
	ChatHistoryLimit = 30

	// Database
	DatabaseURL string

	// Instagram session (strategy 1 is skipped when username is empty)
	InstagramUsername    string
	InstagramPassword    string
	InstagramTOTPSecret  string
	InstagramSessionFile = "storages/ig_session.json"
	TOTPPeriod           = 30 * time.Second
	TOTPDigits           = 6

	// Canned replies, loaded from env as JSON arrays / plain strings
	ResponsesSosal    []string
	RareResponseSosal string
	ResponseLetal     string
	ResponsesScamil   []string

	// Football team ids for the /real /lfc /arsenal commands
	TeamIDs map[string]int64

	MonitoringEnabled = true

	// Message worker pool
	MessageWorkers   = 4
	MessageQueueSize = 100

	// Morning bulletin cities: display name -> OpenWeather query code
	MorningCities = map[string]string{
		"Минск":     "Minsk,BY",
		"Жлобин":    "Zhlobin,BY",
		"Гомель":    "Gomel,BY",
		"Житковичи": "Zhitkovichi,BY",
		"Шри-Ланка": "Colombo,LK",
		"Ноябрьск":  "Noyabrsk,RU",
	}

	Timezone = "Europe/Moscow"
)

// SystemPrompt returns the AI persona prompt with the current date baked in.
func SystemPrompt() string {
	return fmt.Sprintf(
		"Ты Анатолий Шарий, твоя фамилия Шарий, у тебя есть жена Ольга Шарий. "+
			"Ты пророссийский журналист, скамер, блогер, эксцентричный пиздец, любишь материться. "+
			"Сегодня %s. Отвечай с иронией, надменностью и будь полезным помощником в Telegram-группе.",
		time.Now().Format("2006-01-02"),
	)
}

// Load reads configuration from environment variables. Flags and viper may
// override the exported vars afterwards (see cmd/root.go).
func Load() {
	TelegramToken = getEnv("TELEGRAM_TOKEN", TelegramToken)
	DeepSeekAPIKey = getEnv("DEEPSEEK_API_KEY", DeepSeekAPIKey)
	if v := getEnv("DEEPSEEK_BASE_URL", ""); v != "" {
		DeepSeekBaseURL = v
	}
	OpenWeatherAPIKey = getEnv("OPENWEATHER_API_KEY", OpenWeatherAPIKey)
	RapidAPIKey = getEnv("RAPIDAPI_KEY", RapidAPIKey)
	DatabaseURL = getEnv("DATABASE_URL", DatabaseURL)

	ChatID = getEnvInt64("CHAT_ID", ChatID)
	TargetChatID = getEnvInt64("TARGET_CHAT_ID", -1002520045054)
	TargetUserID = getEnvInt64("TARGET_USER_ID", TargetUserID)
	AdminChatID = getEnvInt64("ADMIN_CHAT_ID", TargetUserID)
	ReactionUserID = getEnvInt64("REACTION_TARGET_USER_ID", TargetUserID)
	ReactionEnabled = getEnvBool("REACTION_ENABLED", ReactionEnabled)
	TargetReaction = getEnv("TARGET_REACTION", TargetReaction)

	MonitoringEnabled = getEnvBool("MONITORING_ENABLED", MonitoringEnabled)

	if n := getEnvInt64("MESSAGE_WORKERS", 0); n > 0 {
		MessageWorkers = int(n)
	}
	if n := getEnvInt64("MESSAGE_QUEUE_SIZE", 0); n > 0 {
		MessageQueueSize = int(n)
	}

	InstagramUsername = getEnv("INSTAGRAM_USERNAME", InstagramUsername)
	InstagramPassword = getEnv("INSTAGRAM_PASSWORD", InstagramPassword)
	InstagramTOTPSecret = getEnv("INSTAGRAM_TOTP_SECRET", InstagramTOTPSecret)
	if v := getEnv("INSTAGRAM_SESSION_FILE", ""); v != "" {
		InstagramSessionFile = v
	}
	if n := getEnvInt64("TOTP_PERIOD_SECONDS", 0); n > 0 {
		TOTPPeriod = time.Duration(n) * time.Second
	}

	if v := getEnv("TIMEZONE", ""); v != "" {
		Timezone = v
	}

	ResponsesSosal = getEnvStrings("RESPONSES_SOSAL")
	RareResponseSosal = getEnv("RARE_RESPONSE_SOSAL", RareResponseSosal)
	ResponseLetal = getEnv("RESPONSE_LETAL", ResponseLetal)
	ResponsesScamil = getEnvStrings("RESPONSES_SCAMIL")

	if v := getEnv("TEAM_IDS", ""); v != "" {
		ids := make(map[string]int64)
		if err := json.Unmarshal([]byte(v), &ids); err == nil {
			TeamIDs = ids
		}
	}
	if TeamIDs == nil {
		TeamIDs = map[string]int64{"real": 541, "lfc": 40, "arsenal": 42}
	}
}

// Validate checks that every credential the bot cannot run without is present.
func Validate() error {
	return validation.Errors{
		"TELEGRAM_TOKEN":      validation.Validate(TelegramToken, validation.Required),
		"DEEPSEEK_API_KEY":    validation.Validate(DeepSeekAPIKey, validation.Required),
		"OPENWEATHER_API_KEY": validation.Validate(OpenWeatherAPIKey, validation.Required),
		"RAPIDAPI_KEY":        validation.Validate(RapidAPIKey, validation.Required),
		"CHAT_ID":             validation.Validate(ChatID, validation.Required),
		"DATABASE_URL":        validation.Validate(DatabaseURL, validation.Required),
	}.Filter()
}

func getEnv(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func getEnvInt64(name string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func getEnvStrings(name string) []string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return []string{v}
	}
	return out
}
