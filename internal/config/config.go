package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// NoKey значение ключа, при котором заголовок Authorization не отправляется.
const NoKey = "no-key"

type Config struct {
	DebugMode bool   `env:"DEBUG_MODE" toml:"debug_mode"` //Режим дебага
	LogFile   string `env:"LOG_FILE" toml:"log_file"`     // Куда писать лог; пусто: stderr

	// LLM endpoint
	URL          string  `env:"LLM_URL" toml:"url"`                     // OpenAI-совместимый chat completions endpoint
	APIKey       string  `env:"LLM_API_KEY" toml:"api_key"`             // Bearer токен; no-key: без авторизации
	Model        string  `env:"LLM_MODEL" toml:"model"`                 // Пусто: поле model не отправляется
	SystemPrompt string  `env:"LLM_SYSTEM_PROMPT" toml:"system_prompt"` // Системный промпт, всегда первое сообщение
	Temperature  float64 `env:"LLM_TEMPERATURE" toml:"temperature"`     // 0.0-2.0
	MaxTokens    int     `env:"LLM_MAX_TOKENS" toml:"max_tokens"`       // 50-16000

	// Vision
	EnableVision       bool `env:"VISION_ENABLED" toml:"enable_vision"`              // Разрешить отправку изображения
	VisionMaxDimension int  `env:"VISION_MAX_DIMENSION" toml:"vision_max_dimension"` // Максимальная сторона изображения, 512-2048
	JPEGQuality        int  `env:"VISION_JPEG_QUALITY" toml:"jpeg_quality"`          // Качество JPEG, 1-100

	// Временные файлы подготовки изображения
	TempDir string        `env:"TEMP_DIR" toml:"temp_dir"` // Пусто: системная временная директория
	TempTTL time.Duration `env:"TEMP_TTL" toml:"temp_ttl"` // Возраст, после которого забытые файлы удаляются при старте

	NotificationSoundPath string  `env:"NOTIFICATION_SOUND_PATH" toml:"notification_sound_path"` // Звук после ответа; пусто: без звука
	NotificationVolumeDB  float64 `env:"NOTIFICATION_VOLUME_DB" toml:"notification_volume_db"`   // Громкость звука в dB, -30..10, отрицательные тише
}

const defaultSystemPrompt = "You are LLM Assistant, an expert PixInsight and astrophotography image processing assistant. " +
	"You are communicating with a user inside the PixInsight application. " +
	"Your goal is to provide helpful, data-driven advice. You will receive user prompts in one of three formats:\n\n" +
	"1.  **Simple Chat Message:** A plain text question. Answer it to the best of your ability as a PixInsight expert.\n\n" +
	"2.  **Image Profile (JSON only):** The user has analyzed an image, and the prompt will contain a detailed JSON object. " +
	"Use this data to inform your response. The key fields are:\n" +
	"  - image: Basic properties such as dimensions and color space.\n" +
	"  - astrometry: Detailed plate solution data, if available.\n" +
	"  - sensor: Pixel size, if available.\n" +
	"  - processingHistory: liveSessionHistory (processes applied during the current session) and " +
	"fileHistory (HISTORY records from the image file).\n" +
	"  - fitsKeywords: A list of FITS header keywords (metadata), values and comments from the image.\n" +
	"3.  **Image Profile with Visual Data (JSON + Image):** The prompt will be multi-modal, containing both the JSON profile " +
	"AND an accompanying image. **You MUST use both when available.** Analyze the visual information in the image " +
	"(e.g., background gradients, star colors, galaxies, nebula detail, presence of artifacts) and correlate it with the data in " +
	"the JSON image data profile to provide the most insightful and accurate recommendations possible.\n\n" +
	"**Your Response Guidelines:**\n" +
	"  - **Format all responses using simple Markdown** (headings, bold, italics, lists, emojis ok).\n" +
	"  - Justify recommendations by referencing provided data.\n" +
	"  - Identify and summarize the contents of the image as far as you can tell from what is provided."

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются файлом, .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:          false,
		URL:                "http://127.0.0.1:1234/v1/chat/completions", // локальный llama.cpp/LM Studio/ollama
		APIKey:             NoKey,
		Model:              "",
		SystemPrompt:       defaultSystemPrompt,
		Temperature:        0.8,
		MaxTokens:          8000,
		EnableVision:       false,
		VisionMaxDimension: 2048,
		JPEGQuality:        90,
		TempTTL:            time.Hour,
	}
}

// Load собирает конфигурацию: дефолты -> TOML файл (если задан и существует) -> .env -> окружение.
// Флаги CLI применяются вызывающим поверх результата, после чего нужно вызвать Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path = strings.TrimSpace(path); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		}
	}

	_ = godotenv.Load()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate проверяет диапазоны, которые допускал диалог настроек.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.URL) == "" {
		errs = append(errs, errors.New("url is empty"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f out of range 0..2", c.Temperature))
	}
	if c.MaxTokens < 50 || c.MaxTokens > 16000 {
		errs = append(errs, fmt.Errorf("max tokens %d out of range 50..16000", c.MaxTokens))
	}
	if c.VisionMaxDimension < 512 || c.VisionMaxDimension > 2048 {
		errs = append(errs, fmt.Errorf("vision max dimension %d out of range 512..2048", c.VisionMaxDimension))
	}
	if c.NotificationVolumeDB < -30 || c.NotificationVolumeDB > 10 {
		errs = append(errs, fmt.Errorf("notification volume %.1f dB out of range -30..10", c.NotificationVolumeDB))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality %d out of range 1..100", c.JPEGQuality))
	}
	return errors.Join(errs...)
}

// HasAPIKey сообщает, нужно ли отправлять заголовок Authorization.
func (c *Config) HasAPIKey() bool {
	k := strings.TrimSpace(c.APIKey)
	return k != "" && k != NoKey
}
