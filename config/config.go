package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Media    MediaConfig    `mapstructure:"media"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	MetricsPort string `mapstructure:"metrics_port"`
	JWTSecret   string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key"`
	SecretAccessKey string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket"`
}

type KafkaConfig struct {
	Broker  string `mapstructure:"broker"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

type OpenAIConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	ChatModel          string `mapstructure:"chat_model"`
}

type MediaConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	TempDir     string `mapstructure:"temp_dir"`
}

type PublishConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Platform string `mapstructure:"platform"`
}

type PipelineConfig struct {
	Workers        int           `mapstructure:"workers"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout"`
	MediaTimeout   time.Duration `mapstructure:"media_timeout"`
	AITimeout      time.Duration `mapstructure:"ai_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

func LoadConfig() (*Config, error) {
	// Best effort: a missing .env just means plain environment variables.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, reading environment directly")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.metrics_port", "2112")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("minio.bucket", "echo-media")
	viper.SetDefault("kafka.topic", "video-processing")
	viper.SetDefault("kafka.group_id", "echo-pipeline")
	viper.SetDefault("openai.transcription_model", "whisper-1")
	viper.SetDefault("openai.chat_model", "gpt-4o-mini")
	viper.SetDefault("media.ffmpeg_path", "ffmpeg")
	viper.SetDefault("media.ffprobe_path", "ffprobe")
	viper.SetDefault("media.temp_dir", "/tmp/echo")
	viper.SetDefault("publish.platform", "youtube")
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.storage_timeout", time.Minute)
	viper.SetDefault("pipeline.media_timeout", 5*time.Minute)
	viper.SetDefault("pipeline.ai_timeout", 10*time.Minute)
	viper.SetDefault("pipeline.publish_timeout", 15*time.Minute)

	viper.AutomaticEnv()

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.metrics_port", "METRICS_PORT")
	viper.BindEnv("server.jwt_secret", "JWT_SECRET")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.sslmode", "DB_SSLMODE")
	viper.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("minio.use_ssl", "MINIO_USE_SSL")
	viper.BindEnv("minio.bucket", "MINIO_BUCKET_NAME")
	viper.BindEnv("kafka.broker", "KAFKA_BROKER")
	viper.BindEnv("kafka.topic", "KAFKA_TOPIC")
	viper.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("openai.transcription_model", "OPENAI_TRANSCRIPTION_MODEL")
	viper.BindEnv("openai.chat_model", "OPENAI_CHAT_MODEL")
	viper.BindEnv("media.ffmpeg_path", "FFMPEG_PATH")
	viper.BindEnv("media.ffprobe_path", "FFPROBE_PATH")
	viper.BindEnv("media.temp_dir", "MEDIA_TEMP_DIR")
	viper.BindEnv("publish.endpoint", "PUBLISH_ENDPOINT")
	viper.BindEnv("publish.api_key", "PUBLISH_API_KEY")
	viper.BindEnv("publish.platform", "PUBLISH_PLATFORM")
	viper.BindEnv("pipeline.workers", "PIPELINE_WORKERS")

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if config.OpenAI.APIKey == "" {
		log.Println("Warning: OpenAI API key not configured, AI generation will fail")
	}
	if config.Server.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
