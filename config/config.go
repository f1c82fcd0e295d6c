package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	ServerAddr string
	LogLevel   string
	LogFile    string
	CacheDir   string // 录音块缓存与自动保存日志目录
	EnvFile    string // 偏好设置热加载监听的 .env 文件

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	Transport TransportPrefs
}

// TransportPrefs 传输相关偏好设置，每次传输操作时重新读取
type TransportPrefs struct {
	RecordChannels       int
	Duplex               bool
	CutPreviewBeforeLen  float64
	CutPreviewAfterLen   float64
	PreferNewTrackRecord bool

	// 新录音轨道命名
	RecordingNameCustom   bool
	RecordingTrackName    string
	DefaultTrackName      string
	TrackNameUseNumber    bool
	TrackNameUseDateStamp bool
	TrackNameUseTimeStamp bool

	ProjectRate float64
}

// DefaultTransportPrefs 默认偏好
func DefaultTransportPrefs() TransportPrefs {
	return TransportPrefs{
		RecordChannels:      2,
		Duplex:              true,
		CutPreviewBeforeLen: 2.0,
		CutPreviewAfterLen:  1.0,
		DefaultTrackName:    "Audio Track",
		RecordingTrackName:  "Audio Track",
		ProjectRate:         44100,
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", ""),
		CacheDir:   getEnv("CACHE_DIR", "cache"),
		EnvFile:    getEnv("ENV_FILE", ".env"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "audiodeck"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "audiodeck"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		Transport: LoadTransportPrefs(),
	}
}

// LoadTransportPrefs 从环境变量读取传输偏好
func LoadTransportPrefs() TransportPrefs {
	return transportPrefsFrom(func(key string) (string, bool) {
		return os.LookupEnv(key)
	})
}

// transportPrefsFrom 用 lookup 读取偏好，未设置或格式错误的键保持默认值
func transportPrefsFrom(lookup func(string) (string, bool)) TransportPrefs {
	p := DefaultTransportPrefs()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	integer("RECORD_CHANNELS", &p.RecordChannels)
	boolean("AUDIO_DUPLEX", &p.Duplex)
	float("CUT_PREVIEW_BEFORE_LEN", &p.CutPreviewBeforeLen)
	float("CUT_PREVIEW_AFTER_LEN", &p.CutPreviewAfterLen)
	boolean("PREFER_NEW_TRACK_RECORD", &p.PreferNewTrackRecord)
	boolean("RECORDING_NAME_CUSTOM", &p.RecordingNameCustom)
	str("DEFAULT_TRACK_NAME", &p.DefaultTrackName)
	// 录音轨道名默认跟随默认轨道名
	p.RecordingTrackName = p.DefaultTrackName
	str("RECORDING_TRACK_NAME", &p.RecordingTrackName)
	boolean("TRACK_NAME_NUMBER", &p.TrackNameUseNumber)
	boolean("TRACK_NAME_DATE", &p.TrackNameUseDateStamp)
	boolean("TRACK_NAME_TIME", &p.TrackNameUseTimeStamp)
	float("PROJECT_RATE", &p.ProjectRate)

	if p.RecordChannels < 0 {
		p.RecordChannels = 0
	}
	return p
}
