package config

import (
	"log"
	"os"
	"time"

	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"github.com/code-100-precent/EchoDesk/pkg/utils"
)

// Config System CommonConfig
type Config struct {
	ServerName string `env:"SERVER_NAME"`
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	Log        logger.LogConfig

	APIPrefix     string `env:"API_PREFIX"`
	MonitorPrefix string `env:"MONITOR_PREFIX"`

	// CRM 后端配置
	BackendBaseURL string        `env:"BACKEND_BASE_URL"` // 凭证/通话记录服务地址
	BackendAPIKey  string        `env:"BACKEND_API_KEY"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT"`

	// 信令网关配置
	SignalingURL string `env:"SIGNALING_URL"` // softphone 信令网关 websocket 地址

	// 通话记录配置
	CallLogLimit          int           `env:"CALL_LOG_LIMIT"`            // 每个线索拉取的记录数
	AnalysisPollInterval  time.Duration `env:"ANALYSIS_POLL_INTERVAL"`    // 分析结果轮询间隔
	AnalysisPendingWindow time.Duration `env:"ANALYSIS_PENDING_WINDOW"`   // 超过该时长的记录不再轮询
	RecordingCacheTTL     time.Duration `env:"RECORDING_CACHE_TTL"`       // 已解析录音地址缓存时长
	RecordingStorePath    string        `env:"RECORDING_STORE_PATH"`      // 代理拉取的录音落盘目录

	// 音量表配置
	MeterSampleRate uint32 `env:"METER_SAMPLE_RATE"`
	WaveformPoints  int    `env:"WAVEFORM_POINTS"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件（如果不存在也不报错，使用默认值）
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		// .env文件不存在时只记录日志，不影响启动
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	// 2. 加载全局配置（所有配置都有默认值，确保无.env文件也能启动）
	GlobalConfig = &Config{
		ServerName: getStringOrDefault("SERVER_NAME", "echodesk"),
		Addr:       getStringOrDefault("ADDR", ":7080"),
		Mode:       getStringOrDefault("MODE", "development"),
		DBDriver:   getStringOrDefault("DB_DRIVER", "sqlite"),
		DSN:        getStringOrDefault("DSN", "./echodesk.db"),
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		APIPrefix:     getStringOrDefault("API_PREFIX", "/api"),
		MonitorPrefix: getStringOrDefault("MONITOR_PREFIX", "/metrics"),

		BackendBaseURL: getStringOrDefault("BACKEND_BASE_URL", "http://localhost:7072"),
		BackendAPIKey:  getStringOrDefault("BACKEND_API_KEY", ""),
		BackendTimeout: getDurationOrDefault("BACKEND_TIMEOUT", 15*time.Second),

		SignalingURL: getStringOrDefault("SIGNALING_URL", "ws://localhost:7073/signaling"),

		CallLogLimit:          getIntOrDefault("CALL_LOG_LIMIT", 50),
		AnalysisPollInterval:  getDurationOrDefault("ANALYSIS_POLL_INTERVAL", 5*time.Second),
		AnalysisPendingWindow: getDurationOrDefault("ANALYSIS_PENDING_WINDOW", 10*time.Minute),
		RecordingCacheTTL:     getDurationOrDefault("RECORDING_CACHE_TTL", time.Hour),
		RecordingStorePath:    getStringOrDefault("RECORDING_STORE_PATH", "./data/recordings"),

		MeterSampleRate: uint32(getIntOrDefault("METER_SAMPLE_RATE", 48000)),
		WaveformPoints:  getIntOrDefault("WAVEFORM_POINTS", 50),
	}
	return nil
}

// getStringOrDefault 获取环境变量值，如果为空则返回默认值
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault 获取布尔环境变量值，如果为空则返回默认值
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault 获取整数环境变量值，如果为空则返回默认值
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getDurationOrDefault 获取时长环境变量值，如果为空或解析失败则返回默认值
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
