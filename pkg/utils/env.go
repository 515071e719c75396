package utils

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads the .env file for the given environment. An empty env loads
// plain ".env"; otherwise ".env.<env>" is tried first with ".env" as
// fallback. Missing files are reported to the caller, who may ignore them.
func LoadEnv(env string) error {
	if env == "" {
		return godotenv.Load()
	}
	if err := godotenv.Load(fmt.Sprintf(".env.%s", env)); err == nil {
		return nil
	}
	return godotenv.Load()
}

// GetEnv 获取环境变量值
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetIntEnv 获取整数环境变量值，解析失败返回 0
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetBoolEnv 获取布尔环境变量值
func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}
