package bootstrap

import (
	"fmt"
	"os"

	"github.com/code-100-precent/EchoDesk/pkg/config"
	"github.com/code-100-precent/EchoDesk/pkg/logger"
	"go.uber.org/zap"
)

// PrintBannerFromFile prints the startup banner if the file exists.
// A missing banner is not an error.
func PrintBannerFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	fmt.Println(string(data))
	return nil
}

// LogConfigInfo prints the effective configuration at startup.
func LogConfigInfo() {
	cfg := config.GlobalConfig
	logger.Info("configuration loaded",
		zap.String("server", cfg.ServerName),
		zap.String("addr", cfg.Addr),
		zap.String("mode", cfg.Mode),
		zap.String("backend", cfg.BackendBaseURL),
		zap.String("signaling", cfg.SignalingURL),
		zap.Duration("analysisPollInterval", cfg.AnalysisPollInterval),
		zap.Duration("analysisPendingWindow", cfg.AnalysisPendingWindow),
		zap.String("recordingStore", cfg.RecordingStorePath),
	)
}
