package logx

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a service-scoped zap logger. APP_ENV=production pakai JSON
// encoder level info; selain itu development config untuk dibaca manusia.
func New(service string) *zap.Logger {
	var cfg zap.Config
	if os.Getenv("APP_ENV") == "production" {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		// Tidak ada fallback yang masuk akal kalau logger gagal dibangun.
		panic(err)
	}
	return logger.With(zap.String("service", service))
}
