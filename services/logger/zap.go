package logsvc

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yarcoin/marketplace/core"
)

// NewZapLogger builds a colored development logger in debug mode and a JSON production one otherwise.
func NewZapLogger(conf *core.Config) (*zap.Logger, error) {
	var config zap.Config
	if conf.Debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"stdout"}

	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("app", conf.AppName), zap.String("env", conf.Env)), nil
}
