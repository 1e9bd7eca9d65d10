package cli

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// setupLogger installs the global logger. Verbose runs log everything at
// debug level; normal runs only surface warnings on stderr.
func setupLogger(verbose bool) error {
	var config zap.Config
	if verbose {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
		config.Encoding = "console"
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.DisableStacktrace = true
		config.DisableCaller = true
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logger, err := config.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}
