package runner

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRunLogger opens a run's log file and returns a logger that writes to
// it as well as to the process logger. The returned close function
// flushes and closes the file.
func NewRunLogger(path string) (*zap.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, eris.Wrap(err, "runner: create log dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, eris.Wrap(err, "runner: open log file")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(f),
		zapcore.InfoLevel,
	)

	logger := zap.New(zapcore.NewTee(fileCore, zap.L().Core()))
	closeFn := func() error {
		logger.Sync() //nolint:errcheck
		return f.Close()
	}
	return logger, closeFn, nil
}
