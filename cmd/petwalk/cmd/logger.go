package cmd

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/petwalk/petwalk"
)

// zapLogger adapts a sugared zap logger to petwalk.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }

// newLogger writes console-encoded logs to w. Only warnings and errors
// are shown unless verbose is set. Credentials are masked before they
// reach zap.
func newLogger(w io.Writer, verbose bool) (petwalk.Logger, func()) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), level)
	return wrapZap(zap.New(core))
}

func wrapZap(z *zap.Logger) (petwalk.Logger, func()) {
	return petwalk.NewMaskingLoggerDecorator(zapLogger{s: z.Sugar()}), func() { _ = z.Sync() }
}
