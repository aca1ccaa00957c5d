package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the logger for normal use
	Log = zap.NewNop().Sugar()
	// Error is the Logger for errors
	Error = zap.NewNop().Sugar()

	base    *zap.Logger
	errBase *zap.Logger
)

const errLogName = "error.log"

// Init creates logger instance to loggers
func Init() {
	initLogger()
	initErrorLogger()
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func initLogger() {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)
	base = zap.New(core)
	Log = base.Sugar()
}

func initErrorLogger() {
	f := &lumberjack.Logger{
		Filename:   errLogName,
		MaxSize:    50,
		MaxBackups: 3,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stderr), zapcore.AddSync(f)),
		zap.WarnLevel,
	)
	errBase = zap.New(core, zap.AddCaller())
	Error = errBase.Sugar()
}

// UpdatePrefix Sets new prefix
func UpdatePrefix(prefix string) {
	if base == nil || errBase == nil {
		return
	}
	if prefix != "" {
		prefix = fmt.Sprintf("[%s]", prefix)
	}
	Log = base.Named(prefix).Sugar()
	Error = errBase.Named(prefix).Sugar()
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
	_ = Error.Sync()
}

// Printf is the alias for Log.Infof
func Printf(format string, v ...interface{}) {
	Log.Infof(format, v...)
}

// Println is the alias for Log.Infoln
func Println(v ...interface{}) {
	Log.Infoln(v...)
}
