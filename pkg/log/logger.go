// Copyright 2025 The axfor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"
	"slices"
	"sync"

	"syncStore/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// globalLogger 全局日志实例
	globalLogger *Logger
	mu           sync.RWMutex
)

// Logger 结构化日志器
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
}

// Config 日志配置
type Config struct {
	// Level 日志级别: debug, info, warn, error, dpanic, panic, fatal
	Level string

	// OutputPaths 日志输出路径，例如: ["stdout", "/var/log/syncstore/app.log"]
	OutputPaths []string

	// ErrorOutputPaths 错误日志输出路径（只记录 Error 及以上）
	ErrorOutputPaths []string

	// Encoding 编码格式: json 或 console
	Encoding string

	// Development 开发模式
	Development bool

	// EnableColor 是否启用颜色输出（仅 console 编码）
	EnableColor bool
}

// DefaultConfig 默认配置
var DefaultConfig = &Config{
	Level:            "info",
	OutputPaths:      []string{"stdout"},
	ErrorOutputPaths: []string{"stderr"},
	Encoding:         "console",
	EnableColor:      true,
}

// NewLogger 创建新的日志器
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig
	}

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Encoding == "console" && cfg.EnableColor {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	newEncoder := func() zapcore.Encoder {
		if cfg.Encoding == "json" {
			return zapcore.NewJSONEncoder(encoderConfig)
		}
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	var cores []zapcore.Core
	for _, path := range cfg.OutputPaths {
		cores = append(cores, zapcore.NewCore(newEncoder(), getWriter(path), level))
	}
	for _, path := range cfg.ErrorOutputPaths {
		if slices.Contains(cfg.OutputPaths, path) {
			continue // 避免重复
		}
		cores = append(cores, zapcore.NewCore(newEncoder(), getWriter(path), zapcore.ErrorLevel))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return Wrap(zap.New(zapcore.NewTee(cores...), opts...)), nil
}

// Wrap 包装已有的 zap.Logger（测试中配合 zaptest/observer 使用）
func Wrap(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{zap: zl, sugar: zl.Sugar()}
}

// InitFromConfig 将 config.LogConfig 转换为 log.Config 并替换全局日志器
func InitFromConfig(cfg *config.LogConfig) (*Logger, error) {
	logCfg := DefaultConfig
	if cfg != nil {
		logCfg = &Config{
			Level:            cfg.Level,
			OutputPaths:      cfg.OutputPaths,
			ErrorOutputPaths: cfg.ErrorOutputPaths,
			Encoding:         cfg.Encoding,
			EnableColor:      cfg.Encoding == "console", // console 模式启用颜色
		}
	}

	l, err := NewLogger(logCfg)
	if err != nil {
		return nil, err
	}
	ReplaceGlobalLogger(l)
	return l, nil
}

// GetLogger 获取全局日志器，未初始化时使用默认配置
func GetLogger() *Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		l, err := NewLogger(DefaultConfig)
		if err != nil {
			l = Wrap(zap.NewNop())
		}
		globalLogger = l
	}
	return globalLogger
}

// ReplaceGlobalLogger 替换全局日志器
func ReplaceGlobalLogger(logger *Logger) {
	mu.Lock()
	globalLogger = logger
	mu.Unlock()
}

// Zap 返回底层 zap.Logger，供只接受 *zap.Logger 的组件使用
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Sync 同步日志缓冲区
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// With 添加字段（返回新的 logger）
func (l *Logger) With(fields ...zap.Field) *Logger {
	return Wrap(l.zap.With(fields...))
}

// Named 创建命名子日志器
func (l *Logger) Named(name string) *Logger {
	return Wrap(l.zap.Named(name))
}

// Debug 级别日志
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

// Info 级别日志
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Warn 级别日志
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

// Error 级别日志
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// Fatal 级别日志（会退出程序）
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, fields...)
}

// Infof 格式化 Info 日志
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Errorf 格式化 Error 日志
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

// getWriter 获取输出 Writer
func getWriter(path string) zapcore.WriteSyncer {
	switch path {
	case "stdout":
		return zapcore.AddSync(os.Stdout)
	case "stderr":
		return zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			// 失败时回退到 stdout
			return zapcore.AddSync(os.Stdout)
		}
		return zapcore.AddSync(file)
	}
}

// 全局便捷函数（使用全局 logger）

// Debug 全局 Debug 日志
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Info 全局 Info 日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn 全局 Warn 日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error 全局 Error 日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 全局 Fatal 日志
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// Sync 同步全局日志器
func Sync() error {
	return GetLogger().Sync()
}
