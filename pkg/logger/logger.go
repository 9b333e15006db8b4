// Package logger 提供简单的分级日志输出
package logger

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	debugEnabled atomic.Bool
	infoLogger   = log.New(os.Stderr, "[INFO] ", log.LstdFlags)
	errorLogger  = log.New(os.Stderr, "[ERROR] ", log.LstdFlags)
	debugLogger  = log.New(os.Stderr, "[DEBUG] ", log.LstdFlags)
)

// SetDebug 开启或关闭调试日志
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled 是否开启了调试日志
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetOutput 重定向所有日志输出 (测试用)
func SetOutput(w io.Writer) {
	infoLogger.SetOutput(w)
	errorLogger.SetOutput(w)
	debugLogger.SetOutput(w)
}

// Info 输出信息日志
func Info(format string, args ...interface{}) {
	infoLogger.Printf(format, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	errorLogger.Printf(format, args...)
}

// Debug 仅在开启调试时输出
func Debug(format string, args ...interface{}) {
	if debugEnabled.Load() {
		debugLogger.Printf(format, args...)
	}
}

// Fatal 输出错误日志并以状态码 1 退出
func Fatal(format string, args ...interface{}) {
	errorLogger.Printf(format, args...)
	os.Exit(1)
}
