package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志选项
type Options struct {
	Debug bool
	// File 非空时额外写入轮转日志文件
	File string
	// Console 控制台输出目标，默认 stdout；MCP stdio 模式必须改为 stderr
	Console io.Writer
	// JSON 控制台输出原始JSON而非彩色文本
	JSON bool
}

// Logger 封装了 zerolog.Logger 并包含同步机制
type Logger struct {
	logger  zerolog.Logger
	console io.Writer
	mutex   sync.RWMutex
}

// New 按选项初始化日志系统
func New(opts Options) *Logger {
	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	out := opts.Console
	if out == nil {
		out = os.Stdout
	}
	l := &Logger{console: out}
	if !opts.JSON {
		l.console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l.build(l.console)
	if opts.File != "" {
		l.SetLogOutput(opts.File)
	}
	return l
}

func (l *Logger) build(writers ...io.Writer) {
	multi := zerolog.MultiLevelWriter(writers...)
	l.logger = zerolog.New(multi).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = l.logger
}

// GetLogger 返回带有 component 字段的日志记录器
func (l *Logger) GetLogger(component string) zerolog.Logger {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.logger.With().
		Str("component", component).
		Logger()
}

// SetLogOutput 增加轮转日志文件输出
func (l *Logger) SetLogOutput(logFilePath string) {
	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28,   // days
		Compress:   true, // 压缩旧文件
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.build(l.console, fileWriter)
}
