package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - параметры логирования
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // stdout, stderr или путь к файлу
	Development bool
}

// Logger - обертка над zap.Logger с доменными хелперами
type Logger struct {
	*zap.Logger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitLogger создает logger по конфигурации.
// Пустые поля заменяются значениями по умолчанию (info, json, stdout).
func InitLogger(cfg LogConfig) *Logger {
	return newLogger(cfg, openOutput(cfg.Output))
}

func newLogger(cfg LogConfig, out zapcore.WriteSyncer) *Logger {
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Development {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(parseLevel(cfg.Level)))

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{Logger: zap.New(core, opts...)}
}

// openOutput открывает приемник логов; при ошибке открытия файла - stderr
func openOutput(output string) zapcore.WriteSyncer {
	switch output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.AddSync(f)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitGlobalLogger создает logger и делает его глобальным
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный logger
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный logger, создавая его по умолчанию при первом вызове
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// With возвращает дочерний logger с полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

func (l *Logger) WithBroker(brokerType string) *Logger {
	return l.With(BrokerType(brokerType))
}

func (l *Logger) WithUserID(userID int64) *Logger {
	return l.With(UserID(userID))
}

// Sync сбрасывает буферы
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// ============ Глобальные функции ============

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// ============ Доменные поля ============

func BrokerType(t string) zap.Field { return zap.String("broker_type", t) }
func BrokerID(id int64) zap.Field { return zap.Int64("broker_id", id) }
func UserID(id int64) zap.Field { return zap.Int64("user_id", id) }
func TradeID(id int64) zap.Field { return zap.Int64("trade_id", id) }
func Symbol(symbol string) zap.Field { return zap.String("symbol", symbol) }
func Side(side string) zap.Field { return zap.String("side", side) }
func PNL(pnl float64) zap.Field { return zap.Float64("pnl", pnl) }
func Status(status string) zap.Field { return zap.String("status", status) }
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field { return zap.String("request_id", id) }
func Component(name string) zap.Field { return zap.String("component", name) }
func Count(name string, n int) zap.Field { return zap.Int(name, n) }
func HTTPStatus(code int) zap.Field { return zap.Int("http_status", code) }
func Path(path string) zap.Field { return zap.String("path", path) }
func Method(method string) zap.Field { return zap.String("method", method) }

// Переэкспорт конструкторов zap
var (
	String = zap.String
	Int64  = zap.Int64
	Bool   = zap.Bool
	Err    = zap.Error
)
