// Created by Yanjunhui

package engine

import (
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 日志级别
// EN: Log levels.
const (
	LogLevelDebug = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var zapLevels = map[int]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

// swapWriter 可替换的输出目标
// EN: swapWriter lets SetOutput redirect an existing logger tree.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *swapWriter) Sync() error { return nil }

func (s *swapWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

// Logger 结构化 JSON 日志器（zap 后端）
// EN: Logger writes structured JSON logs through zap. Loggers derived with
// WithComponent share level, output and slow threshold with their parent.
type Logger struct {
	base          *zap.Logger // 不带组件字段 (EN: without the component field)
	z             *zap.Logger
	level         zap.AtomicLevel
	out           *swapWriter
	component     string
	slowThreshold *atomic.Int64 // 慢操作阈值（纳秒） (EN: slow-operation threshold in ns)
}

// 全局日志器
// EN: Global default logger.
var defaultLogger = NewLogger(os.Stderr)

// NewLogger 创建新的日志器
// EN: NewLogger creates a new logger writing JSON lines to output.
func NewLogger(output io.Writer) *Logger {
	out := &swapWriter{w: output}
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zapEncoderConfig()), out, level)
	base := zap.New(core)

	threshold := &atomic.Int64{}
	threshold.Store(int64(100 * time.Millisecond))

	const component = "FXSTORE"
	return &Logger{
		base:          base,
		z:             base.With(zap.String("component", component)),
		level:         level,
		out:           out,
		component:     component,
		slowThreshold: threshold,
	}
}

// SetLevel 设置日志级别
// EN: SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level int) {
	if zl, ok := zapLevels[level]; ok {
		l.level.SetLevel(zl)
	}
}

// SetSlowThreshold 设置慢操作阈值
// EN: SetSlowThreshold sets the slow-operation threshold.
func (l *Logger) SetSlowThreshold(d time.Duration) {
	l.slowThreshold.Store(int64(d))
}

// SlowThreshold 返回慢操作阈值
// EN: SlowThreshold returns the slow-operation threshold.
func (l *Logger) SlowThreshold() time.Duration {
	return time.Duration(l.slowThreshold.Load())
}

// WithSlowThreshold 创建拥有独立慢操作阈值的副本
// EN: WithSlowThreshold returns a copy whose slow threshold is independent of l.
func (l *Logger) WithSlowThreshold(d time.Duration) *Logger {
	c := *l
	c.slowThreshold = &atomic.Int64{}
	c.slowThreshold.Store(int64(d))
	return &c
}

// SetOutput 设置输出目标
// EN: SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.set(w)
}

// WithComponent 创建带组件名的日志器副本
// EN: WithComponent returns a logger copy with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	c := *l
	c.component = name
	c.z = l.base.With(zap.String("component", name))
	return &c
}

func zapEncoderConfig() zapcore.EncoderConfig {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"
	encCfg.LevelKey = "level"
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey
	return encCfg
}

// Component 返回组件名
// EN: Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// log 写入日志，ctx 按键名排序输出
// EN: log writes one entry; ctx keys are emitted in sorted order.
func (l *Logger) log(level int, msg string, ctx map[string]interface{}, duration time.Duration) {
	zl, ok := zapLevels[level]
	if !ok {
		zl = zapcore.InfoLevel
	}
	ce := l.z.Check(zl, msg)
	if ce == nil {
		return
	}

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, ctx[k]))
	}
	if duration > 0 {
		fields = append(fields, zap.Int64("durationMs", duration.Milliseconds()))
	}
	ce.Write(fields...)
}

func firstCtx(ctx []map[string]interface{}) map[string]interface{} {
	if len(ctx) > 0 {
		return ctx[0]
	}
	return nil
}

// Debug 调试日志
// EN: Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, ctx ...map[string]interface{}) {
	l.log(LogLevelDebug, msg, firstCtx(ctx), 0)
}

// Info 信息日志
// EN: Info logs at INFO level.
func (l *Logger) Info(msg string, ctx ...map[string]interface{}) {
	l.log(LogLevelInfo, msg, firstCtx(ctx), 0)
}

// Warn 警告日志
// EN: Warn logs at WARN level.
func (l *Logger) Warn(msg string, ctx ...map[string]interface{}) {
	l.log(LogLevelWarn, msg, firstCtx(ctx), 0)
}

// Error 错误日志
// EN: Error logs at ERROR level.
func (l *Logger) Error(msg string, ctx ...map[string]interface{}) {
	l.log(LogLevelError, msg, firstCtx(ctx), 0)
}

// LogSlowOperation 记录慢操作（耗时不低于阈值时）
// EN: LogSlowOperation records operations whose duration reaches the threshold.
func (l *Logger) LogSlowOperation(op string, duration time.Duration, ctx map[string]interface{}) {
	threshold := l.SlowThreshold()
	if duration < threshold {
		return
	}

	fields := make(map[string]interface{}, len(ctx)+2)
	for k, v := range ctx {
		fields[k] = v
	}
	fields["operation"] = op
	fields["slowThreshold"] = threshold.String()

	l.log(LogLevelWarn, "slow operation detected", fields, duration)
}

// 全局日志函数
// EN: Global logging helpers.

// GetLogger 获取默认日志器
// EN: GetLogger returns the default logger.
func GetLogger() *Logger {
	return defaultLogger
}

// SetLogLevel 设置全局日志级别
// EN: SetLogLevel sets the global log level.
func SetLogLevel(level int) {
	defaultLogger.SetLevel(level)
}

// SetSlowOperationThreshold 设置全局慢操作阈值
// EN: SetSlowOperationThreshold sets the global slow-operation threshold.
func SetSlowOperationThreshold(d time.Duration) {
	defaultLogger.SetSlowThreshold(d)
}

// LogInfo 全局信息日志
// EN: LogInfo writes an INFO log using the default logger.
func LogInfo(msg string, ctx ...map[string]interface{}) {
	defaultLogger.Info(msg, ctx...)
}

// LogWarn 全局警告日志
// EN: LogWarn writes a WARN log using the default logger.
func LogWarn(msg string, ctx ...map[string]interface{}) {
	defaultLogger.Warn(msg, ctx...)
}

// LogError 全局错误日志
// EN: LogError writes an ERROR log using the default logger.
func LogError(msg string, ctx ...map[string]interface{}) {
	defaultLogger.Error(msg, ctx...)
}

// LogDebug 全局调试日志
// EN: LogDebug writes a DEBUG log using the default logger.
func LogDebug(msg string, ctx ...map[string]interface{}) {
	defaultLogger.Debug(msg, ctx...)
}
