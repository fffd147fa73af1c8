package ctrace

import (
	"errors"
	"syscall"

	"github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger writes span events as structured zap entries instead of raw
// JSON lines. The entry message is the record's event and the fields mirror
// the wire record: traceId, spanId, parentId, service, operation, start,
// finish, duration, log or logs, tags and baggage. In single-event mode the
// one entry per span carries the "Stop-Span" message.
type ZapLogger struct {
	log   *zap.Logger
	level zapcore.Level
}

// NewZapLogger writes span events to l at level.
func NewZapLogger(l *zap.Logger, level zapcore.Level) *ZapLogger {
	return &ZapLogger{log: l, level: level}
}

// Start implements Logger.
func (z *ZapLogger) Start(span *Span, rec LogRecord) {
	if span.SingleEventOutput() {
		return
	}
	z.write(span, &rec)
}

// Activate implements Logger.
func (z *ZapLogger) Activate(span *Span) {
	if ce := z.log.Check(zapcore.DebugLevel, "span activated"); ce != nil {
		ce.Write(
			zap.String("traceId", span.TraceID()),
			zap.String("spanId", span.SpanID()),
		)
	}
}

// Log implements Logger.
func (z *ZapLogger) Log(span *Span, rec LogRecord) {
	if span.SingleEventOutput() {
		return
	}
	z.write(span, &rec)
}

// Finish implements Logger.
func (z *ZapLogger) Finish(span *Span, rec LogRecord) {
	z.write(span, &rec)
}

// Flush syncs the underlying logger. Terminals and pipes reject fsync with
// EINVAL or ENOTTY; those errors are ignored.
func (z *ZapLogger) Flush() error {
	err := z.log.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// write logs one entry whose message is the record's event, or "span log"
// for records without one.
func (z *ZapLogger) write(span *Span, rec *LogRecord) {
	msg := rec.Event()
	if msg == "" {
		msg = "span log"
	}
	ce := z.log.Check(z.level, msg)
	if ce == nil {
		return
	}

	snap := span.Snapshot()
	fields := make([]zap.Field, 0, 11)
	fields = append(fields,
		zap.String("traceId", snap.TraceID),
		zap.String("spanId", snap.SpanID),
	)
	if snap.ParentID != "" {
		fields = append(fields, zap.String("parentId", snap.ParentID))
	}
	if snap.Service != "" {
		fields = append(fields, zap.String("service", snap.Service))
	}
	fields = append(fields,
		zap.String("operation", snap.Operation),
		zap.Int64("start", snap.StartMillis()),
	)
	if snap.Finished {
		fields = append(fields,
			zap.Int64("finish", snap.FinishMillis()),
			zap.Int64("duration", snap.DurationMillis()),
		)
	}
	if snap.Logs != nil {
		fields = append(fields, zap.Array("logs", logRecords(snap.Logs)))
	} else {
		fields = append(fields, zap.Object("log", rec))
	}
	if len(snap.Tags) > 0 {
		fields = append(fields, zap.Object("tags", tagList(snap.Tags)))
	}
	if len(snap.Baggage) > 0 {
		fields = append(fields, zap.Object("baggage", baggageList(snap.Baggage)))
	}
	ce.Write(fields...)
}

// MarshalLogObject renders the record for zap.
func (r *LogRecord) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("timestamp", r.Timestamp.UnixMilli())
	fe := zapFieldEncoder{enc: enc}
	for _, f := range r.Fields {
		f.Marshal(&fe)
	}
	return nil
}

type logRecords []LogRecord

func (rs logRecords) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for i := range rs {
		if err := enc.AppendObject(&rs[i]); err != nil {
			return err
		}
	}
	return nil
}

type tagList []Tag

func (ts tagList) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, t := range ts {
		switch t.Value.Kind() {
		case StringTag:
			enc.AddString(t.Key, t.Value.s)
		case BoolTag:
			enc.AddBool(t.Key, t.Value.b)
		case IntTag:
			enc.AddInt64(t.Key, t.Value.i)
		case FloatTag:
			enc.AddFloat64(t.Key, t.Value.f)
		}
	}
	return nil
}

type baggageList []BaggageItem

func (bs baggageList) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, b := range bs {
		enc.AddString(b.Key, b.Value)
	}
	return nil
}

// zapFieldEncoder adapts opentracing log fields to a zap object encoder.
type zapFieldEncoder struct {
	enc zapcore.ObjectEncoder
}

var _ log.Encoder = (*zapFieldEncoder)(nil)

func (z *zapFieldEncoder) EmitString(key, value string)      { z.enc.AddString(key, value) }
func (z *zapFieldEncoder) EmitBool(key string, value bool)   { z.enc.AddBool(key, value) }
func (z *zapFieldEncoder) EmitInt(key string, value int)     { z.enc.AddInt(key, value) }
func (z *zapFieldEncoder) EmitInt32(key string, value int32) { z.enc.AddInt32(key, value) }
func (z *zapFieldEncoder) EmitInt64(key string, value int64) { z.enc.AddInt64(key, value) }
func (z *zapFieldEncoder) EmitUint32(key string, value uint32) {
	z.enc.AddUint32(key, value)
}
func (z *zapFieldEncoder) EmitUint64(key string, value uint64) {
	z.enc.AddUint64(key, value)
}
func (z *zapFieldEncoder) EmitFloat32(key string, value float32) {
	z.enc.AddFloat32(key, value)
}
func (z *zapFieldEncoder) EmitFloat64(key string, value float64) {
	z.enc.AddFloat64(key, value)
}
func (z *zapFieldEncoder) EmitObject(key string, value any) {
	if err := z.enc.AddReflected(key, value); err != nil {
		z.enc.AddString(key+"Error", err.Error())
	}
}
func (z *zapFieldEncoder) EmitLazyLogger(value log.LazyLogger) { value(z) }
