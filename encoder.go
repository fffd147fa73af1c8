package ctrace

import (
	"fmt"
	"math"
	"strconv"

	"github.com/opentracing/opentracing-go/log"
)

// Encoder renders a span snapshot plus one log record into a wire record.
type Encoder interface {
	// Encode appends the record to dst and returns the extended buffer.
	Encode(dst []byte, snap *Snapshot, rec *LogRecord) []byte
}

// JSONEncoder writes one single-line JSON object per record, terminated by
// a newline:
//
//	{"traceId":..,"spanId":..,"parentId":..,"service":..,"operation":..,
//	 "start":..,"finish":..,"duration":..,"log":{..}|"logs":[..],
//	 "tags":{..},"baggage":{..}}
//
// parentId, service, finish/duration, tags and baggage appear only when set.
// Times are milliseconds since the epoch. Strings are quoted verbatim with no
// escaping, so keys and values must not contain quotes, backslashes or
// control characters.
type JSONEncoder struct{}

// Encode implements Encoder. In single-event mode (snap.Logs set) the
// buffered logs are written as "logs" and rec is ignored.
func (e JSONEncoder) Encode(dst []byte, snap *Snapshot, rec *LogRecord) []byte {
	dst = e.appendStart(dst, snap)
	dst = e.appendFinish(dst, snap)
	if snap.Logs != nil {
		dst = e.appendLogs(dst, snap.Logs)
	} else if rec != nil {
		dst = e.appendLog(dst, rec)
	}
	dst = e.appendTags(dst, snap.Tags)
	dst = e.appendBaggage(dst, snap.Baggage)
	return appendSuffix(dst)
}

// EncodeToString returns the encoded record as a string.
func (e JSONEncoder) EncodeToString(snap *Snapshot, rec *LogRecord) string {
	return string(e.Encode(nil, snap, rec))
}

// appendStart writes everything from the opening brace through "start".
func (JSONEncoder) appendStart(dst []byte, snap *Snapshot) []byte {
	dst = append(dst, `{"traceId":"`...)
	dst = append(dst, snap.TraceID...)
	dst = append(dst, `","spanId":"`...)
	dst = append(dst, snap.SpanID...)
	dst = append(dst, `",`...)
	if snap.ParentID != "" {
		dst = append(dst, `"parentId":"`...)
		dst = append(dst, snap.ParentID...)
		dst = append(dst, `",`...)
	}
	if snap.Service != "" {
		dst = append(dst, `"service":"`...)
		dst = append(dst, snap.Service...)
		dst = append(dst, `",`...)
	}
	dst = append(dst, `"operation":"`...)
	dst = append(dst, snap.Operation...)
	dst = append(dst, `","start":`...)
	return strconv.AppendInt(dst, snap.StartMillis(), 10)
}

func (JSONEncoder) appendFinish(dst []byte, snap *Snapshot) []byte {
	if !snap.Finished {
		return dst
	}
	dst = append(dst, `,"finish":`...)
	dst = strconv.AppendInt(dst, snap.FinishMillis(), 10)
	dst = append(dst, `,"duration":`...)
	return strconv.AppendInt(dst, snap.DurationMillis(), 10)
}

func (JSONEncoder) appendLog(dst []byte, rec *LogRecord) []byte {
	dst = append(dst, `,"log":`...)
	return appendRecord(dst, rec)
}

func (JSONEncoder) appendLogs(dst []byte, logs []LogRecord) []byte {
	dst = append(dst, `,"logs":[`...)
	for i := range logs {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendRecord(dst, &logs[i])
	}
	return append(dst, ']')
}

func (JSONEncoder) appendTags(dst []byte, tags []Tag) []byte {
	if len(tags) == 0 {
		return dst
	}
	dst = append(dst, `,"tags":{`...)
	for i, tag := range tags {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendKey(dst, tag.Key)
		switch tag.Value.Kind() {
		case StringTag:
			dst = appendString(dst, tag.Value.s)
		case FloatTag:
			dst = appendFloat(dst, tag.Value.f, 64)
		default:
			dst = tag.Value.appendRaw(dst)
		}
	}
	return append(dst, '}')
}

func (JSONEncoder) appendBaggage(dst []byte, baggage []BaggageItem) []byte {
	if len(baggage) == 0 {
		return dst
	}
	dst = append(dst, `,"baggage":{`...)
	for i, item := range baggage {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendKey(dst, item.Key)
		dst = appendString(dst, item.Value)
	}
	return append(dst, '}')
}

func appendSuffix(dst []byte) []byte {
	return append(dst, '}', '\n')
}

func appendKey(dst []byte, key string) []byte {
	dst = append(dst, '"')
	dst = append(dst, key...)
	return append(dst, '"', ':')
}

func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	dst = append(dst, s...)
	return append(dst, '"')
}

// appendFloat quotes NaN and the infinities, which JSON has no literal for.
func appendFloat(dst []byte, f float64, bits int) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		dst = append(dst, '"')
		dst = strconv.AppendFloat(dst, f, 'g', -1, bits)
		return append(dst, '"')
	}
	return strconv.AppendFloat(dst, f, 'g', -1, bits)
}

// appendRecord writes {"timestamp":..,<fields>}.
func appendRecord(dst []byte, rec *LogRecord) []byte {
	dst = append(dst, `{"timestamp":`...)
	dst = strconv.AppendInt(dst, rec.Timestamp.UnixMilli(), 10)
	fe := fieldEncoder{buf: dst}
	for _, f := range rec.Fields {
		f.Marshal(&fe)
	}
	return append(fe.buf, '}')
}

// fieldEncoder renders opentracing log fields as ,"key":value pairs.
type fieldEncoder struct {
	buf []byte
}

var _ log.Encoder = (*fieldEncoder)(nil)

func (fe *fieldEncoder) key(k string) {
	fe.buf = append(fe.buf, ',')
	fe.buf = appendKey(fe.buf, k)
}

func (fe *fieldEncoder) EmitString(key, value string) {
	fe.key(key)
	fe.buf = appendString(fe.buf, value)
}

func (fe *fieldEncoder) EmitBool(key string, value bool) {
	fe.key(key)
	fe.buf = strconv.AppendBool(fe.buf, value)
}

func (fe *fieldEncoder) EmitInt(key string, value int) {
	fe.key(key)
	fe.buf = strconv.AppendInt(fe.buf, int64(value), 10)
}

func (fe *fieldEncoder) EmitInt32(key string, value int32) {
	fe.key(key)
	fe.buf = strconv.AppendInt(fe.buf, int64(value), 10)
}

func (fe *fieldEncoder) EmitInt64(key string, value int64) {
	fe.key(key)
	fe.buf = strconv.AppendInt(fe.buf, value, 10)
}

func (fe *fieldEncoder) EmitUint32(key string, value uint32) {
	fe.key(key)
	fe.buf = strconv.AppendUint(fe.buf, uint64(value), 10)
}

func (fe *fieldEncoder) EmitUint64(key string, value uint64) {
	fe.key(key)
	fe.buf = strconv.AppendUint(fe.buf, value, 10)
}

func (fe *fieldEncoder) EmitFloat32(key string, value float32) {
	fe.key(key)
	fe.buf = appendFloat(fe.buf, float64(value), 32)
}

func (fe *fieldEncoder) EmitFloat64(key string, value float64) {
	fe.key(key)
	fe.buf = appendFloat(fe.buf, value, 64)
}

// EmitObject quotes the value's fmt representation; nil becomes null.
func (fe *fieldEncoder) EmitObject(key string, value any) {
	fe.key(key)
	if value == nil {
		fe.buf = append(fe.buf, "null"...)
		return
	}
	fe.buf = appendString(fe.buf, fmt.Sprint(value))
}

func (fe *fieldEncoder) EmitLazyLogger(value log.LazyLogger) {
	value(fe)
}
