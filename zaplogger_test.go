package ctrace

import (
	"context"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newZapTestTracer(t *testing.T, level zapcore.Level, opts ...Option) (*Tracer, *observer.ObservedLogs, *clockz.FakeClock) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	clock := clockz.NewFakeClockAt(epoch)
	base := []Option{WithLogger(NewZapLogger(zap.New(core), level))}
	tracer, _ := newTestTracer(t, clock, append(base, opts...)...)
	return tracer, logs, clock
}

func TestZapLoggerMultiEvent(t *testing.T) {
	tracer, logs, clock := newZapTestTracer(t, zapcore.InfoLevel)

	ctx, parent := tracer.StartSpan(context.Background(), "parent")
	parent.SetBaggageItem("b", "v")
	_, child := tracer.StartSpan(ctx, "child")
	child.SetTag("k", "v")
	child.LogKV("message", "hello")
	clock.Advance(10 * time.Millisecond)
	child.Deactivate()
	parent.Deactivate()

	info := logs.FilterLevelExact(zapcore.InfoLevel).All()
	var msgs []string
	for _, e := range info {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"Start-Span", "Start-Span", "span log", "Stop-Span", "Stop-Span"}, msgs)

	finish := info[3].ContextMap()
	assert.Equal(t, "0000000000000001", finish["traceId"])
	assert.Equal(t, "0000000000000003", finish["spanId"])
	assert.Equal(t, "0000000000000002", finish["parentId"])
	assert.Equal(t, "TestService", finish["service"])
	assert.Equal(t, "child", finish["operation"])
	assert.Equal(t, int64(123), finish["start"])
	assert.Equal(t, int64(133), finish["finish"])
	assert.Equal(t, int64(10), finish["duration"])
	assert.Equal(t, map[string]any{"k": "v"}, finish["tags"])
	assert.Equal(t, map[string]any{"b": "v"}, finish["baggage"])
	assert.Equal(t, map[string]any{"timestamp": int64(133), "event": "Stop-Span"}, finish["log"])

	logged := info[2].ContextMap()
	assert.Equal(t, map[string]any{"timestamp": int64(123), "message": "hello"}, logged["log"])

	// Activation is a debug entry.
	assert.Equal(t, 2, logs.FilterMessage("span activated").Len())
}

func TestZapLoggerSingleEvent(t *testing.T) {
	tracer, logs, _ := newZapTestTracer(t, zapcore.InfoLevel, WithSingleEventOutput(true))

	_, active := tracer.StartSpan(context.Background(), "op")
	active.LogEvent("a")
	active.LogEvent("b")
	active.Deactivate()

	info := logs.FilterLevelExact(zapcore.InfoLevel).All()
	require.Len(t, info, 1)
	assert.Equal(t, "Stop-Span", info[0].Message)

	fields := info[0].ContextMap()
	entries, ok := fields["logs"].([]any)
	require.True(t, ok, "expected a logs array, got %T", fields["logs"])
	assert.Len(t, entries, 4)
	assert.NotContains(t, fields, "log")
}

func TestZapLoggerLevel(t *testing.T) {
	tracer, logs, _ := newZapTestTracer(t, zapcore.WarnLevel)

	tracer.BuildSpan("op").Start(context.Background()).Finish()

	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.InfoLevel).Len())
}

func TestZapLoggerDisabledLevel(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	clock := clockz.NewFakeClockAt(epoch)
	tracer, _ := newTestTracer(t, clock, WithLogger(NewZapLogger(zap.New(core), zapcore.InfoLevel)))

	_, active := tracer.StartSpan(context.Background(), "op")
	active.Deactivate()

	assert.Equal(t, 0, logs.Len())
}

// syncErrWriter discards writes and fails Sync with err.
type syncErrWriter struct{ err error }

func (syncErrWriter) Write(p []byte) (int, error) { return len(p), nil }

func (w syncErrWriter) Sync() error { return w.err }

func TestZapLoggerFlushIgnoresUnsyncableStreams(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "ok"},
		{name: "pipe", err: &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.EINVAL}},
		{name: "terminal", err: &os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.ENOTTY}},
		{name: "disk", err: &os.PathError{Op: "sync", Path: "spans.log", Err: syscall.EIO}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out io.Writer = syncErrWriter{err: tt.err}
			core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(out), zapcore.DebugLevel)
			tracer := New(WithServiceName("svc"), WithLogger(NewZapLogger(zap.New(core), zapcore.InfoLevel)), WithIDPool(0))

			tracer.BuildSpan("op").Start(context.Background()).Finish()
			err := tracer.Close()
			if tt.wantErr {
				assert.ErrorIs(t, err, syscall.EIO)
				return
			}
			assert.NoError(t, err)
		})
	}
}
