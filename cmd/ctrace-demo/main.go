// Command ctrace-demo runs a simulated request through a tracer and prints
// the span records to stdout.
//
//	ctrace-demo --service checkout --header X-Correlation-Id=abc
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go/log"
	"github.com/spf13/pflag"
	"github.com/zoobzio/ctrace"
)

func main() {
	var (
		service     string
		singleEvent bool
		configPath  string
		headers     []string
	)
	pflag.StringVar(&service, "service", "ctrace-demo", "service name reported on spans")
	pflag.BoolVar(&singleEvent, "single-event", false, "report each span once, at finish")
	pflag.StringVar(&configPath, "config", "", "YAML configuration file; overrides --service and --single-event")
	pflag.StringArrayVar(&headers, "header", nil, "inbound request header as key=value (repeatable)")
	pflag.Parse()

	tracer, err := newTracer(configPath, service, singleEvent)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ctrace-demo:", err)
		os.Exit(1)
	}
	defer tracer.Close()

	inbound, err := parseHeaders(headers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ctrace-demo:", err)
		os.Exit(2)
	}

	outbound := handle(context.Background(), tracer, inbound)

	keys := make([]string, 0, len(outbound))
	for k := range outbound {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(os.Stderr, "%s: %s\n", k, outbound.Get(k))
	}
}

func newTracer(configPath, service string, singleEvent bool) (*ctrace.Tracer, error) {
	if configPath == "" {
		return ctrace.New(
			ctrace.WithServiceName(service),
			ctrace.WithSingleEventOutput(singleEvent),
		), nil
	}
	cfg, err := ctrace.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return ctrace.NewFromConfig(cfg)
}

func parseHeaders(pairs []string) (http.Header, error) {
	h := make(http.Header, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid header %q, want key=value", p)
		}
		h.Add(k, v)
	}
	return h, nil
}

// handle simulates a server request: it continues the inbound trace, does
// some nested work, hands part of it to a worker and returns the headers of
// an outbound call.
func handle(ctx context.Context, tracer *ctrace.Tracer, inbound http.Header) http.Header {
	builder := tracer.BuildSpan("GET /checkout").WithTag("span.kind", "server")
	if parent := tracer.Propagator().ExtractHTTP(inbound); parent != nil {
		builder.AsChildOf(parent)
	}
	ctx, server := builder.StartActive(ctx)
	defer server.Deactivate()

	server.SetBaggageItem("tenant", "acme")
	server.LogKV("event", "request.received", "headers", len(inbound))

	_, lookup := tracer.StartSpan(ctx, "cart.lookup")
	lookup.SetIntTag("cart.items", 3)
	time.Sleep(2 * time.Millisecond)
	lookup.Deactivate()

	var wg sync.WaitGroup
	cont := server.Capture()
	wg.Add(1)
	go func() {
		defer wg.Done()
		wctx, resumed := cont.Activate(context.Background())
		defer resumed.Deactivate()

		_, audit := tracer.StartSpan(wctx, "audit.write")
		audit.LogFields(log.String("event", "audit.queued"), log.Bool("async", true))
		audit.Deactivate()
	}()
	wg.Wait()

	outbound := make(http.Header)
	_, client := tracer.BuildSpan("POST /payments").WithTag("span.kind", "client").StartActive(ctx)
	tracer.Propagator().InjectHTTP(client.Context(), outbound)
	client.SetBoolTag("payment.approved", true)
	client.Deactivate()

	return outbound
}
