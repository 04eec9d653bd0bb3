/*
Package tracing provides lightweight request tracing for debugging.

Spans carry a trace id shared by every operation of one request and are
written to the structured log when finished. Trace context travels in the
X-Trace-ID header; when absent the request id is used.

# Usage

	tracer := tracing.New("seadaemon", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "install.extract")
	span.SetTag("app", name)
	defer span.Finish()

A nil *Tracer is valid and records nothing.
*/
package tracing
