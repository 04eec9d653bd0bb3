package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// TraceHeader carries the trace id
const TraceHeader = "X-Trace-ID"

// requestIDKey is where the request id middleware stores its id
const requestIDKey = "request_id"

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		traceID := TraceID(c.GetHeader(TraceHeader))
		if traceID == "" {
			traceID = TraceID(c.GetString(requestIDKey))
		}
		if traceID != "" {
			ctx = WithTraceID(ctx, traceID)
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		c.Request = c.Request.WithContext(ctx)
		if span != nil {
			c.Header(TraceHeader, string(span.TraceID))
		}

		c.Next()

		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
	}
}
