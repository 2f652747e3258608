package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/smallbiznis/meterbill/http"

// GinMiddleware opens a server span per request, continuing any inbound
// trace. The span is renamed to the matched route once the handler returns
// so ids in paths never become span names.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		parent := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(parent, c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span.SetName(c.Request.Method + " " + route)

		reqCtx := c.Request.Context()
		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.String("request_id", obscontext.RequestIDFromContext(reqCtx)),
			attribute.String("tenant_id", obscontext.TenantIDFromContext(reqCtx)),
		}
		if role, _ := obscontext.ActorFromContext(reqCtx); role != "" {
			attrs = append(attrs, attribute.String("actor.role", role))
		}
		if metric := c.GetString("metric_name"); metric != "" {
			attrs = append(attrs, attribute.String("usage.metric", metric))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		switch {
		case status == http.StatusTooManyRequests:
			span.AddEvent("rate_limited")
		case status >= http.StatusInternalServerError:
			if last := c.Errors.Last(); last != nil {
				span.RecordError(SafeError(last.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
