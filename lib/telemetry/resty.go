package telemetry

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// response bodies are truncated to this many bytes on spans, listing
// pages are large
const maxBodyAttribute = 4096

var httpMeter = otel.Meter("landmash/lib/telemetry")
var httpRequests, _ = httpMeter.Int64Counter(
	"http_client_requests",
	metric.WithDescription("outbound http requests by upstream and status"),
)

// InstrumentResty traces every request made through client, spans are
// named after the upstream so traces from different critics stand apart.
func InstrumentResty(client *resty.Client, upstream string) {
	tracer := otel.Tracer("landmash/http/" + upstream)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("%s %s", upstream, req.Method))
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		onAfterResponse(upstream, res)
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		onError(upstream, req, err)
	})
}

func headerAttributes(out *[]attribute.KeyValue, prefix string, headers http.Header) {
	for header, values := range headers {
		if len(values) == 1 {
			*out = append(*out, attribute.String(fmt.Sprintf("%s/header: %s", prefix, header), values[0]))
			continue
		}
		for i, v := range values {
			*out = append(*out, attribute.String(fmt.Sprintf("%s/header: %s (%d)", prefix, header, i), v))
		}
	}
}

func truncate(body string) string {
	if len(body) <= maxBodyAttribute {
		return body
	}
	return body[:maxBodyAttribute] + "..."
}

func onAfterResponse(upstream string, res *resty.Response) {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	// res.Request.RawRequest is only populated once the request has been sent
	if res.Request.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	}
	if res.RawResponse != nil {
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	}

	var attrs []attribute.KeyValue
	headerAttributes(&attrs, "request", res.Request.Header)
	headerAttributes(&attrs, "response", res.Header())
	attrs = append(attrs, attribute.String("response/body", truncate(res.String())))
	span.SetAttributes(attrs...)

	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}

	httpRequests.Add(res.Request.Context(), 1, metric.WithAttributes(
		attribute.String("upstream", upstream),
		attribute.Int("status", res.StatusCode()),
	))
}

func onError(upstream string, req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var attrs []attribute.KeyValue
	headerAttributes(&attrs, "request", req.Header)
	span.SetAttributes(attrs...)
	if req.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
	}

	httpRequests.Add(req.Context(), 1, metric.WithAttributes(
		attribute.String("upstream", upstream),
		attribute.Int("status", 0),
	))
}
