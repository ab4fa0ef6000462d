package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petwalk/petwalk"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// pipelineTransport applies the module's modifier chain, records metrics
// and runs the response interceptors.
type pipelineTransport struct {
	next    http.RoundTripper
	module  *Module
	metrics *Metrics
}

func (t *pipelineTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}
	for _, modify := range t.module.requestModifiers() {
		req = modify(req)
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	t.metrics.observe(req, resp, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	for _, intercept := range t.module.responseInterceptors() {
		intercept(req, resp)
	}
	return resp, nil
}

// loggingTransport provides verbose logging of HTTP requests and responses.
type loggingTransport struct {
	Transport      http.RoundTripper
	Logger         petwalk.Logger
	LogHeaders     bool
	LogBody        bool
	MaxBodyLogSize int
}

// RoundTrip implements the http.RoundTripper interface and adds logging.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := req.Header.Get(HeaderRequestID)
	startTime := time.Now()

	t.logRequest(requestID, req)

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.Logger.Error("Request failed",
			"id", requestID,
			"url", req.URL.String(),
			"method", req.Method,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	t.logResponse(requestID, req.URL.String(), resp, duration)
	return resp, nil
}

func (t *loggingTransport) logRequest(id string, req *http.Request) {
	basicInfo := fmt.Sprintf("%s %s", req.Method, req.URL.String())

	if !t.LogHeaders && !t.LogBody {
		t.Logger.Info("Outgoing request",
			"id", id,
			"request", basicInfo,
			"content_length", req.ContentLength,
			"important_headers", importantHeaders(req.Header),
		)
		return
	}

	reqDump, err := httputil.DumpRequestOut(req, t.LogBody)
	if err != nil {
		t.Logger.Info("Outgoing request (dump failed)", "id", id, "request", basicInfo, "error", err)
		return
	}
	t.Logger.Info("Outgoing request",
		"id", id,
		"request", basicInfo,
		"details", t.truncate(string(reqDump)),
	)
}

func (t *loggingTransport) logResponse(id, url string, resp *http.Response, duration time.Duration) {
	basicInfo := fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	if !t.LogHeaders && !t.LogBody {
		t.Logger.Info("Received response",
			"id", id,
			"response", basicInfo,
			"url", url,
			"duration_ms", duration.Milliseconds(),
		)
		return
	}

	var dump []byte
	var err error
	if t.LogBody && resp.Body != nil {
		var bodyBytes []byte
		bodyBytes, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		// Restore the body for the caller
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		if err == nil {
			dump, err = httputil.DumpResponse(&http.Response{
				Status:     resp.Status,
				StatusCode: resp.StatusCode,
				Proto:      resp.Proto,
				ProtoMajor: resp.ProtoMajor,
				ProtoMinor: resp.ProtoMinor,
				Header:     resp.Header,
				Body:       io.NopCloser(bytes.NewReader(bodyBytes)),
			}, true)
		}
	} else {
		dump, err = httputil.DumpResponse(resp, false)
	}

	if err != nil {
		t.Logger.Info("Received response (dump failed)",
			"id", id,
			"response", basicInfo,
			"url", url,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}
	t.Logger.Info("Received response",
		"id", id,
		"response", basicInfo,
		"url", url,
		"duration_ms", duration.Milliseconds(),
		"details", t.truncate(string(dump)),
	)
}

// truncate keeps the head of a dump, which holds the request or status
// line and the headers.
func (t *loggingTransport) truncate(dump string) string {
	if t.MaxBodyLogSize <= 0 || len(dump) <= t.MaxBodyLogSize {
		return dump
	}
	return dump[:t.MaxBodyLogSize] + " [truncated]"
}

var importantHeaderNames = []string{"Content-Type", "Content-Length", "Accept", "User-Agent", HeaderRequestID}

func importantHeaders(h http.Header) map[string]string {
	headers := make(map[string]string)
	for _, name := range importantHeaderNames {
		if v := h.Get(name); v != "" {
			headers[name] = v
		}
	}
	if h.Get("Authorization") != "" {
		headers["Authorization"] = "[present]"
	}
	return headers
}

// isLoginRequest reports whether req targets the login endpoint.
func isLoginRequest(req *http.Request, loginPath string) bool {
	return loginPath != "" && strings.Contains(req.URL.Path, loginPath)
}
