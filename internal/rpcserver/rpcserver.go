// Package rpcserver implements C8: the single-endpoint JSON-RPC front
// end, apikey authentication, CORS, payload capping, and the
// liveness/info/metrics side routes, grounded on
// original_source/src/rpc/mod.rs's Methods dispatch and
// internal/proxy/proxy.go's Handler/ServeHTTP shape.
package rpcserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imgproxy/imgproxy/internal/buildinfo"
	"github.com/imgproxy/imgproxy/internal/metrics"
	"github.com/imgproxy/imgproxy/internal/moderation"
	"github.com/imgproxy/imgproxy/internal/pipeline"
	"github.com/imgproxy/imgproxy/internal/rpcerr"
)

const timeLayout = time.RFC3339

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// maxPayloadBytes is the 64 KiB RPC body cap (spec.md §4.8).
const maxPayloadBytes = 64 * 1024

// envelope is the inbound `{jsonrpc, method, params}` request shape.
type envelope struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type fetchRequestParams struct {
	URL          string `json:"url"`
	Force        bool   `json:"force"`
	ResponseType string `json:"response_type"`
}

type describeRequestParams struct {
	URLs []string `json:"urls"`
}

type reportRequestParams struct {
	URL        string                `json:"url"`
	Categories []moderation.Category `json:"categories"`
}

// Handler is the RPC front end. MetricsEnabled and Origin come from
// config.Configuration but are copied in directly so this package
// doesn't need to import internal/config.
type Handler struct {
	Pipeline       *pipeline.Pipeline
	APIKeys        map[string]string // key -> name
	CORSOrigin     string
	MetricsEnabled bool
	Logger         *slog.Logger
	metricsHandler http.Handler
	lastEvictions  atomic.Int64 // last imgproxy_cache_evictions_total value pushed into the counter
}

// New constructs a Handler. apiKeys maps the raw key value to its
// configured name.
func New(p *pipeline.Pipeline, apiKeys map[string]string, corsOrigin string, metricsEnabled bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Pipeline:       p,
		APIKeys:        apiKeys,
		CORSOrigin:     corsOrigin,
		MetricsEnabled: metricsEnabled,
		Logger:         logger,
		metricsHandler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Path == "/info":
		h.handleInfo(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/metrics":
		h.handleMetrics(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/":
		h.handleRPC(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(buildinfo.Current())
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !h.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	h.refreshCacheGauges()
	h.metricsHandler.ServeHTTP(w, r)
}

// refreshCacheGauges pulls the current internal/lrucache.Cache counters
// into the exported gauges right before a scrape, rather than pushing on
// every Put/Get — cheap, and Stats() is already safe to call this often.
func (h *Handler) refreshCacheGauges() {
	if h.Pipeline == nil || h.Pipeline.Cache == nil {
		return
	}
	stats := h.Pipeline.Cache.Stats()
	metrics.CacheBytes.WithLabelValues("cur").Set(float64(stats.CurBytes))
	metrics.CacheBytes.WithLabelValues("max").Set(float64(stats.MaxBytes))
	metrics.CacheEvictions.Add(float64(stats.Evictions) - h.lastEvictions.Swap(stats.Evictions))
}

// handleRPC authenticates, decodes, dispatches, and renders exactly
// one of the four RPC methods.
func (h *Handler) handleRPC(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New()

	keyName, ok := h.authenticate(r)
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	metrics.APIRequestsByKey.WithLabelValues(keyName).Inc()

	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, reqID, rpcerr.New(rpcerr.RpcPayloadTooBigError, reqID, err))
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.writeError(w, reqID, rpcerr.New(rpcerr.JsonDecodeError, reqID, err))
		return
	}
	if env.Jsonrpc != "1.0.0" {
		h.writeError(w, reqID, rpcerr.New(rpcerr.InvalidRpcVersionError, reqID, nil))
		return
	}

	metrics.APIRequests.WithLabelValues(env.Method).Inc()

	switch env.Method {
	case "img_proxy_fetch":
		h.dispatchFetch(w, r, reqID, env.Params)
	case "img_proxy_describe":
		h.dispatchDescribe(w, r, reqID, env.Params)
	case "img_proxy_report":
		h.dispatchReport(w, r, reqID, env.Params)
	case "img_proxy_describe_report":
		h.dispatchDescribeReport(w, r, reqID)
	default:
		h.writeError(w, reqID, rpcerr.New(rpcerr.InvalidRpcMethodError, reqID, nil))
	}
}

func (h *Handler) dispatchFetch(w http.ResponseWriter, r *http.Request, reqID uuid.UUID, raw json.RawMessage) {
	var params fetchRequestParams
	if err := json.Unmarshal(raw, &params); err != nil {
		h.writeError(w, reqID, rpcerr.New(rpcerr.JsonDecodeError, reqID, err))
		return
	}

	result, err := h.Pipeline.ImgProxyFetch(r.Context(), reqID, pipeline.FetchParams{
		URL:          params.URL,
		Force:        params.Force,
		ResponseType: pipeline.ResponseType(params.ResponseType),
	})
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}

	if result.ModerationStatus == pipeline.Blocked {
		metrics.DocumentsBlocked.Inc()
	}
	if params.Force {
		metrics.DocumentsForced.Inc()
	}

	if pipeline.ResponseType(params.ResponseType) == pipeline.ResponseRaw && len(result.Bytes) > 0 {
		metrics.Traffic.WithLabelValues("served").Add(float64(len(result.Bytes)))
		w.Header().Set("Content-Type", result.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Bytes)
		return
	}

	resp := newFetchResponse(result)
	metrics.Traffic.WithLabelValues("served").Add(float64(len(resp.Result.Data)))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dispatchDescribe(w http.ResponseWriter, r *http.Request, reqID uuid.UUID, raw json.RawMessage) {
	var params describeRequestParams
	if err := json.Unmarshal(raw, &params); err != nil {
		h.writeError(w, reqID, rpcerr.New(rpcerr.JsonDecodeError, reqID, err))
		return
	}
	entries, err := h.Pipeline.ImgProxyDescribe(r.Context(), params.URLs)
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, newDescribeResponse(entries))
}

func (h *Handler) dispatchReport(w http.ResponseWriter, r *http.Request, reqID uuid.UUID, raw json.RawMessage) {
	var params reportRequestParams
	if err := json.Unmarshal(raw, &params); err != nil {
		h.writeError(w, reqID, rpcerr.New(rpcerr.JsonDecodeError, reqID, err))
		return
	}
	result, err := h.Pipeline.ImgProxyReport(r.Context(), reqID, pipeline.ReportParams{
		URL:        params.URL,
		Categories: params.Categories,
	})
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(result))
}

func (h *Handler) dispatchDescribeReport(w http.ResponseWriter, r *http.Request, reqID uuid.UUID) {
	reports, err := h.Pipeline.ImgProxyDescribeReport(r.Context())
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportDescribeResponse(reports))
}

// authenticate matches the apikey header against the configured set,
// returning the matched key's name. An empty APIKeys map (no security
// configured) authenticates everything under the name "anonymous",
// matching the original's dev-mode behavior of running without auth.
func (h *Handler) authenticate(r *http.Request) (string, bool) {
	if len(h.APIKeys) == 0 {
		return "anonymous", true
	}
	key := r.Header.Get("apikey")
	if key == "" {
		return "", false
	}
	name, ok := h.APIKeys[key]
	return name, ok
}

func (h *Handler) writeError(w http.ResponseWriter, reqID uuid.UUID, err error) {
	var rerr *rpcerr.Error
	if errors.As(err, &rerr) {
		reqID = rerr.RequestID
	}
	h.Logger.Warn("rpc request failed", "request_id", reqID, "error", err)
	writeJSON(w, http.StatusOK, newErrorResponse(reqID, err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
