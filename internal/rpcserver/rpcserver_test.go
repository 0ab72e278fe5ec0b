package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/imgproxy/imgproxy/internal/document"
	"github.com/imgproxy/imgproxy/internal/moderation"
	"github.com/imgproxy/imgproxy/internal/pipeline"
	"github.com/imgproxy/imgproxy/internal/store/memstore"
)

type fakeFetcher struct {
	doc *document.Document
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, reqID uuid.UUID, rawURL string) (*document.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := *f.doc
	d.URL = rawURL
	return &d, nil
}

func newTestHandler() *Handler {
	st := memstore.New()
	doc := &document.Document{ID: uuid.New(), ContentType: "image/jpeg", Bytes: []byte("clean-bytes")}
	p := pipeline.New(&fakeFetcher{doc: doc}, nil, st, moderation.NewDummy(), nil, nil)
	return New(p, map[string]string{"secret": "tester"}, "*", true, nil)
}

func postRPC(t *testing.T, h *Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLivenessReturns200Empty(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("GET / = %d, body %q, want 200 empty", rec.Code, rec.Body.String())
	}
}

func TestInfoReturnsBuildInfoJSON(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /info = %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode /info body: %v", err)
	}
	if _, ok := out["package_version"]; !ok {
		t.Errorf("missing package_version in %v", out)
	}
}

func TestMetricsDisabledReturns404(t *testing.T) {
	h := newTestHandler()
	h.MetricsEnabled = false
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics (disabled) = %d, want 404", rec.Code)
	}
}

func TestMetricsEnabledReturns200(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", rec.Code)
	}
}

func TestUnmatchedAPIKeyReturns403Empty(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"img_proxy_describe_report","params":{}}`, map[string]string{"apikey": "wrong"})
	if rec.Code != http.StatusForbidden || rec.Body.Len() != 0 {
		t.Errorf("wrong apikey: status=%d body=%q, want 403 empty", rec.Code, rec.Body.String())
	}
}

func TestMissingAPIKeyReturns403(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"img_proxy_describe_report","params":{}}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("missing apikey: status=%d, want 403", rec.Code)
	}
}

func TestInvalidRpcVersionReturnsErrorEnvelope(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{"jsonrpc":"2.0","method":"img_proxy_describe_report","params":{}}`, map[string]string{"apikey": "secret"})
	assertErrorCode(t, rec, 100)
}

func TestUnknownMethodReturnsErrorEnvelope(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"not_a_method","params":{}}`, map[string]string{"apikey": "secret"})
	assertErrorCode(t, rec, 101)
}

func TestMalformedBodyReturnsJsonDecodeError(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{not json`, map[string]string{"apikey": "secret"})
	assertErrorCode(t, rec, 102)
}

func TestOversizedPayloadReturnsRpcPayloadTooBigError(t *testing.T) {
	h := newTestHandler()
	huge := `{"jsonrpc":"1.0.0","method":"img_proxy_report","params":{"url":"` + strings.Repeat("a", 70*1024) + `"}}`
	rec := postRPC(t, h, huge, map[string]string{"apikey": "secret"})
	assertErrorCode(t, rec, 113)
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantCode int) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (errors ride in the envelope)", rec.Code)
	}
	var out struct {
		RpcStatus string `json:"rpc_status"`
		Error     struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if out.RpcStatus != "Err" || out.Error.Code != wantCode {
		t.Errorf("got rpc_status=%s code=%d, want Err code=%d", out.RpcStatus, out.Error.Code, wantCode)
	}
}

func TestFetchRawReturnsBodyBytes(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"img_proxy_fetch","params":{"url":"http://x/a.jpg","response_type":"Raw"}}`, map[string]string{"apikey": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "clean-bytes" {
		t.Errorf("body = %q, want raw bytes", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
}

func TestFetchJsonReturnsEnvelope(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"img_proxy_fetch","params":{"url":"http://x/b.jpg","response_type":"Json"}}`, map[string]string{"apikey": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		RpcStatus string `json:"rpc_status"`
		Result    struct {
			ModerationStatus string `json:"moderation_status"`
			Data             string `json:"data"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RpcStatus != "Ok" || out.Result.ModerationStatus != "Allowed" || !strings.HasPrefix(out.Result.Data, "data:image/jpeg;base64,") {
		t.Errorf("got %+v", out)
	}
}

func TestDescribeWildcardRoundTrip(t *testing.T) {
	h := newTestHandler()
	rec := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"img_proxy_describe","params":{"urls":["*"]}}`, map[string]string{"apikey": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Result []map[string]any `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Result) != 0 {
		t.Errorf("result = %v, want empty (no verdicts stored yet)", out.Result)
	}
}

func TestReportThenDescribeReportRoundTrip(t *testing.T) {
	h := newTestHandler()
	reportBody := `{"jsonrpc":"1.0.0","method":"img_proxy_report","params":{"url":"http://x/reported.jpg","categories":["Drugs"]}}`
	rec := postRPC(t, h, reportBody, map[string]string{"apikey": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec2 := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"img_proxy_describe_report","params":{}}`, map[string]string{"apikey": "secret"})
	var out struct {
		Result []struct {
			URL        string   `json:"url"`
			Categories []string `json:"categories"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Result) != 1 || out.Result[0].URL != "http://x/reported.jpg" || out.Result[0].Categories[0] != "Drugs" {
		t.Errorf("got %+v", out.Result)
	}
}

func TestAnonymousModeAllowsAnyRequestWhenNoKeysConfigured(t *testing.T) {
	st := memstore.New()
	doc := &document.Document{ID: uuid.New(), ContentType: "image/jpeg", Bytes: []byte("bytes")}
	p := pipeline.New(&fakeFetcher{doc: doc}, nil, st, moderation.NewDummy(), nil, nil)
	h := New(p, nil, "*", false, nil)

	rec := postRPC(t, h, `{"jsonrpc":"1.0.0","method":"img_proxy_describe_report","params":{}}`, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with no apikeys configured", rec.Code)
	}
}

func TestWithCORSSetsConfiguredOrigin(t *testing.T) {
	h := newTestHandler()
	wrapped := WithCORS(h, "https://example.test")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.test")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.test" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://example.test", got)
	}
}
