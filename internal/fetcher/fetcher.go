// Package fetcher implements C2: URL scheme/CID validation, the IPFS
// gateway rewrite, filter-chain enforcement, and the timeout-bounded
// HTTP GET that produces a document.Document.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	cid "github.com/ipfs/go-cid"

	"github.com/imgproxy/imgproxy/internal/config"
	"github.com/imgproxy/imgproxy/internal/document"
	"github.com/imgproxy/imgproxy/internal/rpcerr"
	"github.com/imgproxy/imgproxy/internal/urlfilter"
)

// Fetcher is C2. It owns the shared HTTP client (custom timeout-aware
// transport, mirroring internal/proxy/upstream.go's UpstreamClient
// construction in the teacher repo) and the configured filter chain.
type Fetcher struct {
	client    *http.Client
	filters   urlfilter.Chain
	ipfs      config.IPFSConfig
	userAgent string
	logger    *slog.Logger
}

// New builds a Fetcher whose transport's dial, TLS-handshake and
// response-header timeouts are all set to timeout, with an overall
// per-request limit of three times timeout. There is no separate write
// timeout.
func New(ipfs config.IPFSConfig, filters urlfilter.Chain, timeout time.Duration, userAgent string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Fetcher{
		client:    &http.Client{Transport: transport, Timeout: timeout * 3},
		filters:   filters,
		ipfs:      ipfs,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch resolves rawURL (rewriting ipfs:// to the configured gateway
// when needed), runs the filter chain, issues the GET, and returns a
// Document on a 200 response.
func (f *Fetcher) Fetch(ctx context.Context, reqID uuid.UUID, rawURL string) (*document.Document, error) {
	f.logger.Info("fetching document", "request_id", reqID, "url", rawURL)

	target, usedFallback, err := f.resolveURL(rawURL)
	if err != nil {
		return nil, retag(err, reqID)
	}

	if !f.filters.Allow(ctx, target.Hostname()) {
		f.logger.Warn("url filter denied host", "request_id", reqID, "host", target.Hostname())
		return nil, rpcerr.New(rpcerr.InvalidOrBlockedHost, reqID, nil)
	}

	doc, err := f.get(ctx, reqID, rawURL, target)
	if err == nil {
		return doc, nil
	}

	// Retry once against the IPFS fallback gateway, only for ipfs:// URLs
	// and only on transport failure against the primary (spec.md §4.2 step 2).
	if !usedFallback && f.ipfs.Fallback != nil && isIPFSScheme(rawURL) && isTransportFailure(err) {
		fallbackTarget, ferr := f.rewriteIPFS(rawURL, *f.ipfs.Fallback)
		if ferr == nil {
			if f.filters.Allow(ctx, fallbackTarget.Hostname()) {
				return f.get(ctx, reqID, rawURL, fallbackTarget)
			}
		}
	}
	return nil, err
}

// isTransportFailure reports whether err came from the transport (a
// timeout, a connection error, or a failed body read) rather than from
// an HTTP status the origin answered with.
func isTransportFailure(err error) bool {
	var rerr *rpcerr.Error
	if !errors.As(err, &rerr) {
		return false
	}
	if rerr.Code == rpcerr.TimedOut {
		return true
	}
	// Non-200 statuses carry a bare synthetic_status cause; transport
	// errors (900/901) wrap the underlying client error.
	return rerr.Code == rpcerr.FetchFailed && errors.Unwrap(rerr.Cause) != nil
}

func isIPFSScheme(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(rawURL), "ipfs://")
}

// retag re-stamps a code-classified error with the real request id,
// since resolveURL/rewriteIPFS run before a request id is known to them.
func retag(err error, reqID uuid.UUID) error {
	var rerr *rpcerr.Error
	if errors.As(err, &rerr) {
		return rpcerr.New(rerr.Code, reqID, rerr.Cause)
	}
	return err
}

// resolveURL parses rawURL, accepting http/https as-is and rewriting
// ipfs:// against the primary gateway.
func (f *Fetcher) resolveURL(rawURL string) (*url.URL, bool, error) {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, false, rpcerr.New(rpcerr.InvalidUri, uuid.Nil, err)
		}
		return u, false, nil
	case strings.HasPrefix(lower, "ipfs://"):
		u, err := f.rewriteIPFS(rawURL, f.ipfs.Host)
		return u, false, err
	default:
		return nil, false, rpcerr.New(rpcerr.UnsupportedUriScheme, uuid.Nil, nil)
	}
}

// rewriteIPFS turns ipfs://CID[/path] into a concrete URL under host's
// gateway, after validating CID with github.com/ipfs/go-cid.
func (f *Fetcher) rewriteIPFS(rawURL string, host config.Host) (*url.URL, error) {
	rest := rawURL[len("ipfs://"):]
	id, pathSuffix, _ := strings.Cut(rest, "/")

	if _, err := cid.Decode(id); err != nil {
		return nil, rpcerr.New(rpcerr.InvalidUri, uuid.Nil, fmt.Errorf("invalid ipfs cid %q: %w", id, err))
	}

	gatewayPath := strings.TrimPrefix(host.Path, "/")
	full := fmt.Sprintf("%s://%s:%d/%s/%s", host.Protocol, host.Host, host.Port, gatewayPath, id)
	if pathSuffix != "" {
		full += "/" + pathSuffix
	}
	u, err := url.Parse(full)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InvalidUri, uuid.Nil, err)
	}
	return u, nil
}

func (f *Fetcher) get(ctx context.Context, reqID uuid.UUID, originalURL string, target *url.URL) (*document.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InvalidUri, reqID, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, rpcerr.New(rpcerr.TimedOut, reqID, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, rpcerr.New(rpcerr.TimedOut, reqID, err)
		}
		// synthetic status 900: connection error
		return nil, rpcerr.New(rpcerr.FetchFailed, reqID, fmt.Errorf("synthetic_status=900: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to body collection below
	case http.StatusNotFound:
		return nil, rpcerr.New(rpcerr.NotFound, reqID, nil)
	default:
		return nil, rpcerr.New(rpcerr.FetchFailed, reqID, fmt.Errorf("synthetic_status=%d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// synthetic status 901: timeout/IO while reading the body
		return nil, rpcerr.New(rpcerr.FetchFailed, reqID, fmt.Errorf("synthetic_status=901: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	f.logger.Info("document fetched", "request_id", reqID, "content_length", len(body), "content_type", contentType)

	return &document.Document{
		ID:          reqID,
		URL:         originalURL,
		ContentType: contentType,
		Bytes:       body,
	}, nil
}
