// Package pipeline implements C7: the shared fetch_document step and
// the four RPC method bodies (img_proxy_fetch, img_proxy_describe,
// img_proxy_report, img_proxy_describe_report), grounded on
// original_source/src/rpc/mod.rs's Methods impl and
// original_source/src/proxy.rs's document-retrieval flow.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/imgproxy/imgproxy/internal/document"
	"github.com/imgproxy/imgproxy/internal/imaging"
	"github.com/imgproxy/imgproxy/internal/lrucache"
	"github.com/imgproxy/imgproxy/internal/metrics"
	"github.com/imgproxy/imgproxy/internal/moderation"
	"github.com/imgproxy/imgproxy/internal/rpcerr"
	"github.com/imgproxy/imgproxy/internal/store"
	"github.com/imgproxy/imgproxy/internal/urlhash"
)

// Fetcher is the subset of *fetcher.Fetcher the pipeline depends on,
// kept as an interface so tests can substitute a fake origin without
// standing up an httptest server for every scenario.
type Fetcher interface {
	Fetch(ctx context.Context, reqID uuid.UUID, rawURL string) (*document.Document, error)
}

// VideoDispatcher is the subset of *videoqueue.Dispatcher the pipeline
// depends on: JobExists backs img_proxy_describe's Pending state, and
// Submit hands a freshly fetched video document off to the async job
// queue instead of moderating it inline.
type VideoDispatcher interface {
	JobExists(id string) bool
	Submit(ctx context.Context, doc *document.Document)
}

// cacheableTypes is the cacheable-image-type set from spec.md §4.7 step
// 3: the superset C3 can decode, deliberately broader than any single
// moderation provider's supported_types().
var cacheableTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
}

// videoTypes are the optional video MIME types spec.md §4.9/§8.4
// describes as routed to the async job queue rather than moderated
// inline. Fetches for these types bypass the LRU cache entirely (a
// video is expected to be far larger than the cache's nominal entry
// size) and are never subject to internal/imaging's resize policy.
var videoTypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
}

// ModerationStatus is the outcome attached to every fetch/describe
// response. Fetch results use Allowed, Blocked and Pending; describe
// entries may also be NeverSeen or Failed.
type ModerationStatus string

const (
	Allowed   ModerationStatus = "Allowed"
	Blocked   ModerationStatus = "Blocked"
	Pending   ModerationStatus = "Pending"
	NeverSeen ModerationStatus = "NeverSeen"
	Failed    ModerationStatus = "Failed"
)

// ResponseType selects how a successful img_proxy_fetch result is
// rendered.
type ResponseType string

const (
	ResponseJSON ResponseType = "Json"
	ResponseRaw  ResponseType = "Raw"
)

// FetchParams are the validated img_proxy_fetch.params.
type FetchParams struct {
	URL          string
	Force        bool
	ResponseType ResponseType
}

// FetchResult is what the RPC front-end renders to the wire, covering
// both response shapes in §4.7.4: Raw callers write ContentType/Bytes
// as the body, Json callers render every field, turning ContentType/
// Bytes into the data URI.
type FetchResult struct {
	ModerationStatus ModerationStatus
	Categories       []moderation.Category
	ContentType      string
	Bytes            []byte
}

// DescribeEntry is one URL's entry in an img_proxy_describe response.
type DescribeEntry struct {
	URL              string
	ModerationStatus ModerationStatus
	Categories       []moderation.Category
	Provider         moderation.ProviderTag
}

// Pipeline wires the fetcher, optional cache, verdict store, and
// moderation provider into the four RPC method bodies. VideoQueue is
// nil when the deployment has no async video path configured.
type Pipeline struct {
	Fetcher    Fetcher
	Cache      *lrucache.Cache
	Store      store.Store
	Moderator  moderation.Provider
	VideoQueue VideoDispatcher
	Logger     *slog.Logger
}

// New constructs a Pipeline. cache may be nil to run with caching
// disabled; videoQueue may be nil when no async video path is configured.
func New(f Fetcher, cache *lrucache.Cache, st store.Store, moderator moderation.Provider, vq VideoDispatcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Fetcher: f, Cache: cache, Store: st, Moderator: moderator, VideoQueue: vq, Logger: logger}
}

// fetchDocument is the shared step used by ImgProxyFetch: check the
// cache, else fetch from origin and classify the MIME type, caching the
// result when enabled (spec.md §4.7 "Shared step").
func (p *Pipeline) fetchDocument(ctx context.Context, reqID uuid.UUID, url string) (*document.Ref, error) {
	cacheKey := urlhash.Hash(url)

	if p.Cache != nil {
		if ref, ok := p.Cache.Get(cacheKey); ok {
			return ref, nil
		}
	}

	doc, err := p.Fetcher.Fetch(ctx, reqID, url)
	if err != nil {
		return nil, err
	}
	if videoTypes[doc.ContentType] {
		return document.NewRef(doc), nil
	}
	if !cacheableTypes[doc.ContentType] {
		return nil, rpcerr.New(rpcerr.UnsupportedImageType, reqID, nil)
	}

	ref := document.NewRef(doc)
	if p.Cache != nil {
		p.Cache.Put(cacheKey, ref)
	}
	return ref, nil
}

// ImgProxyFetch implements spec.md §4.7.1.
func (p *Pipeline) ImgProxyFetch(ctx context.Context, reqID uuid.UUID, params FetchParams) (*FetchResult, error) {
	verdicts, err := p.Store.GetVerdicts(ctx, []string{params.URL})
	if err != nil {
		p.Logger.Warn("verdict lookup failed, treating as unseen", "request_id", reqID, "error", err)
	}

	if len(verdicts) > 0 {
		metrics.CacheResults.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheResults.WithLabelValues("miss").Inc()
	}

	if len(verdicts) > 0 {
		v := verdicts[0]
		if v.Blocked && !params.Force {
			return &FetchResult{ModerationStatus: Blocked, Categories: v.Categories}, nil
		}
		ref, err := p.fetchDocument(ctx, reqID, params.URL)
		if err != nil {
			return nil, err
		}
		return p.render(ref, Allowed, v.Categories, params), nil
	}

	ref, err := p.fetchDocument(ctx, reqID, params.URL)
	if err != nil {
		return nil, err
	}
	doc := ref.Document()

	if params.Force {
		return p.render(ref, Allowed, nil, params), nil
	}

	if videoTypes[doc.ContentType] {
		if p.VideoQueue == nil {
			return nil, rpcerr.New(rpcerr.UnsupportedImageType, reqID, nil)
		}
		p.VideoQueue.Submit(ctx, doc)
		return &FetchResult{ModerationStatus: Pending}, nil
	}

	maxSize := p.Moderator.MaxDocumentSize()
	supported := p.Moderator.SupportedTypes()

	modInput := ref
	if doc.SizeInBytes() >= maxSize || !contains(supported, doc.ContentType) {
		resized, err := imaging.Resize(doc, maxSize)
		if err != nil {
			return nil, err
		}
		modInput = document.NewRef(resized)
	}

	metrics.ModerationRequests.Inc()
	result, err := p.Moderator.Moderate(ctx, modInput)
	if err != nil {
		return nil, err
	}
	blocked := result.Blocked()

	if putErr := p.Store.PutVerdict(ctx, store.Verdict{
		URL:        params.URL,
		Blocked:    blocked,
		Provider:   result.Provider,
		Categories: result.Categories,
	}); putErr != nil {
		// spec.md §7: DB write failures during put_verdict are not
		// fatal, the moderation call already happened.
		p.Logger.Error("persisting verdict failed", "request_id", reqID, "url", params.URL, "error", putErr)
	}

	if blocked {
		return &FetchResult{ModerationStatus: Blocked, Categories: result.Categories}, nil
	}
	return p.render(ref, Allowed, result.Categories, params), nil
}

// render builds the response FetchResult for an allowed (or forced)
// document, per the requested response_type.
func (p *Pipeline) render(ref *document.Ref, status ModerationStatus, categories []moderation.Category, params FetchParams) *FetchResult {
	doc := ref.Document()
	return &FetchResult{
		ModerationStatus: status,
		Categories:       categories,
		ContentType:      doc.ContentType,
		Bytes:            doc.Bytes,
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ImgProxyDescribe implements spec.md §4.7.2, including the wildcard
// `urls: ["*"]` supplement documented in SPEC_FULL.md §4.5: a single
// "*" entry is expanded to every stored verdict rather than looked up
// literally.
func (p *Pipeline) ImgProxyDescribe(ctx context.Context, urls []string) ([]DescribeEntry, error) {
	if isWildcard(urls) {
		all, err := p.Store.GetAllVerdicts(ctx)
		if err != nil {
			return nil, rpcerr.New(rpcerr.InternalError, uuid.Nil, err)
		}
		out := make([]DescribeEntry, len(all))
		for i, v := range all {
			out[i] = describeFromVerdict(v)
		}
		return out, nil
	}

	verdicts, err := p.Store.GetVerdicts(ctx, urls)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, uuid.Nil, err)
	}
	byURL := make(map[string]store.Verdict, len(verdicts))
	for _, v := range verdicts {
		byURL[v.URL] = v
	}

	out := make([]DescribeEntry, len(urls))
	for i, u := range urls {
		if v, ok := byURL[u]; ok {
			out[i] = describeFromVerdict(v)
			continue
		}
		status := NeverSeen
		if p.VideoQueue != nil && p.VideoQueue.JobExists(u) {
			status = Pending
		}
		out[i] = DescribeEntry{URL: u, ModerationStatus: status}
	}
	return out, nil
}

func isWildcard(urls []string) bool {
	return len(urls) == 1 && urls[0] == "*"
}

func describeFromVerdict(v store.Verdict) DescribeEntry {
	status := Allowed
	switch {
	case v.Failed:
		status = Failed
	case v.Blocked:
		status = Blocked
	}
	return DescribeEntry{URL: v.URL, ModerationStatus: status, Categories: v.Categories, Provider: v.Provider}
}

// ReportParams are the validated img_proxy_report.params.
type ReportParams struct {
	URL        string
	Categories []moderation.Category
}

// ReportResult is the img_proxy_report response shape.
type ReportResult struct {
	URL string
	ID  uuid.UUID
}

// ImgProxyReport implements spec.md §4.7.3.
func (p *Pipeline) ImgProxyReport(ctx context.Context, reqID uuid.UUID, params ReportParams) (*ReportResult, error) {
	if err := p.Store.PutReport(ctx, store.Report{ID: reqID, URL: params.URL, Categories: params.Categories}); err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, reqID, err)
	}
	return &ReportResult{URL: params.URL, ID: reqID}, nil
}

// ImgProxyDescribeReport implements the remaining half of spec.md
// §4.7.3: list every stored report.
func (p *Pipeline) ImgProxyDescribeReport(ctx context.Context) ([]store.Report, error) {
	reports, err := p.Store.GetReports(ctx)
	if err != nil {
		return nil, rpcerr.New(rpcerr.InternalError, uuid.Nil, err)
	}
	return reports, nil
}
