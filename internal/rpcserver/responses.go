package rpcserver

import (
	"github.com/google/uuid"

	"github.com/imgproxy/imgproxy/internal/moderation"
	"github.com/imgproxy/imgproxy/internal/pipeline"
	"github.com/imgproxy/imgproxy/internal/rpcerr"
	"github.com/imgproxy/imgproxy/internal/store"
)

// rpcVersion is the fixed jsonrpc literal every envelope carries,
// grounded on original_source/src/rpc/mod.rs's VERSION constant.
const rpcVersion = "1.0.0"

// rpcStatus is the Ok/Err discriminant on every response envelope.
type rpcStatus string

const (
	statusOk  rpcStatus = "Ok"
	statusErr rpcStatus = "Err"
)

// errorBody is the error envelope's `error` field, spec.md §6.1.
type errorBody struct {
	Code      rpcerr.Code `json:"code"`
	Reason    string      `json:"reason"`
	RequestID uuid.UUID   `json:"request_id"`
}

// errorResponse is the full error envelope.
type errorResponse struct {
	Jsonrpc   string    `json:"jsonrpc"`
	RpcStatus rpcStatus `json:"rpc_status"`
	Error     errorBody `json:"error"`
}

func newErrorResponse(reqID uuid.UUID, err error) errorResponse {
	code := rpcerr.AsCode(err)
	return errorResponse{
		Jsonrpc:   rpcVersion,
		RpcStatus: statusErr,
		Error:     errorBody{Code: code, Reason: code.Reason(), RequestID: reqID},
	}
}

// moderationResult is the `result` field of a successful
// img_proxy_fetch Json response.
type moderationResult struct {
	ModerationStatus pipeline.ModerationStatus `json:"moderation_status"`
	Categories       []moderation.Category     `json:"categories"`
	Data             string                    `json:"data"`
}

type fetchResponse struct {
	Jsonrpc   string           `json:"jsonrpc"`
	RpcStatus rpcStatus        `json:"rpc_status"`
	Result    moderationResult `json:"result"`
}

func newFetchResponse(result *pipeline.FetchResult) fetchResponse {
	data := ""
	if len(result.Bytes) > 0 {
		data = "data:" + result.ContentType + ";base64," + base64Encode(result.Bytes)
	}
	categories := result.Categories
	if categories == nil {
		categories = []moderation.Category{}
	}
	return fetchResponse{
		Jsonrpc:   rpcVersion,
		RpcStatus: statusOk,
		Result: moderationResult{
			ModerationStatus: result.ModerationStatus,
			Categories:       categories,
			Data:             data,
		},
	}
}

// describeResult is one entry of an img_proxy_describe response.
type describeResult struct {
	URL              string                    `json:"url"`
	ModerationStatus pipeline.ModerationStatus `json:"status"`
	Categories       []moderation.Category     `json:"categories"`
	Provider         moderation.ProviderTag    `json:"provider"`
}

type describeResponse struct {
	Jsonrpc   string           `json:"jsonrpc"`
	RpcStatus rpcStatus        `json:"rpc_status"`
	Result    []describeResult `json:"result"`
}

func newDescribeResponse(entries []pipeline.DescribeEntry) describeResponse {
	out := make([]describeResult, len(entries))
	for i, e := range entries {
		categories := e.Categories
		if categories == nil {
			categories = []moderation.Category{}
		}
		out[i] = describeResult{URL: e.URL, ModerationStatus: e.ModerationStatus, Categories: categories, Provider: e.Provider}
	}
	return describeResponse{Jsonrpc: rpcVersion, RpcStatus: statusOk, Result: out}
}

type reportResult struct {
	URL string    `json:"url"`
	ID  uuid.UUID `json:"id"`
}

type reportResponse struct {
	Jsonrpc   string       `json:"jsonrpc"`
	RpcStatus rpcStatus    `json:"rpc_status"`
	Result    reportResult `json:"result"`
}

func newReportResponse(result *pipeline.ReportResult) reportResponse {
	return reportResponse{
		Jsonrpc:   rpcVersion,
		RpcStatus: statusOk,
		Result:    reportResult{URL: result.URL, ID: result.ID},
	}
}

// reportDescribeResult is one entry of an img_proxy_describe_report
// response.
type reportDescribeResult struct {
	URL        string                `json:"url"`
	Categories []moderation.Category `json:"categories"`
	ID         string                `json:"id"`
	UpdatedAt  string                `json:"updated_at"`
}

type reportDescribeResponse struct {
	Jsonrpc   string                 `json:"jsonrpc"`
	RpcStatus rpcStatus              `json:"rpc_status"`
	Result    []reportDescribeResult `json:"result"`
}

func newReportDescribeResponse(reports []store.Report) reportDescribeResponse {
	out := make([]reportDescribeResult, len(reports))
	for i, r := range reports {
		categories := r.Categories
		if categories == nil {
			categories = []moderation.Category{}
		}
		out[i] = reportDescribeResult{
			URL:        r.URL,
			Categories: categories,
			ID:         r.ID.String(),
			UpdatedAt:  r.UpdatedAt.Format(timeLayout),
		}
	}
	return reportDescribeResponse{Jsonrpc: rpcVersion, RpcStatus: statusOk, Result: out}
}
