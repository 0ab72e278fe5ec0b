package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/imgproxy/imgproxy/internal/config"
	"github.com/imgproxy/imgproxy/internal/rpcerr"
	"github.com/imgproxy/imgproxy/internal/urlfilter"
)

type allowAllFilter struct{}

func (allowAllFilter) Allow(ctx context.Context, host string) bool { return true }

func TestFetchReturns200Document(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pngbytes"))
	}))
	defer srv.Close()

	f := New(config.IPFSConfig{}, urlfilter.Chain{allowAllFilter{}}, 2*time.Second, "", nil)
	doc, err := f.Fetch(context.Background(), uuid.New(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if doc.ContentType != "image/png" || string(doc.Bytes) != "pngbytes" {
		t.Errorf("doc = %+v, want content_type=image/png bytes=pngbytes", doc)
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(config.IPFSConfig{}, urlfilter.Chain{allowAllFilter{}}, 2*time.Second, "", nil)
	_, err := f.Fetch(context.Background(), uuid.New(), srv.URL)
	if rpcerr.AsCode(err) != rpcerr.NotFound {
		t.Errorf("code = %v, want NotFound", rpcerr.AsCode(err))
	}
}

func TestFetchNon200IsFetchFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(config.IPFSConfig{}, urlfilter.Chain{allowAllFilter{}}, 2*time.Second, "", nil)
	_, err := f.Fetch(context.Background(), uuid.New(), srv.URL)
	if rpcerr.AsCode(err) != rpcerr.FetchFailed {
		t.Errorf("code = %v, want FetchFailed", rpcerr.AsCode(err))
	}
}

func TestFetchUnsupportedScheme(t *testing.T) {
	f := New(config.IPFSConfig{}, urlfilter.Chain{allowAllFilter{}}, 2*time.Second, "", nil)
	_, err := f.Fetch(context.Background(), uuid.New(), "ftp://example.com/x")
	if rpcerr.AsCode(err) != rpcerr.UnsupportedUriScheme {
		t.Errorf("code = %v, want UnsupportedUriScheme", rpcerr.AsCode(err))
	}
}

func TestFetchInvalidURI(t *testing.T) {
	f := New(config.IPFSConfig{}, urlfilter.Chain{allowAllFilter{}}, 2*time.Second, "", nil)
	_, err := f.Fetch(context.Background(), uuid.New(), "http://[::1")
	if rpcerr.AsCode(err) != rpcerr.InvalidUri {
		t.Errorf("code = %v, want InvalidUri", rpcerr.AsCode(err))
	}
}

func TestFetchDeniedByFilter(t *testing.T) {
	f := New(config.IPFSConfig{}, urlfilter.Chain{}, 2*time.Second, "", nil)
	_, err := f.Fetch(context.Background(), uuid.New(), "http://localhost/image.png")
	if rpcerr.AsCode(err) != rpcerr.InvalidOrBlockedHost {
		t.Errorf("code = %v, want InvalidOrBlockedHost", rpcerr.AsCode(err))
	}
}

func TestFetchInvalidIPFSCid(t *testing.T) {
	f := New(config.IPFSConfig{Host: config.Host{Protocol: "http", Host: "gw.example", Port: 80, Path: "/ipfs"}},
		urlfilter.Chain{allowAllFilter{}}, 2*time.Second, "", nil)
	_, err := f.Fetch(context.Background(), uuid.New(), "ipfs://not-a-valid-cid")
	if rpcerr.AsCode(err) != rpcerr.InvalidUri {
		t.Errorf("code = %v, want InvalidUri", rpcerr.AsCode(err))
	}
}
