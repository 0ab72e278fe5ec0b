// Package blobstore holds the video bytes the async job queue (C9)
// uploads before starting a provider moderation job, adapted from the
// teacher's internal/cache package (originally an OCI blob cache) into
// a narrower upload-only contract: video moderation providers reference
// blobs by bucket+key (S3) or by local path, they never read them back
// through this package.
package blobstore

import (
	"context"
	"io"
)

// Store uploads video bytes and returns a Location a moderation
// provider can reference without the proxy itself re-reading the blob.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (Location, error)
}

// Location is a provider-addressable pointer to an uploaded blob. For
// the S3 backend, Bucket/Key map directly onto Rekognition's
// StartContentModeration S3Object; for the filesystem backend, Path is
// the only populated field (useful for local development without AWS
// credentials configured).
type Location struct {
	Bucket string
	Key    string
	Path   string
}
