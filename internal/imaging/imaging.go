// Package imaging implements C3: decode, lossy downscale, and PNG
// re-encode of a fetched document under a byte budget.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/imgproxy/imgproxy/internal/document"
	"github.com/imgproxy/imgproxy/internal/rpcerr"
)

// nominal and min are the pixel-axis sizes the halving loop starts from
// and refuses to shrink below, per spec.md §4.3.
const (
	nominal = 1024
	min     = 128
)

// Resize decodes doc, iteratively halves the target long-axis size
// until the PNG re-encode fits within maxSize (or the target would fall
// below min, in which case the best-effort oversized result is
// returned), and returns a new Document. doc itself is never mutated.
func Resize(doc *document.Document, maxSize int64) (*document.Document, error) {
	src, _, err := image.Decode(bytes.NewReader(doc.Bytes))
	if err != nil {
		return nil, rpcerr.New(rpcerr.ImageResizeError, doc.ID, fmt.Errorf("decode: %w", err))
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, rpcerr.New(rpcerr.ImageResizeError, doc.ID, fmt.Errorf("decode: zero-sized image"))
	}

	target := nominal
	var encoded []byte
	for {
		nx, ny := targetDimensions(srcW, srcH, target)
		resized := imaging.Resize(src, nx, ny, imaging.NearestNeighbor)

		var buf bytes.Buffer
		if err := png.Encode(&buf, resized); err != nil {
			return nil, rpcerr.New(rpcerr.ImageResizeError, doc.ID, fmt.Errorf("encode: %w", err))
		}
		encoded = buf.Bytes()

		if int64(len(encoded)) <= maxSize {
			break
		}
		if target/2 < min {
			// best-effort: accept the current oversized output (P-Resize-Budget)
			break
		}
		target /= 2
	}

	return &document.Document{
		ID:          doc.ID,
		URL:         doc.URL,
		ContentType: "image/png",
		Bytes:       encoded,
	}, nil
}

// targetDimensions picks (nx, ny) so the longer axis is approximately
// target, preserving aspect ratio, then clamps the shorter axis up to
// min (expanding the longer axis in step to keep the ratio) if the
// clamp would otherwise have been triggered.
func targetDimensions(srcW, srcH, target int) (int, int) {
	var nx, ny int
	if srcW >= srcH {
		nx = target
		ny = int(float64(target) * float64(srcH) / float64(srcW))
		if ny < min {
			ny = min
			nx = int(float64(ny) * float64(srcW) / float64(srcH))
		}
	} else {
		ny = target
		nx = int(float64(target) * float64(srcW) / float64(srcH))
		if nx < min {
			nx = min
			ny = int(float64(nx) * float64(srcH) / float64(srcW))
		}
	}
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	return nx, ny
}

func init() {
	// register the decoders spec.md's cacheable set needs beyond what
	// image/jpeg, image/png, image/gif self-register via blank import
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
}
