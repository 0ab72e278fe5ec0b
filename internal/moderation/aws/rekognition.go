// Package aws adapts AWS Rekognition's DetectModerationLabels API to
// the moderation.Provider interface, grounded on original_source's
// aws/mod.rs and aws/messages.rs, with the AWS SDK wiring pattern
// adopted from the teacher's internal/cache/s3.go (LoadDefaultConfig,
// NewFromConfig, functional client options).
package aws

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/imgproxy/imgproxy/internal/document"
	"github.com/imgproxy/imgproxy/internal/moderation"
	"github.com/imgproxy/imgproxy/internal/rpcerr"
)

// maxDocumentSize is the 5 MB cap Rekognition's synchronous
// DetectModerationLabels call accepts, verbatim from aws/mod.rs.
const maxDocumentSize = 5_242_880

// RekognitionProvider calls AWS Rekognition's DetectModerationLabels API
// directly with inline image bytes, matching the original's synchronous
// Rekognition moderation path (as distinct from the async S3-object
// video job flow used by internal/videoqueue).
type RekognitionProvider struct {
	client *rekognition.Client
	logger *slog.Logger
}

// New loads AWS credentials/region via the SDK's standard default
// credential chain (env vars, shared config, instance profiles — same
// resolution the teacher's S3Store relies on) and constructs a
// RekognitionProvider for the given region.
func New(ctx context.Context, region string, logger *slog.Logger) (*RekognitionProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("moderation/aws: loading AWS config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RekognitionProvider{
		client: rekognition.NewFromConfig(cfg),
		logger: logger,
	}, nil
}

func (p *RekognitionProvider) Moderate(ctx context.Context, ref *document.Ref) (moderation.Result, error) {
	doc := ref.Document()

	out, err := p.client.DetectModerationLabels(ctx, &rekognition.DetectModerationLabelsInput{
		Image: &rektypes.Image{Bytes: doc.Bytes},
	})
	if err != nil {
		p.logger.Error("rekognition moderation call failed", "request_id", doc.ID, "error", err)
		return moderation.Result{}, rpcerr.New(rpcerr.ModerationFailed, doc.ID, err)
	}

	labels := make([]moderation.RawLabel, 0, len(out.ModerationLabels))
	for _, l := range out.ModerationLabels {
		name := ""
		if l.Name != nil {
			name = *l.Name
		}
		parent := ""
		if l.ParentName != nil {
			parent = *l.ParentName
		}
		labels = append(labels, moderation.RawLabel{Name: name, ParentName: parent})
	}

	categories := moderation.Flatten(p.logger, labels)
	p.logger.Debug("moderation labels computed", "request_id", doc.ID, "categories", categories)

	return moderation.Result{Categories: categories, Provider: moderation.ProviderAws}, nil
}

func (p *RekognitionProvider) SupportedTypes() []string {
	return []string{"image/jpeg", "image/png"}
}

func (p *RekognitionProvider) MaxDocumentSize() int64 {
	return maxDocumentSize
}
