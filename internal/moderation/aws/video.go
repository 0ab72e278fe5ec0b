package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/imgproxy/imgproxy/internal/moderation"
)

// VideoProvider starts and polls Rekognition's asynchronous video
// moderation job, used only by internal/videoqueue's video task
// pipeline (the synchronous RekognitionProvider above never touches
// this API).
type VideoProvider struct {
	client *rekognition.Client
}

// NewVideoProvider shares the same client construction as New; callers
// typically build one RekognitionProvider and one VideoProvider from
// the same loaded AWS config.
func NewVideoProvider(rp *RekognitionProvider) *VideoProvider {
	return &VideoProvider{client: rp.client}
}

// StartJob kicks off an async moderation job against an S3-resident
// video object and returns the job ID to poll.
func (v *VideoProvider) StartJob(ctx context.Context, bucket, key string) (string, error) {
	out, err := v.client.StartContentModeration(ctx, &rekognition.StartContentModerationInput{
		Video: &rektypes.Video{
			S3Object: &rektypes.S3Object{Bucket: &bucket, Name: &key},
		},
	})
	if err != nil {
		return "", fmt.Errorf("moderation/aws: starting video moderation job: %w", err)
	}
	return *out.JobId, nil
}

// Terminal/non-terminal job status strings, matching videoqueue's
// VideoModerator interface (which has no dependency on this package's
// types) and Rekognition's own JobStatus enum values.
const (
	JobInProgress = "IN_PROGRESS"
	JobSucceeded  = "SUCCEEDED"
	JobFailed     = "FAILED"
)

// Poll fetches one page (and, while paginated results remain, every
// subsequent page) of a job's moderation labels, collecting them into
// a flat RawLabel list once the job reaches a terminal status.
func (v *VideoProvider) Poll(ctx context.Context, jobID string) (string, []moderation.RawLabel, error) {
	var labels []moderation.RawLabel
	var nextToken *string

	for {
		out, err := v.client.GetContentModeration(ctx, &rekognition.GetContentModerationInput{
			JobId:     &jobID,
			NextToken: nextToken,
		})
		if err != nil {
			return "", nil, fmt.Errorf("moderation/aws: polling video moderation job: %w", err)
		}

		status := string(out.JobStatus)
		if status == JobInProgress {
			return status, nil, nil
		}
		if status == JobFailed {
			return status, nil, nil
		}

		for _, m := range out.ModerationLabels {
			if m.ModerationLabel == nil {
				continue
			}
			name := ""
			if m.ModerationLabel.Name != nil {
				name = *m.ModerationLabel.Name
			}
			parent := ""
			if m.ModerationLabel.ParentName != nil {
				parent = *m.ModerationLabel.ParentName
			}
			labels = append(labels, moderation.RawLabel{Name: name, ParentName: parent})
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return JobSucceeded, labels, nil
}
