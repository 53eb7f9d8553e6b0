// Package source feeds camera images into the detection pipeline from
// outside the HTTP API: an SQS queue of S3 upload notifications and a local
// drop directory.
package source

import (
	"context"
	"errors"

	"permit-enforcement/internal/domain/permit"
	"permit-enforcement/internal/service"
)

const (
	SourceSQS = "sqs"
	SourceDir = "dir"
)

// Processor is satisfied by *service.DetectionService.
type Processor interface {
	ProcessImage(ctx context.Context, img permit.Image) (*permit.ProcessResult, error)
}

// retryable reports whether a failed image should be offered again. Input the
// pipeline rejected outright will never succeed.
func retryable(err error) bool {
	return err != nil && !errors.Is(err, service.ErrInvalidInput)
}
