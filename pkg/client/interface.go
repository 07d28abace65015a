// Package client defines the vision-model interface used for crop suggestions and the
// tolerant parsing shared by its implementations.
package client

import (
	"context"

	"github.com/menta2k/certificate-composer/pkg/types"
)

// VisionClient asks a multimodal model where the main subject of an image is.
type VisionClient interface {
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
