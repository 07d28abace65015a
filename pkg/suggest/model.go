package suggest

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/certificate-composer/pkg/client"
	"github.com/menta2k/certificate-composer/pkg/processing"
	"github.com/menta2k/certificate-composer/pkg/types"
)

// DefaultPrompt asks a vision model for the primary subject of a portrait photo
const DefaultPrompt = `You are an image subject locator for portrait framing.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (<= 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box should tightly include the visually dominant subject (prefer faces and people; else animals; else the most central salient object).
- Description must be brief and factual. Do not guess real identities.
- If no subject is found, return:
  {"primary":{"label":"none","confidence":0.0,"box":{"x":0.25,"y":0.25,"w":0.50,"h":0.50}},"description":"no subject"}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ModelOptions configures a Model suggester.
type ModelOptions struct {
	Model  string
	Prompt string
	// MinConfidence rejects answers the model is unsure about.
	MinConfidence float64
	// Padding grows the subject box by this share of its size on each side.
	Padding float64
	// SendFormat, SendSize and SendQuality control the image sent to the model.
	SendFormat  string
	SendSize    int
	SendQuality int
}

// Model suggests crops from a vision model's subject box.
type Model struct {
	client    client.VisionClient
	processor *processing.Processor
	aspect    float64
	opts      ModelOptions
}

// NewModel creates a model suggester for crops of the given width/height ratio.
func NewModel(c client.VisionClient, aspect float64, opts ModelOptions) *Model {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.SendFormat == "" {
		opts.SendFormat = "jpg"
	}
	if opts.SendSize == 0 {
		opts.SendSize = 1024
	}
	if opts.SendQuality == 0 {
		opts.SendQuality = 85
	}
	if opts.Padding == 0 {
		opts.Padding = 0.15
	}
	return &Model{client: c, processor: processing.NewProcessor(), aspect: aspect, opts: opts}
}

// Suggest asks the model where the subject is and frames it.
func (m *Model) Suggest(ctx context.Context, img image.Image) (image.Rectangle, error) {
	b := img.Bounds()
	if b.Empty() {
		return image.Rectangle{}, ErrEmptyImage
	}

	imgB64, err := m.processor.PrepareImageForModel(img, m.opts.SendFormat, m.opts.SendSize, m.opts.SendQuality)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("prepare image: %w", err)
	}
	result, err := m.client.AnalyzeImage(ctx, m.opts.Model, m.opts.Prompt, imgB64)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("analyze image: %w", err)
	}
	if !usable(result, m.opts.MinConfidence) {
		return image.Rectangle{}, ErrNoSubject
	}

	subject := processing.BoxToRect(normalizeBox(result.Primary.Box), b.Dx(), b.Dy())
	if subject.Empty() {
		return image.Rectangle{}, ErrNoSubject
	}
	return FitAspect(Pad(subject, m.opts.Padding), m.aspect, b.Dx(), b.Dy()), nil
}

func usable(r *types.AnalysisResult, minConfidence float64) bool {
	if r == nil {
		return false
	}
	label := strings.ToLower(strings.TrimSpace(r.Primary.Label))
	switch label {
	case "none", "unclear image", "parse error":
		return false
	}
	return r.Primary.Confidence >= minConfidence
}

// normalizeBox clamps a box to [0,1] and keeps it inside the image
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}
