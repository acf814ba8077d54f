package extractors

import (
	"context"
	"fmt"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// ImageExtractor and AudioExtractor are bounded placeholders: OCR and
// speech transcription are external services this module does not
// re-implement. Each returns a single block recording that the file was
// received, carrying the metadata fields the rest of the pipeline expects
// without claiming to have actually read the image or transcribed audio.

type ImageExtractor struct{}

func NewImageExtractor() *ImageExtractor { return &ImageExtractor{} }

func (e *ImageExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	return []rag.TextBlock{{
		Content: fmt.Sprintf("[image: %s, %d bytes — OCR not performed by this deployment]", filename, len(data)),
		Metadata: rag.Metadata{
			"file_type":      rag.StringScalar("image"),
			"ocr_confidence": rag.FloatScalar(0),
		},
	}}, nil
}

type AudioExtractor struct{}

func NewAudioExtractor() *AudioExtractor { return &AudioExtractor{} }

func (e *AudioExtractor) Extract(ctx context.Context, filename string, data []byte) ([]rag.TextBlock, error) {
	return []rag.TextBlock{{
		Content: fmt.Sprintf("[audio/video: %s, %d bytes — transcription not performed by this deployment]", filename, len(data)),
		Metadata: rag.Metadata{
			"file_type":    rag.StringScalar("audio"),
			"segment_start": rag.FloatScalar(0),
			"segment_end":   rag.FloatScalar(0),
		},
	}}, nil
}
