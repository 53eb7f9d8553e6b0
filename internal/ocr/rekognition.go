package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// DetectTextAPI is the subset of the Rekognition client used here.
type DetectTextAPI interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

type RekognitionExtractor struct {
	client DetectTextAPI
}

func NewRekognitionExtractor(client DetectTextAPI) *RekognitionExtractor {
	return &RekognitionExtractor{client: client}
}

func (e *RekognitionExtractor) Extract(ctx context.Context, image []byte) ([]Line, error) {
	if len(image) == 0 {
		return nil, errEmptyImage
	}

	out, err := e.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rekognition: %v", ErrExtraction, err)
	}

	var lines []Line
	for _, det := range out.TextDetections {
		if det.Type != types.TextTypesLine || det.DetectedText == nil {
			continue
		}
		words := strings.Fields(*det.DetectedText)
		if len(words) > 0 {
			lines = append(lines, Line(words))
		}
	}
	return lines, nil
}
