package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const azureOCRPath = "/vision/v3.2/ocr"

type azureResponse struct {
	Regions []struct {
		Lines []struct {
			Words []struct {
				Text string `json:"text"`
			} `json:"words"`
		} `json:"lines"`
	} `json:"regions"`
}

// AzureExtractor calls the Azure Computer Vision OCR endpoint.
type AzureExtractor struct {
	endpoint string
	key      string
	client   *http.Client
}

func NewAzureExtractor(endpoint, key string, timeout time.Duration) *AzureExtractor {
	return &AzureExtractor{
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *AzureExtractor) Extract(ctx context.Context, image []byte) ([]Line, error) {
	if len(image) == 0 {
		return nil, errEmptyImage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+azureOCRPath, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrExtraction, err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", e.key)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: azure request: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: azure returned %d: %s", ErrExtraction, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded azureResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode azure response: %v", ErrExtraction, err)
	}

	var lines []Line
	for _, region := range decoded.Regions {
		for _, l := range region.Lines {
			line := make(Line, 0, len(l.Words))
			for _, w := range l.Words {
				if w.Text != "" {
					line = append(line, w.Text)
				}
			}
			if len(line) > 0 {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}
