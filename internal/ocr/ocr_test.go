package ocr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleImage = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func TestAzureExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/vision/v3.2/ocr", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, sampleImage, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"regions": [
				{"lines": [
					{"words": [{"text": "AB12"}, {"text": "CDE"}]},
					{"words": []}
				]},
				{"lines": [
					{"words": [{"text": "PARKING"}]}
				]}
			]
		}`))
	}))
	defer srv.Close()

	e := NewAzureExtractor(srv.URL+"/", "secret", time.Second)
	lines, err := e.Extract(context.Background(), sampleImage)
	require.NoError(t, err)
	assert.Equal(t, []Line{{"AB12", "CDE"}, {"PARKING"}}, lines)
}

func TestAzureExtractFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"code":"401"}}`, http.StatusUnauthorized)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewAzureExtractor(srv.URL, "k", time.Second).Extract(context.Background(), sampleImage)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExtraction)
		})
	}
}

func TestAzureExtractUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewAzureExtractor(url, "k", time.Second).Extract(context.Background(), sampleImage)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestExtractEmptyImage(t *testing.T) {
	extractors := map[string]Extractor{
		"azure":       NewAzureExtractor("http://127.0.0.1:1", "k", time.Second),
		"rekognition": NewRekognitionExtractor(&fakeRekognition{}),
	}
	for name, e := range extractors {
		t.Run(name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), nil)
			assert.ErrorIs(t, err, ErrExtraction)
		})
	}
}

type fakeRekognition struct {
	out   *rekognition.DetectTextOutput
	err   error
	input *rekognition.DetectTextInput
}

func (f *fakeRekognition) DetectText(_ context.Context, in *rekognition.DetectTextInput, _ ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestRekognitionExtract(t *testing.T) {
	fake := &fakeRekognition{out: &rekognition.DetectTextOutput{
		TextDetections: []types.TextDetection{
			{Type: types.TextTypesLine, DetectedText: aws.String("AB12 CDE")},
			{Type: types.TextTypesWord, DetectedText: aws.String("AB12")},
			{Type: types.TextTypesWord, DetectedText: aws.String("CDE")},
			{Type: types.TextTypesLine, DetectedText: aws.String("  ")},
			{Type: types.TextTypesLine},
			{Type: types.TextTypesLine, DetectedText: aws.String("XY99ABC")},
		},
	}}

	lines, err := NewRekognitionExtractor(fake).Extract(context.Background(), sampleImage)
	require.NoError(t, err)
	assert.Equal(t, []Line{{"AB12", "CDE"}, {"XY99ABC"}}, lines)
	assert.Equal(t, sampleImage, fake.input.Image.Bytes)
}

func TestRekognitionExtractError(t *testing.T) {
	fake := &fakeRekognition{err: errors.New("throttled")}
	_, err := NewRekognitionExtractor(fake).Extract(context.Background(), sampleImage)
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []Line{{"AB12", "CDE"}, {"XY99ABC"}}, splitLines("AB12  CDE\n\n  \nXY99ABC\n"))
	assert.Nil(t, splitLines(""))
}

func TestExtractorFunc(t *testing.T) {
	var e Extractor = ExtractorFunc(func(context.Context, []byte) ([]Line, error) {
		return []Line{{"A"}}, nil
	})
	lines, err := e.Extract(context.Background(), sampleImage)
	require.NoError(t, err)
	assert.Equal(t, []Line{{"A"}}, lines)
}
