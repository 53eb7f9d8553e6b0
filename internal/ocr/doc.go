// Package ocr extracts text lines from camera frames.
//
// Every backend implements Extractor and returns the recognized text as an
// ordered slice of lines, each line being the ordered word tokens the engine
// reported. No plate specific filtering happens here; that is the job of the
// plate normalizer.
//
// # Backends
//
//   - Azure: Azure Computer Vision OCR v3.2 over HTTPS. Regions, lines and words
//     from the JSON response map one to one onto Line values.
//   - Rekognition: AWS Rekognition DetectText. Only LINE detections are used and
//     each line's text is split on whitespace.
//   - Tesseract: local Tesseract through gosseract. Requires cgo, libtesseract
//     and the "tesseract" build tag. Without the tag the backend is compiled as
//     a stub that always fails.
//
// # Error Handling
//
// Any failure to reach the engine, a non-success status or an undecodable
// response is reported as an error wrapping ErrExtraction. Callers treat it as
// fatal for the image being processed and do not retry.
package ocr
