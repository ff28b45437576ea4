package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Codec errors.
var (
	ErrMissingFrameType = errors.New("frame has no type")
)

// EncodeFrame encodes a frame to its JSON wire form.
func EncodeFrame(f *Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, ErrMissingFrameType
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame decodes a JSON wire frame. Frames without a type field are
// rejected; unknown types are preserved so the caller can decide.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, ErrMissingFrameType
	}
	return &f, nil
}

// ErrorPayload is the body of an error or connection_error frame.
// The feed service is inconsistent about the shape, so every field is
// optional and Message falls back to the raw payload.
type ErrorPayload struct {
	Errors []struct {
		ErrorType string `json:"errorType"`
		Message   string `json:"message"`
	} `json:"errors"`
}

// DecodeErrorPayload extracts a human-readable message from an error frame.
func DecodeErrorPayload(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unspecified server error"
	}
	var p ErrorPayload
	if err := json.Unmarshal(raw, &p); err == nil && len(p.Errors) > 0 {
		msg := p.Errors[0].Message
		if p.Errors[0].ErrorType != "" {
			return fmt.Sprintf("%s: %s", p.Errors[0].ErrorType, msg)
		}
		if msg != "" {
			return msg
		}
	}
	return string(raw)
}
