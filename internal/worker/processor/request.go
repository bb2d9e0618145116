package processor

import (
	"bytes"
	"encoding/json"
	"strings"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/scene"
	"scenegen/internal/task"
)

// DecodeRequest parses a queued request payload. Parameters the payload
// omits fall back to the kind's defaults.
func DecodeRequest(payload []byte) (scene.SampleRequest, error) {
	var req scene.SampleRequest
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return scene.SampleRequest{}, errors.WrapWithCode(err, errors.CodeValidation, "processor.decode", "invalid request payload")
	}

	kind, err := task.Parse(strings.TrimSpace(string(req.Kind)))
	if err != nil {
		return scene.SampleRequest{}, err
	}
	req.Kind = kind
	req.Params = task.DefaultParams(kind).Merge(req.Params)

	if err := req.Validate(); err != nil {
		return scene.SampleRequest{}, err
	}
	return req, nil
}

// EncodeRequest is the inverse of DecodeRequest.
func EncodeRequest(req scene.SampleRequest) ([]byte, error) {
	return json.Marshal(req)
}
