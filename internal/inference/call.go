package inference

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/belivan/MaxantAgency-sub002/internal/model"
)

// Validator is implemented by response schemas. Validate runs after
// decoding; a non-nil error makes the call fail with ErrMalformedResponse.
type Validator interface {
	Validate() error
}

// Call invokes svc, records the call on rec, decodes the response text as
// JSON into T and validates it when *T implements Validator. rec may be nil.
func Call[T any](ctx context.Context, svc Service, rec Recorder, req Request) (T, error) {
	var out T

	resp, err := svc.Invoke(ctx, req)
	record(rec, req, resp, err)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal([]byte(CleanJSON(resp.Text)), &out); err != nil {
		return out, eris.Wrapf(ErrMalformedResponse, "%s: decode: %v", req.Operation, err)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, eris.Wrapf(ErrMalformedResponse, "%s: validate: %v", req.Operation, err)
		}
	}
	return out, nil
}

func record(rec Recorder, req Request, resp *Response, err error) {
	if rec == nil {
		return
	}
	e := model.CostEntry{
		Operation: req.Operation,
		Model:     req.Model,
		Failed:    err != nil,
	}
	if resp != nil {
		e.Model = resp.Model
		e.Usage = resp.Usage
		e.CostUSD = resp.CostUSD
		e.Latency = resp.Latency
	}
	rec.Append(e)
}

// CleanJSON strips markdown fences and surrounding prose from a model
// response, leaving the outermost JSON object.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
