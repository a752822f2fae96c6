package stage

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/qualify-cli/internal/apperr"
)

// Parse strips code fencing from raw model text, validates it against the
// kind's schema and decodes it. Failures are ValidationErrors naming the
// stage.
func (s *Spec) Parse(stageName, text string) (any, error) {
	cleaned := CleanJSON(text)
	if !json.Valid([]byte(cleaned)) {
		return nil, &apperr.ValidationError{
			Stage: stageName,
			Err:   eris.New("stage: output is not valid JSON"),
		}
	}

	if s.compiled != nil {
		result, err := s.compiled.Validate(gojsonschema.NewStringLoader(cleaned))
		if err != nil {
			return nil, &apperr.ValidationError{Stage: stageName, Err: eris.Wrap(err, "stage: validate output")}
		}
		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			return nil, &apperr.ValidationError{Stage: stageName, Details: details}
		}
	}

	out, err := s.Decode([]byte(cleaned))
	if err != nil {
		return nil, &apperr.ValidationError{Stage: stageName, Err: eris.Wrap(err, "stage: decode output")}
	}
	return out, nil
}

// CleanJSON extracts a JSON object from text that may be wrapped in
// markdown code fences or surrounding prose.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Drop an info string such as "json" on the opening fence.
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			if info := strings.TrimSpace(text[:nl]); info == "" || !strings.ContainsAny(info, "{[") {
				text = text[nl+1:]
			}
		}
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
