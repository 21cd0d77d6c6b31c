package qualitygate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/crew/internal/errors"
)

// reviewPayload is the schema every review stage must answer with.
type reviewPayload struct {
	Score               *float64        `json:"score"`
	Issues              []string        `json:"issues"`
	Suggestions         []string        `json:"suggestions"`
	IntegrationVerified *bool           `json:"integrationVerified,omitempty"`
	Requirements        []coverageClaim `json:"requirements,omitempty"`
}

// coverageClaim is the model's claim about one requirement or plan item.
type coverageClaim struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// extractJSON strips a single surrounding markdown code fence.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return ""
	}
	s = s[nl+1:]
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	return s
}

// parseReview decodes a stage response. Anything other than exactly one
// JSON object with a score in [0, 100] is a non-json-response failure.
func parseReview(stage StageName, text string) (reviewPayload, error) {
	body := extractJSON(text)
	nonJSON := func(msg string, cause error) error {
		se := errors.NewStageError(errors.KindNonJSONResponse, string(stage), msg)
		if cause != nil {
			se = se.WithCause(cause)
		}
		return se
	}
	if !strings.HasPrefix(body, "{") {
		return reviewPayload{}, nonJSON("review response is not a JSON object", nil)
	}

	var p reviewPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&p); err != nil {
		return reviewPayload{}, nonJSON("review response could not be parsed", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return reviewPayload{}, nonJSON("review response has trailing content", nil)
	}
	if p.Score == nil {
		return reviewPayload{}, nonJSON("review response has no score", nil)
	}
	if *p.Score < 0 || *p.Score > 100 {
		return reviewPayload{}, nonJSON(fmt.Sprintf("review score %.1f out of range", *p.Score), nil)
	}
	return p, nil
}
