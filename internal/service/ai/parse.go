package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zhouzirui/aura/backend/internal/model/chat"
)

// ErrMalformedVisualization is returned when a visualization reply does not decode.
var ErrMalformedVisualization = errors.New("malformed visualization response")

var fencedJSON = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n(.*?)\\n?```$")

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ParseMemory decodes a memory consolidation reply. All five lists must be present.
func ParseMemory(text string) (*chat.SessionMemory, error) {
	body := stripFences(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedMemory)
	}

	var memory chat.SessionMemory
	if err := json.Unmarshal([]byte(body), &memory); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMemory, err)
	}
	return &memory, nil
}

// ParseVisualization decodes the accumulated visualization reply.
func ParseVisualization(text string) (*chat.VisualizationData, error) {
	body := stripFences(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedVisualization)
	}

	var data chat.VisualizationData
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVisualization, err)
	}
	return &data, nil
}
