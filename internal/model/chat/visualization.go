package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrIncompleteVisualization marks a payload that is missing a required part.
var ErrIncompleteVisualization = errors.New("visualization payload is incomplete")

// VisualizationPoint is a named strength or weakness scored from 0 to 10.
type VisualizationPoint struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// ArchetypeAnalysis describes the dominant archetype of one person.
type ArchetypeAnalysis struct {
	Person               string `json:"person"`
	Archetype            string `json:"archetype"`
	ContextDescription   string `json:"contextDescription"`
	GeneralManifestation string `json:"generalManifestation"`
}

// ExampleScenario illustrates an interaction pattern.
type ExampleScenario struct {
	Scenario string `json:"scenario"`
	Detail   string `json:"detail"`
}

// InteractionDetail is a narrative plus example scenarios.
type InteractionDetail struct {
	Analysis string            `json:"analysis"`
	Examples []ExampleScenario `json:"examples"`
}

// ArchetypeInteraction analyses how the archetypes play together.
type ArchetypeInteraction struct {
	CommunicationPatterns InteractionDetail `json:"communicationPatterns"`
	ConflictStyles        InteractionDetail `json:"conflictStyles"`
}

// VisualizationData is produced atomically from one model call.
type VisualizationData struct {
	Strengths            []VisualizationPoint `json:"strengths"`
	Weaknesses           []VisualizationPoint `json:"weaknesses"`
	Archetypes           []ArchetypeAnalysis  `json:"archetypes"`
	ArchetypeInteraction ArchetypeInteraction `json:"archetypeInteraction"`
}

// UnmarshalJSON rejects payloads that would only partially populate the data.
func (v *VisualizationData) UnmarshalJSON(data []byte) error {
	var wire struct {
		Strengths            *[]VisualizationPoint `json:"strengths"`
		Weaknesses           *[]VisualizationPoint `json:"weaknesses"`
		Archetypes           []ArchetypeAnalysis   `json:"archetypes"`
		ArchetypeInteraction *struct {
			CommunicationPatterns *InteractionDetail `json:"communicationPatterns"`
			ConflictStyles        *InteractionDetail `json:"conflictStyles"`
		} `json:"archetypeInteraction"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch {
	case wire.Strengths == nil:
		return fmt.Errorf("%w: strengths", ErrIncompleteVisualization)
	case wire.Weaknesses == nil:
		return fmt.Errorf("%w: weaknesses", ErrIncompleteVisualization)
	case wire.ArchetypeInteraction == nil:
		return fmt.Errorf("%w: archetypeInteraction", ErrIncompleteVisualization)
	case wire.ArchetypeInteraction.CommunicationPatterns == nil:
		return fmt.Errorf("%w: communicationPatterns", ErrIncompleteVisualization)
	case wire.ArchetypeInteraction.ConflictStyles == nil:
		return fmt.Errorf("%w: conflictStyles", ErrIncompleteVisualization)
	}

	out := VisualizationData{
		Strengths:  *wire.Strengths,
		Weaknesses: *wire.Weaknesses,
		Archetypes: wire.Archetypes,
		ArchetypeInteraction: ArchetypeInteraction{
			CommunicationPatterns: *wire.ArchetypeInteraction.CommunicationPatterns,
			ConflictStyles:        *wire.ArchetypeInteraction.ConflictStyles,
		},
	}
	if err := out.validateScores(); err != nil {
		return err
	}
	*v = out
	return nil
}

func (v VisualizationData) validateScores() error {
	for _, group := range [][]VisualizationPoint{v.Strengths, v.Weaknesses} {
		for _, point := range group {
			if point.Score < 0 || point.Score > 10 {
				return fmt.Errorf("score %v of %q outside 0..10", point.Score, point.Name)
			}
		}
	}
	return nil
}

// MarshalJSON emits empty lists as [] so the payload decodes again.
func (v VisualizationData) MarshalJSON() ([]byte, error) {
	type plain VisualizationData
	return json.Marshal(plain(v.Clone()))
}

// Clone deep-copies the visualization; nil lists become empty ones.
func (v VisualizationData) Clone() VisualizationData {
	return VisualizationData{
		Strengths:  cloneSlice(v.Strengths),
		Weaknesses: cloneSlice(v.Weaknesses),
		Archetypes: cloneSlice(v.Archetypes),
		ArchetypeInteraction: ArchetypeInteraction{
			CommunicationPatterns: v.ArchetypeInteraction.CommunicationPatterns.clone(),
			ConflictStyles:        v.ArchetypeInteraction.ConflictStyles.clone(),
		},
	}
}

func (d InteractionDetail) clone() InteractionDetail {
	return InteractionDetail{
		Analysis: d.Analysis,
		Examples: cloneSlice(d.Examples),
	}
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}
