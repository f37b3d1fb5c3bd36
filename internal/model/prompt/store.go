package prompt

// Store exposes prompt retrieval for HTTP handlers.
type Store interface {
	List(category Category) []Prompt
	FindByID(id string) (Prompt, bool)
}

// MemoryStore implements Store over a fixed slice.
type MemoryStore struct {
	items []Prompt
}

// NewMemoryStore returns a MemoryStore preloaded with items.
func NewMemoryStore(items []Prompt) *MemoryStore {
	return &MemoryStore{items: append([]Prompt(nil), items...)}
}

// List returns the prompts of category, or all of them when category is empty.
func (s *MemoryStore) List(category Category) []Prompt {
	out := make([]Prompt, 0, len(s.items))
	for _, item := range s.items {
		if category == "" || item.Category == category {
			out = append(out, item)
		}
	}
	return out
}

// FindByID looks up a prompt by identifier.
func (s *MemoryStore) FindByID(id string) (Prompt, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Prompt{}, false
}
