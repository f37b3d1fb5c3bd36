package prompt

// Category groups prompts in the library.
type Category string

const (
	CategoryGeneral     Category = "general"
	CategorySpecialized Category = "specialized"
)

// Prompt is a copy-ready request the user can paste into the conversation.
type Prompt struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
}
