package chatbot

// Type classifies a chat turn for rendering.
type Type string

const (
	TypeBot      Type = "bot"
	TypeBotError Type = "bot-error"
	TypeUser     Type = "user"
)

// Message is one turn in the widget's message list. Messages are never
// mutated once appended; the loading placeholder is removed and superseded
// by the turn that resolves it.
type Message struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Text      string `json:"message,omitempty"`
	IsLoading bool   `json:"isLoading,omitempty"`
}

const (
	// DefaultWelcomeMessage opens every conversation unless the widget
	// customization provides its own greeting.
	DefaultWelcomeMessage = "Hello! How can I assist you today?"

	// QuotaSentinel is the plain-text body the backend returns once the
	// knowledge base has run out of answers.
	QuotaSentinel = "Sorry I cannot respond right now"

	// QuotaExceededText replaces the loading placeholder when the backend
	// answers with QuotaSentinel.
	QuotaExceededText = "You have exceeded token limit. Please upgrade to a higher plan."

	// UnavailableText replaces the loading placeholder when the answer call
	// fails or returns something the widget cannot interpret.
	UnavailableText = "Oops! Unfortunately, I'm unable to answer right now."

	// MaxMessages is the per-widget message allowance the remaining counter
	// is computed from.
	MaxMessages = 20
)

func cloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
