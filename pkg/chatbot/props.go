package chatbot

// Customize carries the per-knowledge-base look of the widget.
type Customize struct {
	Heading         string `json:"heading" yaml:"heading"`
	Description     string `json:"description" yaml:"description"` // markdown, inline HTML allowed
	WelcomeMessage  string `json:"welcomeMessage,omitempty" yaml:"welcome_message"`
	BackgroundColor string `json:"backgroundColor" yaml:"background_color"`
	FontColor       string `json:"fontColor" yaml:"font_color"`
	BorderRadius    string `json:"borderRadius,omitempty" yaml:"border_radius"`
}

// Props configures one widget instance.
type Props struct {
	Customize            Customize
	KnowledgeBaseID      string
	ShowCloseButton      bool
	ShowLauncher         bool
	Height               string
	DefaultMessageNumber int
}

// DefaultHeight mirrors the browser widget's default size.
const DefaultHeight = "520px"

// DefaultProps returns the props a widget gets when the embedder sets
// nothing but the knowledge base.
func DefaultProps(knowledgeBaseID string) Props {
	return Props{
		KnowledgeBaseID: knowledgeBaseID,
		ShowCloseButton: true,
		ShowLauncher:    true,
		Height:          DefaultHeight,
	}
}

// Welcome returns the greeting the conversation starts with.
func (c Customize) Welcome() string {
	if c.WelcomeMessage != "" {
		return c.WelcomeMessage
	}
	return DefaultWelcomeMessage
}

// ClassName returns the CSS class list of a message bubble.
func ClassName(t Type) string {
	switch t {
	case TypeBot:
		return "chat-message chatbot"
	case TypeBotError:
		return "chat-message chatbot-error"
	default:
		return "chat-message user"
	}
}

// BubbleColors holds the background and foreground of a message bubble.
// Empty values mean "use the renderer's default".
type BubbleColors struct {
	Background string
	Foreground string
}

const (
	errorBubbleBackground = "rgb(255 205 205)"
	errorBubbleForeground = "#000"
)

// Colors returns the bubble colours for a message type under the given
// customization.
func Colors(t Type, c Customize) BubbleColors {
	switch t {
	case TypeBot:
		return BubbleColors{}
	case TypeBotError:
		return BubbleColors{Background: errorBubbleBackground, Foreground: errorBubbleForeground}
	default:
		return BubbleColors{Background: c.BackgroundColor, Foreground: c.FontColor}
	}
}
