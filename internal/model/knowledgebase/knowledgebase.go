package knowledgebase

import "github.com/zhouzirui/kbchat/pkg/chatbot"

// Document is one entry of a knowledge base that answers are grounded in.
type Document struct {
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// KnowledgeBase groups the documents a widget answers from with the look
// of the widget embedded for it.
type KnowledgeBase struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Documents []Document        `json:"documents,omitempty" yaml:"documents"`
	Widget    chatbot.Customize `json:"widget" yaml:"widget"`
}

// Seed provides the demo knowledge bases served when no catalogue file is
// configured.
func Seed() []KnowledgeBase {
	return []KnowledgeBase{
		{
			ID:   "kbchat-help",
			Name: "kbchat product help",
			Documents: []Document{
				{
					Title:   "Embedding the widget",
					Content: "Add the widget to any page with an iframe pointing at /widget/{knowledgeBaseId}. Use the close and launcher query parameters to hide the close button or the floating launcher.",
				},
				{
					Title:   "Message limits",
					Content: "Every chat session can receive twenty answers on the free plan. Upgrade to a higher plan to raise the limit.",
				},
				{
					Title:   "Customizing colors",
					Content: "The widget header and user bubbles use the background color and font color configured for the knowledge base. Error bubbles are always light red.",
				},
			},
			Widget: chatbot.Customize{
				Heading:         "kbchat help",
				Description:     "Ask anything about **embedding** and configuring the chat widget.",
				WelcomeMessage:  "Hi! Ask me how to embed or customize the widget.",
				BackgroundColor: "#4f46e5",
				FontColor:       "#ffffff",
				BorderRadius:    "12px",
			},
		},
		{
			ID:   "acme-billing",
			Name: "ACME billing FAQ",
			Documents: []Document{
				{
					Title:   "Invoices",
					Content: "Invoices are issued on the first day of every month and can be downloaded from the billing page as PDF.",
				},
				{
					Title:   "Refunds",
					Content: "Refunds are processed within five business days after the request is approved by support.",
				},
			},
			Widget: chatbot.Customize{
				Heading:         "ACME Billing",
				Description:     "Questions about invoices and refunds.",
				BackgroundColor: "rgb(16 185 129)",
				FontColor:       "#000000",
				BorderRadius:    "8px",
			},
		},
	}
}
