package chat

import "time"

// Session scopes a widget conversation against one knowledge base.
type Session struct {
	ID              string    `json:"id"`
	KnowledgeBaseID string    `json:"knowledgeBaseId"`
	CreatedAt       time.Time `json:"createdAt"`
}
