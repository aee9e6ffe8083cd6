package models

// Role identifies who authored a chat turn or prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one persisted entry of the conversation log.
type ChatTurn struct {
	ID      int64  `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is a single entry of the prompt sent to the generation model.
type Message struct {
	Role    Role
	Content string
}

type ChatRequest struct {
	Query string `json:"query" binding:"required"`
	Role  string `json:"role"`
}

type ChatResponse struct {
	Reply   string   `json:"reply"`
	Sources []string `json:"sources,omitempty"`
	Error   string   `json:"error,omitempty"`
}
