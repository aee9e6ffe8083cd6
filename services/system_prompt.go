package services

import "strings"

// Persona selects the framing of the system prompt.
type Persona int

const (
	PersonaAssistant Persona = iota
	PersonaCoder
	PersonaAnalyst
)

// ParsePersona maps a role name to a Persona. Unrecognised names, including
// the empty string, select PersonaAssistant.
func ParsePersona(role string) Persona {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "coder":
		return PersonaCoder
	case "analyst":
		return PersonaAnalyst
	default:
		return PersonaAssistant
	}
}

func (p Persona) String() string {
	switch p {
	case PersonaCoder:
		return "Coder"
	case PersonaAnalyst:
		return "Analyst"
	default:
		return "Assistant"
	}
}

func (p Persona) Instruction() string {
	switch p {
	case PersonaCoder:
		return "You are an Expert Software Engineer. You write clean, efficient code and explain technical concepts clearly."
	case PersonaAnalyst:
		return "You are a Data Analyst. You summarize complex information into concise bullet points."
	default:
		return "You are a friendly and professional AI Assistant."
	}
}

const operatingInstructions = `You have access to the user's uploaded documents (Context provided below).

STRICT INSTRUCTIONS:
1. **Greetings:** If the user says "Hello", "Hi", "How are you", or general chit-chat, DO NOT look at the Context. Just reply warmly and naturally (e.g., "Hello! How can I help you today?").
2. **Document Questions:** If the user asks a specific question about the uploaded files, USE the Context to answer accurately.
3. **Context Awareness:** Do not say "According to the context" unless you are actually answering a question about the documents.

Context from uploaded files:
`

// SystemPrompt builds the system message for a persona and retrieved context.
func SystemPrompt(p Persona, context string) string {
	return p.Instruction() + "\n" + operatingInstructions + context
}
