// ABOUTME: Request shapes and validation for conversation and agent operations
// ABOUTME: Text fields are trimmed; validation runs before any store access

package conversation

import (
	"strings"
	"unicode/utf8"
)

// MaxAgentNameLength bounds agent names, counted in characters.
const MaxAgentNameLength = 150

// CreateRequest starts a conversation.
type CreateRequest struct {
	AgentID int64  `json:"agentId"`
	Message string `json:"message"`
}

// SendRequest continues a conversation.
type SendRequest struct {
	Message string `json:"message"`
}

// AgentRequest creates or updates an agent.
type AgentRequest struct {
	Name    string `json:"name"`
	Persona string `json:"persona"`
	Type    string `json:"type"`
}

func validateCreate(req CreateRequest) (string, error) {
	if req.AgentID < 1 {
		return "", badRequest("agentId must be a positive integer")
	}
	return validateMessage(req.Message)
}

func validateSend(id string, req SendRequest) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", badRequest("conversation id is required")
	}
	return validateMessage(req.Message)
}

func validateMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", badRequest("message must not be empty")
	}
	return message, nil
}

// normalize trims the request and fills in the default type.
func (r AgentRequest) normalize(defaultType string) (AgentRequest, error) {
	out := AgentRequest{
		Name:    strings.TrimSpace(r.Name),
		Persona: strings.TrimSpace(r.Persona),
		Type:    strings.ToLower(strings.TrimSpace(r.Type)),
	}
	if out.Name == "" {
		return out, badRequest("name must not be empty")
	}
	if utf8.RuneCountInString(out.Name) > MaxAgentNameLength {
		return out, badRequest("name must be at most 150 characters")
	}
	if out.Persona == "" {
		return out, badRequest("persona must not be empty")
	}
	if out.Type == "" {
		out.Type = defaultType
	}
	return out, nil
}
