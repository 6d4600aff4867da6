package models

// Message roles. History only accepts user and assistant; system is used for
// model prompts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role              string       `json:"role" validate:"oneof=user assistant"`
	Content           string       `json:"content"`
	SuggestedProducts []ProductRef `json:"suggestedProducts,omitempty"`
}

// ChatRequest represents the incoming chat request from the storefront
type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []ChatMessage `json:"conversation_history,omitempty"`
	SessionID           string        `json:"session_id,omitempty"`
}

// ActionSpec describes a follow-up action the storefront can render as a button
type ActionSpec struct {
	Type      string      `json:"type"`
	Prompt    string      `json:"prompt"`
	VariantID string      `json:"variant_id,omitempty"`
	Product   *ProductRef `json:"product,omitempty"`
}

// StoreLocation is attached to answers about the physical store. It is part of
// the response contract; no advisor fills it yet.
type StoreLocation struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Hours   string `json:"hours,omitempty"`
	MapURL  string `json:"map_url,omitempty"`
}

// ChatResponse is the unit returned to the caller for one chat turn
type ChatResponse struct {
	Answer            string         `json:"answer"`
	Intent            Intent         `json:"intent"`
	SuggestedProducts []ProductRef   `json:"suggested_products,omitempty"`
	SuggestedAction   *ActionSpec    `json:"suggested_action,omitempty"`
	StoreLocation     *StoreLocation `json:"store_location,omitempty"`
	SessionID         string         `json:"session_id,omitempty"`
	RequestID         string         `json:"request_id,omitempty"`
}

// Identity is the caller identity resolved by the upstream auth layer.
// UserID is empty for guests.
type Identity struct {
	UserID    string
	SessionID string
}

// IsGuest reports whether the caller is unauthenticated
func (i Identity) IsGuest() bool {
	return i.UserID == ""
}

// ConversationKey returns the key conversation history is stored under
func (i Identity) ConversationKey() string {
	if i.UserID != "" {
		return "user:" + i.UserID
	}
	return "guest:" + i.SessionID
}
