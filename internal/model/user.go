package model

import (
	"time"

	"github.com/google/uuid"
)

// ConversationState identifies the onboarding step a user record occupies.
type ConversationState string

const (
	// StateWelcome is the initial state of a freshly created record.
	StateWelcome ConversationState = "welcome"
	// StateAskingName waits for the user's name.
	StateAskingName ConversationState = "asking_name"
	// StateAskingDistrict waits for the user's district.
	StateAskingDistrict ConversationState = "asking_district"
	// StateAskingCity waits for the user's city.
	StateAskingCity ConversationState = "asking_city"
	// StateAskingState waits for the user's state.
	StateAskingState ConversationState = "asking_state"
	// StateRequestingDocument waits for an identity document image.
	StateRequestingDocument ConversationState = "requesting_document"
	// StateCompleted is the terminal state; only "restart" leaves it.
	StateCompleted ConversationState = "completed"
)

// Known reports whether s is one of the defined conversation states.
func (s ConversationState) Known() bool {
	switch s {
	case StateWelcome, StateAskingName, StateAskingDistrict, StateAskingCity,
		StateAskingState, StateRequestingDocument, StateCompleted:
		return true
	}
	return false
}

// UserRecord is the persisted onboarding record for one channel address.
// Exactly one record exists per address; mutation happens only through the
// conversation engine.
type UserRecord struct {
	ID           string            `json:"id" db:"id"`
	Address      string            `json:"address" db:"address"`
	Name         string            `json:"name" db:"name"`
	District     string            `json:"district" db:"district"`
	City         string            `json:"city" db:"city"`
	State        string            `json:"state" db:"state"`
	DocumentRef  string            `json:"document_ref" db:"document_ref"`
	Conversation ConversationState `json:"conversation_state" db:"conversation_state"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// NewUserRecord creates a record for an unseen address in the initial state.
func NewUserRecord(address string, now time.Time) UserRecord {
	now = now.UTC()
	return UserRecord{
		ID:           uuid.NewString(),
		Address:      address,
		Conversation: StateWelcome,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Attachment describes inbound media by its declared media type. Bytes are
// fetched lazily by the dispatcher, never by the engine.
type Attachment struct {
	MimeType string
}

// Inbound is a single message event handed to the conversation engine.
type Inbound struct {
	Address    string
	Body       string
	Attachment *Attachment
}

// DocumentRequest asks the dispatcher to persist the attachment bytes of the
// current event under the given file name.
type DocumentRequest struct {
	Name string
}
