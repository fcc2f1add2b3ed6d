package clerk

import (
	"encoding/json"
	"strings"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserData is the subset of the Clerk user object the service mirrors.
type UserData struct {
	ID                    string         `json:"id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	ImageURL              string         `json:"image_url"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
}

// Event is the webhook envelope.
type Event struct {
	Type   string   `json:"type"`
	Object string   `json:"object"`
	Data   UserData `json:"data"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "malformed event body", err)
	}
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.Type == "" {
		return nil, apperr.New(apperr.Validation, "event type is missing")
	}
	evt.Data.ID = strings.TrimSpace(evt.Data.ID)
	return &evt, nil
}

// PrimaryEmail returns the address marked primary, else the first one, else nil.
func (d UserData) PrimaryEmail() *string {
	if d.PrimaryEmailAddressID != "" {
		for _, e := range d.EmailAddresses {
			if e.ID == d.PrimaryEmailAddressID && e.EmailAddress != "" {
				return strPtr(e.EmailAddress)
			}
		}
	}
	if len(d.EmailAddresses) > 0 && d.EmailAddresses[0].EmailAddress != "" {
		return strPtr(d.EmailAddresses[0].EmailAddress)
	}
	return nil
}

// Patch returns the present profile fields. Empty values count as absent.
func (d UserData) Patch() models.UserPatch {
	return models.UserPatch{
		Email:     d.PrimaryEmail(),
		Photo:     nonEmpty(d.ImageURL),
		FirstName: nonEmpty(d.FirstName),
		LastName:  nonEmpty(d.LastName),
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strPtr(s string) *string {
	return &s
}
