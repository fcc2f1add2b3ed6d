package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultCreditBalance is the balance granted to every newly created user.
const DefaultCreditBalance int64 = 5

// EventStatusProcessed marks a webhook event as applied to a user record.
const EventStatusProcessed = "processed"

var validate = validator.New()

// ProcessedEvents maps webhook event keys to their status on a single user record.
// Entries are only ever added.
type ProcessedEvents map[string]string

// User is the local account mirrored from the identity provider.
type User struct {
	ID              uint            `gorm:"primaryKey" bson:"-" json:"-"`
	ClerkID         string          `gorm:"type:varchar(191);not null;uniqueIndex:ux_users_clerk_id" bson:"clerkId" json:"clerk_id" validate:"required,max=191"`
	Email           *string         `gorm:"type:varchar(200);uniqueIndex:ux_users_email" bson:"email,omitempty" json:"email,omitempty" validate:"omitempty,email,max=200"`
	Photo           *string         `gorm:"type:varchar(1024);default:null" bson:"photo,omitempty" json:"photo,omitempty" validate:"omitempty,max=1024"`
	FirstName       *string         `gorm:"type:varchar(150);default:null" bson:"firstName,omitempty" json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName        *string         `gorm:"type:varchar(150);default:null" bson:"lastName,omitempty" json:"last_name,omitempty" validate:"omitempty,max=150"`
	CreditBalance   int64           `gorm:"not null;check:chk_users_credit_balance,credit_balance >= 0" bson:"creditBalance" json:"credit_balance" validate:"gte=0"`
	ProcessedEvents ProcessedEvents `gorm:"type:json;serializer:json" bson:"processedEvents" json:"-"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" bson:"createdAt" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" bson:"updatedAt" json:"updated_at"`
}

func (u *User) Validate() error {
	return validate.Struct(u)
}

// HasProcessed reports whether eventID was already applied to this record.
func (u *User) HasProcessed(eventID string) bool {
	if u.ProcessedEvents == nil || eventID == "" {
		return false
	}
	_, ok := u.ProcessedEvents[EventKey(eventID)]
	return ok
}

// MarkProcessed records eventID on the record. An existing entry is left as is.
func (u *User) MarkProcessed(eventID string) {
	if eventID == "" {
		return
	}
	if u.ProcessedEvents == nil {
		u.ProcessedEvents = ProcessedEvents{}
	}
	key := EventKey(eventID)
	if _, ok := u.ProcessedEvents[key]; ok {
		return
	}
	u.ProcessedEvents[key] = EventStatusProcessed
}

// EventKey normalizes an event id for use as a document field name.
func EventKey(eventID string) string {
	return strings.NewReplacer(".", "_", "$", "_").Replace(strings.TrimSpace(eventID))
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Email = cloneString(u.Email)
	c.Photo = cloneString(u.Photo)
	c.FirstName = cloneString(u.FirstName)
	c.LastName = cloneString(u.LastName)
	if u.ProcessedEvents != nil {
		c.ProcessedEvents = make(ProcessedEvents, len(u.ProcessedEvents))
		for k, v := range u.ProcessedEvents {
			c.ProcessedEvents[k] = v
		}
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
