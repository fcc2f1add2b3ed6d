package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is a credit purchase. PaymentApplied flips to true exactly once,
// when the purchased credits are added to the owner's balance.
type Transaction struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	ClerkID        string    `gorm:"type:varchar(191);not null;index" bson:"clerkId" json:"clerk_id" validate:"required"`
	Plan           string    `gorm:"type:varchar(50);not null" bson:"plan" json:"plan" validate:"required"`
	Credits        int64     `gorm:"not null" bson:"credits" json:"credits" validate:"gt=0"`
	Amount         int64     `gorm:"not null" bson:"amount" json:"amount" validate:"gt=0"`
	Currency       string    `gorm:"type:varchar(10);not null" bson:"currency" json:"currency" validate:"required"`
	OrderID        string    `gorm:"type:varchar(64);index" bson:"orderId,omitempty" json:"order_id,omitempty"`
	PaymentApplied bool      `gorm:"column:payment;not null;default:false" bson:"payment" json:"payment"`
	Date           time.Time `gorm:"not null" bson:"date" json:"date"`
}

func NewTransaction(clerkID, plan string, credits, amount int64, currency string) *Transaction {
	return &Transaction{
		ID:       uuid.NewString(),
		ClerkID:  clerkID,
		Plan:     plan,
		Credits:  credits,
		Amount:   amount,
		Currency: currency,
		Date:     time.Now().UTC(),
	}
}

func (t *Transaction) Validate() error {
	return validate.Struct(t)
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
