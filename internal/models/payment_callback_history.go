package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type PaymentGateway string

const (
	PaymentGatewayMercadoPago PaymentGateway = "mercadopago"
)

// CallbackOutcome is how a webhook delivery was resolved.
type CallbackOutcome string

const (
	CallbackOutcomeCreated   CallbackOutcome = "created"
	CallbackOutcomeDuplicate CallbackOutcome = "duplicate"
	CallbackOutcomeIgnored   CallbackOutcome = "ignored"
	CallbackOutcomeRejected  CallbackOutcome = "rejected"
	CallbackOutcomeFailed    CallbackOutcome = "failed"
)

// PaymentCallbackHistory is an audit row for every webhook delivery.
type PaymentCallbackHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PaymentGateway PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	PaymentID      string          `gorm:"type:varchar(64);index" json:"payment_id"`
	Topic          string          `gorm:"type:varchar(50)" json:"topic"`
	SessionKey     string          `gorm:"type:varchar(255);index" json:"session_key"`
	Outcome        CallbackOutcome `gorm:"type:varchar(20)" json:"outcome"`
	Detail         string          `gorm:"type:text" json:"detail"`
	Metadata       json.RawMessage `gorm:"type:jsonb" json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}
