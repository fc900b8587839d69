package kiwify

import (
	"encoding/json"

	"github.com/cassiomorais/platformsync/internal/platform"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Kiwify-Signature"

type ordersResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Amounts are integer cents.
type order struct {
	ID            platform.FlexString  `json:"id"`
	OrderID       platform.FlexString  `json:"order_id"`
	Reference     platform.FlexString  `json:"order_ref"`
	Status        platform.FlexString  `json:"order_status"`
	ChargeAmount  platform.FlexDecimal `json:"charge_amount"`
	Currency      platform.FlexString  `json:"currency"`
	PaymentMethod platform.FlexString  `json:"payment_method"`
	Installments  platform.FlexInt     `json:"installments"`
	ProductID     platform.FlexString  `json:"product_id"`
	ProductName   platform.FlexString  `json:"product_name"`
	Customer      json.RawMessage      `json:"customer"`
	Tracking      json.RawMessage      `json:"tracking"`
	Subscription  json.RawMessage      `json:"subscription"`
	ApprovedDate  platform.FlexTime    `json:"approved_date"`
	CreatedAt     platform.FlexTime    `json:"created_at"`
	UpdatedAt     platform.FlexTime    `json:"updated_at"`
}

type customer struct {
	FullName platform.FlexString `json:"full_name"`
	Email    platform.FlexString `json:"email"`
	Mobile   platform.FlexString `json:"mobile"`
	CPF      platform.FlexString `json:"cpf"`
	CNPJ     platform.FlexString `json:"cnpj"`
}

type tracking struct {
	Source   platform.FlexString `json:"utm_source"`
	Medium   platform.FlexString `json:"utm_medium"`
	Campaign platform.FlexString `json:"utm_campaign"`
	Content  platform.FlexString `json:"utm_content"`
	Term     platform.FlexString `json:"utm_term"`
}

// Kiwify posts the order document itself with the event name alongside.
type webhookEnvelope struct {
	EventType platform.FlexString `json:"webhook_event_type"`
	Order     json.RawMessage     `json:"order"`
}

type createWebhookRequest struct {
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Triggers []string `json:"triggers"`
}
