package cartpanda

import (
	"encoding/json"

	"github.com/cassiomorais/platformsync/internal/platform"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Cartpanda-Hmac-Sha256"

type ordersResponse struct {
	Orders []json.RawMessage `json:"orders"`
}

// Nested blocks stay raw and are decoded leniently so a block with an
// unexpected shape only loses that block.
type order struct {
	ID             platform.FlexString  `json:"id"`
	OrderNumber    platform.FlexString  `json:"order_number"`
	Status         platform.FlexString  `json:"status"`
	TotalAmount    platform.FlexDecimal `json:"total_amount"`
	Currency       platform.FlexString  `json:"currency"`
	PaymentMethod  platform.FlexString  `json:"payment_method"`
	Customer       json.RawMessage      `json:"customer"`
	Items          json.RawMessage      `json:"items"`
	PaymentDetails json.RawMessage      `json:"payment_details"`
	Affiliate      json.RawMessage      `json:"affiliate"`
	Funnel         json.RawMessage      `json:"funnel"`
	UTMSource      platform.FlexString  `json:"utm_source"`
	UTMMedium      platform.FlexString  `json:"utm_medium"`
	UTMCampaign    platform.FlexString  `json:"utm_campaign"`
	UTMContent     platform.FlexString  `json:"utm_content"`
	UTMTerm        platform.FlexString  `json:"utm_term"`
	CreatedAt      platform.FlexTime    `json:"created_at"`
	UpdatedAt      platform.FlexTime    `json:"updated_at"`
}

type customer struct {
	Name     platform.FlexString `json:"name"`
	Email    platform.FlexString `json:"email"`
	Phone    platform.FlexString `json:"phone"`
	Document platform.FlexString `json:"document"`
	Address  json.RawMessage     `json:"address"`
	City     platform.FlexString `json:"city"`
	State    platform.FlexString `json:"state"`
	Zipcode  platform.FlexString `json:"zipcode"`
}

type item struct {
	ProductID platform.FlexString  `json:"product_id"`
	Name      platform.FlexString  `json:"name"`
	Price     platform.FlexDecimal `json:"price"`
	Quantity  platform.FlexInt     `json:"quantity"`
}

type paymentDetails struct {
	Installments      platform.FlexInt     `json:"installments"`
	InstallmentAmount platform.FlexDecimal `json:"installment_amount"`
	PaymentLink       platform.FlexString  `json:"payment_link"`
	ExpiresAt         platform.FlexString  `json:"expires_at"`
}

type affiliate struct {
	ID         platform.FlexString  `json:"id"`
	Name       platform.FlexString  `json:"name"`
	Commission platform.FlexDecimal `json:"commission"`
}

type funnel struct {
	ID   platform.FlexString `json:"id"`
	Name platform.FlexString `json:"name"`
	Step platform.FlexString `json:"step"`
}

type webhookEnvelope struct {
	Event platform.FlexString `json:"event"`
	Data  json.RawMessage     `json:"data"`
}

type createWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active bool     `json:"active"`
}
