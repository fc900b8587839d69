package yampi

import (
	"encoding/json"

	"github.com/cassiomorais/platformsync/internal/platform"
)

const SignatureHeader = "X-Yampi-Hmac-SHA256"

type ordersResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Pagination pagination `json:"pagination"`
	} `json:"meta"`
}

type pagination struct {
	Total       platform.FlexInt `json:"total"`
	CurrentPage platform.FlexInt `json:"current_page"`
	TotalPages  platform.FlexInt `json:"total_pages"`
}

// Yampi wraps most nested resources in a {"data": ...} object.
type order struct {
	ID          platform.FlexString  `json:"id"`
	Number      platform.FlexString  `json:"number"`
	Status      json.RawMessage      `json:"status"`
	ValueTotal  platform.FlexDecimal `json:"value_total"`
	Currency    platform.FlexString  `json:"currency"`
	Customer    json.RawMessage      `json:"customer"`
	Items       json.RawMessage      `json:"items"`
	Payments    json.RawMessage      `json:"payments"`
	Shipping    json.RawMessage      `json:"shipping_address"`
	UTMSource   platform.FlexString  `json:"utm_source"`
	UTMMedium   platform.FlexString  `json:"utm_medium"`
	UTMCampaign platform.FlexString  `json:"utm_campaign"`
	UTMContent  platform.FlexString  `json:"utm_content"`
	UTMTerm     platform.FlexString  `json:"utm_term"`
	CreatedAt   json.RawMessage      `json:"created_at"`
	UpdatedAt   json.RawMessage      `json:"updated_at"`
}

type statusBlock struct {
	Alias platform.FlexString `json:"alias"`
	Name  platform.FlexString `json:"name"`
}

// dateBlock is the {"date": "...", "timezone": "..."} form of timestamps.
type dateBlock struct {
	Date     platform.FlexString `json:"date"`
	Timezone platform.FlexString `json:"timezone"`
}

type customer struct {
	Name  platform.FlexString `json:"name"`
	Email platform.FlexString `json:"email"`
	CPF   platform.FlexString `json:"cpf"`
	CNPJ  platform.FlexString `json:"cnpj"`
	Phone json.RawMessage     `json:"phone"`
}

type phone struct {
	FullNumber platform.FlexString `json:"full_number"`
}

type item struct {
	ProductID platform.FlexString  `json:"product_id"`
	SKU       platform.FlexString  `json:"sku"`
	Name      platform.FlexString  `json:"name"`
	Price     platform.FlexDecimal `json:"price"`
	Quantity  platform.FlexInt     `json:"quantity"`
}

type payment struct {
	Method       platform.FlexString `json:"method"`
	Alias        platform.FlexString `json:"alias"`
	Installments platform.FlexInt    `json:"installments"`
}

type webhookEnvelope struct {
	Event    platform.FlexString `json:"event"`
	Resource json.RawMessage     `json:"resource"`
}

type createWebhookRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active bool     `json:"active"`
}
