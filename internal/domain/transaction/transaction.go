package transaction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlatformID identifies the platform a transaction was ingested from
type PlatformID string

const (
	PlatformCartPanda PlatformID = "cartpanda"
	PlatformYampi     PlatformID = "yampi"
	PlatformKiwify    PlatformID = "kiwify"
)

// IsValid returns true if the platform is supported
func (p PlatformID) IsValid() bool {
	switch p {
	case PlatformCartPanda, PlatformYampi, PlatformKiwify:
		return true
	default:
		return false
	}
}

func (p PlatformID) String() string {
	return string(p)
}

// ParsePlatformID normalizes user input such as URL path segments.
func ParsePlatformID(s string) (PlatformID, bool) {
	p := PlatformID(strings.ToLower(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// Status is the reduced projection of every platform's native order status
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCompleted, StatusPending, StatusFailed:
		return true
	default:
		return false
	}
}

// Customer holds whatever buyer details the platform exposes. Remote APIs
// vary in completeness, so every field is optional.
type Customer struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Document *string `json:"document"`
}

// Product is the first line item of the order.
type Product struct {
	ID       *string          `json:"id"`
	Name     *string          `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Quantity *int             `json:"quantity"`
}

// Transaction is the canonical, platform-independent order record.
type Transaction struct {
	ID            string          `json:"id"`
	PlatformID    PlatformID      `json:"platformId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        Status          `json:"status"`
	Customer      Customer        `json:"customer"`
	Product       *Product        `json:"product"`
	PaymentMethod *string         `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Metadata      map[string]any  `json:"metadata"`
}

// NewID builds the idempotency key for a remote order.
func NewID(platform PlatformID, remoteID string) string {
	return string(platform) + ":" + strings.TrimSpace(remoteID)
}

// SplitID is the inverse of NewID.
func SplitID(id string) (PlatformID, string, bool) {
	platform, remoteID, ok := strings.Cut(id, ":")
	if !ok || remoteID == "" {
		return "", "", false
	}
	return PlatformID(platform), remoteID, true
}

// IsNewerThan reports whether t carries a strictly later remote update
// than other.
func (t *Transaction) IsNewerThan(other *Transaction) bool {
	if other == nil {
		return true
	}
	return t.UpdatedAt.After(other.UpdatedAt)
}

// AppliesOver reports whether t may replace stored. A record without a
// remote updated_at carries no ordering information and always applies;
// a dated one applies unless stored is strictly newer.
func (t *Transaction) AppliesOver(stored *Transaction) bool {
	if stored == nil || t.UpdatedAt.IsZero() {
		return true
	}
	return !stored.IsNewerThan(t)
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func IntPtr(i int) *int {
	return &i
}
