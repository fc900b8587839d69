// Package kiwify integrates the Kiwify digital products API.
package kiwify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var statusTable = platform.StatusTable{
	"paid":            transaction.StatusCompleted,
	"approved":        transaction.StatusCompleted,
	"completed":       transaction.StatusCompleted,
	"waiting_payment": transaction.StatusPending,
	"pending":         transaction.StatusPending,
	"processing":      transaction.StatusPending,
	"refused":         transaction.StatusFailed,
	"refunded":        transaction.StatusFailed,
	"chargedback":     transaction.StatusFailed,
	"canceled":        transaction.StatusFailed,
}

// webhookTriggers are the native trigger names covering the order lifecycle.
var webhookTriggers = []string{
	"order_created",
	"order_approved",
	"order_refunded",
	"order_chargedback",
	"order_canceled",
	"order_expired",
}

// eventNames translates native triggers to the shared order.* names.
var eventNames = map[string]string{
	"order_created":     "order.created",
	"order_approved":    "order.paid",
	"order_refunded":    "order.refunded",
	"order_chargedback": "order.refunded",
	"order_canceled":    "order.cancelled",
	"order_expired":     "order.expired",
}

var hundred = decimal.NewFromInt(100)

var (
	_ platform.Adapter         = (*Adapter)(nil)
	_ platform.WebhookVerifier = (*Adapter)(nil)
	_ platform.WebhookDecoder  = (*Adapter)(nil)
)

type Adapter struct {
	cfg      Config
	client   *platform.Client
	store    transaction.Store
	statuses *platform.StatusMapper
	logger   zerolog.Logger
}

func New(cfg *Config, store transaction.Store, opts ...platform.Option) (*Adapter, error) {
	if cfg == nil {
		return nil, ErrConfigMissingToken
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := platform.NewOptions(opts...)
	logger := o.Logger.With().Str("platform", string(transaction.PlatformKiwify)).Logger()

	return &Adapter{
		cfg: *cfg,
		client: platform.NewClient(platform.ClientConfig{
			Platform: transaction.PlatformKiwify,
			BaseURL:  cfg.baseURL(),
			Headers:  cfg.headers(),
		}, o),
		store:    store,
		statuses: platform.NewStatusMapper(transaction.PlatformKiwify, statusTable, logger, o.Metrics),
		logger:   logger,
	}, nil
}

func (a *Adapter) Platform() transaction.PlatformID {
	return transaction.PlatformKiwify
}

func (a *Adapter) FetchOrders(ctx context.Context) ([]platform.RemoteOrder, error) {
	var resp ordersResponse
	if err := a.client.Get(ctx, "list orders", "/v1/orders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (a *Adapter) MapStatus(native string) transaction.Status {
	return a.statuses.Map(native)
}

func (a *Adapter) MapOrderToTransaction(raw platform.RemoteOrder) (*transaction.Transaction, error) {
	var o order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, &domainerrors.MappingError{Platform: string(a.Platform()), Field: "order", Err: err}
	}
	remoteID := o.OrderID
	if remoteID == "" {
		remoteID = o.ID
	}
	if remoteID == "" {
		return nil, &domainerrors.MappingError{Platform: string(a.Platform()), OrderRef: o.Reference.String(), Field: "order_id"}
	}

	orderID := o.Reference.String()
	if orderID == "" {
		orderID = remoteID.String()
	}
	currency := strings.ToUpper(o.Currency.String())
	if currency == "" {
		currency = a.cfg.currency()
	}

	cust, _ := platform.DecodeLenient[customer](o.Customer)
	document := cust.CPF
	if document == "" {
		document = cust.CNPJ
	}

	// A Kiwify order sells exactly one product, so the charge is its unit price.
	var product *transaction.Product
	if o.ProductID != "" || o.ProductName != "" {
		product = &transaction.Product{
			ID:       o.ProductID.Ptr(),
			Name:     o.ProductName.Ptr(),
			Quantity: transaction.IntPtr(1),
		}
		if o.ChargeAmount.Valid {
			price := fromCents(o.ChargeAmount)
			product.Price = &price
		}
	}

	meta := platform.Metadata{}
	paymentBlock := platform.Metadata{}
	paymentBlock.Set("installments", o.Installments)
	paymentBlock.Set("approvedAt", o.ApprovedDate)
	meta.Set("payment", paymentBlock)
	meta.Set("subscription", platform.RawValue(o.Subscription))
	tr, _ := platform.DecodeLenient[tracking](o.Tracking)
	utm := platform.Metadata{}
	utm.Set("source", tr.Source)
	utm.Set("medium", tr.Medium)
	utm.Set("campaign", tr.Campaign)
	utm.Set("content", tr.Content)
	utm.Set("term", tr.Term)
	meta.Set("utm", utm)

	return &transaction.Transaction{
		ID:         transaction.NewID(a.Platform(), remoteID.String()),
		PlatformID: a.Platform(),
		OrderID:    orderID,
		Amount:     fromCents(o.ChargeAmount),
		Currency:   currency,
		Status:     a.MapStatus(o.Status.String()),
		Customer: transaction.Customer{
			Name:     cust.FullName.Ptr(),
			Email:    cust.Email.Ptr(),
			Phone:    cust.Mobile.Ptr(),
			Document: document.Ptr(),
		},
		Product:       product,
		PaymentMethod: o.PaymentMethod.Ptr(),
		CreatedAt:     o.CreatedAt.Time,
		UpdatedAt:     o.UpdatedAt.Time,
		Metadata:      meta.Block(),
	}, nil
}

func fromCents(v platform.FlexDecimal) decimal.Decimal {
	return v.OrZero().Div(hundred)
}

func (a *Adapter) SyncTransactions(ctx context.Context) (*platform.SyncReport, error) {
	return platform.Sync(ctx, a, a.store, a.logger)
}

func (a *Adapter) CreateWebhook(ctx context.Context, callbackURL string) error {
	if strings.TrimSpace(callbackURL) == "" {
		return domainerrors.NewValidationError("url", "is required")
	}
	return a.client.Post(ctx, "create webhook", "/v1/webhooks", createWebhookRequest{
		Name:     "platformsync",
		URL:      callbackURL,
		Triggers: webhookTriggers,
	}, nil)
}

func (a *Adapter) DecodeWebhook(payload []byte) (platform.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return platform.WebhookEvent{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	if env.EventType == "" {
		return platform.WebhookEvent{}, fmt.Errorf("%w: missing webhook_event_type", domainerrors.ErrInvalidPayload)
	}
	return platform.WebhookEvent{Event: normalizeEvent(env.EventType.String()), Data: env.Order}, nil
}

// normalizeEvent returns unknown triggers unchanged so they are ignored downstream.
func normalizeEvent(native string) string {
	key := strings.ToLower(strings.TrimSpace(native))
	if name, ok := eventNames[key]; ok {
		return name
	}
	return native
}

func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte) error {
	ev, err := a.DecodeWebhook(payload)
	if err != nil {
		return err
	}
	return platform.HandleOrderWebhook(ctx, a, a.store, ev, a.logger)
}

func (a *Adapter) VerifyWebhook(payload []byte, headers http.Header) error {
	if a.cfg.WebhookSecret == "" {
		return nil
	}
	return platform.VerifyHMACSHA256(a.cfg.WebhookSecret, payload, headers.Get(SignatureHeader), platform.EncodingHex)
}
