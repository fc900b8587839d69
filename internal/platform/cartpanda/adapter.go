// Package cartpanda integrates the CartPanda checkout platform.
package cartpanda

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
)

var statusTable = platform.StatusTable{
	"approved":        transaction.StatusCompleted,
	"paid":            transaction.StatusCompleted,
	"completed":       transaction.StatusCompleted,
	"pending":         transaction.StatusPending,
	"waiting_payment": transaction.StatusPending,
	"processing":      transaction.StatusPending,
	"cancelled":       transaction.StatusFailed,
	"refunded":        transaction.StatusFailed,
	"expired":         transaction.StatusFailed,
}

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

// New validates cfg and builds an adapter writing to store.
func New(cfg *Config, store transaction.Store, opts ...platform.Option) (*Adapter, error) {
	if cfg == nil {
		return nil, ErrConfigMissingAPIKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := platform.NewOptions(opts...)
	logger := o.Logger.With().Str("platform", string(transaction.PlatformCartPanda)).Logger()

	return &Adapter{
		cfg: *cfg,
		client: platform.NewClient(platform.ClientConfig{
			Platform: transaction.PlatformCartPanda,
			BaseURL:  cfg.baseURL(),
			Headers:  cfg.headers(),
		}, o),
		store:    store,
		statuses: platform.NewStatusMapper(transaction.PlatformCartPanda, statusTable, logger, o.Metrics),
		logger:   logger,
	}, nil
}

func (a *Adapter) Platform() transaction.PlatformID {
	return transaction.PlatformCartPanda
}

func (a *Adapter) FetchOrders(ctx context.Context) ([]platform.RemoteOrder, error) {
	var resp ordersResponse
	if err := a.client.Get(ctx, "list orders", "/v1/orders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (a *Adapter) MapStatus(native string) transaction.Status {
	return a.statuses.Map(native)
}

func (a *Adapter) MapOrderToTransaction(raw platform.RemoteOrder) (*transaction.Transaction, error) {
	var o order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, &domainerrors.MappingError{Platform: string(a.Platform()), Field: "order", Err: err}
	}
	if o.ID == "" {
		return nil, &domainerrors.MappingError{Platform: string(a.Platform()), OrderRef: o.OrderNumber.String(), Field: "id"}
	}

	orderID := o.OrderNumber.String()
	if orderID == "" {
		orderID = o.ID.String()
	}
	currency := strings.ToUpper(o.Currency.String())
	if currency == "" {
		currency = a.cfg.currency()
	}

	cust, _ := platform.DecodeLenient[customer](o.Customer)

	return &transaction.Transaction{
		ID:         transaction.NewID(a.Platform(), o.ID.String()),
		PlatformID: a.Platform(),
		OrderID:    orderID,
		Amount:     o.TotalAmount.OrZero(),
		Currency:   currency,
		Status:     a.MapStatus(o.Status.String()),
		Customer: transaction.Customer{
			Name:     cust.Name.Ptr(),
			Email:    cust.Email.Ptr(),
			Phone:    cust.Phone.Ptr(),
			Document: cust.Document.Ptr(),
		},
		Product:       firstProduct(o.Items),
		PaymentMethod: o.PaymentMethod.Ptr(),
		CreatedAt:     o.CreatedAt.Time,
		UpdatedAt:     o.UpdatedAt.Time,
		Metadata:      buildMetadata(&o, cust),
	}, nil
}

func firstProduct(items json.RawMessage) *transaction.Product {
	it, ok := platform.DecodeLenient[item](platform.FirstElement(items))
	if !ok {
		return nil
	}
	return &transaction.Product{
		ID:       it.ProductID.Ptr(),
		Name:     it.Name.Ptr(),
		Price:    it.Price.Ptr(),
		Quantity: it.Quantity.Ptr(),
	}
}

func buildMetadata(o *order, cust customer) map[string]any {
	meta := platform.Metadata{}
	meta.Set("items", platform.RawValue(o.Items))

	if pd, ok := platform.DecodeLenient[paymentDetails](o.PaymentDetails); ok {
		block := platform.Metadata{}
		block.Set("installments", pd.Installments)
		block.Set("installmentAmount", pd.InstallmentAmount)
		block.Set("paymentLink", pd.PaymentLink)
		block.Set("expiresAt", pd.ExpiresAt)
		meta.Set("payment", block)
	}

	address := platform.Metadata{}
	address.Set("address", platform.RawValue(cust.Address))
	address.Set("city", cust.City)
	address.Set("state", cust.State)
	address.Set("zipcode", cust.Zipcode)
	meta.Set("customer", address)

	if af, ok := platform.DecodeLenient[affiliate](o.Affiliate); ok {
		block := platform.Metadata{}
		block.Set("id", af.ID)
		block.Set("name", af.Name)
		block.Set("commission", af.Commission)
		meta.Set("affiliate", block)
	}

	if fn, ok := platform.DecodeLenient[funnel](o.Funnel); ok {
		block := platform.Metadata{}
		block.Set("id", fn.ID)
		block.Set("name", fn.Name)
		block.Set("step", fn.Step)
		meta.Set("funnel", block)
	}

	utm := platform.Metadata{}
	utm.Set("source", o.UTMSource)
	utm.Set("medium", o.UTMMedium)
	utm.Set("campaign", o.UTMCampaign)
	utm.Set("content", o.UTMContent)
	utm.Set("term", o.UTMTerm)
	meta.Set("utm", utm)

	return meta.Block()
}

func (a *Adapter) SyncTransactions(ctx context.Context) (*platform.SyncReport, error) {
	return platform.Sync(ctx, a, a.store, a.logger)
}

func (a *Adapter) CreateWebhook(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return domainerrors.NewValidationError("url", "is required")
	}
	return a.client.Post(ctx, "create webhook", "/v1/webhooks", createWebhookRequest{
		URL:    url,
		Events: platform.LifecycleEvents,
		Active: true,
	}, nil)
}

func (a *Adapter) DecodeWebhook(payload []byte) (platform.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return platform.WebhookEvent{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return platform.WebhookEvent{}, fmt.Errorf("%w: missing event", domainerrors.ErrInvalidPayload)
	}
	return platform.WebhookEvent{Event: env.Event.String(), Data: env.Data}, nil
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
	return platform.VerifyHMACSHA256(a.cfg.WebhookSecret, payload, headers.Get(SignatureHeader), platform.EncodingBase64)
}
