// Package yampi integrates the Yampi storefront API.
package yampi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/rs/zerolog"
)

var statusTable = platform.StatusTable{
	"paid":              transaction.StatusCompleted,
	"invoiced":          transaction.StatusCompleted,
	"handling_products": transaction.StatusCompleted,
	"shipped":           transaction.StatusCompleted,
	"delivered":         transaction.StatusCompleted,
	"waiting_payment":   transaction.StatusPending,
	"on_hold":           transaction.StatusPending,
	"authorized":        transaction.StatusPending,
	"pending":           transaction.StatusPending,
	"cancelled":         transaction.StatusFailed,
	"refused":           transaction.StatusFailed,
	"refunded":          transaction.StatusFailed,
}

// webhookEvents are the Yampi names covering the order lifecycle; status
// changes such as cancellation and refund arrive as order.status.updated.
var webhookEvents = []string{
	"order.created",
	"order.paid",
	"order.status.updated",
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

func New(cfg *Config, store transaction.Store, opts ...platform.Option) (*Adapter, error) {
	if cfg == nil {
		return nil, ErrConfigMissingAlias
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := platform.NewOptions(opts...)
	logger := o.Logger.With().Str("platform", string(transaction.PlatformYampi)).Logger()

	return &Adapter{
		cfg: *cfg,
		client: platform.NewClient(platform.ClientConfig{
			Platform: transaction.PlatformYampi,
			BaseURL:  strings.TrimRight(cfg.baseURL(), "/") + "/v1/" + url.PathEscape(cfg.Alias),
			Headers:  cfg.headers(),
		}, o),
		store:    store,
		statuses: platform.NewStatusMapper(transaction.PlatformYampi, statusTable, logger, o.Metrics),
		logger:   logger,
	}, nil
}

func (a *Adapter) Platform() transaction.PlatformID {
	return transaction.PlatformYampi
}

// FetchOrders follows the paginated listing until the last page or MaxPages.
func (a *Adapter) FetchOrders(ctx context.Context) ([]platform.RemoteOrder, error) {
	var orders []platform.RemoteOrder
	for page := 1; page <= a.cfg.maxPages(); page++ {
		var resp ordersResponse
		query := url.Values{"page": {strconv.Itoa(page)}}
		if err := a.client.Get(ctx, "list orders", "/orders", query, &resp); err != nil {
			return nil, err
		}
		orders = append(orders, resp.Data...)

		p := resp.Meta.Pagination
		if len(resp.Data) == 0 || !p.TotalPages.Valid || page >= p.TotalPages.Int {
			return orders, nil
		}
	}
	a.logger.Warn().Int("max_pages", a.cfg.maxPages()).Msg("Order listing truncated at page limit")
	return orders, nil
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
		return nil, &domainerrors.MappingError{Platform: string(a.Platform()), OrderRef: o.Number.String(), Field: "id"}
	}

	orderID := o.Number.String()
	if orderID == "" {
		orderID = o.ID.String()
	}
	currency := strings.ToUpper(o.Currency.String())
	if currency == "" {
		currency = a.cfg.currency()
	}

	cust, _ := platform.DecodeLenient[customer](unwrapData(o.Customer))
	document := cust.CPF
	if document == "" {
		document = cust.CNPJ
	}
	var phoneNumber platform.FlexString
	if ph, ok := platform.DecodeLenient[phone](unwrapData(cust.Phone)); ok {
		phoneNumber = ph.FullNumber
	} else if s, ok := platform.DecodeLenient[platform.FlexString](cust.Phone); ok {
		phoneNumber = s
	}

	items := unwrapData(o.Items)
	pay, _ := platform.DecodeLenient[payment](platform.FirstElement(unwrapData(o.Payments)))
	method := pay.Method
	if method == "" {
		method = pay.Alias
	}

	meta := platform.Metadata{}
	meta.Set("items", platform.RawValue(items))
	paymentBlock := platform.Metadata{}
	paymentBlock.Set("installments", pay.Installments)
	meta.Set("payment", paymentBlock)
	meta.Set("shippingAddress", platform.RawValue(unwrapData(o.Shipping)))
	utm := platform.Metadata{}
	utm.Set("source", o.UTMSource)
	utm.Set("medium", o.UTMMedium)
	utm.Set("campaign", o.UTMCampaign)
	utm.Set("content", o.UTMContent)
	utm.Set("term", o.UTMTerm)
	meta.Set("utm", utm)

	return &transaction.Transaction{
		ID:         transaction.NewID(a.Platform(), o.ID.String()),
		PlatformID: a.Platform(),
		OrderID:    orderID,
		Amount:     o.ValueTotal.OrZero(),
		Currency:   currency,
		Status:     a.MapStatus(nativeStatus(o.Status)),
		Customer: transaction.Customer{
			Name:     cust.Name.Ptr(),
			Email:    cust.Email.Ptr(),
			Phone:    phoneNumber.Ptr(),
			Document: document.Ptr(),
		},
		Product:       firstProduct(items),
		PaymentMethod: method.Ptr(),
		CreatedAt:     parseDate(o.CreatedAt).Time,
		UpdatedAt:     parseDate(o.UpdatedAt).Time,
		Metadata:      meta.Block(),
	}, nil
}

// nativeStatus accepts "paid", {"alias":"paid"} or {"data":{"alias":"paid"}}.
func nativeStatus(raw json.RawMessage) string {
	if s, ok := platform.DecodeLenient[platform.FlexString](raw); ok && s != "" {
		return s.String()
	}
	st, _ := platform.DecodeLenient[statusBlock](unwrapData(raw))
	return st.Alias.String()
}

// parseDate accepts a bare timestamp or the {"date": ...} block.
func parseDate(raw json.RawMessage) platform.FlexTime {
	if d, ok := platform.DecodeLenient[dateBlock](raw); ok && d.Date != "" {
		return platform.FlexTime{Time: platform.ParseTime(d.Date.String())}
	}
	t, _ := platform.DecodeLenient[platform.FlexTime](raw)
	return t
}

func firstProduct(items json.RawMessage) *transaction.Product {
	it, ok := platform.DecodeLenient[item](platform.FirstElement(items))
	if !ok {
		return nil
	}
	id := it.ProductID
	if id == "" {
		id = it.SKU
	}
	return &transaction.Product{
		ID:       id.Ptr(),
		Name:     it.Name.Ptr(),
		Price:    it.Price.Ptr(),
		Quantity: it.Quantity.Ptr(),
	}
}

// unwrapData strips the {"data": ...} wrapper when present.
func unwrapData(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return raw
	}
	if inner, ok := wrapper["data"]; ok && len(wrapper) == 1 {
		return inner
	}
	return raw
}

func (a *Adapter) SyncTransactions(ctx context.Context) (*platform.SyncReport, error) {
	return platform.Sync(ctx, a, a.store, a.logger)
}

func (a *Adapter) CreateWebhook(ctx context.Context, callbackURL string) error {
	if strings.TrimSpace(callbackURL) == "" {
		return domainerrors.NewValidationError("url", "is required")
	}
	return a.client.Post(ctx, "create webhook", "/webhooks", createWebhookRequest{
		Name:   "platformsync",
		URL:    callbackURL,
		Events: webhookEvents,
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
	return platform.WebhookEvent{Event: env.Event.String(), Data: unwrapData(env.Resource)}, nil
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
