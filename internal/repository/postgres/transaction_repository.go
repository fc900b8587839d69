package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"status":     "status",
	"order_id":   "order_id",
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

const selectTransaction = `SELECT id, platform_id, order_id, amount::text, currency, status,
	customer_name, customer_email, customer_phone, customer_document,
	product_id, product_name, product_price::text, product_quantity,
	payment_method, metadata, created_at, updated_at
	FROM transactions`

// upsertTransaction only overwrites a row whose updated_at is not newer
// than the incoming one, so a late poll result cannot regress a fresher
// webhook write. An incoming row without a remote updated_at (zero time)
// has no ordering information and always applies, keeping the stored
// timestamp.
const upsertTransaction = `INSERT INTO transactions
	(id, platform_id, order_id, amount, currency, status,
	 customer_name, customer_email, customer_phone, customer_document,
	 product_id, product_name, product_price, product_quantity,
	 payment_method, metadata, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	ON CONFLICT (id) DO UPDATE SET
	  order_id = EXCLUDED.order_id,
	  amount = EXCLUDED.amount,
	  currency = EXCLUDED.currency,
	  status = EXCLUDED.status,
	  customer_name = EXCLUDED.customer_name,
	  customer_email = EXCLUDED.customer_email,
	  customer_phone = EXCLUDED.customer_phone,
	  customer_document = EXCLUDED.customer_document,
	  product_id = EXCLUDED.product_id,
	  product_name = EXCLUDED.product_name,
	  product_price = EXCLUDED.product_price,
	  product_quantity = EXCLUDED.product_quantity,
	  payment_method = EXCLUDED.payment_method,
	  metadata = EXCLUDED.metadata,
	  created_at = EXCLUDED.created_at,
	  updated_at = GREATEST(transactions.updated_at, EXCLUDED.updated_at),
	  ingested_at = NOW()
	WHERE EXCLUDED.updated_at = '0001-01-01 00:00:00+00'::timestamptz
	   OR transactions.updated_at <= EXCLUDED.updated_at`

var _ transaction.Repository = (*TransactionRepository)(nil)

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool    *pgxpool.Pool
	logger  zerolog.Logger
	metrics *observability.Metrics
}

type RepositoryOption func(*TransactionRepository)

// WithRepositoryLogger logs writes skipped by the stale-write guard.
func WithRepositoryLogger(l zerolog.Logger) RepositoryOption {
	return func(r *TransactionRepository) { r.logger = l }
}

// WithRepositoryMetrics counts writes skipped by the stale-write guard.
func WithRepositoryMetrics(m *observability.Metrics) RepositoryOption {
	return func(r *TransactionRepository) { r.metrics = m }
}

func NewTransactionRepository(pool *pgxpool.Pool, opts ...RepositoryOption) *TransactionRepository {
	r := &TransactionRepository{pool: pool, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *TransactionRepository) Upsert(ctx context.Context, tx *transaction.Transaction) error {
	var metadata []byte
	if len(tx.Metadata) > 0 {
		b, err := json.Marshal(tx.Metadata)
		if err != nil {
			return &domainerrors.PersistenceError{TransactionID: tx.ID, Attempts: 1, Err: fmt.Errorf("marshal metadata: %w", err)}
		}
		metadata = b
	}

	var p transaction.Product
	if tx.Product != nil {
		p = *tx.Product
	}

	tag, err := r.pool.Exec(ctx, upsertTransaction,
		tx.ID, string(tx.PlatformID), tx.OrderID, numericParam(tx.Amount), tx.Currency, string(tx.Status),
		tx.Customer.Name, tx.Customer.Email, tx.Customer.Phone, tx.Customer.Document,
		p.ID, p.Name, numericParamPtr(p.Price), p.Quantity,
		tx.PaymentMethod, metadata, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return &domainerrors.PersistenceError{TransactionID: tx.ID, Attempts: 1, Err: fmt.Errorf("upsert transaction: %w", err)}
	}
	if tag.RowsAffected() == 0 {
		r.staleWrite(tx)
	}
	return nil
}

func (r *TransactionRepository) staleWrite(tx *transaction.Transaction) {
	if r.metrics != nil {
		r.metrics.StaleWritesSkipped.WithLabelValues(string(tx.PlatformID)).Inc()
	}
	r.logger.Warn().
		Str("transaction_id", tx.ID).
		Str("platform", string(tx.PlatformID)).
		Str("status", string(tx.Status)).
		Time("updated_at", tx.UpdatedAt).
		Msg("Skipped write older than stored transaction")
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx, selectTransaction+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// List lists transactions with optional filters.
func (r *TransactionRepository) List(ctx context.Context, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := selectTransaction + ` WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.PlatformID != nil {
		query += fmt.Sprintf(" AND platform_id = $%d", argIdx)
		args = append(args, string(*f.PlatformID))
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}

	sortCol, ok := allowedSortColumns[f.SortBy]
	if !ok {
		sortCol = "updated_at"
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", sortCol, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []*transaction.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row scanner) (*transaction.Transaction, error) {
	var (
		tx          transaction.Transaction
		platformID  string
		status      string
		amount      string
		price       *string
		productID   *string
		productName *string
		quantity    *int32
		metadata    []byte
	)
	err := row.Scan(
		&tx.ID, &platformID, &tx.OrderID, &amount, &tx.Currency, &status,
		&tx.Customer.Name, &tx.Customer.Email, &tx.Customer.Phone, &tx.Customer.Document,
		&productID, &productName, &price, &quantity,
		&tx.PaymentMethod, &metadata, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.PlatformID = transaction.PlatformID(platformID)
	tx.Status = transaction.Status(status)
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	if tx.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}

	if productID != nil || productName != nil || price != nil || quantity != nil {
		p := &transaction.Product{ID: productID, Name: productName}
		if p.Price, err = parseNumericPtr(price); err != nil {
			return nil, err
		}
		if quantity != nil {
			p.Quantity = transaction.IntPtr(int(*quantity))
		}
		tx.Product = p
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &tx, nil
}
