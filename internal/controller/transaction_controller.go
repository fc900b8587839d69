package controller

import (
	"net/http"
	"strconv"

	domainErrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/go-chi/chi/v5"
)

// TransactionController serves the read-only transaction API.
type TransactionController struct {
	reader transaction.Reader
}

func NewTransactionController(reader transaction.Reader) *TransactionController {
	return &TransactionController{reader: reader}
}

// List handles GET /api/v1/transactions
func (h *TransactionController) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := ListTransactionsQuery{
		Platform:  q.Get("platform"),
		Status:    q.Get("status"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}

	var err error
	if query.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		writeError(w, err)
		return
	}
	if query.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(query); err != nil {
		writeError(w, err)
		return
	}

	txs, err := h.reader.List(r.Context(), query.filter())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListTransactionsResponse{
		Transactions: txs,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
}

// Get handles GET /api/v1/transactions/{id}, where id is "<platform>:<order id>".
func (h *TransactionController) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, ok := transaction.SplitID(id); !ok {
		writeError(w, domainErrors.NewValidationError("id", "must be <platform>:<order id>"))
		return
	}

	tx, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func intParam(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domainErrors.NewValidationError(field, "must be an integer")
	}
	return n, nil
}
