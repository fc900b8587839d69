package platform

import (
	"strings"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// StatusTable maps lower-cased native statuses to canonical ones.
type StatusTable map[string]transaction.Status

// StatusMapper resolves native statuses through a StatusTable. Anything not
// in the table is reported as failed, counted and logged so a new success
// state introduced upstream gets noticed.
type StatusMapper struct {
	platform transaction.PlatformID
	table    StatusTable
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewStatusMapper(platform transaction.PlatformID, table StatusTable, logger zerolog.Logger, metrics *observability.Metrics) *StatusMapper {
	normalized := make(StatusTable, len(table))
	for k, v := range table {
		normalized[normalizeStatus(k)] = v
	}
	return &StatusMapper{platform: platform, table: normalized, logger: logger, metrics: metrics}
}

func (m *StatusMapper) Map(native string) transaction.Status {
	key := normalizeStatus(native)
	if status, ok := m.table[key]; ok {
		return status
	}

	label := key
	if label == "" {
		label = "<empty>"
	}
	if m.metrics != nil {
		m.metrics.UnknownStatusTotal.WithLabelValues(string(m.platform), label).Inc()
	}
	m.logger.Warn().
		Str("platform", string(m.platform)).
		Str("native_status", native).
		Msg("Unknown order status, treating as failed")
	return transaction.StatusFailed
}

// Known reports whether native is in the table.
func (m *StatusMapper) Known(native string) bool {
	_, ok := m.table[normalizeStatus(native)]
	return ok
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
