package service

import (
	"context"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/models"
)

// ReceiptQueryStore is the read side of receipt persistence
type ReceiptQueryStore interface {
	List(ctx context.Context, filter *models.ReceiptFilter) ([]*models.Receipt, int64, error)
	Summary(ctx context.Context, filter *models.ReceiptFilter) (*models.ReceiptSummary, error)
}

// ReceiptPage is a filtered, paginated slice of receipts
type ReceiptPage struct {
	Receipts []*models.Receipt `json:"receipts"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
	HasMore  bool              `json:"has_more"`
}

// maxReceiptPageSize caps a single page of receipt results
const maxReceiptPageSize = 100

// ReceiptService exposes read access to settled receipts
type ReceiptService struct {
	receipts ReceiptQueryStore
}

// NewReceiptService creates a receipt service
func NewReceiptService(receipts ReceiptQueryStore) *ReceiptService {
	return &ReceiptService{receipts: receipts}
}

// List returns a page of receipts matching the filter
func (s *ReceiptService) List(ctx context.Context, filter *models.ReceiptFilter) (*ReceiptPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > maxReceiptPageSize {
		filter.Limit = maxReceiptPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	receipts, total, err := s.receipts.List(ctx, filter)
	if err != nil {
		return nil, errors.NewInternal("failed to list receipts", err)
	}

	return &ReceiptPage{
		Receipts: receipts,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
		HasMore:  int64(filter.Offset+len(receipts)) < total,
	}, nil
}

// Summarize aggregates receipts matching the filter
func (s *ReceiptService) Summarize(ctx context.Context, filter *models.ReceiptFilter) (*models.ReceiptSummary, error) {
	summary, err := s.receipts.Summary(ctx, filter)
	if err != nil {
		return nil, errors.NewInternal("failed to summarize receipts", err)
	}
	return summary, nil
}
