package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/models"
)

// handleListReceipts returns a filtered, paginated receipt listing together
// with an aggregate summary over the same filter.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := &models.ReceiptFilter{
		Status:   models.ReceiptStatus(q.Get("status")),
		Merchant: q.Get("merchant"),
	}

	if address := q.Get("smart_account"); address != "" {
		user, err := s.resolveUserByAddress(r, address)
		if err != nil {
			respondError(w, err)
			return
		}
		filter.UserID = user.ID
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, errors.NewInvalidInput("limit must be an integer"))
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, errors.NewInvalidInput("offset must be an integer"))
			return
		}
		filter.Offset = offset
	}

	var err error
	if filter.FromDate, err = parseDateParam(q.Get("from_date")); err != nil {
		respondError(w, errors.NewInvalidInput("from_date must be an RFC 3339 timestamp or YYYY-MM-DD date"))
		return
	}
	if filter.ToDate, err = parseDateParam(q.Get("to_date")); err != nil {
		respondError(w, errors.NewInvalidInput("to_date must be an RFC 3339 timestamp or YYYY-MM-DD date"))
		return
	}

	page, err := s.receiptService.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	summary, err := s.receiptService.Summarize(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	receipts := page.Receipts
	if receipts == nil {
		receipts = []*models.Receipt{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"pagination": map[string]interface{}{
			"limit":    page.Limit,
			"offset":   page.Offset,
			"total":    page.Total,
			"has_more": page.HasMore,
		},
		"summary": summary,
	})
}

// parseDateParam accepts RFC 3339 timestamps or bare dates
func parseDateParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
