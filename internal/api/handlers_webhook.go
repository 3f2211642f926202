package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/service"
)

// maxWebhookBodySize bounds webhook payloads
const maxWebhookBodySize = 1 << 20

// webhookSignatureHeader carries the provider's HMAC over the raw body
const webhookSignatureHeader = "x-webhook-signature"

// handleCardWebhook settles one card authorization event. Every terminal
// outcome, including duplicates and recorded failures, is acknowledged with
// 200 so the provider stops redelivering.
func (s *Server) handleCardWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		respondError(w, errors.NewInvalidInput("failed to read request body"))
		return
	}

	if !s.verifyWebhookSignature(body, r.Header.Get(webhookSignatureHeader)) {
		respondError(w, &errors.Error{
			Category:   errors.CategoryAuth,
			StatusCode: http.StatusUnauthorized,
			Code:       errors.CodeSignatureMismatch,
			Message:    "webhook signature verification failed",
		})
		return
	}

	var event service.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondError(w, errors.NewInvalidInput("request body must be valid JSON"))
		return
	}

	outcome, err := s.settlementService.ProcessEvent(r.Context(), &event)
	if err != nil {
		respondError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"receipt":   outcome.Receipt,
		"duplicate": outcome.Duplicate,
	})
}

// verifyWebhookSignature checks the HMAC-SHA256 of the raw body against the
// provider's signature header. With no secret configured the check is
// skipped, which is only acceptable in development.
func (s *Server) verifyWebhookSignature(body []byte, signature string) bool {
	if s.config.WebhookSecret == "" {
		logging.Warn("webhook signature verification disabled: no secret configured")
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.config.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}
