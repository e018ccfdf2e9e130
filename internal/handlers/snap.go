package handlers

import (
	"context"
	"net/http"

	"anon-social-backend/internal/middleware"
	"anon-social-backend/internal/models"
	"anon-social-backend/internal/services"
)

type snapSender interface {
	Send(ctx context.Context, senderID string, req services.SnapRequest) (*models.FanoutReport, error)
}

// SnapHandler handles snap broadcast requests
type SnapHandler struct {
	snaps snapSender
}

// NewSnapHandler creates a new snap handler
func NewSnapHandler(snaps snapSender) *SnapHandler {
	return &SnapHandler{snaps: snaps}
}

// SendSnap handles POST /api/v1/snaps. A partially delivered snap still
// answers 200; the report lists the failed recipients.
func (h *SnapHandler) SendSnap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.SnapRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.snaps.Send(ctx, middleware.GetUserID(ctx), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"report":  report,
		"partial": report.Partial(),
	})
}
