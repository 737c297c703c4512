package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agroshakti/agroshakti-backend/internal/history"
	"github.com/agroshakti/agroshakti-backend/internal/logging"
)

// HistoryReader is the read and purge side of the history store.
type HistoryReader interface {
	List(ctx context.Context, userID, sessionID string, page, limit int) (history.Page, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// ChatHistoryHandler pages through the caller's chat history.
func ChatHistoryHandler(store HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", history.DefaultPageSize)
		sessionID := r.URL.Query().Get("session_id")

		result, err := store.List(r.Context(), currentUserID(r.Context()), sessionID, page, limit)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Msg("Failed to list chat history")
			writeError(w, http.StatusInternalServerError, "Failed to fetch chat history")
			return
		}
		writeData(w, result)
	}
}

// DeleteUserHistoryHandler purges every history record of a user.
func DeleteUserHistoryHandler(store HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(chi.URLParam(r, "id"))
		if userID == "" {
			writeError(w, http.StatusBadRequest, "User id is required")
			return
		}
		deleted, err := store.DeleteByUser(r.Context(), userID)
		if err != nil {
			logging.FromContext(r.Context()).Error().Str("user_id", userID).Err(err).Msg("Failed to delete history")
			writeError(w, http.StatusInternalServerError, "Failed to delete history")
			return
		}
		logging.FromContext(r.Context()).Info().Str("user_id", userID).Int64("deleted", deleted).Msg("User history purged")
		writeData(w, map[string]any{"user_id": userID, "deleted": deleted})
	}
}
