package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agroshakti/agroshakti-backend/internal/advisory"
	"github.com/agroshakti/agroshakti-backend/internal/auth"
	"github.com/agroshakti/agroshakti-backend/internal/db/models"
	"github.com/agroshakti/agroshakti-backend/internal/history"
	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/orchestrator"
	"github.com/agroshakti/agroshakti-backend/internal/translate"
	"github.com/agroshakti/agroshakti-backend/internal/util"
)

// ChatResolver is satisfied by *orchestrator.Orchestrator.
type ChatResolver interface {
	Resolve(ctx context.Context, prompt, sessionID string) orchestrator.Result
}

// CureAdvisor is satisfied by *advisory.Synthesizer.
type CureAdvisor interface {
	Recommend(ctx context.Context, d advisory.Detection) advisory.Advice
}

type chatbotRequest struct {
	Message         string `json:"message"`
	SessionID       string `json:"session_id"`
	Language        string `json:"language"`
	OriginalMessage string `json:"original_message"`
}

type chatbotData struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	Degraded  bool   `json:"degraded"`
}

// ChatbotHandler answers a farmer's (already English) question and
// translates the answer back when a language is given.
func ChatbotHandler(resolver ChatResolver, tr translate.Translator, recorder history.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatbotRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "Message is required")
			return
		}

		sessionID := strings.TrimSpace(req.SessionID)
		if len(sessionID) > models.MaxSessionIDLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("session_id must be at most %d characters", models.MaxSessionIDLength))
			return
		}

		ctx := r.Context()
		userID := currentUserID(ctx)
		if sessionID == "" {
			sessionID = fmt.Sprintf("session_%s_%d", userID, time.Now().UnixMilli())
		}

		res := resolver.Resolve(ctx, req.Message, sessionID)
		answer := translate.OrKeep(ctx, tr, res.Text, req.Language)

		asked := req.OriginalMessage
		if strings.TrimSpace(asked) == "" {
			asked = req.Message
		}
		record(ctx, recorder, history.Record{
			SessionID:    sessionID,
			UserID:       userID,
			RequestText:  asked,
			ResponseText: answer,
			Category:     models.HookChatbot,
			Provider:     res.ProviderUsed,
			Degraded:     res.Degraded,
		})

		writeData(w, chatbotData{
			Response:  answer,
			SessionID: sessionID,
			Provider:  res.ProviderUsed,
			Degraded:  res.Degraded,
		})
	}
}

type diseaseCureRequest struct {
	DiseaseName string   `json:"disease_name"`
	Confidence  *float64 `json:"confidence"`
	ImageURL    string   `json:"image_url"`
}

type diseaseCureData struct {
	CureRecommendation string `json:"cure_recommendation"`
	Provider           string `json:"provider"`
	Degraded           bool   `json:"degraded"`
}

// DiseaseCureHandler turns a vision-model detection into treatment advice.
func DiseaseCureHandler(advisor CureAdvisor, recorder history.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req diseaseCureRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
			writeError(w, http.StatusBadRequest, "Confidence must be between 0 and 1")
			return
		}

		ctx := r.Context()
		advice := advisor.Recommend(ctx, advisory.Detection{
			DiseaseName: req.DiseaseName,
			Confidence:  req.Confidence,
			ImageURL:    req.ImageURL,
		})

		record(ctx, recorder, history.Record{
			SessionID:    advice.SessionID,
			UserID:       currentUserID(ctx),
			RequestText:  diseaseLabel(req.DiseaseName),
			ResponseText: advice.CureRecommendation,
			Category:     models.HookDisease,
			Provider:     advice.ProviderUsed,
			Degraded:     advice.Degraded,
		})

		writeData(w, diseaseCureData{
			CureRecommendation: advice.CureRecommendation,
			Provider:           advice.ProviderUsed,
			Degraded:           advice.Degraded,
		})
	}
}

// record persists an exchange. A failure is logged and never reaches the
// client.
func record(ctx context.Context, recorder history.Recorder, rec history.Record) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		logging.FromContext(ctx).Error().
			Str("session_id", rec.SessionID).
			Str("category", rec.Category).
			Str("request", util.TruncateLog(rec.RequestText, 120)).
			Err(err).
			Msg("Failed to record history")
	}
}

func currentUserID(ctx context.Context) string {
	if id, ok := auth.IdentityFromContext(ctx); ok && id.UserID != "" {
		return id.UserID
	}
	return auth.AnonymousUserID
}

func diseaseLabel(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "Unknown"
	}
	return name
}
