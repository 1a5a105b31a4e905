package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/habit"
	"github.com/dailygrain/server/internal/middleware"
	"github.com/dailygrain/server/internal/model"
	"github.com/dailygrain/server/internal/repo"
	"github.com/dailygrain/server/internal/stats"
)

// DashboardHandler serves the read-only dashboard API.
type DashboardHandler struct {
	habits repo.HabitStore
	svc    *habit.Service
	logger *zap.Logger
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(habits repo.HabitStore, svc *habit.Service, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{habits: habits, svc: svc, logger: logger}
}

type completionResponse struct {
	CompletedDays int     `json:"completed_days"`
	TotalDays     int     `json:"total_days"`
	Rate          float64 `json:"rate"`
}

type habitResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Frequency   string             `json:"frequency"`
	TargetCount int                `json:"target_count"`
	CreatedAt   time.Time          `json:"created_at"`
	Streak      int                `json:"streak"`
	Last7Days   completionResponse `json:"last_7_days"`
	Last30Days  completionResponse `json:"last_30_days"`
}

// HandleMe handles GET /api/me.
func (h *DashboardHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	respondJSON(w, http.StatusOK, userResponse{
		ID:          user.ID.String(),
		PhoneNumber: user.PhoneNumber,
		Timezone:    user.Timezone,
		DigestTime:  user.DigestTime,
		IsPaused:    user.IsPaused,
	})
}

// HandleListHabits handles GET /api/habits: the user's habits in creation
// order, each with streak and completion stats.
func (h *DashboardHandler) HandleListHabits(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	habits, err := h.habits.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list habits failed", zap.String("phone", user.PhoneNumber), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not load habits")
		return
	}

	today := todayFor(*user)
	out := make([]habitResponse, 0, len(habits))
	for _, hb := range habits {
		st, err := h.svc.StatsFor(r.Context(), hb.ID, today)
		if err != nil {
			h.logger.Error("habit stats failed", zap.String("habit", hb.Name), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "could not load habit stats")
			return
		}
		out = append(out, habitResponse{
			ID:          hb.ID.String(),
			Name:        hb.Name,
			Frequency:   string(hb.Frequency),
			TargetCount: hb.TargetCount,
			CreatedAt:   hb.CreatedAt,
			Streak:      st.Streak,
			Last7Days:   completionResponse(st.Last7),
			Last30Days:  completionResponse(st.Last30),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"habits": out})
}

func todayFor(user model.User) time.Time {
	loc, err := time.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return stats.DateIn(time.Now(), loc)
}
