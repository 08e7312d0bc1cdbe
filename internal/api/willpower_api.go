package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/willpower-app/willpower/internal/domain"
)

// ─── Points & Profile ───────────────────────────────────────────────────────

// GET /api/v1/me
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Bank.Summary(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type habitRequest struct {
	Difficulty string `json:"difficulty"` // "easy" or "challenging"
}

// POST /api/v1/habits
func (s *Server) handleLogHabit(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	difficulty, err := domain.ParseHabitDifficulty(req.Difficulty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Bank.LogHabit(r.Context(), userID(r), difficulty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/points
func (s *Server) handleAwardPoints(w http.ResponseWriter, r *http.Request) {
	var award domain.PointAward
	if err := decodeBody(r, &award); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Bank.AwardPoints(r.Context(), userID(r), award)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// GET /api/v1/challenges
func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Challenges.List(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Challenge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": list})
}

// POST /api/v1/challenges
func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var spec domain.ChallengeSpec
	if err := decodeBody(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	ch, err := s.svc.Challenges.Create(r.Context(), userID(r), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

// GET /api/v1/challenges/active
func (s *Server) handleActiveChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := s.svc.Challenges.Active(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge":          ch,
		"current_day_number": s.svc.Challenges.CurrentDayNumber(ch),
	})
}

// GET /api/v1/challenges/{id}
func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := s.svc.Challenges.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// DELETE /api/v1/challenges/{id}
func (s *Server) handleDeleteChallenge(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Challenges.Delete(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type checkInRequest struct {
	Succeeded bool   `json:"succeeded"`
	Points    int    `json:"points"`
	Note      string `json:"note,omitempty"`
}

// POST /api/v1/challenges/{id}/milestones/{day}/check-in
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	day, err := parseIntParam("day", chi.URLParam(r, "day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req checkInRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Challenges.CheckInMilestone(r.Context(), userID(r), chi.URLParam(r, "id"), domain.CheckIn{
		DayNumber: day,
		Succeeded: req.Succeeded,
		Points:    req.Points,
		Note:      req.Note,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/challenges/{id}/complete
func (s *Server) handleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	var outcome domain.Outcome
	if err := decodeBody(r, &outcome); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Challenges.Complete(r.Context(), userID(r), chi.URLParam(r, "id"), outcome)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/challenges/{id}/cancel
func (s *Server) handleCancelChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := s.svc.Challenges.Cancel(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// POST /api/v1/challenges/{id}/archive
func (s *Server) handleArchiveChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := s.svc.Challenges.Archive(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// GET /api/v1/stats/repeats
func (s *Server) handleRepeatStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Challenges.RepeatStats(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repeats": stats})
}

// ─── Templates ──────────────────────────────────────────────────────────────

// POST /api/v1/templates
func (s *Server) handleSubmitTemplate(w http.ResponseWriter, r *http.Request) {
	var spec domain.ChallengeSpec
	if err := decodeBody(r, &spec); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.svc.Challenges.SubmitTemplate(r.Context(), userID(r), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Challenges.Template(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type templateStatusRequest struct {
	Status domain.ModerationStatus `json:"status"`
}

// POST /api/v1/moderation/templates/{id}/status
func (s *Server) handleTemplateStatus(w http.ResponseWriter, r *http.Request) {
	var req templateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.svc.Challenges.SetTemplateStatus(r.Context(), userID(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ─── Notifications ──────────────────────────────────────────────────────────

// GET /api/v1/notifications
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := parseIntParam("limit", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		limit = n
	}
	pending, err := s.svc.Notifications.Pending(r.Context(), userID(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pending == nil {
		pending = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": pending})
}

// POST /api/v1/notifications/{id}/shown
func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Notifications.MarkShown(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type deviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// POST /api/v1/devices
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	dev, err := s.svc.Notifications.RegisterDevice(r.Context(), userID(r), req.Token, req.Platform)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}
