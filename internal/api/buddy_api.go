package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/willpower-app/willpower/internal/domain"
)

// ─── Buddy Challenges ───────────────────────────────────────────────────────

// GET /api/v1/buddies
func (s *Server) handleListBuddies(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Buddies.List(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.BuddyChallenge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"buddies": list})
}

type inviteRequest struct {
	InviteeID string               `json:"invitee_id"`
	Challenge domain.ChallengeSpec `json:"challenge"`
}

// POST /api/v1/buddies
func (s *Server) handleInviteBuddy(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.svc.Buddies.Invite(r.Context(), userID(r), req.InviteeID, req.Challenge)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GET /api/v1/buddies/{id}
func (s *Server) handleGetBuddy(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Buddies.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// POST /api/v1/buddies/{id}/accept
func (s *Server) handleAcceptBuddy(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Buddies.Accept(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// POST /api/v1/buddies/{id}/decline
func (s *Server) handleDeclineBuddy(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Buddies.Decline(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// POST /api/v1/buddies/{id}/nudge
//
// A second nudge on the same day answers 429 so clients can back off.
func (s *Server) handleNudge(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Buddies.SendNudge(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.AlreadyNudged {
		s.writeError(w, r, domain.ErrAlreadyNudged)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/buddies/{id}/settle
func (s *Server) handleSettleBuddy(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Buddies.Settle(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/v1/buddies/{id}/partner
func (s *Server) handlePartnerProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Buddies.PartnerProgress(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GET /api/v1/duo-streaks/{partnerId}
func (s *Server) handleDuoStreak(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Buddies.DuoStreak(r.Context(), userID(r), chi.URLParam(r, "partnerId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
