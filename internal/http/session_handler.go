package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/cartsync"
	"github.com/fjod/go_cart/jewel-cart/internal/domain"
	"github.com/fjod/go_cart/jewel-cart/internal/session"
)

type SessionHandler struct {
	sessions Sessions
	timeout  time.Duration
}

func NewSessionHandler(sessions Sessions, timeout time.Duration) *SessionHandler {
	return &SessionHandler{sessions: sessions, timeout: timeout}
}

type SyncResultDTO struct {
	Op     string `json:"op"`
	Result string `json:"result"`
	Winner string `json:"winner,omitempty"`
	Items  int    `json:"items"`
	Error  string `json:"error,omitempty"`
}

type SessionResponse struct {
	State  string         `json:"state"`
	Synced bool           `json:"synced"`
	UserID string         `json:"userId,omitempty"`
	Sync   *SyncResultDTO `json:"sync,omitempty"`
	Cart   CartResponse   `json:"cart"`
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if deviceIssued(r.Context()) {
		respondJSON(w, http.StatusOK, SessionResponse{
			State: cartsync.Unauthenticated.String(),
			Cart:  newCartResponse(getDeviceID(r.Context()), domain.Cart{}),
		})
		return
	}
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(s, nil))
}

// SignIn reconciles the device cart with the caller's account. A failed remote
// read keeps the device cart and signs the device in without syncing; calling
// SignIn again retries.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	result := s.Syncer.SignIn(ctx, userID)
	respondJSON(w, http.StatusOK, newSessionResponse(s, &result))
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	s.Syncer.SignOut()
	respondJSON(w, http.StatusOK, newSessionResponse(s, nil))
}

func newSessionResponse(s *session.Session, result *cartsync.Result) SessionResponse {
	resp := SessionResponse{
		State:  s.Syncer.State().String(),
		Synced: s.Syncer.Reconciled(),
		UserID: s.Syncer.UserID(),
		Cart:   newCartResponse(s.Store.DeviceID(), s.Store.Cart()),
	}
	if result != nil {
		dto := &SyncResultDTO{
			Op:     string(result.Op),
			Result: result.Kind.String(),
			Winner: string(result.Winner),
			Items:  result.Items,
		}
		if result.Err != nil {
			dto.Error = result.Err.Error()
		}
		resp.Sync = dto
	}
	return resp
}
