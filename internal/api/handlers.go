package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/auth"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/chat"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/storage"
)

// PushStore persists browser push subscriptions.
type PushStore interface {
	UpsertPushSubscription(sub storage.DBPushSubscription) error
}

type API struct {
	auth  *auth.AuthService
	chats *chat.Service
	push  PushStore
}

func New(authService *auth.AuthService, chats *chat.Service, push PushStore) *API {
	return &API{auth: authService, chats: chats, push: push}
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and form encoding (the donation site posts forms).
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	loginResp, _ := a.auth.Login(req)

	if !loginResp.Success {
		w.WriteHeader(http.StatusUnauthorized)
		if err := json.NewEncoder(w).Encode(loginResp); err != nil {
			log.Printf("failed to encode login response: %v", err)
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(loginResp); err != nil {
		log.Printf("failed to encode login response: %v", err)
	}
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	token := getToken(r)
	if token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	p := participantFrom(r)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Printf("failed to encode me response: %v", err)
	}
}

// ConversationHandler serves the full ordered snapshot of one
// conversation. This is the poll and rehydration endpoint: donors may
// only fetch their own thread, admins may fetch any.
func (a *API) ConversationHandler(w http.ResponseWriter, r *http.Request) {
	p := participantFrom(r)
	id := r.PathValue("id")

	conv, err := a.chats.Snapshot(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		log.Printf("failed to load conversation %s: %v", id, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if p.Role != models.RoleAdmin && conv.UserID != p.ID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(conv); err != nil {
		log.Printf("failed to encode conversation response: %v", err)
	}
}

// MyConversationHandler resolves (and lazily creates) the donor's own
// thread, so a fresh session can learn its conversation id.
func (a *API) MyConversationHandler(w http.ResponseWriter, r *http.Request) {
	p := participantFrom(r)
	if p.Role != models.RoleUser {
		http.Error(w, "Admins have no own conversation", http.StatusBadRequest)
		return
	}

	conv, err := a.chats.SnapshotByUser(p.ID)
	if err != nil {
		log.Printf("failed to load conversation for user %s: %v", p.ID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(conv); err != nil {
		log.Printf("failed to encode conversation response: %v", err)
	}
}

// PushSubscriptionHandler stores the browser's webpush subscription for
// the authenticated participant.
func (a *API) PushSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	p := participantFrom(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, 16*1024))
	if err != nil || len(body) == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "Subscription must be JSON", http.StatusBadRequest)
		return
	}

	if err := a.push.UpsertPushSubscription(storage.DBPushSubscription{
		UserID:       p.ID,
		Subscription: body,
	}); err != nil {
		log.Printf("failed to store push subscription: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type contextKey string

const participantKey contextKey = "participant"

// RequireAuth resolves the request token and injects the participant
// into the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.auth.GetParticipant(getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := contextWithParticipant(r.Context(), p)
		next(w, r.WithContext(ctx))
	}
}

// RequireSameOrigin rejects state-changing requests whose Origin does
// not match the Host, a CSRF guard for the cookie-based session.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

func getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}
