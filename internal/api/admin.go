package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/auth"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/chat"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/content"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/ws"
)

// AdminHandler serves the dashboard API. It is exposed on the separate
// admin listener, which binds to localhost by default.
type AdminHandler struct {
	authService *auth.AuthService
	chats       *chat.Service
	hub         *ws.Hub
}

func NewAdminHandler(authService *auth.AuthService, chats *chat.Service, hub *ws.Hub) *AdminHandler {
	return &AdminHandler{authService: authService, chats: chats, hub: hub}
}

type AddUserRequest struct {
	Username    string      `json:"username"`
	DisplayName string      `json:"displayName,omitempty"`
	Role        models.Role `json:"role,omitempty"`
}

type AddUserResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// AddUserHandler creates an account with a generated one-time password.
// The password is returned once and expected to be changed by the
// account owner.
func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := content.ValidateUsername(req.Username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	password, err := generatePassword()
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	p, err := h.authService.AddUser(req.Username, password, req.DisplayName, role)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			http.Error(w, "User already exists", http.StatusConflict)
			return
		}
		log.Printf("failed to add user: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(AddUserResponse{
		Success:  true,
		UserID:   p.ID,
		Username: req.Username,
		Password: password,
	}); err != nil {
		log.Printf("failed to encode add user response: %v", err)
	}
}

// ConversationsHandler lists all threads for the dashboard inbox, most
// recent activity first.
func (h *AdminHandler) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chats.List()
	if err != nil {
		log.Printf("failed to list conversations: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(convs); err != nil {
		log.Printf("failed to encode conversations response: %v", err)
	}
}

type markComplexRequest struct {
	Complex bool `json:"complex"`
}

// MarkComplexHandler flags a conversation for human escalation.
func (h *AdminHandler) MarkComplexHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	req := markComplexRequest{Complex: true}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := h.chats.MarkComplex(id, req.Complex); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		log.Printf("failed to mark conversation %s: %v", id, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type announceRequest struct {
	Markdown string `json:"markdown"`
}

// AnnounceHandler renders a markdown announcement and broadcasts it to
// every live session (donors and admins alike).
func (h *AdminHandler) AnnounceHandler(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Markdown == "" {
		http.Error(w, "Announcement body is required", http.StatusBadRequest)
		return
	}

	html, err := content.RenderMarkdown(req.Markdown)
	if err != nil {
		log.Printf("failed to render announcement: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.hub.Broadcast(models.ServerEvent{
		Type: models.ServerEventBroadcast,
		HTML: html,
	})

	w.WriteHeader(http.StatusNoContent)
}

func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
