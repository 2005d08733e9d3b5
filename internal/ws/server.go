package ws

import (
	"log"
	"net/http"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/auth"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Server struct {
	auth     *auth.AuthService
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(authService *auth.AuthService, hub *Hub) *Server {
	return &Server{
		auth: authService,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleConnections authenticates the handshake and hands the socket to
// a Connection. A bad token fails the attempt before upgrade; the client
// treats that as terminal and must not retry with the same credentials.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	participant, err := s.auth.GetParticipant(requestToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	c := NewConnection(s.hub, conn, uuid.NewString(), participant)
	if err := c.Handle(r.Context()); err != nil &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("connection closed with error: %v", err)
	}
}

// requestToken pulls the credential token from the header, cookie, or
// query string (the browser websocket API cannot set headers).
func requestToken(r *http.Request) string {
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return r.URL.Query().Get("token")
}
