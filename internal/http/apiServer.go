package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/api"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/auth"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/chat"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(authService *auth.AuthService, chats *chat.Service, hub *ws.Hub, push api.PushStore, addr string) *APIServer {
	wsServer := ws.NewServer(authService, hub)
	apiHandlers := api.New(authService, chats, push)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", api.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("GET /api/me/conversation", apiHandlers.RequireAuth(apiHandlers.MyConversationHandler))
	mux.HandleFunc("GET /api/conversations/{id}", apiHandlers.RequireAuth(apiHandlers.ConversationHandler))
	mux.HandleFunc("POST /api/push-subscription", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushSubscriptionHandler)))

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
