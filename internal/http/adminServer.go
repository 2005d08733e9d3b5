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

// AdminServer is the dashboard listener. It binds to localhost by
// default and is expected to sit behind the operator's own access
// controls, matching the split-listener layout of the public site.
type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminServer(authService *auth.AuthService, chats *chat.Service, hub *ws.Hub, addr string) *AdminServer {
	adminHandler := api.NewAdminHandler(authService, chats, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", adminHandler.AddUserHandler)
	mux.HandleFunc("GET /admin/conversations", adminHandler.ConversationsHandler)
	mux.HandleFunc("POST /admin/conversations/{id}/complex", adminHandler.MarkComplexHandler)
	mux.HandleFunc("POST /admin/announce", adminHandler.AnnounceHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *AdminServer) Start() error {
	log.Printf("Admin server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
