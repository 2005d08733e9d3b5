package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/auth"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/chat"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/commands"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/config"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/http"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/notify"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/storage"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/ws"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, addUser string, addAdmin bool) error {
	cfg, err := config.Load(addUser != "")
	if err != nil {
		return err
	}

	if addUser != "" {
		return commands.AddUser(addUser, addAdmin, cfg)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	authService, err := auth.NewAuthService(ctx, auth.Config{
		TokenExpiry: cfg.TokenExpiry,
		Secret:      cfg.AuthSecret,
	}, bbStorage)
	if err != nil {
		return err
	}

	chatService := chat.New(ctx, bbStorage)
	registry := ws.NewRegistry()

	var notifier ws.Notifier
	if pushService := notify.NewPushService(notify.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Contact:         cfg.PushContact,
		BaseURL:         cfg.BaseURL,
	}, bbStorage); pushService != nil {
		notifier = pushService
	}

	hub := ws.NewHub(chatService, registry, notifier)

	adminServer := http.NewAdminServer(authService, chatService, hub, cfg.AdminAddr)
	apiServer := http.NewAPIServer(authService, chatService, hub, bbStorage, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	_ = godotenv.Load()

	addUser := flag.String("add-user", "", "Username to create (creates account with a generated password and prints details)")
	addAdmin := flag.Bool("admin", false, "Create the -add-user account with the admin role")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addUser, *addAdmin); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
