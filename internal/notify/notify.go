package notify

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/storage"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Store is the slice of the persistence layer the push service needs.
type Store interface {
	GetPushSubscription(userID string) (storage.DBPushSubscription, error)
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Contact         string
	// BaseURL is the public address of the site; notification clicks open
	// the chat there.
	BaseURL string
}

// PushService sends web push notifications to participants who missed a
// live delivery. Enabled only when a VAPID key pair is configured.
type PushService struct {
	store Store
	cfg   Config
}

func NewPushService(cfg Config, store Store) *PushService {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil
	}
	return &PushService{store: store, cfg: cfg}
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// NotifyOffline sends a "new message" push to the identity's registered
// browser, if it has a subscription. Failures are logged and swallowed;
// the message is already persisted and will surface on the next poll.
func (p *PushService) NotifyOffline(identity string, msg models.Message) {
	dbSub, err := p.store.GetPushSubscription(identity)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Warn("failed to load push subscription", "identity", identity, "error", err)
		}
		return
	}

	var sub webpush.Subscription
	if err := json.Unmarshal(dbSub.Subscription, &sub); err != nil {
		slog.Warn("corrupt push subscription", "identity", identity, "error", err)
		return
	}

	body := msg.Text
	if body == "" {
		body = msg.Emoji
	}
	link := ""
	if p.cfg.BaseURL != "" {
		link = p.cfg.BaseURL + "/chat"
	}
	payload, err := json.Marshal(pushPayload{
		Title: "New message from Sifas Heart Foundation support",
		Body:  body,
		URL:   link,
	})
	if err != nil {
		slog.Warn("failed to marshal push payload", "error", err)
		return
	}

	resp, err := webpush.SendNotification(payload, &sub, &webpush.Options{
		Subscriber:      p.cfg.Contact,
		VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
		TTL:             3600,
	})
	if err != nil {
		slog.Warn("failed to send push notification", "identity", identity, "error", err)
		return
	}
	_ = resp.Body.Close()
}
