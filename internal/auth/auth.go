package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/content"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/storage"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	loginFailedMessage = "Login failed"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Store is the slice of the persistence layer the auth service needs.
type Store interface {
	UpsertCredentials(creds storage.DBCredentials) error
	GetCredentials(userName string) (storage.DBCredentials, error)
	ListCredentials() ([]storage.DBCredentials, error)
	UpsertToken(userID string, tokenHash string) error
	DeleteToken(tokenHash string) error
	ListTokens() (map[string]string, error)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

type Config struct {
	TokenExpiry time.Duration `json:"tokenExpiry"`
	// Secret keys the digests under which session tokens are persisted.
	// A copied database without the secret cannot resolve or forge a
	// session.
	Secret string `json:"-"`
}

// attemptState throttles brute force attacks per account.
type attemptState struct {
	Failed      int64
	LastAttempt int64
}

type AuthService struct {
	Config
	store      Store
	attempts   *geche.Locker[string, *attemptState]
	liveTokens geche.Geche[string, models.Participant]
	now        func() time.Time
}

func NewAuthService(ctx context.Context, config Config, store Store) (*AuthService, error) {
	if config.TokenExpiry == 0 {
		config.TokenExpiry = DefaultTokenExpiry
	}
	return &AuthService{
		Config:     config,
		store:      store,
		attempts:   geche.NewLocker[string, *attemptState](geche.NewMapCache[string, *attemptState]()),
		liveTokens: geche.NewMapTTLCache[string, models.Participant](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}, nil
}

// AddUser creates an account with the given role and persists its
// credentials. The generated participant ID is returned.
func (as *AuthService) AddUser(username, password, displayName string, role models.Role) (models.Participant, error) {
	if err := content.ValidateUsername(username); err != nil {
		return models.Participant{}, err
	}

	if _, err := as.store.GetCredentials(username); err == nil {
		return models.Participant{}, ErrUserExists
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.Participant{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Participant{}, fmt.Errorf("failed to hash password: %w", err)
	}

	if displayName == "" {
		displayName = username
	}

	creds := storage.DBCredentials{
		ID:           uuid.NewString(),
		UserName:     username,
		DisplayName:  content.Sanitize(displayName),
		Role:         string(role),
		PasswordHash: string(hash),
		Status:       "active",
	}
	if err := as.store.UpsertCredentials(creds); err != nil {
		return models.Participant{}, err
	}

	return models.Participant{
		ID:          creds.ID,
		Role:        role,
		DisplayName: creds.DisplayName,
	}, nil
}

func (as *AuthService) Login(req LoginRequest) (LoginResponse, models.Participant) {
	now := as.now()

	if wait := as.throttleWait(req.Username, now); wait > 0 {
		return LoginResponse{
			Success: false,
			Message: fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", wait),
		}, models.Participant{}
	}

	creds, err := as.store.GetCredentials(req.Username)
	if err != nil || creds.Status != "active" {
		as.recordFailure(req.Username, now)
		return LoginResponse{Success: false, Message: loginFailedMessage}, models.Participant{}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)); err != nil {
		as.recordFailure(req.Username, now)
		return LoginResponse{Success: false, Message: loginFailedMessage}, models.Participant{}
	}

	token, err := generateToken()
	if err != nil {
		slog.Error("login failed", "user_id", creds.ID, "error", err)
		return LoginResponse{Success: false, Message: "internal error"}, models.Participant{}
	}

	participant := models.Participant{
		ID:          creds.ID,
		Role:        models.Role(creds.Role),
		DisplayName: creds.DisplayName,
	}

	as.liveTokens.Set(token, participant)
	if err := as.store.UpsertToken(creds.ID, as.hashToken(token)); err != nil {
		slog.Error("failed to persist token", "user_id", creds.ID, "error", err)
	}

	as.clearFailures(req.Username, now)

	return LoginResponse{
		Success:     true,
		Token:       token,
		TokenExpiry: now.Unix() + int64(as.TokenExpiry.Seconds()),
	}, participant
}

func (as *AuthService) Logoff(token string) error {
	_ = as.store.DeleteToken(as.hashToken(token))
	return as.liveTokens.Del(token)
}

// GetParticipant resolves a raw token to the authenticated participant.
// Falls back to the persisted token table so sessions survive restarts.
func (as *AuthService) GetParticipant(token string) (models.Participant, error) {
	if p, err := as.liveTokens.Get(token); err == nil {
		return p, nil
	}

	tokens, err := as.store.ListTokens()
	if err != nil {
		return models.Participant{}, err
	}
	userID, ok := tokens[as.hashToken(token)]
	if !ok {
		return models.Participant{}, ErrInvalidToken
	}

	p, err := as.participantByID(userID)
	if err != nil {
		return models.Participant{}, err
	}
	as.liveTokens.Set(token, p)
	return p, nil
}

func (as *AuthService) participantByID(userID string) (models.Participant, error) {
	all, err := as.store.ListCredentials()
	if err != nil {
		return models.Participant{}, err
	}
	for _, c := range all {
		if c.ID == userID {
			return models.Participant{
				ID:          c.ID,
				Role:        models.Role(c.Role),
				DisplayName: c.DisplayName,
			}, nil
		}
	}
	return models.Participant{}, models.ErrNotFound
}

// throttleWait returns the remaining seconds of the quadratic backoff the
// account is under, or zero when a login attempt is allowed.
func (as *AuthService) throttleWait(username string, now time.Time) int64 {
	tx := as.attempts.Lock()
	defer tx.Unlock()
	state, err := tx.Get(username)
	if err != nil || state.Failed <= 3 {
		return 0
	}
	nextAttempt := state.LastAttempt + 30*(state.Failed*state.Failed)
	if now.Unix() >= nextAttempt {
		return 0
	}
	return nextAttempt - now.Unix()
}

func (as *AuthService) clearFailures(username string, now time.Time) {
	tx := as.attempts.Lock()
	defer tx.Unlock()
	tx.Set(username, &attemptState{LastAttempt: now.Unix()})
}

func (as *AuthService) recordFailure(username string, now time.Time) {
	tx := as.attempts.Lock()
	defer tx.Unlock()
	state, err := tx.Get(username)
	if err != nil {
		state = &attemptState{}
		tx.Set(username, state)
	}
	state.Failed++
	state.LastAttempt = now.Unix()
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// hashToken derives the persisted digest of a session token, keyed with
// the configured secret.
func (as *AuthService) hashToken(token string) string {
	mac := hmac.New(sha256.New, []byte(as.Secret))
	mac.Write([]byte(token))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
