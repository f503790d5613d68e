package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/events"
	"tradejournal/internal/metrics"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/utils"
)

// Ошибки OAuth
var (
	ErrNoStoredTokens     = errors.New("no stored tokens")
	ErrTokenRefreshFailed = errors.New("Token expired and refresh failed")
	ErrInvalidOAuthState  = errors.New("invalid oauth state")
	ErrInvalidRedirectURI = errors.New("redirect uri must include broker=upstox")
	ErrMissingAuthCode    = errors.New("authorization code is required")
	ErrMissingOAuthClient = errors.New("upstox client id and client secret are required")
)

// refreshTimeout ограничивает общий refresh токена
const refreshTimeout = 30 * time.Second

// OAuthConfig - OAuth приложение Upstox по умолчанию
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	StateTTL     time.Duration
}

// AuthURLRequest - параметры URL авторизации (пустые берутся из конфигурации)
type AuthURLRequest struct {
	ClientID    string
	RedirectURI string
	State       string
}

// AuthURLResult - URL диалога авторизации и выданный state
type AuthURLResult struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// CodeExchangeRequest - данные redirect'а после авторизации
type CodeExchangeRequest struct {
	Code         string `json:"code"`
	State        string `json:"state"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

// UpstoxStatus - состояние OAuth подключения Upstox
type UpstoxStatus struct {
	Connected    bool       `json:"connected"`
	Expired      bool       `json:"expired"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	BrokerID     int64      `json:"broker_id,omitempty"`
	BrokerStatus string     `json:"broker_status,omitempty"`
}

// OAuthService управляет OAuth токенами Upstox: config -> auth -> success.
//
// Токены хранятся по одному набору на пользователя. Просроченный
// access token обновляется при чтении; параллельные чтения одного
// пользователя разделяют один запрос refresh.
type OAuthService struct {
	tokens      TokenRepositoryInterface
	credentials *CredentialService
	upstox      UpstoxClient
	cfg         OAuthConfig
	states      *stateRegistry
	refresh     singleflight.Group
	notifier    Notifier
	publisher   events.Publisher
	logger      *utils.Logger
}

// NewOAuthService создает новый экземпляр сервиса
func NewOAuthService(tokens TokenRepositoryInterface, credentials *CredentialService, upstox UpstoxClient, cfg OAuthConfig, logger *utils.Logger) *OAuthService {
	if logger == nil {
		logger = utils.L()
	}
	return &OAuthService{
		tokens:      tokens,
		credentials: credentials,
		upstox:      upstox,
		cfg:         cfg,
		states:      newStateRegistry(cfg.StateTTL),
		publisher:   events.NopPublisher{},
		logger:      logger.WithComponent("oauth").WithBroker(string(broker.Upstox)),
	}
}

// SetNotifier устанавливает получателя real-time событий
func (s *OAuthService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetPublisher устанавливает публикатор событий смены статуса
func (s *OAuthService) SetPublisher(p events.Publisher) {
	if p != nil {
		s.publisher = p
	}
}

// GenerateAuthURL строит URL диалога авторизации Upstox
func (s *OAuthService) GenerateAuthURL(clientID, redirectURI, state string) string {
	return s.upstox.AuthURL(clientID, redirectURI, state)
}

// BeginAuth регистрирует state пользователя и возвращает URL авторизации
func (s *OAuthService) BeginAuth(ctx context.Context, req AuthURLRequest) (*AuthURLResult, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	clientID := firstNonEmpty(req.ClientID, s.cfg.ClientID)
	if clientID == "" {
		return nil, ErrMissingOAuthClient
	}
	redirectURI := firstNonEmpty(req.RedirectURI, s.cfg.RedirectURI)
	if err := validateRedirectURI(redirectURI); err != nil {
		return nil, err
	}

	state := req.State
	if state == "" {
		state = uuid.NewString()
	}
	s.states.Register(userID, state, timeNow())

	return &AuthURLResult{
		URL:   s.GenerateAuthURL(clientID, redirectURI, state),
		State: state,
	}, nil
}

// CompleteAuth погашает state и обменивает код на токены
func (s *OAuthService) CompleteAuth(ctx context.Context, req CodeExchangeRequest) (*broker.TokenSet, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !s.states.Consume(userID, req.State, timeNow()) {
		return nil, ErrInvalidOAuthState
	}

	return s.ExchangeCodeForToken(ctx,
		req.Code,
		firstNonEmpty(req.ClientID, s.cfg.ClientID),
		firstNonEmpty(req.ClientSecret, s.cfg.ClientSecret),
		firstNonEmpty(req.RedirectURI, s.cfg.RedirectURI),
	)
}

// ExchangeCodeForToken обменивает authorization code на токены и сохраняет их.
// Ошибка брокера возвращается как есть. Брокер Upstox пользователя
// становится активным, clientID/secret сохраняются для refresh.
func (s *OAuthService) ExchangeCodeForToken(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*broker.TokenSet, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingAuthCode
	}
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingOAuthClient
	}

	start := time.Now()
	tokens, err := s.upstox.ExchangeCode(withBrokerLimit(ctx, broker.Upstox, userID), code, clientID, clientSecret, redirectURI)
	metrics.ObserveBrokerCall(string(broker.Upstox), "exchange", time.Since(start))
	if err != nil {
		s.logger.Warn("code exchange failed", utils.UserID(userID), utils.Err(err))
		return nil, err
	}

	record := &models.OAuthToken{
		UserID:       userID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}
	if err := s.tokens.Upsert(ctx, record); err != nil {
		return nil, err
	}

	brokerRecord, err := s.credentials.Ensure(ctx, broker.Upstox, &models.Credentials{APIKey: clientID, APISecret: clientSecret})
	if err != nil {
		return nil, err
	}

	s.logger.Info("upstox connected", utils.UserID(userID), utils.BrokerID(brokerRecord.ID))
	s.notifyStatus(ctx, userID, brokerRecord.ID, models.BrokerStatusActive, true)
	return tokens, nil
}

// GetStoredTokens возвращает токены пользователя. Просроченный access token
// обновляется; при неудаче - ErrTokenRefreshFailed, запись не меняется.
func (s *OAuthService) GetStoredTokens(ctx context.Context) (*models.OAuthToken, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := s.tokens.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrNoStoredTokens
		}
		return nil, err
	}
	if !tok.IsExpired(timeNow()) {
		return tok, nil
	}

	// общий refresh не зависит от отмены контекста первого вызывающего
	ch := s.refresh.DoChan(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.RefreshAccessToken(refreshCtx, tok.RefreshToken)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		s.logger.Warn("stored token refresh failed", utils.UserID(userID), utils.Err(res.Err))
		return nil, ErrTokenRefreshFailed
	}

	refreshed := res.Val.(*broker.TokenSet)
	return &models.OAuthToken{
		UserID:       userID,
		AccessToken:  refreshed.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    refreshed.ExpiresAt,
		UpdatedAt:    timeNow(),
	}, nil
}

// RefreshAccessToken получает новый access token и сохраняет его,
// оставляя прежний refresh token
func (s *OAuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (*broker.TokenSet, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		metrics.RecordTokenRefresh(false)
		return nil, errors.New("no refresh token stored")
	}

	clientID, clientSecret := s.clientCredentials(ctx)
	if clientID == "" || clientSecret == "" {
		metrics.RecordTokenRefresh(false)
		return nil, ErrMissingOAuthClient
	}

	start := time.Now()
	tokens, err := s.upstox.Refresh(withBrokerLimit(ctx, broker.Upstox, userID), refreshToken, clientID, clientSecret)
	metrics.ObserveBrokerCall(string(broker.Upstox), "refresh", time.Since(start))
	if err != nil {
		metrics.RecordTokenRefresh(false)
		return nil, err
	}

	if err := s.tokens.UpdateAccessToken(ctx, userID, tokens.AccessToken, tokens.ExpiresAt); err != nil {
		metrics.RecordTokenRefresh(false)
		return nil, err
	}
	metrics.RecordTokenRefresh(true)

	s.logger.Info("access token refreshed", utils.UserID(userID))
	return &broker.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}, nil
}

// Disconnect удаляет токены и делает брокера Upstox неактивным
func (s *OAuthService) Disconnect(ctx context.Context) error {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}

	if err := s.tokens.Delete(ctx, userID); err != nil {
		return err
	}

	record, _, err := s.credentials.GetByType(ctx, broker.Upstox)
	switch {
	case errors.Is(err, repository.ErrBrokerNotFound):
		// брокер уже удалён, токенов тоже нет
	case record != nil:
		if err := s.credentials.SetStatus(ctx, record.ID, models.BrokerStatusInactive); err != nil {
			return err
		}
		s.notifyStatus(ctx, userID, record.ID, models.BrokerStatusInactive, false)
	case err != nil:
		return err
	}

	s.logger.Info("upstox disconnected", utils.UserID(userID))
	return nil
}

// Status возвращает состояние подключения без обновления токена
func (s *OAuthService) Status(ctx context.Context) (*UpstoxStatus, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	status := &UpstoxStatus{}
	if record, _, err := s.credentials.GetByType(ctx, broker.Upstox); record != nil {
		status.BrokerID = record.ID
		status.BrokerStatus = record.Status
	} else if err != nil && !errors.Is(err, repository.ErrBrokerNotFound) {
		return nil, err
	}

	tok, err := s.tokens.Get(ctx, userID)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	expiresAt := tok.ExpiresAt
	status.Connected = true
	status.ExpiresAt = &expiresAt
	status.Expired = tok.IsExpired(timeNow())
	return status, nil
}

// clientCredentials - clientID/secret из брокера Upstox пользователя, иначе из конфигурации
func (s *OAuthService) clientCredentials(ctx context.Context) (string, string) {
	if _, creds, err := s.credentials.GetByType(ctx, broker.Upstox); err == nil {
		if creds.APIKey != "" && creds.APISecret != "" {
			return creds.APIKey, creds.APISecret
		}
	}
	return s.cfg.ClientID, s.cfg.ClientSecret
}

func (s *OAuthService) notifyStatus(ctx context.Context, userID, brokerID int64, status string, connected bool) {
	if s.notifier != nil {
		s.notifier.NotifyBrokerStatus(userID, websocket.BrokerStatusData{
			BrokerID:       brokerID,
			BrokerType:     string(broker.Upstox),
			Status:         status,
			TokenConnected: connected,
		})
	}

	err := s.publisher.Publish(ctx, events.Event{
		Type:   events.TypeBrokerStatus,
		UserID: userID,
		Payload: events.BrokerStatusChanged{
			BrokerID:   brokerID,
			BrokerType: string(broker.Upstox),
			Status:     status,
		},
	})
	if err != nil {
		s.logger.Warn("failed to publish broker status event", utils.UserID(userID), utils.Err(err))
	}
}

// validateRedirectURI проверяет, что redirect вернётся с broker=upstox
func validateRedirectURI(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidRedirectURI
	}
	if u.Query().Get("broker") != string(broker.Upstox) {
		return ErrInvalidRedirectURI
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
