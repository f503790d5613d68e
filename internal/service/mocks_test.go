package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/events"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/crypto"
	"tradejournal/pkg/utils"
)

const testMasterKey = "12345678901234567890123456789012"

func userCtx(userID int64) context.Context {
	return auth.WithUserID(context.Background(), userID)
}

func testVault() *crypto.Vault {
	v, err := crypto.NewVault(testMasterKey)
	if err != nil {
		panic(err)
	}
	return v
}

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Output: "stderr"})
}

// ============ Mock BrokerRepository ============

type MockBrokerRepository struct {
	mu        sync.Mutex
	records   map[int64]*models.BrokerRecord
	nextID    int64
	calls     int
	createErr error
	getErr    error
	updateErr error
}

func NewMockBrokerRepository() *MockBrokerRepository {
	return &MockBrokerRepository{records: make(map[int64]*models.BrokerRecord), nextID: 1}
}

func (m *MockBrokerRepository) touch() {
	m.calls++
}

func (m *MockBrokerRepository) Create(_ context.Context, b *models.BrokerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.createErr != nil {
		return m.createErr
	}
	b.ID = m.nextID
	m.nextID++
	if b.Status == "" {
		b.Status = models.BrokerStatusActive
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	copied := *b
	m.records[b.ID] = &copied
	return nil
}

func (m *MockBrokerRepository) GetByID(_ context.Context, userID, id int64) (*models.BrokerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if r, ok := m.records[id]; ok && r.UserID == userID {
		copied := *r
		return &copied, nil
	}
	return nil, repository.ErrBrokerNotFound
}

func (m *MockBrokerRepository) GetByUserAndType(_ context.Context, userID int64, brokerType string) (*models.BrokerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, id := range m.sortedIDs() {
		r := m.records[id]
		if r.UserID == userID && r.BrokerType == brokerType {
			copied := *r
			return &copied, nil
		}
	}
	return nil, repository.ErrBrokerNotFound
}

func (m *MockBrokerRepository) ListByUser(_ context.Context, userID int64) ([]*models.BrokerRecord, error) {
	return m.list(userID, false)
}

func (m *MockBrokerRepository) ListActiveByUser(_ context.Context, userID int64) ([]*models.BrokerRecord, error) {
	return m.list(userID, true)
}

func (m *MockBrokerRepository) list(userID int64, activeOnly bool) ([]*models.BrokerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.BrokerRecord
	for _, id := range m.sortedIDs() {
		r := m.records[id]
		if r.UserID != userID || (activeOnly && !r.IsActive()) {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}
	return result, nil
}

func (m *MockBrokerRepository) Update(_ context.Context, b *models.BrokerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.updateErr != nil {
		return m.updateErr
	}
	r, ok := m.records[b.ID]
	if !ok || r.UserID != b.UserID {
		return repository.ErrBrokerNotFound
	}
	r.Name, r.Credentials, r.Status, r.UpdatedAt = b.Name, b.Credentials, b.Status, time.Now()
	return nil
}

func (m *MockBrokerRepository) SetStatus(_ context.Context, userID, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.updateErr != nil {
		return m.updateErr
	}
	r, ok := m.records[id]
	if !ok || r.UserID != userID {
		return repository.ErrBrokerNotFound
	}
	r.Status = status
	return nil
}

func (m *MockBrokerRepository) TouchLastSync(_ context.Context, userID, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	r, ok := m.records[id]
	if !ok || r.UserID != userID {
		return repository.ErrBrokerNotFound
	}
	r.LastSyncAt = &at
	return nil
}

func (m *MockBrokerRepository) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	r, ok := m.records[id]
	if !ok || r.UserID != userID {
		return repository.ErrBrokerNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MockBrokerRepository) CountActive(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	if m.getErr != nil {
		return 0, m.getErr
	}
	n := 0
	for _, r := range m.records {
		if r.UserID == userID && r.IsActive() {
			n++
		}
	}
	return n, nil
}

func (m *MockBrokerRepository) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *MockBrokerRepository) get(id int64) *models.BrokerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// ============ Mock TokenRepository ============

type MockTokenRepository struct {
	mu          sync.Mutex
	tokens      map[int64]*models.OAuthToken
	getErr      error
	upsertErr   error
	updateCalls int
	deleteCalls int
}

func NewMockTokenRepository() *MockTokenRepository {
	return &MockTokenRepository{tokens: make(map[int64]*models.OAuthToken)}
}

func (m *MockTokenRepository) Upsert(_ context.Context, tok *models.OAuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	tok.UpdatedAt = time.Now()
	copied := *tok
	m.tokens[tok.UserID] = &copied
	return nil
}

func (m *MockTokenRepository) Get(_ context.Context, userID int64) (*models.OAuthToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	tok, ok := m.tokens[userID]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	copied := *tok
	return &copied, nil
}

func (m *MockTokenRepository) UpdateAccessToken(_ context.Context, userID int64, accessToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	tok, ok := m.tokens[userID]
	if !ok {
		return repository.ErrTokenNotFound
	}
	tok.AccessToken = accessToken
	tok.ExpiresAt = expiresAt
	return nil
}

func (m *MockTokenRepository) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.tokens, userID)
	return nil
}

func (m *MockTokenRepository) ListUserIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	ids := make([]int64, 0, len(m.tokens))
	for id := range m.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockTokenRepository) snapshot(userID int64) *models.OAuthToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[userID]
	if !ok {
		return nil
	}
	copied := *tok
	return &copied
}

// ============ Mock TradeRepository ============

type MockTradeRepository struct {
	mu          sync.Mutex
	trades      map[int64]*models.Trade
	nextID      int64
	failUpserts map[string]bool // external_id, для которых upsert падает
	upsertCalls int
	createErr   error
	listErr     error
}

func NewMockTradeRepository() *MockTradeRepository {
	return &MockTradeRepository{
		trades:      make(map[int64]*models.Trade),
		nextID:      1,
		failUpserts: make(map[string]bool),
	}
}

func (m *MockTradeRepository) Create(_ context.Context, t *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.insert(t)
	return nil
}

func (m *MockTradeRepository) insert(t *models.Trade) {
	t.ID = m.nextID
	m.nextID++
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	copied := *t
	m.trades[t.ID] = &copied
}

func (m *MockTradeRepository) UpsertByExternalID(_ context.Context, t *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if t.BrokerID == nil || t.ExternalID == nil {
		return errors.New("upsert requires broker_id and external_id")
	}
	if m.failUpserts[*t.ExternalID] {
		return errors.New("pq: value too long for type character varying(40)")
	}
	for _, existing := range m.trades {
		if existing.BrokerID != nil && *existing.BrokerID == *t.BrokerID &&
			existing.ExternalID != nil && *existing.ExternalID == *t.ExternalID {
			t.ID = existing.ID
			copied := *t
			m.trades[t.ID] = &copied
			return nil
		}
	}
	m.insert(t)
	return nil
}

func (m *MockTradeRepository) GetByID(_ context.Context, userID, id int64) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.UserID != userID {
		return nil, repository.ErrTradeNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *MockTradeRepository) List(_ context.Context, userID int64, filter models.TradeFilter) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Trade
	for _, t := range m.trades {
		if t.UserID != userID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Symbol != "" && !strings.EqualFold(t.Symbol, filter.Symbol) {
			continue
		}
		if filter.BrokerID != nil && (t.BrokerID == nil || *t.BrokerID != *filter.BrokerID) {
			continue
		}
		at := t.OpenedAt
		if t.ClosedAt != nil {
			at = *t.ClosedAt
		}
		if filter.From != nil && at.Before(*filter.From) {
			continue
		}
		if filter.To != nil && at.After(*filter.To) {
			continue
		}
		copied := *t
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.After(result[j].OpenedAt) })
	return result, nil
}

func (m *MockTradeRepository) Update(_ context.Context, t *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.trades[t.ID]
	if !ok || existing.UserID != t.UserID {
		return repository.ErrTradeNotFound
	}
	copied := *t
	m.trades[t.ID] = &copied
	return nil
}

func (m *MockTradeRepository) Close(_ context.Context, userID, id int64, exitPrice float64, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.UserID != userID || t.Status != models.TradeStatusOpen {
		return repository.ErrTradeNotFound
	}
	t.ExitPrice = &exitPrice
	t.ClosedAt = &closedAt
	t.Status = models.TradeStatusClosed
	return nil
}

func (m *MockTradeRepository) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok || t.UserID != userID {
		return repository.ErrTradeNotFound
	}
	delete(m.trades, id)
	return nil
}

func (m *MockTradeRepository) CountByBroker(_ context.Context, userID int64) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[int64]int)
	for _, t := range m.trades {
		if t.UserID == userID && t.BrokerID != nil {
			counts[*t.BrokerID]++
		}
	}
	return counts, nil
}

func (m *MockTradeRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}

// ============ Mock StrategyRepository ============

type MockStrategyRepository struct {
	strategies map[int64]*models.Strategy
	nextID     int64
	createErr  error
}

func NewMockStrategyRepository() *MockStrategyRepository {
	return &MockStrategyRepository{strategies: make(map[int64]*models.Strategy), nextID: 1}
}

func (m *MockStrategyRepository) Create(_ context.Context, s *models.Strategy) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.strategies {
		if existing.UserID == s.UserID && existing.Name == s.Name {
			return repository.ErrStrategyExists
		}
	}
	s.ID = m.nextID
	m.nextID++
	s.CreatedAt = time.Now()
	copied := *s
	m.strategies[s.ID] = &copied
	return nil
}

func (m *MockStrategyRepository) GetByID(_ context.Context, userID, id int64) (*models.Strategy, error) {
	s, ok := m.strategies[id]
	if !ok || s.UserID != userID {
		return nil, repository.ErrStrategyNotFound
	}
	return s, nil
}

func (m *MockStrategyRepository) ListByUser(_ context.Context, userID int64) ([]*models.Strategy, error) {
	var result []*models.Strategy
	for _, s := range m.strategies {
		if s.UserID == userID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MockStrategyRepository) Delete(_ context.Context, userID, id int64) error {
	s, ok := m.strategies[id]
	if !ok || s.UserID != userID {
		return repository.ErrStrategyNotFound
	}
	delete(m.strategies, id)
	return nil
}

// ============ Mock Upstox ============

type MockUpstox struct {
	exchangeFn func(code string) (*broker.TokenSet, error)
	refreshFn  func(refreshToken string) (*broker.TokenSet, error)
	fetchFn    func(accessToken string) ([]broker.Trade, error)

	// видит контекст запроса, имеет приоритет над refreshFn
	refreshCtxFn func(ctx context.Context, refreshToken string) (*broker.TokenSet, error)

	refreshCalls  int32
	exchangeCalls int32
	fetchCalls    int32
}

func (m *MockUpstox) AuthURL(clientID, redirectURI, state string) string {
	return broker.NewUpstox("", "", nil).AuthURL(clientID, redirectURI, state)
}

func (m *MockUpstox) ExchangeCode(_ context.Context, code, _, _, _ string) (*broker.TokenSet, error) {
	atomic.AddInt32(&m.exchangeCalls, 1)
	if m.exchangeFn == nil {
		return nil, errors.New("exchange not configured")
	}
	return m.exchangeFn(code)
}

func (m *MockUpstox) Refresh(ctx context.Context, refreshToken, _, _ string) (*broker.TokenSet, error) {
	atomic.AddInt32(&m.refreshCalls, 1)
	if m.refreshCtxFn != nil {
		return m.refreshCtxFn(ctx, refreshToken)
	}
	if m.refreshFn == nil {
		return nil, errors.New("refresh not configured")
	}
	return m.refreshFn(refreshToken)
}

func (m *MockUpstox) FetchTrades(_ context.Context, accessToken string) ([]broker.Trade, error) {
	atomic.AddInt32(&m.fetchCalls, 1)
	if m.fetchFn == nil {
		return nil, nil
	}
	return m.fetchFn(accessToken)
}

// ============ Mock Notifier / Publisher ============

type MockNotifier struct {
	mu       sync.Mutex
	imported []websocket.TradesImportedData
	statuses []websocket.BrokerStatusData
}

func (m *MockNotifier) NotifyTradesImported(_ int64, data websocket.TradesImportedData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imported = append(m.imported, data)
}

func (m *MockNotifier) NotifyBrokerStatus(_ int64, data websocket.BrokerStatusData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, data)
}

type MockPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (m *MockPublisher) Publish(_ context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// ofType возвращает опубликованные события указанного типа
func (m *MockPublisher) ofType(eventType string) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ============ Mock BrokerProvider ============

type fakeBroker struct {
	brokerType broker.Type
	lastCreds  models.Credentials
	status     *broker.ConnectionStatus
	err        error
}

func (f *fakeBroker) Type() broker.Type { return f.brokerType }

func (f *fakeBroker) RequiredFields() []broker.Field { return nil }

func (f *fakeBroker) TestConnection(_ context.Context, creds models.Credentials) (*broker.ConnectionStatus, error) {
	f.lastCreds = creds
	return f.status, f.err
}

type MockProvider struct {
	brokers map[string]broker.Broker
}

func (m *MockProvider) Get(name string) (broker.Broker, error) {
	if b, ok := m.brokers[name]; ok {
		return b, nil
	}
	return nil, broker.ErrUnsupportedBroker
}

var (
	_ BrokerRepositoryInterface   = (*MockBrokerRepository)(nil)
	_ TokenRepositoryInterface    = (*MockTokenRepository)(nil)
	_ TradeRepositoryInterface    = (*MockTradeRepository)(nil)
	_ StrategyRepositoryInterface = (*MockStrategyRepository)(nil)
	_ UpstoxClient                = (*MockUpstox)(nil)
	_ Notifier                    = (*MockNotifier)(nil)
	_ events.Publisher            = (*MockPublisher)(nil)
	_ BrokerProvider              = (*MockProvider)(nil)
)

// ============ Сборка сервисов ============

type testEnv struct {
	brokers     *MockBrokerRepository
	tokens      *MockTokenRepository
	trades      *MockTradeRepository
	upstox      *MockUpstox
	notifier    *MockNotifier
	publisher   *MockPublisher
	credentials *CredentialService
	oauth       *OAuthService
	importer    *ImportService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		brokers:   NewMockBrokerRepository(),
		tokens:    NewMockTokenRepository(),
		trades:    NewMockTradeRepository(),
		upstox:    &MockUpstox{},
		notifier:  &MockNotifier{},
		publisher: &MockPublisher{},
	}
	logger := testLogger()
	env.credentials = NewCredentialService(env.brokers, testVault(), logger)
	env.oauth = NewOAuthService(env.tokens, env.credentials, env.upstox, OAuthConfig{
		ClientID:     "cfg-client",
		ClientSecret: "cfg-secret",
		RedirectURI:  "http://localhost:5173/settings?broker=upstox",
	}, logger)
	env.oauth.SetNotifier(env.notifier)
	env.oauth.SetPublisher(env.publisher)
	env.importer = NewImportService(env.oauth, env.upstox, env.credentials, env.trades, logger)
	env.importer.SetNotifier(env.notifier)
	env.importer.SetPublisher(env.publisher)
	return env
}

// freezeTime фиксирует timeNow на время теста
func freezeTime(t interface{ Cleanup(func()) }, now time.Time) {
	prev := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = prev })
}
