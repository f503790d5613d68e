package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tradejournal/internal/broker"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/internal/service"
)

// ErrMockDatabase - ошибка хранилища для негативных сценариев
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Credential Service ============

// MockCredentialService мок для CredentialServiceInterface
type MockCredentialService struct {
	records   map[int64]*models.BrokerRecord
	creds     map[int64]*models.Credentials
	nextID    int64
	storeErr  error
	getErr    error
	listErr   error
	updateErr error
	deleteErr error
	statusErr error
	mu        sync.RWMutex
}

func NewMockCredentialService() *MockCredentialService {
	return &MockCredentialService{
		records: make(map[int64]*models.BrokerRecord),
		creds:   make(map[int64]*models.Credentials),
		nextID:  1,
	}
}

// SetError устанавливает ошибку для операции
func (m *MockCredentialService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch op {
	case "store":
		m.storeErr = err
	case "get":
		m.getErr = err
	case "list":
		m.listErr = err
	case "update":
		m.updateErr = err
	case "delete":
		m.deleteErr = err
	case "status":
		m.statusErr = err
	}
}

func (m *MockCredentialService) Store(ctx context.Context, input service.StoreBrokerInput) (*models.BrokerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.storeErr != nil {
		return nil, m.storeErr
	}
	for _, r := range m.records {
		if r.BrokerType == input.BrokerType {
			return nil, service.ErrBrokerExists
		}
	}

	record := &models.BrokerRecord{
		ID:         m.nextID,
		UserID:     1,
		Name:       input.Name,
		BrokerType: input.BrokerType,
		Status:     models.BrokerStatusActive,
		CreatedAt:  time.Now(),
	}
	creds := input.Credentials
	m.records[record.ID] = record
	m.creds[record.ID] = &creds
	m.nextID++
	return record, nil
}

func (m *MockCredentialService) Get(ctx context.Context, brokerID int64) (*models.BrokerRecord, *models.Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, nil, m.getErr
	}
	r, ok := m.records[brokerID]
	if !ok {
		return nil, nil, repository.ErrBrokerNotFound
	}
	return r, m.creds[brokerID], nil
}

func (m *MockCredentialService) Update(ctx context.Context, brokerID int64, input service.UpdateBrokerInput) (*models.BrokerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	r, ok := m.records[brokerID]
	if !ok {
		return nil, repository.ErrBrokerNotFound
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, service.ErrInvalidBroker
	}
	if input.Status != nil && *input.Status != models.BrokerStatusActive && *input.Status != models.BrokerStatusInactive {
		return nil, service.ErrInvalidBrokerStatus
	}

	if input.Name != nil {
		r.Name = *input.Name
	}
	if input.Credentials != nil {
		creds := *input.Credentials
		m.creds[brokerID] = &creds
	}
	if input.Status != nil {
		r.Status = *input.Status
	}
	return r, nil
}

func (m *MockCredentialService) Delete(ctx context.Context, brokerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.records[brokerID]; !ok {
		return repository.ErrBrokerNotFound
	}
	delete(m.records, brokerID)
	delete(m.creds, brokerID)
	return nil
}

func (m *MockCredentialService) List(ctx context.Context) ([]*models.BrokerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.BrokerRecord
	for id := int64(1); id < m.nextID; id++ {
		if r, ok := m.records[id]; ok {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MockCredentialService) SetStatus(ctx context.Context, brokerID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErr != nil {
		return m.statusErr
	}
	if status != models.BrokerStatusActive && status != models.BrokerStatusInactive {
		return service.ErrInvalidBrokerStatus
	}
	r, ok := m.records[brokerID]
	if !ok {
		return repository.ErrBrokerNotFound
	}
	r.Status = status
	return nil
}

// ============ Mock Connection Service ============

// MockConnectionService мок для ConnectionServiceInterface
type MockConnectionService struct {
	status      *broker.ConnectionStatus
	err         error
	testCalls   int
	storedCalls int
	lastType    string
	lastID      int64
	mu          sync.Mutex
}

func NewMockConnectionService() *MockConnectionService {
	return &MockConnectionService{
		status: &broker.ConnectionStatus{Status: broker.StatusConnected},
	}
}

func (m *MockConnectionService) Test(ctx context.Context, brokerType string, creds models.Credentials) (*broker.ConnectionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.testCalls++
	m.lastType = brokerType
	if m.err != nil {
		return nil, m.err
	}
	st := *m.status
	st.BrokerType = broker.Type(brokerType)
	return &st, nil
}

func (m *MockConnectionService) TestStored(ctx context.Context, brokerID int64) (*broker.ConnectionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storedCalls++
	m.lastID = brokerID
	if m.err != nil {
		return nil, m.err
	}
	st := *m.status
	return &st, nil
}

// ============ Mock Account Service ============

// MockAccountService мок для AccountServiceInterface
type MockAccountService struct {
	accounts []*models.TradingAccount
	statuses []*models.BrokerStatus
	err      error
}

func (m *MockAccountService) TradingAccounts(ctx context.Context) ([]*models.TradingAccount, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts, nil
}

func (m *MockAccountService) BrokerStatuses(ctx context.Context) ([]*models.BrokerStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.statuses, nil
}

// ============ Mock Trade Service ============

// MockTradeService мок для TradeServiceInterface
type MockTradeService struct {
	trades     map[int64]*models.Trade
	nextID     int64
	lastFilter models.TradeFilter
	createErr  error
	listErr    error
	updateErr  error
	closeErr   error
	mu         sync.Mutex
}

func NewMockTradeService() *MockTradeService {
	return &MockTradeService{
		trades: make(map[int64]*models.Trade),
		nextID: 1,
	}
}

func (m *MockTradeService) Create(ctx context.Context, input service.TradeInput) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	t := &models.Trade{
		ID:           m.nextID,
		Symbol:       input.Symbol,
		TradeType:    input.TradeType,
		PositionSide: models.PositionSideFor(input.TradeType),
		Quantity:     input.Quantity,
		EntryPrice:   input.EntryPrice,
		Status:       models.TradeStatusOpen,
	}
	m.trades[t.ID] = t
	m.nextID++
	return t, nil
}

func (m *MockTradeService) List(ctx context.Context, filter models.TradeFilter) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Trade
	for id := int64(1); id < m.nextID; id++ {
		if t, ok := m.trades[id]; ok {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *MockTradeService) Get(ctx context.Context, id int64) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trades[id]
	if !ok {
		return nil, repository.ErrTradeNotFound
	}
	return t, nil
}

func (m *MockTradeService) Update(ctx context.Context, id int64, input service.TradeUpdate) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	t, ok := m.trades[id]
	if !ok {
		return nil, repository.ErrTradeNotFound
	}
	if input.Notes != nil {
		t.Notes = *input.Notes
	}
	if input.Quantity != nil {
		t.Quantity = *input.Quantity
	}
	return t, nil
}

func (m *MockTradeService) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.trades[id]; !ok {
		return repository.ErrTradeNotFound
	}
	delete(m.trades, id)
	return nil
}

func (m *MockTradeService) Close(ctx context.Context, id int64, input service.CloseTradeInput) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return nil, m.closeErr
	}
	t, ok := m.trades[id]
	if !ok {
		return nil, repository.ErrTradeNotFound
	}
	if t.IsClosed() {
		return nil, service.ErrTradeAlreadyClosed
	}
	exit := input.ExitPrice
	t.ExitPrice = &exit
	t.Status = models.TradeStatusClosed
	return t, nil
}

// ============ Mock Portfolio / Strategy Services ============

// MockPortfolioService мок для PortfolioServiceInterface
type MockPortfolioService struct {
	summary    *models.PortfolioSummary
	analytics  *models.AnalyticsData
	lastPeriod string
	err        error
}

func (m *MockPortfolioService) Summary(ctx context.Context) (*models.PortfolioSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func (m *MockPortfolioService) Analytics(ctx context.Context, period string) (*models.AnalyticsData, error) {
	m.lastPeriod = period
	if m.err != nil {
		return nil, m.err
	}
	switch period {
	case "", "day", "week", "month", "year", "all":
	default:
		return nil, service.ErrInvalidPeriod
	}
	return m.analytics, nil
}

// MockStrategyService мок для StrategyServiceInterface
type MockStrategyService struct {
	strategies []*models.Strategy
	err        error
}

func (m *MockStrategyService) List(ctx context.Context) ([]*models.Strategy, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.strategies, nil
}

func (m *MockStrategyService) Create(ctx context.Context, name, description string) (*models.Strategy, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.strategies {
		if s.Name == name {
			return nil, repository.ErrStrategyExists
		}
	}
	s := &models.Strategy{ID: int64(len(m.strategies) + 1), Name: name, Description: description}
	m.strategies = append(m.strategies, s)
	return s, nil
}

func (m *MockStrategyService) Delete(ctx context.Context, id int64) error {
	if m.err != nil {
		return m.err
	}
	for i, s := range m.strategies {
		if s.ID == id {
			m.strategies = append(m.strategies[:i], m.strategies[i+1:]...)
			return nil
		}
	}
	return repository.ErrStrategyNotFound
}

// ============ Mock OAuth / Import / Sync Services ============

// MockOAuthService мок для OAuthServiceInterface
type MockOAuthService struct {
	beginReq     service.AuthURLRequest
	exchangeReq  service.CodeExchangeRequest
	tokens       *broker.TokenSet
	status       *service.UpstoxStatus
	beginErr     error
	exchangeErr  error
	statusErr    error
	disconnects  int
	stored       *models.OAuthToken
	storedErr    error
	disconnected bool
}

func (m *MockOAuthService) BeginAuth(ctx context.Context, req service.AuthURLRequest) (*service.AuthURLResult, error) {
	m.beginReq = req
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &service.AuthURLResult{URL: "https://upstox.test/dialog?client_id=" + req.ClientID, State: "state-1"}, nil
}

func (m *MockOAuthService) CompleteAuth(ctx context.Context, req service.CodeExchangeRequest) (*broker.TokenSet, error) {
	m.exchangeReq = req
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return m.tokens, nil
}

func (m *MockOAuthService) GetStoredTokens(ctx context.Context) (*models.OAuthToken, error) {
	if m.disconnected {
		return nil, service.ErrNoStoredTokens
	}
	return m.stored, m.storedErr
}

func (m *MockOAuthService) Status(ctx context.Context) (*service.UpstoxStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

func (m *MockOAuthService) Disconnect(ctx context.Context) error {
	m.disconnects++
	m.disconnected = true
	return nil
}

// MockImportService мок для ImportServiceInterface
type MockImportService struct {
	result *service.ImportResult
	err    error
	calls  int
}

func (m *MockImportService) ImportTradesToDatabase(ctx context.Context) (*service.ImportResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// MockSyncService мок для SyncServiceInterface
type MockSyncService struct {
	results []*service.SyncResult
	err     error
}

func (m *MockSyncService) SyncBrokers(ctx context.Context) ([]*service.SyncResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

var (
	_ service.CredentialServiceInterface = (*MockCredentialService)(nil)
	_ service.ConnectionServiceInterface = (*MockConnectionService)(nil)
	_ service.AccountServiceInterface    = (*MockAccountService)(nil)
	_ service.TradeServiceInterface      = (*MockTradeService)(nil)
	_ service.PortfolioServiceInterface  = (*MockPortfolioService)(nil)
	_ service.StrategyServiceInterface   = (*MockStrategyService)(nil)
	_ service.OAuthServiceInterface      = (*MockOAuthService)(nil)
	_ service.ImportServiceInterface     = (*MockImportService)(nil)
	_ service.SyncServiceInterface       = (*MockSyncService)(nil)
)
