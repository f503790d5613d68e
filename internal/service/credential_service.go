package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/auth"
	"tradejournal/internal/broker"
	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/pkg/crypto"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки сервиса
var (
	ErrInvalidCredentialsFormat = errors.New("invalid credentials format")
	ErrBrokerExists             = errors.New("broker already exists")
	ErrInvalidBrokerStatus      = errors.New("invalid broker status")
	ErrInvalidBroker            = errors.New("invalid broker")
)

// StoreBrokerInput - данные для добавления брокера
type StoreBrokerInput struct {
	Name        string             `json:"name"`
	BrokerType  string             `json:"broker_type"`
	Credentials models.Credentials `json:"credentials"`
}

// UpdateBrokerInput - частичное обновление брокера
type UpdateBrokerInput struct {
	Name        *string             `json:"name,omitempty"`
	Credentials *models.Credentials `json:"credentials,omitempty"`
	Status      *string             `json:"status,omitempty"`
}

// CredentialService хранит учетные данные брокеров пользователя.
// Blob с полями сериализуется в JSON и шифруется ключом пользователя.
type CredentialService struct {
	repo     BrokerRepositoryInterface
	vault    *crypto.Vault
	logger   *utils.Logger
	defaults map[broker.Type]models.Credentials
}

// NewCredentialService создает новый экземпляр сервиса
func NewCredentialService(repo BrokerRepositoryInterface, vault *crypto.Vault, logger *utils.Logger) *CredentialService {
	if logger == nil {
		logger = utils.L()
	}
	return &CredentialService{
		repo:     repo,
		vault:    vault,
		logger:   logger.WithComponent("credentials"),
		defaults: make(map[broker.Type]models.Credentials),
	}
}

// SetDefaults задаёт ключи приложения брокера из конфигурации.
// Вызывается при сборке, до обработки запросов.
func (s *CredentialService) SetDefaults(brokerType broker.Type, creds models.Credentials) {
	s.defaults[brokerType] = creds
}

// WithDefaults заполняет пустые apiKey и apiSecret значениями по умолчанию
func (s *CredentialService) WithDefaults(brokerType broker.Type, creds models.Credentials) models.Credentials {
	if s == nil {
		return creds
	}
	def, ok := s.defaults[brokerType]
	if !ok {
		return creds
	}
	if creds.APIKey == "" {
		creds.APIKey = def.APIKey
	}
	if creds.APISecret == "" {
		creds.APISecret = def.APISecret
	}
	return creds
}

// Store сохраняет новый брокерский аккаунт. Статус - active.
// Повторное добавление брокера того же типа возвращает ErrBrokerExists.
func (s *CredentialService) Store(ctx context.Context, input StoreBrokerInput) (*models.BrokerRecord, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	brokerType, err := broker.ParseType(input.BrokerType)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = brokerType.DisplayName()
	}
	if err := utils.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBroker, err)
	}

	if _, err := s.repo.GetByUserAndType(ctx, userID, string(brokerType)); err == nil {
		return nil, ErrBrokerExists
	} else if !errors.Is(err, repository.ErrBrokerNotFound) {
		return nil, err
	}

	sealed, err := s.seal(userID, s.WithDefaults(brokerType, input.Credentials))
	if err != nil {
		return nil, err
	}

	record := &models.BrokerRecord{
		UserID:      userID,
		Name:        name,
		BrokerType:  string(brokerType),
		Credentials: sealed,
		Status:      models.BrokerStatusActive,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("broker stored",
		utils.UserID(userID),
		utils.BrokerID(record.ID),
		utils.BrokerType(record.BrokerType))
	return record, nil
}

// Get возвращает запись и расшифрованные учетные данные
func (s *CredentialService) Get(ctx context.Context, brokerID int64) (*models.BrokerRecord, *models.Credentials, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	record, err := s.repo.GetByID(ctx, userID, brokerID)
	if err != nil {
		return nil, nil, err
	}

	creds, err := s.open(userID, record.Credentials)
	if err != nil {
		return record, nil, err
	}
	return record, creds, nil
}

// GetByType возвращает брокера пользователя указанного типа с учетными данными
func (s *CredentialService) GetByType(ctx context.Context, brokerType broker.Type) (*models.BrokerRecord, *models.Credentials, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	record, err := s.repo.GetByUserAndType(ctx, userID, string(brokerType))
	if err != nil {
		return nil, nil, err
	}

	creds, err := s.open(userID, record.Credentials)
	if err != nil {
		return record, nil, err
	}
	return record, creds, nil
}

// Update меняет имя и/или учетные данные
func (s *CredentialService) Update(ctx context.Context, brokerID int64, input UpdateBrokerInput) (*models.BrokerRecord, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if input.Status != nil && !validBrokerStatus(*input.Status) {
		return nil, ErrInvalidBrokerStatus
	}

	record, err := s.repo.GetByID(ctx, userID, brokerID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := utils.ValidateName(name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBroker, err)
		}
		record.Name = name
	}
	if input.Credentials != nil {
		sealed, err := s.seal(userID, *input.Credentials)
		if err != nil {
			return nil, err
		}
		record.Credentials = sealed
	}
	if input.Status != nil {
		record.Status = *input.Status
	}

	// все поля проверены, пишем одной операцией
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Ensure находит брокера типа brokerType или создаёт его и делает активным.
// Непустые creds заменяют сохранённые учетные данные.
func (s *CredentialService) Ensure(ctx context.Context, brokerType broker.Type, creds *models.Credentials) (*models.BrokerRecord, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.GetByUserAndType(ctx, userID, string(brokerType))
	if errors.Is(err, repository.ErrBrokerNotFound) {
		var blob models.Credentials
		if creds != nil {
			blob = *creds
		}
		sealed, err := s.seal(userID, blob)
		if err != nil {
			return nil, err
		}
		record = &models.BrokerRecord{
			UserID:      userID,
			Name:        brokerType.DisplayName(),
			BrokerType:  string(brokerType),
			Credentials: sealed,
			Status:      models.BrokerStatusActive,
		}
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, err
		}
		s.logger.Info("broker created", utils.UserID(userID), utils.BrokerID(record.ID), utils.BrokerType(record.BrokerType))
		return record, nil
	}
	if err != nil {
		return nil, err
	}

	if creds == nil && record.IsActive() {
		return record, nil
	}
	if creds != nil {
		sealed, err := s.seal(userID, *creds)
		if err != nil {
			return nil, err
		}
		record.Credentials = sealed
	}
	record.Status = models.BrokerStatusActive
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete удаляет брокера
func (s *CredentialService) Delete(ctx context.Context, brokerID int64) error {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, brokerID); err != nil {
		return err
	}
	s.logger.Info("broker deleted", utils.UserID(userID), utils.BrokerID(brokerID))
	return nil
}

// List возвращает всех брокеров пользователя (без секретов в JSON)
func (s *CredentialService) List(ctx context.Context) ([]*models.BrokerRecord, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// ListActive возвращает активных брокеров пользователя
func (s *CredentialService) ListActive(ctx context.Context) ([]*models.BrokerRecord, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListActiveByUser(ctx, userID)
}

// SetStatus переводит брокера в active/inactive
func (s *CredentialService) SetStatus(ctx context.Context, brokerID int64, status string) error {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	if !validBrokerStatus(status) {
		return ErrInvalidBrokerStatus
	}
	return s.repo.SetStatus(ctx, userID, brokerID, status)
}

// TouchLastSync отмечает время последней синхронизации
func (s *CredentialService) TouchLastSync(ctx context.Context, brokerID int64) error {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	return s.repo.TouchLastSync(ctx, userID, brokerID, timeNow())
}

// seal сериализует учетные данные в JSON и шифрует ключом пользователя
func (s *CredentialService) seal(userID int64, creds models.Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	return s.vault.Seal(userID, string(raw))
}

// open расшифровывает blob. Любая ошибка - ErrInvalidCredentialsFormat.
func (s *CredentialService) open(userID int64, blob string) (*models.Credentials, error) {
	plain, err := s.vault.Open(userID, blob)
	if err != nil {
		return nil, ErrInvalidCredentialsFormat
	}

	var creds models.Credentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return nil, ErrInvalidCredentialsFormat
	}
	return &creds, nil
}

func validBrokerStatus(status string) bool {
	return status == models.BrokerStatusActive || status == models.BrokerStatusInactive
}
