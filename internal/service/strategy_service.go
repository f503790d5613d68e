package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tradejournal/internal/auth"
	"tradejournal/internal/models"
	"tradejournal/pkg/utils"
)

// ErrInvalidStrategy - ошибка валидации стратегии
var ErrInvalidStrategy = errors.New("invalid strategy")

// StrategyService - стратегии пользователя
type StrategyService struct {
	repo StrategyRepositoryInterface
}

// NewStrategyService создает новый экземпляр сервиса
func NewStrategyService(repo StrategyRepositoryInterface) *StrategyService {
	return &StrategyService{repo: repo}
}

// List возвращает стратегии пользователя
func (s *StrategyService) List(ctx context.Context) ([]*models.Strategy, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// Create добавляет стратегию
func (s *StrategyService) Create(ctx context.Context, name, description string) (*models.Strategy, error) {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if err := utils.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, err)
	}

	strategy := &models.Strategy{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.repo.Create(ctx, strategy); err != nil {
		return nil, err
	}
	return strategy, nil
}

// Delete удаляет стратегию
func (s *StrategyService) Delete(ctx context.Context, id int64) error {
	userID, err := auth.UserIDFromContext(ctx)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, userID, id)
}
