package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"tradejournal/internal/models"
)

func TestStrategyRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO strategies`).
					WithArgs(int64(7), "Breakout", "opening range", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
		},
		{
			name: "duplicate pq error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO strategies`).
					WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
			},
			expectError: ErrStrategyExists,
		},
		{
			name: "duplicate text error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO strategies`).
					WillReturnError(errors.New("duplicate key value violates unique constraint"))
			},
			expectError: ErrStrategyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewStrategyRepository(db)
			s := &models.Strategy{UserID: 7, Name: "Breakout", Description: "opening range"}
			err = repo.Create(context.Background(), s)

			if !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}
			if tt.expectError == nil && s.ID != 1 {
				t.Errorf("expected ID=1, got %d", s.ID)
			}
		})
	}
}

func TestStrategyRepositoryGetAndList(t *testing.T) {
	now := time.Now()

	db, mock, _ := sqlmock.New()
	defer db.Close()

	columns := []string{"id", "user_id", "name", "description", "created_at"}
	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE id = \$1 AND user_id = \$2`).
		WithArgs(int64(1), int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(1, 7, "Breakout", nil, now))
	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE id = \$1 AND user_id = \$2`).
		WithArgs(int64(2), int64(7)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE user_id = \$1 ORDER BY name`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, 7, "Breakout", nil, now).
			AddRow(2, 7, "Mean reversion", "fade extremes", now))

	repo := NewStrategyRepository(db)

	s, err := repo.GetByID(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Description != "" {
		t.Error("NULL description must become empty string")
	}

	if _, err := repo.GetByID(context.Background(), 7, 2); !errors.Is(err, ErrStrategyNotFound) {
		t.Errorf("expected ErrStrategyNotFound, got %v", err)
	}

	list, err := repo.ListByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[1].Description != "fade extremes" {
		t.Errorf("unexpected list: %+v", list)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryDelete(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec(`DELETE FROM strategies`).
		WithArgs(int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewStrategyRepository(db)
	if err := repo.Delete(context.Background(), 7, 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"pq unique", &pq.Error{Code: "23505"}, true},
		{"pq other", &pq.Error{Code: "23503"}, false},
		{"text duplicate key", errors.New("duplicate key value"), true},
		{"other", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.expected {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	for range schemaStatements {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMigrate_StopsOnError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS brokers`).WillReturnError(errors.New("permission denied"))

	if err := Migrate(context.Background(), db); err == nil {
		t.Error("expected error")
	}
}
