package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

// uniqueViolation - код ошибки Postgres для нарушения UNIQUE
const uniqueViolation = "23505"

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, uniqueViolation)
}

// requireAffected возвращает notFound, если запрос не затронул ни одной строки
func requireAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
