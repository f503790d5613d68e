package service

import (
	"context"
	"fmt"
	"time"

	"tradejournal/internal/broker"
)

// timeNow подменяется в тестах
var timeNow = time.Now

// withBrokerLimit задаёт ключ rate limit исходящих запросов: брокер + пользователь
func withBrokerLimit(ctx context.Context, t broker.Type, userID int64) context.Context {
	return broker.WithLimitKey(ctx, fmt.Sprintf("%s:%d", t, userID))
}
