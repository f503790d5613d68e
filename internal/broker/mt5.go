package broker

import (
	"context"

	"tradejournal/internal/models"
)

// MT5Broker - MetaTrader 5, подключение через адрес торгового сервера
type MT5Broker struct{}

// NewMT5 создаёт адаптер MetaTrader 5
func NewMT5() *MT5Broker {
	return &MT5Broker{}
}

func (b *MT5Broker) Type() Type { return MT5 }

func (b *MT5Broker) RequiredFields() []Field {
	return []Field{FieldUserID, FieldPassword, FieldServerAddress}
}

func (b *MT5Broker) TestConnection(_ context.Context, creds models.Credentials) (*ConnectionStatus, error) {
	return validatedOnly(b, creds, msgMissingMT5Credential)
}
