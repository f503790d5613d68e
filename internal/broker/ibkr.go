package broker

import (
	"context"

	"tradejournal/internal/models"
)

// IBKRBroker - Interactive Brokers (Client Portal gateway работает локально у пользователя)
type IBKRBroker struct{}

// NewIBKR создаёт адаптер Interactive Brokers
func NewIBKR() *IBKRBroker {
	return &IBKRBroker{}
}

func (b *IBKRBroker) Type() Type { return IBKR }

func (b *IBKRBroker) RequiredFields() []Field {
	return []Field{FieldUserID, FieldPassword}
}

func (b *IBKRBroker) TestConnection(_ context.Context, creds models.Credentials) (*ConnectionStatus, error) {
	return validatedOnly(b, creds, msgMissingUserPassword)
}
