package broker

import (
	"context"

	"tradejournal/internal/models"
)

// ZerodhaBroker - Kite Connect. Access token выдаётся только через
// интерактивный логин, поэтому проверяется лишь набор полей.
type ZerodhaBroker struct{}

// NewZerodha создаёт адаптер Zerodha
func NewZerodha() *ZerodhaBroker {
	return &ZerodhaBroker{}
}

func (z *ZerodhaBroker) Type() Type { return Zerodha }

func (z *ZerodhaBroker) RequiredFields() []Field {
	return []Field{FieldAPIKey, FieldAPISecret}
}

// TestConnection проверяет наличие apiKey и apiSecret
func (z *ZerodhaBroker) TestConnection(_ context.Context, creds models.Credentials) (*ConnectionStatus, error) {
	return validatedOnly(z, creds, msgMissingKeySecret)
}
