package websocket

import "time"

// MessageType определяет тип WebSocket сообщения
type MessageType string

const (
	// MessageTypeTradesImported - завершён импорт сделок брокера
	MessageTypeTradesImported MessageType = "tradesImported"

	// MessageTypeBrokerStatus - изменился статус брокера (OAuth подключение, отключение)
	MessageTypeBrokerStatus MessageType = "brokerStatus"
)

// Message - конверт всех сообщений, отправляемых клиенту
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TradesImportedData - итог импорта
type TradesImportedData struct {
	BrokerID      int64  `json:"broker_id"`
	BrokerType    string `json:"broker_type"`
	ImportedCount int    `json:"imported_count"`
	TotalTrades   int    `json:"total_trades"`
}

// BrokerStatusData - новый статус брокера
type BrokerStatusData struct {
	BrokerID       int64  `json:"broker_id"`
	BrokerType     string `json:"broker_type"`
	Status         string `json:"status"`
	TokenConnected bool   `json:"token_connected"`
}

// NewMessage создаёт сообщение с текущим временем
func NewMessage(t MessageType, data interface{}) *Message {
	return &Message{Type: t, Timestamp: time.Now().UTC(), Data: data}
}
