package websocket

import (
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/metrics"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sendBufferSize - размер очереди адресных сообщений hub
const sendBufferSize = 256

// envelope - сериализованное сообщение для конкретного пользователя
type envelope struct {
	userID int64
	data   []byte
}

// Hub управляет WebSocket соединениями, сгруппированными по пользователю.
// Сообщения адресные: каждое доставляется только соединениям своего пользователя.
//
//	hub := NewHub(logger)
//	go hub.Run()
//	hub.NotifyTradesImported(userID, data)
type Hub struct {
	users map[int64]map[*Client]struct{}

	send       chan envelope
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	clientCount int64
	dropped     int64

	logger *utils.Logger
	mu     sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.L()
	}
	return &Hub{
		users:      make(map[int64]map[*Client]struct{}),
		send:       make(chan envelope, sendBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger.WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub. Завершается после Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.users[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.users[client.userID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			h.updateCount(1)
			h.logger.Debug("client connected", utils.UserID(client.userID), utils.Count("clients", h.ClientCount()))

		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Debug("client disconnected", utils.UserID(client.userID), utils.Count("clients", h.ClientCount()))
			}

		case env := <-h.send:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.users[env.userID]))
			for client := range h.users[env.userID] {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- env.data:
				default:
					// Клиент не успевает читать - отключаем
					h.remove(client)
					atomic.AddInt64(&h.dropped, 1)
					metrics.WebsocketDropped.Inc()
					h.logger.Warn("slow client removed", utils.UserID(client.userID))
				}
			}
		}
	}
}

// remove удаляет клиента и закрывает его канал. false, если клиент уже удалён.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[client.userID]
	if !ok {
		return false
	}
	if _, ok := set[client]; !ok {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.users, client.userID)
	}
	close(client.send)
	h.updateCount(-1)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.users {
		for client := range set {
			close(client.send)
			h.updateCount(-1)
		}
		delete(h.users, userID)
	}
}

func (h *Hub) updateCount(delta int64) {
	n := atomic.AddInt64(&h.clientCount, delta)
	metrics.WebsocketClients.Set(float64(n))
}

// Stop останавливает Run и закрывает все соединения
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// SendToUser сериализует сообщение и ставит его в очередь без блокировки.
// При переполнении очереди сообщение отбрасывается.
func (h *Hub) SendToUser(userID int64, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", utils.UserID(userID), utils.Err(err))
		return
	}

	select {
	case h.send <- envelope{userID: userID, data: data}:
	default:
		atomic.AddInt64(&h.dropped, 1)
		metrics.WebsocketDropped.Inc()
	}
}

// NotifyTradesImported отправляет итог импорта пользователю
func (h *Hub) NotifyTradesImported(userID int64, data TradesImportedData) {
	h.SendToUser(userID, NewMessage(MessageTypeTradesImported, data))
}

// NotifyBrokerStatus отправляет новый статус брокера пользователю
func (h *Hub) NotifyBrokerStatus(userID int64, data BrokerStatusData) {
	h.SendToUser(userID, NewMessage(MessageTypeBrokerStatus, data))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(atomic.LoadInt64(&h.clientCount))
}

// UserClientCount возвращает количество соединений пользователя
func (h *Hub) UserClientCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// DroppedMessages возвращает количество отброшенных сообщений
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}
