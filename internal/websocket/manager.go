package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager представляет центральный менеджер для всех WebSocket соединений
type Manager struct {
	clients      map[uuid.UUID]*Client
	clientsMutex sync.RWMutex
	userClients  map[string]map[uuid.UUID]bool // userID -> map[clientID]bool
	userMutex    sync.RWMutex
}

// EventType определяет тип события WebSocket
type EventType string

const (
	EventConnected      EventType = "connected"
	EventPong           EventType = "pong"
	EventOfferCreated   EventType = "offer_created"
	EventOfferAccepted  EventType = "offer_accepted"
	EventOfferRejected  EventType = "offer_rejected"
	EventOfferWithdrawn EventType = "offer_withdrawn"
	EventEscrowApproved EventType = "escrow_approved"
	EventFundsReleased  EventType = "funds_released"
	EventAlertCreated   EventType = "alert_created"
)

// Event представляет структуру сообщения для WebSocket
type Event struct {
	Type      EventType       `json:"type"`
	OfferID   string          `json:"offer_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent собирает событие с произвольной полезной нагрузкой
func NewEvent(eventType EventType, offerID uuid.UUID, payload any) Event {
	event := Event{Type: eventType, Timestamp: time.Now()}
	if offerID != uuid.Nil {
		event.OfferID = offerID.String()
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal event payload", slog.Any("error", err))
		} else {
			event.Payload = data
		}
	}
	return event
}

// NewManager создает новый экземпляр Manager
func NewManager() *Manager {
	return &Manager{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[string]map[uuid.UUID]bool),
	}
}

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	// Связываем клиент с пользователем
	m.userMutex.Lock()
	if _, exists := m.userClients[client.UserID]; !exists {
		m.userClients[client.UserID] = make(map[uuid.UUID]bool)
	}
	m.userClients[client.UserID][client.ID] = true
	m.userMutex.Unlock()

	slog.Debug("WebSocket client connected",
		slog.String("client_id", client.ID.String()),
		slog.String("user_id", client.UserID))
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.Lock()
	client, exists := m.clients[clientID]
	if exists {
		delete(m.clients, clientID)
	}
	m.clientsMutex.Unlock()

	if !exists {
		return
	}

	m.userMutex.Lock()
	if clients, ok := m.userClients[client.UserID]; ok {
		delete(clients, clientID)
		// Если это был последний клиент пользователя, удаляем запись пользователя
		if len(clients) == 0 {
			delete(m.userClients, client.UserID)
		}
	}
	m.userMutex.Unlock()

	slog.Debug("WebSocket client disconnected",
		slog.String("client_id", clientID.String()),
		slog.String("user_id", client.UserID))
}

// IsOnline сообщает, есть ли у пользователя открытые соединения
func (m *Manager) IsOnline(userID string) bool {
	m.userMutex.RLock()
	defer m.userMutex.RUnlock()
	return len(m.userClients[userID]) > 0
}

// SendToUser отправляет событие всем соединениям конкретного пользователя
func (m *Manager) SendToUser(userID string, event Event) {
	if userID == "" {
		return
	}

	m.userMutex.RLock()
	clientIDs := make([]uuid.UUID, 0, len(m.userClients[userID]))
	for id := range m.userClients[userID] {
		clientIDs = append(clientIDs, id)
	}
	m.userMutex.RUnlock()

	if len(clientIDs) == 0 {
		// Пользователь не онлайн; письмо из очереди уведомлений всё равно уйдёт
		return
	}

	m.deliver(clientIDs, event)
}

// SendToAdmins отправляет событие всем подключённым администраторам
func (m *Manager) SendToAdmins(event Event) {
	m.clientsMutex.RLock()
	var clientIDs []uuid.UUID
	for id, client := range m.clients {
		if client.IsAdmin() {
			clientIDs = append(clientIDs, id)
		}
	}
	m.clientsMutex.RUnlock()

	if len(clientIDs) > 0 {
		m.deliver(clientIDs, event)
	}
}

func (m *Manager) deliver(clientIDs []uuid.UUID, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", slog.Any("error", err))
		return
	}

	for _, clientID := range clientIDs {
		m.clientsMutex.RLock()
		client, exists := m.clients[clientID]
		m.clientsMutex.RUnlock()

		if !exists {
			continue
		}

		select {
		case client.send <- eventJSON:
		default:
			// Канал заполнен, клиент слишком медленный - закрываем соединение
			slog.Warn("Send channel full, closing connection",
				slog.String("client_id", client.ID.String()))
			m.RemoveClient(client.ID)
			client.Close()
		}
	}
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.clientsMutex.Lock()
	clients := m.clients
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	for _, client := range clients {
		client.Close()
	}

	m.userMutex.Lock()
	m.userClients = make(map[string]map[uuid.UUID]bool)
	m.userMutex.Unlock()
}
