package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/zesik/felicatool/internal/comm"
)

const writeWait = 10 * time.Second

// client serialises writes; a websocket connection supports one writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId

	mu       sync.RWMutex
	hardware []byte // last hardware message
	card     []byte // last felica message
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case comm.TypeStatus:
		s.SendHardware(socketId)
	default:
		log.Warnf("unknown event received: %s", message.Type)
	}
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, &client{conn: conn})
}

func (s *Ws) getClient(socketId string) (*client, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*client), true
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
}

func (s *Ws) Count() int {
	count := 0
	s.connMap.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// Remember keeps the latest message of each relayed type for sockets that
// connect later.
func (s *Ws) Remember(msgType string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msgType {
	case comm.TypeHardware:
		s.hardware = payload
	case comm.TypeFelica:
		s.card = payload
	}
}

// LastCard returns the data of the last card read, if any.
func (s *Ws) LastCard() (json.RawMessage, bool) {
	s.mu.RLock()
	payload := s.card
	s.mu.RUnlock()
	if payload == nil {
		return nil, false
	}

	msg := &comm.WSMessage{}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, false
	}
	return msg.Data, true
}

// SendHardware sends the current reader status to one socket.
func (s *Ws) SendHardware(socketId string) {
	s.mu.RLock()
	payload := s.hardware
	s.mu.RUnlock()
	if payload == nil {
		return
	}
	s.Send(socketId, payload)
}

func (s *Ws) Send(socketId string, payload []byte) {
	c, ok := s.getClient(socketId)
	if !ok {
		return
	}
	if err := c.write(payload); err != nil {
		log.Errorf("Failed to send message to socket %s: %v", socketId, err)
	}
}

// Broadcast sends a message to every connected socket.
func (s *Ws) Broadcast(payload []byte) {
	s.connMap.Range(func(key, value any) bool {
		if err := value.(*client).write(payload); err != nil {
			log.Errorf("Failed to send message to socket %s: %v", key, err)
		}
		return true
	})
}
