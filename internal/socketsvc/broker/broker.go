package broker

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/zesik/felicatool/internal/comm"
	"github.com/zesik/felicatool/internal/socketsvc/ws"
)

type Broker struct {
	Conn *nats.Conn
	ws   *ws.Ws
}

func NewBroker(conn *nats.Conn, s *ws.Ws) *Broker {
	return &Broker{
		Conn: conn,
		ws:   s,
	}
}

// consume message from reader service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) handleMessages(msgNats *nats.Msg) {
	b.Relay(msgNats.Data)
}

// Relay forwards a reader service message to every web client.
func (b *Broker) Relay(data []byte) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(data, message); err != nil {
		log.Errorf("Error decoding reader message: %s", err)
		return
	}

	switch message.Type {
	case comm.TypeHardware, comm.TypeFelica:
		b.ws.Remember(message.Type, data)
		b.ws.Broadcast(data)
	default:
		log.Errorf("Unknown message type %s", message.Type)
	}
}
