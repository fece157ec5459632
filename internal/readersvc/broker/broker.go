package broker

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/zesik/felicatool/internal/comm"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Broker publishes reader status and card data for the socket service. It
// remembers the last status and device so every hardware message is whole.
type Broker struct {
	conn  Publisher
	topic string

	mu     sync.Mutex
	status string
	device *comm.Device
}

func NewBroker(conn Publisher, topic string) *Broker {
	return &Broker{conn: conn, topic: topic}
}

func (b *Broker) EmitStatus(status string, device *comm.Device) {
	b.mu.Lock()
	if status != "" {
		b.status = status
	}
	if device != nil {
		d := *device
		b.device = &d
	}
	hs := comm.HardwareStatus{Status: b.status, Device: b.device}
	b.mu.Unlock()

	b.publish(comm.TypeHardware, hs)
}

func (b *Broker) EmitData(data comm.CardData) {
	b.publish(comm.TypeFelica, data)
}

func (b *Broker) publish(msgType string, payload interface{}) {
	msg, err := comm.Encode(msgType, payload)
	if err != nil {
		log.Errorf("unable to marshal %s message: %s", msgType, err)
		return
	}

	if err := b.conn.Publish(b.topic, msg); err != nil {
		log.Errorf("Error publishing to topic %s: %s", b.topic, err)
	}
}
