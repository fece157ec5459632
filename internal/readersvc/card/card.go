package card

import (
	"context"
	"errors"
	"fmt"

	"github.com/zesik/felicatool/internal/comm"
)

// FeliCa service codes of a transit card.
const (
	ServiceBalance uint16 = 0x008b
	ServiceHistory uint16 = 0x090f
	ServiceInOut   uint16 = 0x108f
)

// TypeFelica is the tag type of FeliCa cards.
const TypeFelica = "Type3Tag"

var (
	// ErrNoSuchBlock is returned by ReadBlock past the last block of a service.
	ErrNoSuchBlock = errors.New("card: no such block")
	// ErrNoDevice means no reader is available at the given path.
	ErrNoDevice = errors.New("card: no reader device")
)

// Tag is a presented card.
type Tag interface {
	Identifier() []byte
	Type() string
	Product() string
	// ReadBlock reads one block of a service without encryption.
	ReadBlock(service uint16, block int) ([]byte, error)
}

// Frontend is a reader device that senses cards.
type Frontend interface {
	Device() comm.Device
	// Sense blocks until a card is presented or ctx is done.
	Sense(ctx context.Context) (Tag, error)
	Close() error
}

// Opener opens the reader found at a device path.
type Opener func(path string) (Frontend, error)

// ReadAllBlocks reads blocks 0, 1, 2, ... of a service until the card
// reports there are no more.
func ReadAllBlocks(tag Tag, service uint16) ([][]byte, error) {
	var blocks [][]byte
	for i := 0; ; i++ {
		b, err := tag.ReadBlock(service, i)
		if errors.Is(err, ErrNoSuchBlock) {
			return blocks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read service 0x%04x block %d: %w", service, i, err)
		}
		blocks = append(blocks, b)
	}
}
