package outbox

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/giftdrop-backend/pkg/enums"
	"github.com/angelmondragon/giftdrop-backend/pkg/outbox/payloads"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// DefaultRegistry knows every event the gift lifecycle emits.
func DefaultRegistry() *DecoderRegistry {
	r := NewDecoderRegistry()
	r.Register(enums.EventGiftPurchased, currentVersion, decodeAs[payloads.GiftPurchasedEvent])
	r.Register(enums.EventGiftReceived, currentVersion, decodeAs[payloads.GiftReceivedEvent])
	return r
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

func decodeAs[T any](payload json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
