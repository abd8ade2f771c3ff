package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

type DecoderFunc func(payload json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry is the consumer side of the catalog: payloads arrive as
// raw JSON with a type and version, and leave as typed structs.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]DecoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]DecoderFunc)}
}

// NewOrderDecoderRegistry registers a decoder for every cataloged event.
func NewOrderDecoderRegistry() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for _, k := range catalog {
		reg.Register(k.eventType, k.version, decodeWith(k.newPayload))
	}
	return reg
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mu.Lock()
	r.decoders[decoderKey{eventType, version}] = decoder
	r.mu.Unlock()
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[decoderKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s v%d", eventType, version)
	}
	return decode(payload)
}

func decodeWith(newPayload func() any) DecoderFunc {
	return func(payload json.RawMessage) (any, error) {
		out := newPayload()
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
