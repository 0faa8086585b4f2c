package push

import "context"

// Handler receives a raw topic/payload pair from a push transport and
// feeds it into the device store's merge entry point.
type Handler func(topic string, payload []byte)

// Listener is a push-channel transport. Start blocks until the context is
// cancelled; Subscribe may be called before or after Start as device
// topics become known.
type Listener interface {
	Start(ctx context.Context) error
	Subscribe(topic string) error
}
