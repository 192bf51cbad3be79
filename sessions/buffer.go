package sessions

// messageBuffer is a fixed capacity FIFO. Appending to a full buffer evicts the oldest message.
type messageBuffer struct {
	items []*InboundMessage
	head  int // index of the oldest message
	size  int
}

func newMessageBuffer(capacity int) *messageBuffer {
	return &messageBuffer{items: make([]*InboundMessage, capacity)}
}

// push adds msg and returns the evicted message, if any.
func (b *messageBuffer) push(msg *InboundMessage) *InboundMessage {
	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = msg
		b.size++
		return nil
	}
	evicted := b.items[b.head]
	b.items[b.head] = msg
	b.head = (b.head + 1) % capacity
	return evicted
}

// snapshot returns the messages oldest first.
func (b *messageBuffer) snapshot() []*InboundMessage {
	out := make([]*InboundMessage, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(b.head+i)%len(b.items)])
	}
	return out
}

func (b *messageBuffer) count() int {
	return b.size
}

// reset empties the buffer and returns its previous size.
func (b *messageBuffer) reset() int {
	n := b.size
	clear(b.items)
	b.head, b.size = 0, 0
	return n
}
