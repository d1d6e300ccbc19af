package core

// Client is one live connection as seen by the core layer. The transport
// drains Events onto the socket from a dedicated write loop.
type Client struct {
	ID     string
	Events chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *Event, 16),
	}
}

// deliver queues an event without blocking. Slow consumers are dropped
// rather than allowed to stall a broadcast.
func (c *Client) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
