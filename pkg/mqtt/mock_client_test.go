package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type mockToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *mockToken {
	t := &mockToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Done() <-chan struct{}          { return t.done }
func (t *mockToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// mockClient records publishes and subscriptions
type mockClient struct {
	mu            sync.Mutex
	connected     bool
	publishErr    error
	connectErrs   []error
	connectCalls  int
	published     []published
	subscriptions map[string]paho.MessageHandler
}

func newMockClient() *mockClient {
	return &mockClient{connected: true, subscriptions: make(map[string]paho.MessageHandler)}
}

func (c *mockClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *mockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *mockClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		if err != nil {
			return newToken(err)
		}
	}
	c.connected = true
	return newToken(nil)
}

func (c *mockClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	c.published = append(c.published, published{topic, qos, retained, s})
	return newToken(c.publishErr)
}

func (c *mockClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[topic] = callback
	return newToken(nil)
}

func (c *mockClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic := range filters {
		c.subscriptions[topic] = callback
	}
	return newToken(nil)
}

func (c *mockClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subscriptions, topic)
	}
	return newToken(nil)
}

func (c *mockClient) AddRoute(topic string, callback paho.MessageHandler) {}

func (c *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

// last returns the most recent publish on topic
func (c *mockClient) last(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.published) - 1; i >= 0; i-- {
		if c.published[i].topic == topic {
			return c.published[i], true
		}
	}
	return published{}, false
}

func (c *mockClient) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.published {
		if len(p.topic) >= len(prefix) && p.topic[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 1 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
