package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockNATSClient is a simple in-memory NATS client for testing (core message passing).
// Satisfies the Publisher interface the NATS output depends on.
// Thread-safe for concurrent use from multiple goroutines.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]func(context.Context, []byte)
	closed        bool
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]func(context.Context, []byte)),
		closed:        false,
	}
}

// Publish publishes a message to a subject (matches natsclient.Client signature).
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}

	if c.messages[subject] == nil {
		c.messages[subject] = make([][]byte, 0)
	}

	c.messages[subject] = append(c.messages[subject], data)

	// Copy handlers to avoid holding lock during callbacks
	var handlers []func(context.Context, []byte)
	if h, ok := c.subscriptions[subject]; ok {
		handlers = make([]func(context.Context, []byte), len(h))
		copy(handlers, h)
	}
	c.mu.Unlock()

	// Call handlers outside the lock to prevent deadlock
	// Create per-message context with 30s timeout (matches real client)
	for _, handler := range handlers {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		handler(msgCtx, data)
		cancel()
	}

	return nil
}

// Subscribe creates a subscription to a subject (matches natsclient.Client signature).
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	// Check for cancellation before subscribing
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	if c.subscriptions[subject] == nil {
		c.subscriptions[subject] = make([]func(context.Context, []byte), 0)
	}

	c.subscriptions[subject] = append(c.subscriptions[subject], handler)
	return nil
}

// GetMessages returns all messages for a subject as [][]byte.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return a copy to prevent races on the returned slice
	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Clear clears all messages from a subject.
func (c *MockNATSClient) Clear(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[subject] = make([][]byte, 0)
}

// ClearAll clears all messages from all subjects.
func (c *MockNATSClient) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make(map[string][][]byte)
}

// Close closes the mock client.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed returns whether the client is closed.
func (c *MockNATSClient) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
