package authtest

import (
	"context"
	"sync"
	"time"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer records every message. Set Err to make Send fail.
type Mailer struct {
	mu       sync.Mutex
	Err      error
	messages []Message
}

func (m *Mailer) Send(_ context.Context, to, subject, text, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, Message{To: to, Subject: subject, Text: text, HTML: html})
	return nil
}

func (m *Mailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Clock is a settable time source safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
