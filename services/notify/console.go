package notifysvc

import (
	"context"
	"log"
	"sync"

	"github.com/trezcool/hazira/core/notify"
)

type Message struct {
	Address string
	Text    string
}

// ConsoleSender prints the notifications instead of sending them (development, tests).
type ConsoleSender struct {
	std           *log.Logger
	disableOutput bool

	mu   sync.Mutex
	sent []Message
}

var _ notify.Sender = (*ConsoleSender)(nil)

func NewConsoleSender(std *log.Logger) *ConsoleSender {
	return &ConsoleSender{std: std}
}

// NewConsoleSenderMock records the notifications without printing them.
func NewConsoleSenderMock() *ConsoleSender {
	return &ConsoleSender{disableOutput: true}
}

func (s *ConsoleSender) Send(_ context.Context, address, text string) error {
	if !s.disableOutput {
		s.std.Printf("To: %s\n%s\n", address, text)
	}
	s.mu.Lock()
	s.sent = append(s.sent, Message{Address: address, Text: text})
	s.mu.Unlock()
	return nil
}

// SentMessages returns the messages sent so far.
func (s *ConsoleSender) SentMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
