package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/testutil"
)

type sent struct {
	address string
	text    string
}

type senderMock struct {
	mu    sync.Mutex
	sent  []sent
	err   error
	panic bool
	block chan struct{}
}

func (s *senderMock) Send(ctx context.Context, address, text string) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.panic {
		panic("gateway client blew up")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{address: address, text: text})
	return nil
}

var (
	jane = identity.EnrolledIdentity{ID: 1, ExternalRef: "CS-001", DisplayName: "Jane Doe", NotifyAddress: "+243810000000"}
	rec  = attendance.Record{SubjectID: 1, CourseID: 101, Date: "2025-10-01", Status: attendance.StatusAbsent}
)

func TestDispatcher_Notify(t *testing.T) {
	sender := &senderMock{}
	logger := testutil.NewLogger()
	d := NewDispatcher(sender, logger, nil, time.Second)

	d.Notify(jane, rec)
	d.Wait()

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+243810000000", sender.sent[0].address)
	assert.Equal(t, "Jane Doe (CS-001) was marked absent for course 101 on 2025-10-01.", sender.sent[0].text)
	assert.Empty(t, logger.Messages("error"))
}

func TestDispatcher_Notify_noAddress(t *testing.T) {
	sender := &senderMock{}
	d := NewDispatcher(sender, testutil.NewLogger(), nil, time.Second)

	idt := jane
	idt.NotifyAddress = ""
	d.Notify(idt, rec)
	d.Wait()
	assert.Empty(t, sender.sent)
}

func TestDispatcher_Notify_failuresAreLogged(t *testing.T) {
	tests := []struct {
		name   string
		sender *senderMock
	}{
		{name: "send error", sender: &senderMock{err: errors.New("gateway unavailable")}},
		{name: "panic", sender: &senderMock{panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := testutil.NewLogger()
			d := NewDispatcher(tt.sender, logger, nil, time.Second)

			d.Notify(jane, rec)
			d.Wait()

			msgs := logger.Messages("error")
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0], "sending notification: notifying +243810000000")
		})
	}
}

func TestDispatcher_Notify_neverBlocks(t *testing.T) {
	sender := &senderMock{block: make(chan struct{})}
	d := NewDispatcher(sender, testutil.NewLogger(), nil, time.Minute)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Notify(jane, rec)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify() blocked on a slow sender")
	}
	close(sender.block)
	d.Wait()
	assert.Len(t, sender.sent, 10)
}

func TestDispatcher_Notify_timeout(t *testing.T) {
	sender := &senderMock{block: make(chan struct{})}
	logger := testutil.NewLogger()
	d := NewDispatcher(sender, logger, nil, 10*time.Millisecond)

	d.Notify(jane, rec)
	d.Wait()
	assert.Len(t, logger.Messages("error"), 1)
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("{{.Name}}: {{.Status}}")
	require.NoError(t, err)
	text, err := render(tmpl, NewMessage(jane, rec))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe: absent", text)

	_, err = ParseTemplate("{{.Name")
	assert.Error(t, err)

	tmpl, err = ParseTemplate("{{.Parent}}")
	require.NoError(t, err)
	_, err = render(tmpl, NewMessage(jane, rec))
	assert.Error(t, err, "unknown fields fail to render")
}
