package notify

import (
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
)

const defaultTimeout = 10 * time.Second

type (
	// Sender delivers a text to an address (phone number, e-mail...).
	Sender interface {
		Send(ctx context.Context, address, text string) error
	}

	NotificationError struct {
		Address string
		Err     error
	}

	// Dispatcher sends one best-effort message per attendance change.
	// Sending happens in the background: failures are logged and never retried.
	Dispatcher struct {
		sender  Sender
		logger  core.Logger
		tmpl    *template.Template
		timeout time.Duration
		wg      sync.WaitGroup
	}
)

var _ attendance.Notifier = (*Dispatcher)(nil) // interface compliance check

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notifying %s: %v", e.Address, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// NewDispatcher returns a Dispatcher rendering messages with tmpl (DefaultTemplate if nil).
func NewDispatcher(sender Sender, logger core.Logger, tmpl *template.Template, timeout time.Duration) *Dispatcher {
	if tmpl == nil {
		tmpl = template.Must(ParseTemplate(DefaultTemplate))
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{sender: sender, logger: logger, tmpl: tmpl, timeout: timeout}
}

// Notify schedules a message about rec to idt's notification address, if any. It never blocks.
func (d *Dispatcher) Notify(idt identity.EnrolledIdentity, rec attendance.Record) {
	if !idt.HasNotifyAddress() {
		return
	}
	msg := NewMessage(idt, rec)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.send(msg); err != nil {
			d.logger.Error(fmt.Sprintf("sending notification: %v", err), err, idt)
		}
	}()
}

func (d *Dispatcher) send(msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NotificationError{Address: msg.Address, Err: errors.Errorf("panic: %v", r)}
		}
	}()

	text, err := render(d.tmpl, msg)
	if err != nil {
		return &NotificationError{Address: msg.Address, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sender.Send(ctx, msg.Address, text); err != nil {
		return &NotificationError{Address: msg.Address, Err: err}
	}
	return nil
}

// Wait blocks until every scheduled message has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
