package notifysvc

import (
	"context"
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/notify"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"

	ErrNotAnEmail = errors.New("address is not an e-mail address")

	sendgridAPI = sendgrid.API // mockable
)

// SendgridSender e-mails notifications through SendGrid.
type SendgridSender struct {
	key     string
	from    *sgmail.Email
	subject string
}

var _ notify.Sender = (*SendgridSender)(nil)

func NewSendgridSender(conf *core.Config) *SendgridSender {
	from := conf.DefaultFromEmail()
	return &SendgridSender{
		key:     conf.SendgridAPIKey,
		from:    sgmail.NewEmail(from.Name, from.Address),
		subject: "[" + conf.AppName + "] Attendance",
	}
}

func (s *SendgridSender) prepare(to *mail.Address, text string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subject
	p.AddTos(sgmail.NewEmail(to.Name, to.Address))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", text))
	return m
}

func (s *SendgridSender) Send(ctx context.Context, address, text string) error {
	to, err := mail.ParseAddress(address)
	if err != nil {
		return ErrNotAnEmail
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(to, text))

	res, err := sendgridAPI(req)
	if err != nil {
		return errors.Wrap(err, "calling sendgrid")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sendgrid status: %d - body: %s", res.StatusCode, res.Body)
	}
	return nil
}
