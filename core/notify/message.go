package notify

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
)

// DefaultTemplate is the text sent when an attendance record changes.
const DefaultTemplate = `{{.Name}} ({{.ExternalRef}}) was marked {{.Status}} for course {{.CourseID}} on {{.Date}}.`

// Message is the data available to the notification template.
type Message struct {
	Address     string
	Name        string
	ExternalRef string
	SubjectID   int64
	CourseID    int64
	Date        attendance.Date
	Status      attendance.Status
}

func NewMessage(idt identity.EnrolledIdentity, rec attendance.Record) Message {
	return Message{
		Address:     idt.NotifyAddress,
		Name:        idt.DisplayName,
		ExternalRef: idt.ExternalRef,
		SubjectID:   rec.SubjectID,
		CourseID:    rec.CourseID,
		Date:        rec.Date,
		Status:      rec.Status,
	}
}

func ParseTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("notification").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parsing notification template")
	}
	return tmpl, nil
}

func render(tmpl *template.Template, msg Message) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, msg); err != nil {
		return "", errors.Wrap(err, "rendering notification")
	}
	return b.String(), nil
}
