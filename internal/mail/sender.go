package mail

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"bytebits/internal/model"
)

// Sender delivers queued mail jobs over SMTP.
type Sender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSender(host string, port int, username, password, from string) *Sender {
	return &Sender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *Sender) Send(job model.MailJob) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", job.To)
	m.SetHeader("Subject", job.Subject)
	m.SetBody("text/html", job.HTMLBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s failed: %w", job.To, err)
	}
	return nil
}
