package notify

import (
	"time"

	"github.com/sirupsen/logrus"
	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/insightpipe/internal/config"
)

// EmailSender delivers messages via SMTP.
type EmailSender struct {
	cfg  config.EmailConfig
	log  logrus.FieldLogger
	send func(*gomail.Message) error
}

func NewEmailSender(cfg config.EmailConfig, log logrus.FieldLogger) *EmailSender {
	s := &EmailSender{cfg: cfg, log: log}
	s.send = s.dialAndSend
	return s
}

// Send delivers an email with HTML body and plain text fallback. It is a
// no-op when SMTP is not configured.
func (s *EmailSender) Send(msg *RenderedMessage) error {
	if !s.cfg.Enabled() {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", s.cfg.ToEmail)
	m.SetHeader("Subject", msg.Subject)

	if msg.HTML != "" && msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
	} else {
		m.SetBody("text/plain", msg.Text)
	}

	if err := s.send(m); err != nil {
		s.log.WithField("to", s.cfg.ToEmail).Errorf("Failed to send email (Subject: %s): %v", msg.Subject, err)
		return err
	}

	s.log.Infof("Email sent: %s", msg.Subject)
	return nil
}

func (s *EmailSender) dialAndSend(m *gomail.Message) error {
	dialer := gomail.NewDialer(s.cfg.SMTPServer, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second
	return dialer.DialAndSend(m)
}

// EmailReporter renders the run report and mails it.
type EmailReporter struct {
	renderer *HTMLEmailRenderer
	sender   *EmailSender
	log      logrus.FieldLogger
}

func NewEmailReporter(sender *EmailSender, log logrus.FieldLogger) *EmailReporter {
	return &EmailReporter{renderer: NewHTMLEmailRenderer(), sender: sender, log: log}
}

// Report sends the report. Failures are logged; a run is never failed by its
// notification.
func (e *EmailReporter) Report(r *RunReport) {
	msg, err := e.renderer.Render(r)
	if err != nil {
		e.log.Errorf("Failed to render run report: %v", err)
		return
	}
	_ = e.sender.Send(msg)
}
