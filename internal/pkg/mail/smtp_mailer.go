package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/loadway/Loadway/internal/pkg/env"
)

// SMTPMailer sends emails via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if host == "" {
		return fmt.Errorf("SMTP_HOST not set, mail to %s not sent", to)
	}
	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendPaymentReceipt mails a confirmation for a completed plan payment.
func SendPaymentReceipt(to, name, planName string, amountMinorUnits int64, paymentID string) error {
	if to == "" {
		return nil
	}
	if name == "" {
		name = "there"
	}

	subject := fmt.Sprintf("Your %s plan is active", planName)
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>your payment of <strong>%.2f</strong> for the <strong>%s</strong> plan was received.</p>"+
			"<p>Payment reference: %s</p>"+
			"<p>Thanks for riding with Loadway.</p>",
		name, float64(amountMinorUnits)/100, planName, paymentID,
	)

	return SendMail(to, subject, body)
}
