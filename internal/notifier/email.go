// Package notifier sends the ticket confirmation email after a
// successful payment. Delivery is best-effort: the order is already
// PAID by the time this runs, so a failed send only gets logged.
package notifier

import (
	"bytes"
	"context"
	"fmt"

	"cinema-ticketing/internal/config"
	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"

	"github.com/skip2/go-qrcode"
	"github.com/wneessen/go-mail"
)

// DetailsReader resolves the email contents for an order.
type DetailsReader interface {
	OrderEmailDetails(ctx context.Context, orderID string) (*models.OrderEmailDetails, error)
}

type EmailNotifier struct {
	client  *mail.Client
	from    string
	details DetailsReader
	logger  *logger.Logger
}

// New returns a notifier, or nil when SMTP is not configured; callers
// treat a nil notifier as "skip email".
func New(cfg config.SMTPConfig, details DetailsReader, log *logger.Logger) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &EmailNotifier{client: client, from: cfg.From, details: details, logger: log}, nil
}

// OrderPaid emails the tickets for a paid order, one QR code per seat.
// Users without an email on file are skipped silently.
func (n *EmailNotifier) OrderPaid(ctx context.Context, orderID string) error {
	details, err := n.details.OrderEmailDetails(ctx, orderID)
	if err != nil {
		return err
	}
	if details.Email == "" {
		n.logger.Info("MAIL", fmt.Sprintf("order %s: no email on file, skipping ticket mail", orderID))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return err
	}
	if err := msg.To(details.Email); err != nil {
		return err
	}
	msg.Subject(fmt.Sprintf("Your tickets for %s", details.MovieTitle))

	var body bytes.Buffer
	fmt.Fprintf(&body, "Your booking %s is confirmed.\n\n", details.OrderID)
	fmt.Fprintf(&body, "%s\n%s, %s\n%s\n\nSeats:\n", details.MovieTitle, details.CinemaName, details.HallName, details.StartsAt.Format("Mon, 2 Jan 2006 15:04"))
	for _, seat := range details.Seats {
		fmt.Fprintf(&body, "  Row %d, seat %d\n", seat.Row, seat.Num)
	}
	body.WriteString("\nShow the attached QR codes at the entrance.\n")
	msg.SetBodyString(mail.TypeTextPlain, body.String())

	for _, seat := range details.Seats {
		png, err := qrcode.Encode(seat.TicketID, qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("qr for ticket %s: %w", seat.TicketID, err)
		}
		if err := msg.AttachReader(fmt.Sprintf("ticket-%d-%d.png", seat.Row, seat.Num), bytes.NewReader(png)); err != nil {
			return fmt.Errorf("attach qr for ticket %s: %w", seat.TicketID, err)
		}
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send ticket mail: %w", err)
	}
	n.logger.Info("MAIL", fmt.Sprintf("ticket mail sent for order %s to %s", orderID, details.Email))
	return nil
}
