package sudoapi

import (
	"context"
	"log/slog"

	"github.com/catedral-dev/catedral"
	"github.com/catedral-dev/catedral/sudoapi/flags"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// sendReceipt emails the donor in the background. Callers invoke it only on the transition
// into completed, so redelivered notifications do not resend it.
func (s *BaseAPI) sendReceipt(ctx context.Context, donationID string) {
	if s.mailer == nil || !flags.ReceiptEmail.Value() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		view, err := s.db.DonationView(ctx, donationID)
		if err != nil || view == nil {
			slog.WarnContext(ctx, "Couldn't load donation for receipt", slog.String("donation_id", donationID), slog.Any("err", err))
			return
		}
		msg := receiptMessage(catedral.DefaultLanguage(), view)
		if html, err := s.rd.Render([]byte(msg.PlainContent)); err != nil {
			slog.WarnContext(ctx, "Couldn't render receipt HTML", slog.Any("err", err))
		} else {
			msg.HTMLContent = string(html)
		}
		if err := s.mailer.SendEmail(ctx, msg); err != nil {
			slog.WarnContext(ctx, "Couldn't send receipt email", slog.String("donation_id", donationID), slog.Any("err", err))
		}
	}()
}

func receiptMessage(lang string, view *catedral.DonationView) *catedral.MailerMessage {
	branding := flags.EmailBranding.Value()
	body := catedral.GetText(lang, "receipt.body", view.DonorName, view.Currency, formatAmount(lang, view.Amount), view.Campaign.Title, view.ID)
	if branding != "" {
		body += "\n" + branding + "\n"
	}
	return &catedral.MailerMessage{
		To:           view.DonorEmail,
		Subject:      catedral.GetText(lang, "receipt.subject", branding),
		ReplyTo:      flags.ReceiptReplyTo.Value(),
		PlainContent: body,
	}
}

func formatAmount(lang string, amount decimal.Decimal) string {
	if lang == "en" {
		return humanize.FormatFloat("#,###.##", amount.InexactFloat64())
	}
	return humanize.FormatFloat("#.###,##", amount.InexactFloat64())
}
