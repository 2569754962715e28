package sudoapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/catedral-dev/catedral/sudoapi/flags"
)

type alertEntry struct {
	Message string
	Attrs   []slog.Attr
}

// Alert raises a condition an operator must look at (typically a charge that succeeded
// without the donation being updated). It never blocks the caller.
func (s *BaseAPI) Alert(ctx context.Context, msg string, attrs ...slog.Attr) {
	select {
	case s.alertChan <- &alertEntry{Message: msg, Attrs: attrs}:
	default:
		slog.ErrorContext(ctx, "Alert queue full, dropping alert", slog.String("alert", msg))
	}
}

func (s *BaseAPI) ingestAlerts(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return nil
		case val := <-s.alertChan:
			slog.LogAttrs(ctx, slog.LevelWarn, "Operator alert: "+val.Message, val.Attrs...)

			webhook := flags.AlertsWebhook.Value()
			if webhook == "" || s.alerter == nil {
				continue
			}
			if err := s.alerter.SendAlert(ctx, webhook, formatAlert(val)); err != nil {
				slog.WarnContext(ctx, "Couldn't send alert to webhook", slog.Any("err", err))
			}
		}
	}
}

func formatAlert(val *alertEntry) string {
	var sb strings.Builder
	sb.WriteString(":rotating_light: " + val.Message)
	for _, attr := range val.Attrs {
		fmt.Fprintf(&sb, "\n- **%s**: `%s`", attr.Key, attr.Value.String())
	}
	return sb.String()
}
