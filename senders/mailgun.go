package senders

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/venlark/itemwatch/lib/models"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) Deliver(ctx context.Context, target string, batch models.MessageBatch) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, batch.Heading, "", target)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(renderHTML(batch))

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}

func renderHTML(batch models.MessageBatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>%s</p><ul>", html.EscapeString(batch.Heading))
	for _, entry := range batch.Entries {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a>`, entry.URL, html.EscapeString(entry.Title))
		if entry.Note != "" {
			fmt.Fprintf(&b, " &mdash; %s", html.EscapeString(entry.Note))
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
