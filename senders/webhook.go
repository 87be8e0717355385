package senders

import (
	"context"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
	"github.com/venlark/itemwatch/lib/models"
)

// webhookSender POSTs the batch as JSON to the destination URL. The payload
// shape mirrors embed-style chat webhooks.
type webhookSender struct {
	base
}

type webhookEmbed struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Image string `json:"image,omitempty"`
	Note  string `json:"note,omitempty"`
}

type webhookPayload struct {
	DeliveryID string         `json:"delivery_id"`
	Content    string         `json:"content"`
	Embeds     []webhookEmbed `json:"embeds"`
}

func (w *webhookSender) Deliver(ctx context.Context, target string, batch models.MessageBatch) (string, error) {
	payload := webhookPayload{
		DeliveryID: uuid.NewString(),
		Content:    batch.Heading,
	}
	for _, entry := range batch.Entries {
		payload.Embeds = append(payload.Embeds, webhookEmbed{
			Title: entry.Title,
			URL:   entry.URL,
			Image: entry.ImageURL,
			Note:  entry.Note,
		})
	}

	err := requests.URL(target).
		Transport(w.transport).
		BodyJSON(payload).
		Fetch(ctx)
	if err != nil {
		w.log.Sugar().Infow("Failed to post webhook batch", "err", err)
		return "", err
	}
	return payload.DeliveryID, nil
}
