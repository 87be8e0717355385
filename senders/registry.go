package senders

import (
	"context"
	"fmt"
	"net/http"

	"github.com/venlark/itemwatch/config"
	"github.com/venlark/itemwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender delivers one message batch to a platform-specific target, returning
// a delivery id for tracing.
type Sender interface {
	Deliver(ctx context.Context, target string, batch models.MessageBatch) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"webhook": &webhookSender{base},
		"email":   &mailgunSender{base},
	}
}

// Deliver routes the batch to the sender matching the destination platform.
func (r Registry) Deliver(ctx context.Context, dest models.Destination, batch models.MessageBatch) error {
	sender, ok := r[dest.Platform]
	if !ok {
		return fmt.Errorf("unsupported destination platform: %s", dest.Platform)
	}

	_, err := sender.Deliver(ctx, dest.Target, batch)
	return err
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
