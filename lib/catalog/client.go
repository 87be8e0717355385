package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/venlark/itemwatch/config"
	"github.com/venlark/itemwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client fetches authoritative item metadata from the catalog source. Every
// request passes through the gate.
type Client struct {
	cfg       *config.Config
	log       *zap.Logger
	transport http.RoundTripper
	gate      *Gate
	timeout   time.Duration
}

func NewClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) *Client {
	return &Client{
		cfg:       cfg,
		log:       log,
		transport: transport,
		gate:      NewGate(cfg.Catalog.FetchPermits),
		timeout:   time.Duration(cfg.Catalog.TimeoutSecs) * time.Second,
	}
}

type fileDetail struct {
	Title       string  `json:"title"`
	TimeUpdated *int64  `json:"time_updated"`
	TimeCreated int64   `json:"time_created"`
	PreviewURL  *string `json:"preview_url"`
	Result      int     `json:"result"`
}

type fileDetailsResponse struct {
	Response struct {
		PublishedFileDetails []fileDetail `json:"publishedfiledetails"`
	} `json:"response"`
}

// Fetch asks the catalog source for the item's current state. The source may
// omit time_updated for items never updated since creation; time_created is
// the fallback.
func (c *Client) Fetch(ctx context.Context, itemID uint64) (models.ItemSnapshot, error) {
	params := url.Values{}
	params.Set("itemcount", "1")
	params.Set("publishedfileids[0]", strconv.FormatUint(itemID, 10))

	if err := c.gate.Acquire(ctx); err != nil {
		return models.ItemSnapshot{}, err
	}

	// The permit covers only the outbound call; decoding happens after it
	// returns to the pool.
	var body bytes.Buffer
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	err := requests.URL(c.cfg.Catalog.APIURL).
		Transport(c.transport).
		BodyForm(params).
		ToBytesBuffer(&body).
		Fetch(ctx)
	cancel()
	c.gate.Release()

	if err != nil {
		c.log.Sugar().Warnw("Catalog fetch failed", "item_id", itemID, "err", err)
		return models.ItemSnapshot{}, fmt.Errorf("catalog fetch for item %d: %w", itemID, err)
	}

	var resp fileDetailsResponse
	if err := json.Unmarshal(body.Bytes(), &resp); err != nil {
		c.log.Sugar().Warnw("Catalog response unparseable", "item_id", itemID, "err", err)
		return models.ItemSnapshot{}, fmt.Errorf("catalog response for item %d: %w", itemID, err)
	}

	details := resp.Response.PublishedFileDetails
	if len(details) == 0 {
		return models.ItemSnapshot{}, fmt.Errorf("catalog returned no details for item %d", itemID)
	}

	detail := details[0]
	updated := detail.TimeCreated
	if detail.TimeUpdated != nil {
		updated = *detail.TimeUpdated
	}

	return models.ItemSnapshot{
		ID:         itemID,
		Name:       detail.Title,
		UpdatedAt:  updated,
		PreviewURL: detail.PreviewURL,
	}, nil
}
