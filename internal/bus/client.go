// Package bus publishes score change notifications over NATS so downstream
// consumers (notifications, marketplace trust checks) can react without
// polling the API.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectScoreUpdated carries one message per applied score event.
const SubjectScoreUpdated = "billix.score.updated"

// SubjectBadgePromoted is published when an apply moves a user to a higher tier.
const SubjectBadgePromoted = "billix.score.badge.promoted"

// ScoreUpdated is the payload for SubjectScoreUpdated.
type ScoreUpdated struct {
	UserID            string `json:"user_id"`
	EventTypeID       string `json:"event_type_id"`
	Component         string `json:"component"`
	PointChange       int    `json:"point_change"`
	NewScore          int    `json:"new_score"`
	NewComponentScore int    `json:"new_component_score"`
	Badge             string `json:"badge"`
}

// BadgePromoted is the payload for SubjectBadgePromoted.
type BadgePromoted struct {
	UserID        string `json:"user_id"`
	PreviousBadge string `json:"previous_badge"`
	NewBadge      string `json:"new_badge"`
	NewScore      int    `json:"new_score"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Close() {
	c.conn.Close()
}
