package telegram

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const pollTimeout = 30 * time.Second

// Poller runs the getUpdates long-poll loop and hands each update to the
// handler. Handler errors are the handler's problem; the loop only cares
// about transport health.
type Poller struct {
	client  *Client
	handler func(ctx context.Context, update Update)
}

func NewPoller(client *Client, handler func(ctx context.Context, update Update)) *Poller {
	return &Poller{client: client, handler: handler}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	var offset int64
	for {
		updates, next, err := p.client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				logrus.Info("[TELEGRAM] poll loop stopped")
				return
			}
			if !isPollTimeout(err) {
				logrus.Errorf("[TELEGRAM] getUpdates failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(3 * time.Second):
				}
			}
			continue
		}
		offset = next
		for _, u := range updates {
			p.handler(ctx, u)
		}
	}
}

// isPollTimeout recognizes the normal end of an empty long poll so it is not
// logged as a failure.
func isPollTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}
