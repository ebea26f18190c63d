package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wuwenbin0122/convo-sync/internal/pipeline"
)

// Publisher announces finished run reports.
type Publisher interface {
	Publish(ctx context.Context, rep *pipeline.Report) error
}

// NATSPublisher sends each report as JSON on a fixed subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("convo-sync"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, rep *pipeline.Report) error {
	data, err := json.Marshal(rep.Snapshot())
	if err != nil {
		return fmt.Errorf("nats: encode report: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Nats-Msg-Id", rep.RunID)
	msg.Header.Set("Convo-Sync-Status", rep.Status())

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish %s: %w", p.subject, err)
	}

	// FlushWithContext rejects contexts without a deadline.
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
