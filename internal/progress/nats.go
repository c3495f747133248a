package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the first token of every progress subject.
const DefaultSubjectPrefix = "projects"

// Subject returns the NATS subject for an event:
//
//	{prefix}.{project_id}.{type}
func Subject(prefix, projectID string, t EventType) string {
	return fmt.Sprintf("%s.%s.%s", prefix, projectID, t)
}

// NATSSink publishes events as JSON to NATS.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink creates a sink publishing under prefix.
func NewNATSSink(nc *nats.Conn, prefix string) (*NATSSink, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if strings.ContainsAny(prefix, "*> \t\r\n") {
		return nil, fmt.Errorf("invalid subject prefix %q", prefix)
	}
	return &NATSSink{nc: nc, prefix: prefix}, nil
}

// Emit implements Sink. The terminal event is flushed so that it is on the
// wire before the coordinator returns.
func (s *NATSSink) Emit(ctx context.Context, e Event) error {
	if err := validToken(e.ProjectID); err != nil {
		return fmt.Errorf("project id: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.nc.Publish(Subject(s.prefix, e.ProjectID, e.Type), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	if e.Type.IsTerminal() {
		if err := s.nc.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush complete event: %w", err)
		}
	}
	return nil
}

// NATSSubscriber follows a project's events from NATS. Unlike Hub it has no
// history: only events published after Subscribe are seen.
type NATSSubscriber struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewNATSSubscriber creates a subscriber for subjects under prefix.
func NewNATSSubscriber(nc *nats.Conn, prefix string, logger *logging.Logger) *NATSSubscriber {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSSubscriber{nc: nc, prefix: prefix, logger: logger}
}

// Subscribe implements Subscriber.
func (s *NATSSubscriber) Subscribe(ctx context.Context, projectID string) (<-chan Event, func(), error) {
	if err := validToken(projectID); err != nil {
		return nil, nil, fmt.Errorf("project id: %w", err)
	}
	msgs := make(chan *nats.Msg, 64)
	sub, err := s.nc.ChanSubscribe(fmt.Sprintf("%s.%s.*", s.prefix, projectID), msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	// Make sure the server knows about the interest before returning.
	if err := s.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flush subscription: %w", err)
	}

	out := make(chan Event, 64)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case msg := <-msgs:
				var e Event
				if err := json.Unmarshal(msg.Data, &e); err != nil {
					s.logger.Warn(ctx, "dropping undecodable progress message",
						zap.String("subject", msg.Subject), zap.Error(err))
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
				if e.Type.IsTerminal() {
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

// validToken rejects strings that would change the subject hierarchy.
func validToken(s string) error {
	if s == "" {
		return errors.New("empty subject token")
	}
	if strings.ContainsAny(s, ".*> \t\r\n") {
		return fmt.Errorf("invalid subject token %q", s)
	}
	return nil
}
