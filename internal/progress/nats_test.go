package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "projects.abc.started", Subject("projects", "abc", EventStarted))
}

func TestNewNATSSink_Validation(t *testing.T) {
	_, err := NewNATSSink(nil, "")
	assert.Error(t, err)

	server := startTestNATSServer(t)
	nc := connect(t, server)
	_, err = NewNATSSink(nc, "bad.*")
	assert.Error(t, err)

	s, err := NewNATSSink(nc, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSubjectPrefix, s.prefix)
}

func TestNATSSink_PublishesToProjectSubject(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("docforge.p1.started", ch)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	sink, err := NewNATSSink(nc, "docforge")
	require.NoError(t, err)
	require.NoError(t, sink.Emit(context.Background(), Event{Seq: 1, Type: EventStarted, ProjectID: "p1", DocumentID: "requirements"}))

	select {
	case msg := <-ch:
		var e Event
		require.NoError(t, json.Unmarshal(msg.Data, &e))
		assert.Equal(t, "requirements", e.DocumentID)
		assert.Equal(t, uint64(1), e.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for started event")
	}
}

func TestNATSSink_RejectsBadProjectID(t *testing.T) {
	server := startTestNATSServer(t)
	sink, err := NewNATSSink(connect(t, server), "")
	require.NoError(t, err)

	assert.Error(t, sink.Emit(context.Background(), Event{Type: EventStarted, ProjectID: "a.b"}))
	assert.Error(t, sink.Emit(context.Background(), Event{Type: EventStarted}))
}

func TestNATSSubscriber_FollowsUntilComplete(t *testing.T) {
	server := startTestNATSServer(t)
	pub := connect(t, server)
	subConn := connect(t, server)

	subscriber := NewNATSSubscriber(subConn, "", nil)
	ch, cancel, err := subscriber.Subscribe(context.Background(), "p1")
	require.NoError(t, err)
	defer cancel()

	sink, err := NewNATSSink(pub, "")
	require.NoError(t, err)
	em := NewEmitter("p1", sink, nil)
	ctx := context.Background()
	require.NoError(t, em.Started(ctx, "requirements", "ollama"))
	require.NoError(t, em.Succeeded(ctx, "requirements", time.Second, nil, false))
	require.NoError(t, em.Complete(ctx, "complete", []string{"requirements"}, nil))

	// Other projects are not delivered.
	require.NoError(t, NewEmitter("p2", sink, nil).Started(ctx, "requirements", ""))

	events := collect(t, ch, 3*time.Second)
	assert.Equal(t, []EventType{EventStarted, EventSucceeded, EventComplete}, types(events))
	for _, e := range events {
		assert.Equal(t, "p1", e.ProjectID)
	}
}

func TestNATSSubscriber_CancelClosesStream(t *testing.T) {
	server := startTestNATSServer(t)
	subscriber := NewNATSSubscriber(connect(t, server), "", nil)

	ch, cancel, err := subscriber.Subscribe(context.Background(), "p1")
	require.NoError(t, err)
	cancel()
	cancel()
	assert.Empty(t, collect(t, ch, time.Second))

	_, _, err = subscriber.Subscribe(context.Background(), "p.1")
	assert.Error(t, err)
}
