package connection_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basinlabs/mongocore/bson"
	"github.com/basinlabs/mongocore/connection"
	"github.com/basinlabs/mongocore/logctx"
	"github.com/basinlabs/mongocore/rope"
	"github.com/basinlabs/mongocore/wire"
	"github.com/basinlabs/mongocore/wiretest"
)

// recordingQuery wraps a QueryMessage so a test can learn the requestID
// that was assigned to it during encoding, without depending on the
// connection package's internals.
type recordingQuery struct {
	wire.QueryMessage
	assigned chan<- int32
}

func (r recordingQuery) AppendWireMessage(b *rope.Builder) int32 {
	id := r.QueryMessage.AppendWireMessage(b)
	r.assigned <- id
	return id
}

func TestConnection_RequestReplyCorrelationOutOfOrder(t *testing.T) {
	t.Parallel()

	srv := wiretest.New()
	defer srv.Close()
	conn := connection.New(srv.Client, connection.DefaultConfig(), logctx.New(nil))

	const n = 3
	assignedIDs := make(chan int32, n)
	type result struct {
		reply wire.Reply
		err   error
	}
	results := make(chan result, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := bson.NewBuilder()
			query.AppendInt32("n", int32(i))
			q, err := query.Build()
			require.NoError(t, err)
			req := recordingQuery{wire.QueryMessage{FullCollectionName: "db.coll", Query: q}, assignedIDs}
			reply, err := conn.Send(context.Background(), req)
			results <- result{reply: reply, err: err}
		}(i)
	}

	ids := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, <-assignedIDs)
		_, err := srv.ServeOne() // drains the frame the write loop just sent
		require.NoError(t, err)
	}

	// Reply to the requests in reverse order of arrival.
	for i := len(ids) - 1; i >= 0; i-- {
		doc := bson.NewBuilder()
		doc.AppendInt32("echo", ids[i])
		d, err := doc.Build()
		require.NoError(t, err)
		frame := wiretest.ReplyFrame(ids[i], 0, 0, 0, d)
		require.NoError(t, srv.WriteFrame(frame))
	}

	wg.Wait()
	close(results)
	for res := range results {
		require.NoError(t, res.err)
		docIter := res.reply.Documents()
		doc, ok, err := docIter.Next()
		require.NoError(t, err)
		require.True(t, ok)
		echoed, err := doc.GetInt32("echo")
		require.NoError(t, err)
		require.Contains(t, ids, echoed)
	}
}

func TestConnection_UnmatchedResponseIsDiscardedNotFatal(t *testing.T) {
	t.Parallel()

	srv := wiretest.New()
	defer srv.Close()
	conn := connection.New(srv.Client, connection.DefaultConfig(), logctx.New(nil))

	stray := wiretest.ReplyFrame(999, 0, 0, 0)
	require.NoError(t, srv.WriteFrame(stray))

	query := bson.NewBuilder()
	query.AppendInt32("n", 1)
	q, err := query.Build()
	require.NoError(t, err)

	go func() {
		h, serveErr := srv.ServeOne()
		if serveErr != nil {
			return
		}
		d := bson.NewBuilder()
		d.AppendInt32("ok", 1)
		doc, buildErr := d.Build()
		if buildErr != nil {
			return
		}
		frame := wiretest.ReplyFrame(h.RequestID, 0, 0, 0, doc)
		srv.WriteFrame(frame)
	}()

	reply, err := conn.Send(context.Background(), wire.QueryMessage{FullCollectionName: "db.coll", Query: q})
	require.NoError(t, err)
	require.Equal(t, connection.Ready, conn.State())
	_ = reply
}

func TestConnection_DrainWithNoInFlightClosesPromptly(t *testing.T) {
	t.Parallel()

	srv := wiretest.New()
	defer srv.Close()
	conn := connection.New(srv.Client, connection.DefaultConfig(), logctx.New(nil))

	start := time.Now()
	conn.Drain()
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, connection.Closed, conn.State())
}
