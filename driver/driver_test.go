package driver_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basinlabs/mongocore/bson"
	"github.com/basinlabs/mongocore/driver"
	"github.com/basinlabs/mongocore/mongoerr"
	"github.com/basinlabs/mongocore/rope"
	"github.com/basinlabs/mongocore/wire"
	"github.com/basinlabs/mongocore/wiretest"
)

// fakeMongodHandler builds the reply frame(s) for one request, or nil for
// opcodes (like OP_KILL_CURSORS) that get no response.
type fakeMongodHandler func(h wire.Header, body rope.Rope) []rope.Rope

// startFakeMongod accepts exactly one TCP connection and answers every
// frame read from it with handle, until the connection closes.
func startFakeMongod(t *testing.T, handle fakeMongodHandler) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			h, body, err := wire.ReadFrame(conn, 0)
			if err != nil {
				return
			}
			for _, frame := range handle(h, body) {
				if _, err := conn.Write(frame.Bytes()); err != nil {
					return
				}
			}
		}
	}()
	return ln.Addr().String()
}

func okNReply(h wire.Header) []rope.Rope {
	b := bson.NewBuilder()
	b.AppendInt32("ok", 1)
	b.AppendInt32("n", 1)
	doc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return []rope.Rope{wiretest.ReplyFrame(h.RequestID, 0, 0, 0, doc)}
}

func newTestDriver(t *testing.T, addr string) (*driver.Driver, *driver.Supervisor) {
	t.Helper()
	cfg, err := driver.NewConfig(
		driver.WithConnectTimeout(func(time.Duration) time.Duration { return 2 * time.Second }),
		driver.WithShutdownTimeout(func(time.Duration) time.Duration { return 2 * time.Second }),
	)
	require.NoError(t, err)
	d := driver.New(cfg, nil)
	sup := d.Connect(driver.Endpoint(addr))
	t.Cleanup(func() { sup.Shutdown(context.Background()) })
	return d, sup
}

func insertDoc(t *testing.T) rope.Rope {
	t.Helper()
	b := bson.NewBuilder()
	b.AppendDouble("key1", 42.0)
	b.AppendInt64("key2", 42)
	b.AppendInt32("key3", 42)
	r, err := b.Build()
	require.NoError(t, err)
	return r
}

func TestDriver_InsertReceivesOkReply(t *testing.T) {
	t.Parallel()

	addr := startFakeMongod(t, func(h wire.Header, body rope.Rope) []rope.Rope {
		require.Equal(t, wire.OpInsert, h.OpCode)
		return okNReply(h)
	})
	_, sup := newTestDriver(t, addr)

	reply, err := sup.Send(context.Background(), wire.InsertMessage{
		FullCollectionName: "db.coll",
		Documents:          []rope.Rope{insertDoc(t)},
	})
	require.NoError(t, err)

	doc, ok, err := reply.Documents().Next()
	require.NoError(t, err)
	require.True(t, ok)
	n, err := doc.GetInt32("n")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestDriver_QueryYieldsMatchingDocument(t *testing.T) {
	t.Parallel()

	addr := startFakeMongod(t, func(h wire.Header, body rope.Rope) []rope.Rope {
		require.Equal(t, wire.OpQuery, h.OpCode)
		return []rope.Rope{wiretest.ReplyFrame(h.RequestID, 0, 0, 0, insertDoc(t))}
	})
	_, sup := newTestDriver(t, addr)

	eq := bson.NewBuilder()
	eq.AppendDouble("$eq", 42.0)
	eqDoc, err := eq.Build()
	require.NoError(t, err)

	filter := bson.NewBuilder()
	filter.AppendDocument("key1", eqDoc)
	filterDoc, err := filter.Build()
	require.NoError(t, err)

	stream, err := sup.Query(context.Background(), wire.QueryMessage{
		FullCollectionName: "db.coll",
		Query:              filterDoc,
	})
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := stream.HasNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	doc, err := stream.Next(ctx)
	require.NoError(t, err)
	v1, err := doc.GetDouble("key1")
	require.NoError(t, err)
	require.Equal(t, 42.0, v1)
	v2, err := doc.GetInt64("key2")
	require.NoError(t, err)
	require.EqualValues(t, 42, v2)
	v3, err := doc.GetInt32("key3")
	require.NoError(t, err)
	require.EqualValues(t, 42, v3)

	ok, err = stream.HasNext(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDriver_QueryReleasesConnectionBackToPoolOnExhaustion(t *testing.T) {
	t.Parallel()

	addr := startFakeMongod(t, func(h wire.Header, body rope.Rope) []rope.Rope {
		switch h.OpCode {
		case wire.OpQuery:
			return []rope.Rope{wiretest.ReplyFrame(h.RequestID, 0, 0, 0, insertDoc(t))}
		case wire.OpInsert:
			return okNReply(h)
		default:
			return nil
		}
	})
	cfg, err := driver.NewConfig(
		driver.WithMaxConnectionsPerEndpoint(func(int) int { return 1 }),
		driver.WithConnectTimeout(func(time.Duration) time.Duration { return 2 * time.Second }),
		driver.WithShutdownTimeout(func(time.Duration) time.Duration { return 2 * time.Second }),
	)
	require.NoError(t, err)
	d := driver.New(cfg, nil)
	sup := d.Connect(driver.Endpoint(addr))
	t.Cleanup(func() { sup.Shutdown(context.Background()) })

	emptyQuery := bson.NewBuilder()
	emptyQueryDoc, err := emptyQuery.Build()
	require.NoError(t, err)

	stream, err := sup.Query(context.Background(), wire.QueryMessage{
		FullCollectionName: "db.coll",
		Query:              emptyQueryDoc,
	})
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := stream.HasNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = stream.Next(ctx)
	require.NoError(t, err)
	ok, err = stream.HasNext(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// With max_connections_per_endpoint=1, a leaked connection from the
	// exhausted cursor above would make this Acquire block until acquireCtx
	// expires.
	acquireCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = sup.Send(acquireCtx, wire.InsertMessage{
		FullCollectionName: "db.coll",
		Documents:          []rope.Rope{insertDoc(t)},
	})
	require.NoError(t, err)
}

func TestDriver_UpdateReceivesOkReply(t *testing.T) {
	t.Parallel()

	addr := startFakeMongod(t, func(h wire.Header, body rope.Rope) []rope.Rope {
		require.Equal(t, wire.OpUpdate, h.OpCode)
		return okNReply(h)
	})
	_, sup := newTestDriver(t, addr)

	selector := bson.NewBuilder()
	selector.AppendDouble("key1", 42.0)
	selectorDoc, err := selector.Build()
	require.NoError(t, err)

	set := bson.NewBuilder()
	set.AppendInt32("key2", 84)
	setDoc, err := set.Build()
	require.NoError(t, err)

	update := bson.NewBuilder()
	update.AppendDocument("$set", setDoc)
	updateDoc, err := update.Build()
	require.NoError(t, err)

	reply, err := sup.Send(context.Background(), wire.UpdateMessage{
		FullCollectionName: "db.coll",
		Flags:              0,
		Selector:            selectorDoc,
		Update:              updateDoc,
	})
	require.NoError(t, err)

	doc, ok, err := reply.Documents().Next()
	require.NoError(t, err)
	require.True(t, ok)
	n, err := doc.GetInt32("n")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestDriver_DeleteSingleRemoveReceivesOkReply(t *testing.T) {
	t.Parallel()

	addr := startFakeMongod(t, func(h wire.Header, body rope.Rope) []rope.Rope {
		require.Equal(t, wire.OpDelete, h.OpCode)
		return okNReply(h)
	})
	_, sup := newTestDriver(t, addr)

	selector := bson.NewBuilder()
	selector.AppendDouble("key1", 42.0)
	selectorDoc, err := selector.Build()
	require.NoError(t, err)

	reply, err := sup.Send(context.Background(), wire.DeleteMessage{
		FullCollectionName: "db.coll",
		Flags:              wire.DeleteSingleRemove,
		Selector:            selectorDoc,
	})
	require.NoError(t, err)

	doc, ok, err := reply.Documents().Next()
	require.NoError(t, err)
	require.True(t, ok)
	n, err := doc.GetInt32("n")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestDriver_SendHonorsRequestTimeoutWhenServerNeverReplies(t *testing.T) {
	t.Parallel()

	addr := startFakeMongod(t, func(h wire.Header, body rope.Rope) []rope.Rope {
		return nil // never reply, forcing Send to wait out the request timeout
	})
	cfg, err := driver.NewConfig(
		driver.WithConnectTimeout(func(time.Duration) time.Duration { return 2 * time.Second }),
		driver.WithShutdownTimeout(func(time.Duration) time.Duration { return 2 * time.Second }),
		driver.WithRequestTimeout(func(time.Duration) time.Duration { return 50 * time.Millisecond }),
	)
	require.NoError(t, err)
	d := driver.New(cfg, nil)
	sup := d.Connect(driver.Endpoint(addr))
	t.Cleanup(func() { sup.Shutdown(context.Background()) })

	start := time.Now()
	_, err = sup.Send(context.Background(), wire.InsertMessage{
		FullCollectionName: "db.coll",
		Documents:          []rope.Rope{insertDoc(t)},
	})
	require.Error(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
	var merr *mongoerr.Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, "Timeout", merr.Name)
}

func TestDriver_ShutdownOnFreshSupervisorTerminatesWithinGrace(t *testing.T) {
	t.Parallel()

	cfg, err := driver.NewConfig(driver.WithShutdownTimeout(func(time.Duration) time.Duration {
		return 100 * time.Millisecond
	}))
	require.NoError(t, err)
	d := driver.New(cfg, nil)
	sup := d.Connect(driver.Endpoint("127.0.0.1:27017"))

	start := time.Now()
	require.NoError(t, sup.Shutdown(context.Background()))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
