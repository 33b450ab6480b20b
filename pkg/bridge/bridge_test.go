package bridge

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/msgstream/pkg/envelope"
	"github.com/rawbytedev/msgstream/pkg/message"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/stream"
	"github.com/rawbytedev/msgstream/pkg/view"
)

func newBridge(t *testing.T, opts ...Option) *Bridge {
	t.Helper()
	b, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

type recorder struct {
	streams []*stream.ReadOnly
	err     error
}

func (r *recorder) Handle(s *stream.ReadOnly, count uint32) error {
	r.streams = append(r.streams, s)
	return r.err
}

func submitLogs(t *testing.T, b *Bridge, msgs ...string) {
	t.Helper()
	require.NoError(t, b.Submit(func(v *view.Ordered) error {
		for _, m := range msgs {
			if _, err := v.Add(message.Log{Severity: message.SeverityInfo, System: "test", Message: m}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func logsOf(t *testing.T, ro *stream.ReadOnly) []string {
	t.Helper()
	v, err := view.NewOrdered(ro)
	require.NoError(t, err)
	var out []string
	for it := v.Iterator(); it.Good(); it.Next() {
		m, err := view.Get[message.Log](it)
		require.NoError(t, err)
		out = append(out, m.Message)
	}
	return out
}

func TestRegisterMonitoring(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NotPanics(t, func() { RegisterMonitoring(reg) })
	require.Panics(t, func() { RegisterMonitoring(reg) })
}

// ---- Local Dispatch Test ----

func TestCommitDeliversBus(t *testing.T) {
	b := newBridge(t)
	var ordered, all recorder
	b.Register(schema.OrderedID, &ordered)
	b.RegisterAll(&all)

	submitLogs(t, b, "one", "two")
	submitLogs(t, b, "three")
	assert.Empty(t, ordered.streams, "nothing is delivered before commit")

	before := testutil.ToFloat64(recordsDelivered)
	require.NoError(t, b.Commit())
	require.Len(t, ordered.streams, 1)
	require.Len(t, all.streams, 1)
	assert.Same(t, ordered.streams[0], all.streams[0])
	assert.Equal(t, []string{"one", "two", "three"}, logsOf(t, ordered.streams[0]))
	assert.Equal(t, 3.0, testutil.ToFloat64(recordsDelivered)-before)

	// the bus restarts empty
	require.NoError(t, b.Commit())
	assert.Len(t, ordered.streams, 1)
}

func TestPushRoutesByID(t *testing.T) {
	b := newBridge(t)
	var jobs, logs recorder
	b.Register(message.IDJobDiagnostic, &jobs)
	b.Register(message.IDLog, &logs)

	rw := stream.NewReadWrite(schema.Header{})
	v, err := view.NewStatic[message.JobDiagnostic](rw)
	require.NoError(t, err)
	require.NoError(t, v.Add(message.JobDiagnostic{Remaining: 3}))
	b.Push(rw.Freeze())
	assert.Equal(t, 1, b.Pending())

	before := testutil.ToFloat64(streamsDelivered.WithLabelValues(schema.KindStatic.String()))
	require.NoError(t, b.Commit())
	assert.Zero(t, b.Pending())
	assert.Len(t, jobs.streams, 1)
	assert.Empty(t, logs.streams)
	assert.Equal(t, 1.0, testutil.ToFloat64(streamsDelivered.WithLabelValues(schema.KindStatic.String()))-before)
}

func TestUnregister(t *testing.T) {
	b := newBridge(t)
	var a, c recorder
	stopA := b.Register(schema.OrderedID, &a)
	b.Register(schema.OrderedID, &c)
	stopAll := b.RegisterAll(&a)

	stopA()
	stopAll()
	submitLogs(t, b, "x")
	require.NoError(t, b.Commit())
	assert.Empty(t, a.streams)
	assert.Len(t, c.streams, 1)

	// calling twice is harmless
	stopA()
}

func TestListenerErrorDoesNotStopDispatch(t *testing.T) {
	b := newBridge(t)
	failing := &recorder{err: errors.New("boom")}
	var ok recorder
	b.Register(schema.OrderedID, failing)
	b.Register(schema.OrderedID, &ok)

	before := testutil.ToFloat64(listenerErrors)
	submitLogs(t, b, "x")
	require.NoError(t, b.Commit())
	assert.Len(t, failing.streams, 1)
	assert.Len(t, ok.streams, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(listenerErrors)-before)
}

func TestMalformedStreamIsDropped(t *testing.T) {
	b := newBridge(t)
	var r recorder
	b.RegisterAll(&r)

	// declares two records, holds one
	rw := stream.NewReadWrite(schema.Header{})
	v, err := view.NewOrdered(rw)
	require.NoError(t, err)
	_, err = v.Add(message.HostConnected{Accepted: true})
	require.NoError(t, err)
	ro, err := stream.NewReadOnly(schema.OrderedOf(), 2, rw.Size(), rw.Bytes())
	require.NoError(t, err)

	before := testutil.ToFloat64(batchesDropped.WithLabelValues("malformed"))
	b.Push(ro)
	require.NoError(t, b.Commit())
	assert.Empty(t, r.streams)
	assert.Equal(t, 1.0, testutil.ToFloat64(batchesDropped.WithLabelValues("malformed"))-before)
}

func TestSubmitErrorKeepsEarlierRecords(t *testing.T) {
	b := newBridge(t)
	var r recorder
	b.RegisterAll(&r)

	err := b.Submit(func(v *view.Ordered) error {
		if _, err := v.Add(message.JobDiagnostic{Remaining: 1}); err != nil {
			return err
		}
		return errors.New("stop")
	})
	require.Error(t, err)
	require.NoError(t, b.Commit())
	require.Len(t, r.streams, 1)
	assert.EqualValues(t, 1, r.streams[0].Count())
}

// ---- Transport Test ----

func TestSinkIngestPipe(t *testing.T) {
	for _, comp := range []envelope.Compression{envelope.CompressionNone, envelope.CompressionZstd} {
		t.Run(comp.String(), func(t *testing.T) {
			codec, err := envelope.NewCodec(envelope.Options{Compression: comp})
			require.NoError(t, err)
			t.Cleanup(codec.Close)

			var wire bytes.Buffer
			sentBefore := testutil.ToFloat64(bytesSent)
			src := newBridge(t, WithSink(&wire), WithCodec(codec))
			var local recorder
			src.RegisterAll(&local)
			submitLogs(t, src, "alpha", "beta")
			require.NoError(t, src.Commit())
			assert.Empty(t, local.streams, "sink streams are not looped back")
			assert.Equal(t, float64(wire.Len()), testutil.ToFloat64(bytesSent)-sentBefore)

			dst := newBridge(t)
			var remote recorder
			dst.Register(schema.OrderedID, &remote)
			data := wire.Bytes()
			n, err := dst.Ingest(data)
			require.NoError(t, err)
			assert.Equal(t, len(data), n)

			// ingested streams own their bytes
			for i := range data {
				data[i] = 0
			}
			require.NoError(t, dst.Commit())
			require.Len(t, remote.streams, 1)
			assert.Equal(t, []string{"alpha", "beta"}, logsOf(t, remote.streams[0]))
		})
	}
}

func frames(t *testing.T, n int) [][]byte {
	t.Helper()
	c, err := envelope.NewCodec(envelope.Options{})
	require.NoError(t, err)
	defer c.Close()
	var out [][]byte
	for i := range n {
		rw := stream.NewReadWrite(schema.Header{})
		v, err := view.NewStatic[message.JobDiagnostic](rw)
		require.NoError(t, err)
		require.NoError(t, v.Add(message.JobDiagnostic{Remaining: uint32(i)}))
		f, err := c.Marshal(rw)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestIngestIncompleteFrame(t *testing.T) {
	b := newBridge(t)
	f := frames(t, 2)
	data := append(append([]byte{}, f[0]...), f[1][:len(f[1])-3]...)

	n, err := b.Ingest(data)
	require.NoError(t, err)
	assert.Equal(t, len(f[0]), n)
	assert.Equal(t, 1, b.Pending())

	n, err = b.Ingest(f[1][:10])
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, b.Pending())
}

func TestIngestSkipsCorruptFrame(t *testing.T) {
	b := newBridge(t)
	var r recorder
	b.Register(message.IDJobDiagnostic, &r)

	f := frames(t, 3)
	f[1][envelope.HeaderSize] ^= 0xFF
	var data []byte
	for _, x := range f {
		data = append(data, x...)
	}

	before := testutil.ToFloat64(batchesDropped.WithLabelValues("checksum"))
	n, err := b.Ingest(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(batchesDropped.WithLabelValues("checksum"))-before)

	require.NoError(t, b.Commit())
	require.Len(t, r.streams, 2)
	var got []uint32
	for _, ro := range r.streams {
		v, err := view.NewStatic[message.JobDiagnostic](ro)
		require.NoError(t, err)
		m, err := v.Get(0)
		require.NoError(t, err)
		got = append(got, m.Remaining)
	}
	assert.Equal(t, []uint32{0, 2}, got)
}

func TestIngestBadMagicIsFatal(t *testing.T) {
	b := newBridge(t)
	f := frames(t, 2)
	data := append(append([]byte{}, f[0]...), f[1]...)
	data[len(f[0])] ^= 0xFF

	n, err := b.Ingest(data)
	require.ErrorIs(t, err, envelope.ErrBadMagic)
	assert.Equal(t, len(f[0]), n)
	assert.Equal(t, 1, b.Pending())
}

func TestDropReason(t *testing.T) {
	assert.Equal(t, "checksum", dropReason(envelope.ErrChecksum))
	assert.Equal(t, "limits", dropReason(envelope.ErrTooLarge))
	assert.Equal(t, "schema", dropReason(schema.ErrUnknownKind))
	assert.Equal(t, "malformed", dropReason(stream.ErrMalformedStream))
}

func TestPendingGaugeSumsAcrossBridges(t *testing.T) {
	a, b := newBridge(t), newBridge(t)
	ro, err := stream.NewReadOnly(schema.Header{}, 0, 0, nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(pendingStreams)
	a.Push(ro)
	a.Push(ro)
	b.Push(ro)
	assert.Equal(t, 3.0, testutil.ToFloat64(pendingStreams)-before)

	require.NoError(t, b.Commit())
	assert.Equal(t, 2.0, testutil.ToFloat64(pendingStreams)-before)
	require.NoError(t, a.Commit())
	assert.Equal(t, 0.0, testutil.ToFloat64(pendingStreams)-before)
}

func TestIngestSkipsOversizeFrame(t *testing.T) {
	codec, err := envelope.NewCodec(envelope.Options{})
	require.NoError(t, err)
	t.Cleanup(codec.Close)

	rw := stream.NewReadWrite(schema.Header{})
	v, err := view.NewStatic[message.JobDiagnostic](rw)
	require.NoError(t, err)
	for i := range 32 {
		require.NoError(t, v.Add(message.JobDiagnostic{Remaining: uint32(i)}))
	}
	big, err := codec.Marshal(rw)
	require.NoError(t, err)
	f := frames(t, 1)
	data := append(append([]byte{}, big...), f[0]...)

	small, err := envelope.NewCodec(envelope.Options{Limits: envelope.Limits{MaxStreamBytes: 64, MaxRecords: 100}})
	require.NoError(t, err)
	t.Cleanup(small.Close)
	b := newBridge(t, WithCodec(small))
	var r recorder
	b.Register(message.IDJobDiagnostic, &r)

	before := testutil.ToFloat64(batchesDropped.WithLabelValues("limits"))
	n, err := b.Ingest(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, 1.0, testutil.ToFloat64(batchesDropped.WithLabelValues("limits"))-before)

	require.NoError(t, b.Commit())
	require.Len(t, r.streams, 1)
	assert.EqualValues(t, 1, r.streams[0].Count())
}
