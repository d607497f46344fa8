package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/model"
)

func TestSubscribe_ReceivesPartialsInOrder(t *testing.T) {
	b := New()
	sub := b.Subscribe("job1")
	defer sub.Close()

	b.PublishPartial("trace1", model.PartialFrame{JobID: "job1", Task: "t", Seq: 1, Payload: []byte("a")})
	b.PublishPartial("trace1", model.PartialFrame{JobID: "job1", Task: "t", Seq: 2, Payload: []byte("b")})

	first := <-sub.Events()
	second := <-sub.Events()
	require.NotNil(t, first.Partial)
	require.NotNil(t, second.Partial)
	assert.Equal(t, int64(1), first.Partial.Seq)
	assert.Equal(t, int64(2), second.Partial.Seq)
}

func TestPublishFinal_ClosesSubscriberChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("job1")

	b.PublishFinal("trace1", model.NewOkFinal("job1", "t", nil, model.Metrics{}))

	final := <-sub.Events()
	require.NotNil(t, final.Final)
	assert.True(t, final.Final.Ok)

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestMultipleSubscribers_AllReceiveFanOut(t *testing.T) {
	b := New()
	a := b.Subscribe("job1")
	c := b.Subscribe("job1")
	defer a.Close()
	defer c.Close()

	b.PublishPartial("trace1", model.PartialFrame{JobID: "job1", Seq: 1})

	ea := <-a.Events()
	ec := <-c.Events()
	assert.Equal(t, int64(1), ea.Partial.Seq)
	assert.Equal(t, int64(1), ec.Partial.Seq)
}

func TestTelemetryRing_UpsertsByTraceAndMovesToFront(t *testing.T) {
	b := New()
	b.PublishPartial("trace-a", model.PartialFrame{JobID: "j1", Seq: 1})
	b.PublishPartial("trace-b", model.PartialFrame{JobID: "j2", Seq: 1})
	b.PublishPartial("trace-a", model.PartialFrame{JobID: "j1", Seq: 2})

	snap := b.Snapshot(0)
	require.Len(t, snap, 2)
	assert.Equal(t, "trace-a", snap[0].TraceID)
	assert.Len(t, snap[0].Events, 2)
}

func TestTelemetryRing_EvictsOldestAtCapacity(t *testing.T) {
	b := New()
	b.capacity = 2
	b.PublishPartial("t1", model.PartialFrame{JobID: "j1"})
	b.PublishPartial("t2", model.PartialFrame{JobID: "j2"})
	b.PublishPartial("t3", model.PartialFrame{JobID: "j3"})

	snap := b.Snapshot(0)
	require.Len(t, snap, 2)
	ids := []string{snap[0].TraceID, snap[1].TraceID}
	assert.Contains(t, ids, "t3")
	assert.Contains(t, ids, "t2")
	assert.NotContains(t, ids, "t1")
}

func TestPerTraceEventCap_KeepsMostRecentOnly(t *testing.T) {
	b := New()
	for i := 0; i < PerTraceEventCap+10; i++ {
		b.PublishPartial("trace1", model.PartialFrame{JobID: "j1", Seq: int64(i)})
	}
	snap := b.Snapshot(0)
	require.Len(t, snap, 1)
	assert.Len(t, snap[0].Events, PerTraceEventCap)
	assert.Equal(t, int64(PerTraceEventCap+9), snap[0].Events[len(snap[0].Events)-1].Seq)
}

func TestCancelledJobFinal_IgnoresAlreadyClosedSubscription(t *testing.T) {
	b := New()
	sub := b.Subscribe("job1")
	sub.Close()

	assert.NotPanics(t, func() {
		b.PublishFinal("trace1", model.NewErrFinal("job1", "t", model.ErrCancelled, "cancelled"))
	})
}
