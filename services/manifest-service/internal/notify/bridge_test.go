package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oinam-labs/tac-portal-sub002/shared/contracts"
)

type published struct {
	queue string
	job   contracts.InboundManifestJob
}

type fakeQueue struct {
	sent []published
	err  error
}

func (f *fakeQueue) PublishJSON(_ context.Context, queue string, v interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{queue: queue, job: v.(contracts.InboundManifestJob)})
	return nil
}

func event(t *testing.T, typ string) []byte {
	t.Helper()
	eta := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	b, err := json.Marshal(contracts.ManifestEvent{
		Type:           typ,
		ManifestID:     "8f14e45f-ea2e-4c6e-9a1b-2a3c4d5e6f70",
		ManifestNo:     "MAN-20261016-093000",
		FromHubID:      "IMF",
		ToHubID:        "GAU",
		Status:         "DEPARTED",
		AWBs:           []string{"TAC20260001", "TAC20260002"},
		TotalShipments: 2,
		TotalPackages:  5,
		ETA:            &eta,
		OccurredAt:     time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return b
}

func TestBridgeQueuesInboundJobOnDeparture(t *testing.T) {
	log, _ := test.NewNullLogger()
	q := &fakeQueue{}
	b := NewBridge(q, log)

	require.NoError(t, b.Handle(context.Background(), []byte("m1"), event(t, contracts.EventManifestDeparted)))

	require.Len(t, q.sent, 1)
	assert.Equal(t, contracts.InboundManifestQueue, q.sent[0].queue)
	job := q.sent[0].job
	assert.Equal(t, JobInboundManifest, job.Job)
	assert.Equal(t, "GAU", job.HubID)
	assert.Equal(t, "IMF", job.FromHubID)
	assert.Equal(t, 2, job.ExpectedShipments)
	assert.Equal(t, 5, job.ExpectedPackages)
	assert.Equal(t, []string{"TAC20260001", "TAC20260002"}, job.AWBs)
	require.NotNil(t, job.ETA)
}

func TestBridgeIgnoresOtherEvents(t *testing.T) {
	log, _ := test.NewNullLogger()
	q := &fakeQueue{}
	b := NewBridge(q, log)

	for _, typ := range []string{contracts.EventManifestClosed, contracts.EventManifestItemAdded, contracts.EventManifestArrived} {
		require.NoError(t, b.Handle(context.Background(), nil, event(t, typ)))
	}
	assert.Empty(t, q.sent)
}

func TestBridgeDropsUnreadableMessages(t *testing.T) {
	log, hook := test.NewNullLogger()
	q := &fakeQueue{}
	b := NewBridge(q, log)

	assert.NoError(t, b.Handle(context.Background(), []byte("k"), []byte("{not json")))
	assert.Empty(t, q.sent)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "dropping unreadable manifest event", hook.LastEntry().Message)
}

func TestBridgeReturnsPublishErrors(t *testing.T) {
	log, _ := test.NewNullLogger()
	boom := errors.New("channel closed")
	b := NewBridge(&fakeQueue{err: boom}, log)

	err := b.Handle(context.Background(), nil, event(t, contracts.EventManifestDeparted))
	assert.ErrorIs(t, err, boom)
}
