package reporter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sensorcap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSender 记录收到的事件，仅用于单元测试
type fakeSender struct {
	mu     sync.Mutex
	events []models.Event
	fail   bool
}

func (f *fakeSender) SendEvent(ctx context.Context, ev models.Event) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("saas unavailable")
	}
	f.events = append(f.events, ev)
	return &Receipt{AgentUUID: "agent-1", Eventstamp: "stamp-" + ev.EventID}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeReceipts struct {
	mu       sync.Mutex
	receipts map[string]string
}

func (f *fakeReceipts) RecordReceipt(ctx context.Context, eventID, agentUUID, eventstamp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipts == nil {
		f.receipts = make(map[string]string)
	}
	f.receipts[eventID] = eventstamp
	return nil
}

func alertEvent() models.Event {
	return models.NewEvent(models.EventThresholdExceeded, "floor1", models.SeverityAlert, "breach")
}

func TestReporter_DispatchesAndRecordsReceipt(t *testing.T) {
	sender := &fakeSender{}
	receipts := &fakeReceipts{}
	r := New(sender, nil, receipts, 16, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)

	ev := alertEvent()
	r.Enqueue(ev)

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	r.Wait()

	receipts.mu.Lock()
	defer receipts.mu.Unlock()
	assert.Equal(t, "stamp-"+ev.EventID, receipts.receipts[ev.EventID])
}

func TestReporter_QueueFullDropsWithoutBlocking(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, nil, nil, 1, zap.NewNop())

	// 调度协程未启动，第二条必须被丢弃而不是阻塞
	done := make(chan struct{})
	go func() {
		r.Enqueue(alertEvent())
		r.Enqueue(alertEvent())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on full queue")
	}
	assert.Len(t, r.queue, 1)
}

func TestReporter_SendFailureIsDropped(t *testing.T) {
	sender := &fakeSender{fail: true}
	receipts := &fakeReceipts{}
	r := New(sender, nil, receipts, 16, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go r.Start(ctx)

	r.Enqueue(alertEvent())

	// 失败事件被丢弃，不产生回执，也不会重试
	time.Sleep(50 * time.Millisecond)
	cancel()
	r.Wait()

	receipts.mu.Lock()
	defer receipts.mu.Unlock()
	assert.Empty(t, receipts.receipts)
}
