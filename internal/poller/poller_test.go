package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sensorcap/internal/config"
	"sensorcap/internal/evaluator"
	"sensorcap/internal/models"
	"sensorcap/internal/normalizer"
	"sensorcap/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFetcher 可编程的设备数据源，仅用于单元测试
type fakeFetcher struct {
	mu            sync.Mutex
	raws          []models.RawReading
	snap          *models.ConfigSnapshot
	status        *models.MasterStatus
	failReadings  bool
	readingCalls  int
	snapshotCalls int
	statusCalls   int
}

func (f *fakeFetcher) FetchReadings(ctx context.Context) ([]models.RawReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readingCalls++
	if f.failReadings {
		return nil, errors.New("connection timeout")
	}
	return f.raws, nil
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context) (*models.ConfigSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	if f.snap == nil {
		return nil, errors.New("connection timeout")
	}
	snap := *f.snap
	snap.TakenAt = time.Now().UTC()
	return &snap, nil
}

func (f *fakeFetcher) FetchMasterStatus(ctx context.Context) (*models.MasterStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.status == nil {
		return nil, errors.New("connection timeout")
	}
	return f.status, nil
}

type fakeSink struct {
	mu       sync.Mutex
	readings []models.Reading
	statuses []models.MasterStatus
}

func (f *fakeSink) InsertReading(ctx context.Context, reading *models.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, *reading)
	return nil
}

func (f *fakeSink) InsertMasterStatus(ctx context.Context, st *models.MasterStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, *st)
	return nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeRecorder) CreateEvent(ctx context.Context, ev *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return nil
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeEnqueuer) Enqueue(ev models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

// fakeKV 内存 KV，仅用于单元测试
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", snapshot.ErrNotFound
	}
	return val, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string]string)
	}
	f.data[key] = value
	return nil
}

type testHarness struct {
	poller   *DevicePoller
	fetcher  *fakeFetcher
	sink     *fakeSink
	recorder *fakeRecorder
	enqueuer *fakeEnqueuer
}

func newHarness(t *testing.T, thresholds map[string]models.ThresholdSet) *testHarness {
	t.Helper()
	logger := zap.NewNop()

	dev := config.DeviceConfig{
		Name:         "floor1",
		IPAddress:    "10.0.0.1",
		Port:         80,
		LoopInterval: 10,
		RefreshCount: 6,
	}

	fetcher := &fakeFetcher{}
	sink := &fakeSink{}
	recorder := &fakeRecorder{}
	enqueuer := &fakeEnqueuer{}

	store := snapshot.NewStore(&fakeKV{}, logger)
	drift := evaluator.NewDriftDetector(store, thresholds, logger)

	p := NewDevicePoller(
		dev,
		fetcher,
		normalizer.New(logger),
		evaluator.NewThresholdEvaluator(logger),
		drift,
		thresholds,
		sink,
		recorder,
		enqueuer,
		logger,
	)

	return &testHarness{poller: p, fetcher: fetcher, sink: sink, recorder: recorder, enqueuer: enqueuer}
}

func vibrationRaw(pdin string) models.RawReading {
	return models.RawReading{
		Device:      "floor1",
		Port:        1,
		Sensor:      models.SensorIdentity{VendorID: 310, Serial: "2729"},
		SensorType:  416,
		ProcessData: pdin,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRunTick_DualCadence(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.snap = &models.ConfigSnapshot{
		Device: "floor1",
		Ports:  map[int]models.PortConfig{},
	}
	h.fetcher.status = &models.MasterStatus{Device: "floor1"}
	ctx := context.Background()

	// refresh 节奏为 6：第 6/12/18 个 tick 刷新配置，读数每个 tick 都取
	for i := 0; i < 18; i++ {
		h.poller.runTick(ctx)
	}

	assert.Equal(t, 18, h.fetcher.readingCalls)
	assert.Equal(t, 3, h.fetcher.snapshotCalls)
	assert.Equal(t, 3, h.fetcher.statusCalls)
	assert.Len(t, h.sink.statuses, 3)
}

func TestRunTick_ThresholdBreachReported(t *testing.T) {
	thresholds := map[string]models.ThresholdSet{
		"310@2729": {"acceleration": 1.0},
	}
	h := newHarness(t, thresholds)
	// 加速度 0x0082 = 1.30mg，速度 0x0014 = 0.20mm/s
	h.fetcher.raws = []models.RawReading{vibrationRaw("00820014001")}

	h.poller.runTick(context.Background())

	// 振动读数产生两条测量值
	require.Len(t, h.sink.readings, 2)
	assert.Equal(t, 1.30, h.sink.readings[0].Value)

	// 只有加速度越限：一条事件，持久化且入上报队列
	require.Len(t, h.recorder.events, 1)
	assert.Equal(t, models.EventThresholdExceeded, h.recorder.events[0].Kind)
	require.Len(t, h.enqueuer.events, 1)
	assert.Equal(t, 1.30, h.enqueuer.events[0].Value)
	assert.Equal(t, 1.00, h.enqueuer.events[0].Limit)
}

func TestRunTick_FetchFailureSkipsTickAndResumes(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.raws = []models.RawReading{vibrationRaw("00820014001")}
	ctx := context.Background()

	h.poller.runTick(ctx)
	require.Len(t, h.sink.readings, 2)

	// 一次失败只丢这个 tick
	h.fetcher.failReadings = true
	h.poller.runTick(ctx)
	require.Len(t, h.sink.readings, 2)

	// 下一个 tick 自动恢复
	h.fetcher.failReadings = false
	h.poller.runTick(ctx)
	assert.Len(t, h.sink.readings, 4)
}

func TestRunTick_UnsupportedSensorSkippedOthersProcessed(t *testing.T) {
	h := newHarness(t, nil)
	pressure := vibrationRaw("00FF")
	pressure.SensorType = 400 // 压力传感器，不支持
	h.fetcher.raws = []models.RawReading{pressure, vibrationRaw("00820014001")}

	h.poller.runTick(context.Background())

	assert.Len(t, h.sink.readings, 2)
}

func TestRunTick_DriftEventsHandled(t *testing.T) {
	thresholds := map[string]models.ThresholdSet{
		"310@2729": {"acceleration": 1.0},
	}
	h := newHarness(t, thresholds)
	h.fetcher.snap = &models.ConfigSnapshot{
		Device: "floor1",
		Ports: map[int]models.PortConfig{
			1: {Port: 1, Sensor: models.SensorIdentity{VendorID: 310, Serial: "2729"}, SensorType: 416},
		},
	}
	ctx := context.Background()

	// 第一次刷新：首个快照，零事件
	for i := 0; i < 6; i++ {
		h.poller.runTick(ctx)
	}
	assert.Empty(t, h.recorder.events)

	// 端口 1 的传感器被更换，第二次刷新产生一条 ALERT 漂移事件
	h.fetcher.mu.Lock()
	h.fetcher.snap.Ports[1] = models.PortConfig{
		Port: 1, Sensor: models.SensorIdentity{VendorID: 310, Serial: "9999"}, SensorType: 416,
	}
	h.fetcher.mu.Unlock()
	for i := 0; i < 6; i++ {
		h.poller.runTick(ctx)
	}

	require.Len(t, h.recorder.events, 1)
	assert.Equal(t, models.EventConfigDrift, h.recorder.events[0].Kind)
	require.Len(t, h.enqueuer.events, 1)
}

func TestRun_IndependentDevices(t *testing.T) {
	healthy := newHarness(t, nil)
	healthy.poller.device.LoopInterval = 5 // 区间下界
	healthy.fetcher.raws = []models.RawReading{vibrationRaw("00820014001")}

	broken := newHarness(t, nil)
	broken.poller.device.Name = "floor2"
	broken.fetcher.failReadings = true

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, p := range []*DevicePoller{healthy.poller, broken.poller} {
		wg.Add(1)
		go func(p *DevicePoller) {
			defer wg.Done()
			_ = p.Run(ctx)
		}(p)
	}

	// 两个轮询器都会立即执行第一个 tick；故障设备不影响健康设备
	require.Eventually(t, func() bool {
		healthy.sink.mu.Lock()
		defer healthy.sink.mu.Unlock()
		return len(healthy.sink.readings) >= 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	broken.fetcher.mu.Lock()
	assert.GreaterOrEqual(t, broken.fetcher.readingCalls, 1)
	broken.fetcher.mu.Unlock()
}
