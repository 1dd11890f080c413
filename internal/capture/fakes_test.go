package capture

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Hara602/devreader/internal/device"
	"github.com/Hara602/devreader/internal/model"
	"github.com/Hara602/devreader/internal/sink"
	"github.com/Hara602/devreader/internal/watcher"
)

// step 是假设备的一次 poll+read
type step struct {
	data    []byte
	zero    bool
	err     error
	pollErr error
}

// fakeSource 按脚本返回数据, 脚本耗尽后每次 poll 都等满超时
type fakeSource struct {
	steps  []step
	onIdle func()
	closes int
	baud   int
}

func (f *fakeSource) Poll(timeout time.Duration) (bool, error) {
	if len(f.steps) == 0 {
		if f.onIdle != nil {
			f.onIdle()
		}
		time.Sleep(timeout)
		return false, nil
	}
	if err := f.steps[0].pollErr; err != nil {
		f.steps = f.steps[1:]
		return false, err
	}
	return true, nil
}

func (f *fakeSource) Read(buf []byte) (int, error) {
	st := f.steps[0]
	f.steps = f.steps[1:]
	switch {
	case st.err != nil:
		return 0, st.err
	case st.zero:
		return 0, nil
	}
	return copy(buf, st.data), nil
}

func (f *fakeSource) Close() error {
	f.closes++
	return nil
}

// ttySource 额外支持 Configure
type ttySource struct {
	*fakeSource
}

func (t ttySource) Configure(baud int) error {
	t.baud = baud
	return nil
}

type fakeWatcher struct {
	mu       sync.Mutex
	arrivals int
	calls    int
	err      error
	dir      string
	name     string
}

func (w *fakeWatcher) WaitForArrival(ctx context.Context, dir, name string) error {
	if ctx.Err() != nil {
		return watcher.ErrCancelled
	}
	w.mu.Lock()
	w.calls++
	calls := w.calls
	w.dir, w.name = dir, name
	w.mu.Unlock()

	if w.err != nil {
		return w.err
	}
	if calls <= w.arrivals {
		return nil
	}
	<-ctx.Done()
	return watcher.ErrCancelled
}

func (w *fakeWatcher) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type fakePolicy struct {
	blocked bool
	err     error
}

func (p fakePolicy) IsBlocked(vid, pid, serial string) (bool, string, error) {
	if p.err != nil {
		return false, "", p.err
	}
	return p.blocked, "test rule", nil
}

type recorded struct {
	mu     sync.Mutex
	states []model.SessionState
	files  []string
	bytes  int
	ended  []model.SessionResult
}

func (r *recorded) StateChanged(_ string, st model.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorded) FileOpened(_ string, file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
}

func (r *recorded) BytesCaptured(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += n
}

func (r *recorded) SessionEnded(res model.SessionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, res)
}

var errNoSource = errors.New("no more fake sources")

// harness 把假设备, 假 watcher 和临时输出目录装配成 Deps
type harness struct {
	t       *testing.T
	dir     string
	sources []device.Source
	opens   int
	creates int
	watcher *fakeWatcher
	rec     *recorded
	clock   time.Time
}

func newHarness(t *testing.T, arrivals int, sources ...device.Source) *harness {
	return &harness{
		t:       t,
		dir:     t.TempDir(),
		sources: sources,
		watcher: &fakeWatcher{arrivals: arrivals},
		rec:     &recorded{},
		clock:   time.Date(2024, time.March, 9, 14, 5, 6, 0, time.Local),
	}
}

func (h *harness) config() Config {
	return Config{
		WatchDir:    "/dev",
		Device:      "ttyACM1",
		OutputDir:   h.dir,
		PollTimeout: 20 * time.Millisecond,
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Watcher: h.watcher,
		Open: func(path string) (device.Source, error) {
			if h.opens >= len(h.sources) {
				return nil, errNoSource
			}
			src := h.sources[h.opens]
			h.opens++
			if src == nil {
				return nil, device.ErrOpenFailed
			}
			return src, nil
		},
		Create: func(path string) (*sink.Sink, error) {
			h.creates++
			return sink.Create(path)
		},
		Settle: func(context.Context, string, time.Duration) error { return nil },
		Identify: func(name string) model.DeviceInfo {
			return model.DeviceInfo{Name: name, VendorID: "1366", ProductID: "0105"}
		},
		Recorder: h.rec,
		Now:      func() time.Time { return h.clock },
	}
}

func (h *harness) files() []string {
	h.t.Helper()
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		h.t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
