//go:build linux

package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func TestMatchUEvent(t *testing.T) {
	tests := []struct {
		name   string
		action netlink.KObjAction
		env    map[string]string
		dir    string
		want   bool
	}{
		{"relative devname", "add", map[string]string{"DEVNAME": "ttyACM1"}, "/dev", true},
		{"absolute devname", "add", map[string]string{"DEVNAME": "/dev/ttyACM1"}, "/dev/", true},
		{"remove", "remove", map[string]string{"DEVNAME": "ttyACM1"}, "/dev", false},
		{"other device", "add", map[string]string{"DEVNAME": "ttyACM0"}, "/dev", false},
		{"no devname", "add", map[string]string{"SUBSYSTEM": "usb"}, "/dev", false},
		{"other dir", "add", map[string]string{"DEVNAME": "ttyACM1"}, "/tmp/dev", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := netlink.UEvent{Action: tt.action, Env: tt.env}
			assert.Equal(t, tt.want, matchUEvent(ev, tt.dir, "ttyACM1"))
		})
	}
}

// fakeUEvents 按顺序返回 msgs, 读完后返回 readErr (为 nil 时一直不可读)
type fakeUEvents struct {
	mu      sync.Mutex
	msgs    [][]byte
	readErr error
	closed  bool
}

func (f *fakeUEvents) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	ready := len(f.msgs) > 0 || f.readErr != nil
	f.mu.Unlock()
	if !ready {
		time.Sleep(timeout)
	}
	return ready, nil
}

func (f *fakeUEvents) ReadMsg() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return nil, f.readErr
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeUEvents) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeUEvents) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newFakeUdev(src *fakeUEvents) *udevWatcher {
	return &udevWatcher{
		log:  zap.NewNop(),
		tick: 10 * time.Millisecond,
		dial: func() (ueventSource, error) { return src, nil },
	}
}

// kernelUEvent 内核格式: action@devpath\0KEY=VALUE\0...
func kernelUEvent(action, devName string) []byte {
	return []byte(action + "@/devices/pci0000:00/usb1/1-1/1-1:1.0/tty/" + devName +
		"\x00ACTION=" + action + "\x00DEVNAME=" + devName + "\x00SUBSYSTEM=tty\x00")
}

func TestUdevWaitMatchesAdd(t *testing.T) {
	src := &fakeUEvents{msgs: [][]byte{
		[]byte("not a uevent"),
		kernelUEvent("add", "ttyACM0"),
		kernelUEvent("remove", "ttyACM1"),
		kernelUEvent("add", "ttyACM1"),
	}}

	err := newFakeUdev(src).WaitForArrival(context.Background(), "/dev", "ttyACM1")
	require.NoError(t, err)
	assert.True(t, src.isClosed())
}

func TestUdevReadFailureEndsWait(t *testing.T) {
	src := &fakeUEvents{readErr: unix.ENOBUFS}

	done := make(chan error, 1)
	go func() {
		done <- newFakeUdev(src).WaitForArrival(context.Background(), "/dev", "ttyACM1")
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, unix.ENOBUFS)
		assert.False(t, errors.Is(err, ErrCancelled))
		assert.False(t, errors.Is(err, ErrWatchInit))
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after read failure")
	}
	assert.True(t, src.isClosed())
}

func TestUdevWaitCancelled(t *testing.T) {
	src := &fakeUEvents{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := newFakeUdev(src).WaitForArrival(ctx, "/dev", "ttyACM1")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, src.isClosed())
}

func TestUdevDialFailure(t *testing.T) {
	w := &udevWatcher{
		log:  zap.NewNop(),
		tick: 10 * time.Millisecond,
		dial: func() (ueventSource, error) { return nil, unix.EPROTONOSUPPORT },
	}
	err := w.WaitForArrival(context.Background(), "/dev", "ttyACM1")
	assert.ErrorIs(t, err, ErrWatchInit)
}
