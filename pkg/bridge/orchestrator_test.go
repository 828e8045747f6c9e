package bridge

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wrenlabs/go-wren/pkg/audio"
	"github.com/wrenlabs/go-wren/pkg/directory"
	"github.com/wrenlabs/go-wren/pkg/protocol"
	"github.com/wrenlabs/go-wren/pkg/provider"
	"github.com/wrenlabs/go-wren/pkg/registry"
)

type wsWrite struct {
	mt   int
	data []byte
}

type inFrame struct {
	mt   int
	data []byte
}

// fakeConn scripts the device side of a session.
type fakeConn struct {
	in chan inFrame

	mu     sync.Mutex
	writes []wsWrite

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan inFrame, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return 0, nil, net.ErrClosed
		}
		return f.mt, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes = append(c.writes, wsWrite{mt: messageType, data: buf})
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sendBinary(data []byte) {
	c.in <- inFrame{mt: binaryFrame, data: data}
}

func (c *fakeConn) sendAction(t *testing.T, action, assetID string) {
	t.Helper()
	msg, err := protocol.NewActionMessage(action, assetID)
	if err != nil {
		t.Fatal(err)
	}
	data, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	c.in <- inFrame{mt: textFrame, data: data}
}

func (c *fakeConn) snapshot() []wsWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wsWrite, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeConn) textMessages() []*protocol.Message {
	var msgs []*protocol.Message
	for _, w := range c.snapshot() {
		if w.mt != textFrame {
			continue
		}
		if m, err := protocol.ParseMessage(w.data); err == nil {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (c *fakeConn) countSignal(signal string) int {
	n := 0
	for _, m := range c.textMessages() {
		if m.Type != protocol.TypeServer {
			continue
		}
		if d, err := m.GetServerData(); err == nil && d.Msg == signal {
			n++
		}
	}
	return n
}

func (c *fakeConn) binaryCount() int {
	n := 0
	for _, w := range c.snapshot() {
		if w.mt == binaryFrame {
			n++
		}
	}
	return n
}

// fakeAdapter is a scriptable provider.Adapter.
type fakeAdapter struct {
	mu         sync.Mutex
	handler    func(provider.Event)
	ready      bool
	closed     bool
	sent       [][]byte
	interrupts int

	// connectGate, when non-nil, blocks Connect until a value arrives.
	connectGate chan error

	rate int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{rate: audio.DeviceSampleRate}
}

func (a *fakeAdapter) Connect(ctx context.Context) error {
	if a.connectGate != nil {
		select {
		case err := <-a.connectGate:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) SendAudio(pcm []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return provider.ErrClosed
	}
	if !a.ready {
		return provider.ErrNotReady
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	a.sent = append(a.sent, buf)
	return nil
}

func (a *fakeAdapter) OnEvent(fn func(provider.Event)) { a.handler = fn }

func (a *fakeAdapter) Interrupt() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interrupts++
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAdapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready && !a.closed
}

func (a *fakeAdapter) OutputSampleRate() int { return a.rate }

func (a *fakeAdapter) emit(ev provider.Event) { a.handler(ev) }

func (a *fakeAdapter) sentFrames() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, len(a.sent))
	copy(out, a.sent)
	return out
}

var _ provider.Adapter = (*fakeAdapter)(nil)

// identityEncoder passes PCM frames through unchanged.
type identityEncoder struct{}

func (identityEncoder) Encode(pcmFrame []byte) ([]byte, error) {
	out := make([]byte, len(pcmFrame))
	copy(out, pcmFrame)
	return out, nil
}

func testUser() *directory.UserRecord {
	return &directory.UserRecord{
		UserID:       "u-1",
		QuotaSeconds: 600,
		Device: directory.DeviceRecord{
			DeviceID:    "wren-1",
			Volume:      60,
			PitchFactor: 1.0,
			ProviderTag: "openai",
		},
	}
}

type testHarness struct {
	orch    *Orchestrator
	conn    *fakeConn
	adapter *fakeAdapter
	dir     *directory.Mock
	done    chan struct{}
}

func newHarness(t *testing.T, user *directory.UserRecord) *testHarness {
	t.Helper()

	h := &testHarness{
		conn:    newFakeConn(),
		adapter: newFakeAdapter(),
		dir:     directory.NewMock(),
		done:    make(chan struct{}),
	}

	metrics := NewMetrics(prometheus.NewRegistry())
	h.orch = NewOrchestrator(h.dir, registry.New(), &MemAssetStore{Assets: map[string][]byte{}}, metrics, Config{
		Keys:          ProviderKeys{OpenAI: "k", Gemini: "k", ElevenLabs: "k", ElevenLabsAgentID: "a", Qwen: "k"},
		UsageInterval: time.Hour,
	})
	h.orch.newAdapter = func(tag provider.Tag, cfg provider.Config) (provider.Adapter, error) {
		return h.adapter, nil
	}
	h.orch.newEncoder = func() (audio.FrameEncoder, error) {
		return identityEncoder{}, nil
	}

	go func() {
		h.orch.Handle(context.Background(), h.conn, user)
		close(h.done)
	}()
	return h
}

func (h *testHarness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *testHarness) waitBridged(t *testing.T) {
	waitFor(t, func() bool { return h.conn.countSignal(protocol.SignalSessionCreated) == 1 }, "session-created signal")
}

func TestSettingsSnapshotPrecedesAudio(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	h.adapter.emit(provider.Event{Kind: provider.EventTurnStarted})
	h.adapter.emit(provider.Event{Kind: provider.EventAudioChunk, Audio: make([]byte, audio.FrameBytes)})

	waitFor(t, func() bool { return h.conn.binaryCount() > 0 }, "voice frames")
	h.conn.Close()
	h.waitDone(t)

	writes := h.conn.snapshot()
	if len(writes) == 0 || writes[0].mt != textFrame {
		t.Fatal("first write is not a text frame")
	}
	first, err := protocol.ParseMessage(writes[0].data)
	if err != nil || first.Type != protocol.TypeAuth {
		t.Fatalf("first message = %v (err %v), want auth snapshot", first, err)
	}
	auth, err := first.GetAuthData()
	if err != nil || auth.SessionID == "" || auth.Volume != 60 {
		t.Fatalf("auth data = %+v (err %v)", auth, err)
	}

}

func TestPreReadyFramesReplayedOnceInOrder(t *testing.T) {
	user := testUser()
	h := &testHarness{
		conn:    newFakeConn(),
		adapter: newFakeAdapter(),
		dir:     directory.NewMock(),
		done:    make(chan struct{}),
	}
	h.adapter.connectGate = make(chan error)

	metrics := NewMetrics(prometheus.NewRegistry())
	h.orch = NewOrchestrator(h.dir, registry.New(), &MemAssetStore{}, metrics, Config{
		Keys:          ProviderKeys{OpenAI: "k"},
		UsageInterval: time.Hour,
	})
	h.orch.newAdapter = func(provider.Tag, provider.Config) (provider.Adapter, error) { return h.adapter, nil }
	h.orch.newEncoder = func() (audio.FrameEncoder, error) { return identityEncoder{}, nil }

	go func() {
		h.orch.Handle(context.Background(), h.conn, user)
		close(h.done)
	}()

	// Three frames arrive while the provider is still connecting.
	early := [][]byte{{1, 1}, {2, 2}, {3, 3}}
	for _, f := range early {
		h.conn.sendBinary(f)
	}
	waitFor(t, func() bool { return len(h.conn.textMessages()) >= 1 }, "auth snapshot")
	if got := h.adapter.sentFrames(); len(got) != 0 {
		t.Fatalf("adapter received %d frames before readiness", len(got))
	}

	// Readiness: the buffer drains exactly once, in order.
	h.adapter.connectGate <- nil
	h.waitBridged(t)
	waitFor(t, func() bool { return len(h.adapter.sentFrames()) == 3 }, "drained frames")

	// Later frames forward directly, after the drained ones.
	h.conn.sendBinary([]byte{4, 4})
	waitFor(t, func() bool { return len(h.adapter.sentFrames()) == 4 }, "direct frame")

	got := h.adapter.sentFrames()
	for i, want := range [][]byte{{1, 1}, {2, 2}, {3, 3}, {4, 4}} {
		if len(got[i]) != 2 || got[i][0] != want[0] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want)
		}
	}

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)
}

func TestTurnSignals(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	h.adapter.emit(provider.Event{Kind: provider.EventTurnStarted})
	h.adapter.emit(provider.Event{Kind: provider.EventAudioChunk, Audio: make([]byte, audio.FrameBytes)})
	h.adapter.emit(provider.Event{Kind: provider.EventTurnCompleted})

	waitFor(t, func() bool { return h.conn.countSignal(protocol.SignalResponseComplete) == 1 }, "response-complete")

	if got := h.conn.countSignal(protocol.SignalResponseCreated); got != 1 {
		t.Errorf("response-created signaled %d times, want 1", got)
	}
	if got := h.conn.binaryCount(); got != 1 {
		t.Errorf("device received %d voice frames, want 1", got)
	}

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)
}

func TestTurnCompletedFlushesRemainder(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	// Half a frame of audio: nothing emitted until the turn completes.
	h.adapter.emit(provider.Event{Kind: provider.EventAudioChunk, Audio: make([]byte, audio.FrameBytes/2)})
	if got := h.conn.binaryCount(); got != 0 {
		t.Fatalf("device received %d frames before flush", got)
	}
	h.adapter.emit(provider.Event{Kind: provider.EventTurnCompleted})

	waitFor(t, func() bool { return h.conn.binaryCount() == 1 }, "flushed frame")

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)
}

func TestTranscriptsRelayed(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	h.adapter.emit(provider.Event{Kind: provider.EventUserTranscript, Text: "hello"})
	h.adapter.emit(provider.Event{Kind: provider.EventAssistantText, Text: "hi!"})

	waitFor(t, func() bool {
		var sawUser, sawAssistant bool
		for _, m := range h.conn.textMessages() {
			switch m.Type {
			case protocol.TypeTranscript:
				sawUser = true
			case protocol.TypeAssistant:
				sawAssistant = true
			}
		}
		return sawUser && sawAssistant
	}, "relayed transcripts")

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)
}

func TestQuotaSpentRefusesSession(t *testing.T) {
	user := testUser()
	user.UsedSeconds = user.QuotaSeconds

	adapterCreated := false
	h := &testHarness{
		conn: newFakeConn(),
		dir:  directory.NewMock(),
		done: make(chan struct{}),
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	h.orch = NewOrchestrator(h.dir, registry.New(), &MemAssetStore{}, metrics, Config{
		Keys: ProviderKeys{OpenAI: "k"},
	})
	h.orch.newAdapter = func(provider.Tag, provider.Config) (provider.Adapter, error) {
		adapterCreated = true
		return newFakeAdapter(), nil
	}
	h.orch.newEncoder = func() (audio.FrameEncoder, error) { return identityEncoder{}, nil }

	go func() {
		h.orch.Handle(context.Background(), h.conn, user)
		close(h.done)
	}()
	h.waitDone(t)

	if adapterCreated {
		t.Error("adapter was created for a quota-spent session")
	}

	var sawQuotaError bool
	for _, m := range h.conn.textMessages() {
		if m.Type != protocol.TypeError {
			continue
		}
		if d, err := m.GetErrorData(); err == nil && d.Code == CodeQuotaExhausted {
			sawQuotaError = true
		}
	}
	if !sawQuotaError {
		t.Error("device never received the quota error")
	}
	if h.conn.countSignal(protocol.SignalSessionEnd) != 1 {
		t.Error("device never received session-end")
	}
}

func TestUnknownProviderTagRefusesSession(t *testing.T) {
	user := testUser()
	user.Device.ProviderTag = "mystery"

	conn := newFakeConn()
	metrics := NewMetrics(prometheus.NewRegistry())
	orch := NewOrchestrator(directory.NewMock(), registry.New(), &MemAssetStore{}, metrics, Config{
		Keys: ProviderKeys{OpenAI: "k"},
	})
	orch.newEncoder = func() (audio.FrameEncoder, error) { return identityEncoder{}, nil }

	done := make(chan struct{})
	go func() {
		orch.Handle(context.Background(), conn, user)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}

	var sawError bool
	for _, m := range conn.textMessages() {
		if m.Type == protocol.TypeError {
			if d, err := m.GetErrorData(); err == nil && d.Code == CodeProviderUnavailable {
				sawError = true
			}
		}
	}
	if !sawError {
		t.Error("device never received the provider error")
	}
}

func TestConnectFailureEndsSession(t *testing.T) {
	user := testUser()
	h := &testHarness{
		conn:    newFakeConn(),
		adapter: newFakeAdapter(),
		dir:     directory.NewMock(),
		done:    make(chan struct{}),
	}
	h.adapter.connectGate = make(chan error, 1)
	h.adapter.connectGate <- errors.New("dial refused")

	metrics := NewMetrics(prometheus.NewRegistry())
	h.orch = NewOrchestrator(h.dir, registry.New(), &MemAssetStore{}, metrics, Config{
		Keys: ProviderKeys{OpenAI: "k"},
	})
	h.orch.newAdapter = func(provider.Tag, provider.Config) (provider.Adapter, error) { return h.adapter, nil }
	h.orch.newEncoder = func() (audio.FrameEncoder, error) { return identityEncoder{}, nil }

	go func() {
		h.orch.Handle(context.Background(), h.conn, user)
		close(h.done)
	}()
	h.waitDone(t)

	if h.conn.countSignal(protocol.SignalSessionEnd) != 1 {
		t.Error("device never received session-end after connect failure")
	}
}

func TestInterruptAction(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	h.conn.sendAction(t, protocol.ActionInterrupt, "")
	waitFor(t, func() bool {
		h.adapter.mu.Lock()
		defer h.adapter.mu.Unlock()
		return h.adapter.interrupts == 1
	}, "interrupt")

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)
}

func TestPlayAssetAction(t *testing.T) {
	user := testUser()
	h := &testHarness{
		conn:    newFakeConn(),
		adapter: newFakeAdapter(),
		dir:     directory.NewMock(),
		done:    make(chan struct{}),
	}

	samples := make([]int16, audio.FrameSamples*2)
	asset := audio.EncodeWAV(audio.PCM16ToBytes(samples), audio.DeviceSampleRate, 1)

	metrics := NewMetrics(prometheus.NewRegistry())
	h.orch = NewOrchestrator(h.dir, registry.New(), &MemAssetStore{Assets: map[string][]byte{"lullaby": asset}}, metrics, Config{
		Keys:          ProviderKeys{OpenAI: "k"},
		UsageInterval: time.Hour,
	})
	h.orch.newAdapter = func(provider.Tag, provider.Config) (provider.Adapter, error) { return h.adapter, nil }
	h.orch.newEncoder = func() (audio.FrameEncoder, error) { return identityEncoder{}, nil }

	go func() {
		h.orch.Handle(context.Background(), h.conn, user)
		close(h.done)
	}()
	h.waitBridged(t)

	h.conn.sendAction(t, protocol.ActionPlayAsset, "lullaby")
	waitFor(t, func() bool { return h.conn.binaryCount() == 2 }, "asset frames")

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)
}

func TestPlayAssetUnknownID(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	h.conn.sendAction(t, protocol.ActionPlayAsset, "ghost")
	waitFor(t, func() bool {
		for _, m := range h.conn.textMessages() {
			if m.Type == protocol.TypeError {
				if d, err := m.GetErrorData(); err == nil && d.Code == CodeAssetNotFound {
					return true
				}
			}
		}
		return false
	}, "asset error")

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)
}

func TestUpstreamEndClosesSession(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	h.adapter.emit(provider.Event{Kind: provider.EventSessionEnded})
	h.waitDone(t)

	if h.conn.countSignal(protocol.SignalSessionEnd) != 1 {
		t.Error("device never received session-end")
	}
	h.adapter.mu.Lock()
	closed := h.adapter.closed
	h.adapter.mu.Unlock()
	if !closed {
		t.Error("adapter not closed after upstream end")
	}
}

func TestUsagePersistedOnClose(t *testing.T) {
	h := newHarness(t, testUser())
	h.waitBridged(t)

	h.conn.sendAction(t, protocol.ActionEndSession, "")
	h.waitDone(t)

	if h.dir.PersistCalls == 0 {
		t.Error("usage never persisted on session close")
	}
}
