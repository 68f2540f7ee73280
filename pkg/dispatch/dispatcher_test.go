package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-tello/pkg/command"
)

// mockTransport records every directive and can be told to fail.
type mockTransport struct {
	mu    sync.Mutex
	calls []string
	fail  error

	// failFor counts down failures before succeeding, for retry tests.
	failFor int

	// landGate, when set, makes Land signal entry and wait for release.
	landGate chan struct{}
}

func (m *mockTransport) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.failFor > 0 {
		m.failFor--
		return errors.New("link dropped")
	}
	return m.fail
}

func (m *mockTransport) TakeOff() error { return m.record("takeoff") }
func (m *mockTransport) Land() error {
	if m.landGate != nil {
		m.landGate <- struct{}{}
		<-m.landGate
	}
	return m.record("land")
}
func (m *mockTransport) Hover() error   { return m.record("hover") }

func (m *mockTransport) Move(action command.VehicleAction, cm int) error {
	return m.record(action.String())
}

func (m *mockTransport) Rotate(action command.VehicleAction, degrees int) error {
	return m.record(action.String())
}

func (m *mockTransport) Flip(d command.FlipDirection) error {
	return m.record("flip " + d.Letter())
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockTransport) lastCall() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}

// stubStatus is a fixed airborne flag.
type stubStatus struct{ airborne bool }

func (s *stubStatus) Airborne() bool { return s.airborne }

func newTestDispatcher(airborne bool) (*Dispatcher, *mockTransport, *stubStatus) {
	tr := &mockTransport{}
	st := &stubStatus{airborne: airborne}
	d := New(Config{
		MovementCooldown: 500 * time.Millisecond,
		VisionCooldown:   3 * time.Second,
		LandRetries:      3,
		LandRetryDelay:   time.Millisecond,
	}, tr, st)
	return d, tr, st
}

func TestDispatch_CooldownPerKind(t *testing.T) {
	d, tr, _ := newTestDispatcher(true)
	now := time.Now()

	cmd := command.New(command.ActionMoveForward, command.SourceGesture, now)
	if err := d.Dispatch(cmd, now); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := d.Dispatch(cmd, now.Add(100*time.Millisecond)); !errors.Is(err, ErrRateLimited) {
		t.Errorf("inside cooldown: got %v, want ErrRateLimited", err)
	}
	if err := d.Dispatch(cmd, now.Add(600*time.Millisecond)); err != nil {
		t.Errorf("after cooldown: %v", err)
	}
	if tr.callCount() != 2 {
		t.Errorf("transport calls: got %d, want 2", tr.callCount())
	}
}

func TestDispatch_CooldownIsPerActionKind(t *testing.T) {
	d, _, _ := newTestDispatcher(true)
	now := time.Now()

	if err := d.Dispatch(command.New(command.ActionMoveForward, command.SourceGesture, now), now); err != nil {
		t.Fatalf("forward: %v", err)
	}
	// A different kind is not throttled by forward's cooldown.
	if err := d.Dispatch(command.New(command.ActionRotateCW, command.SourceGesture, now), now.Add(50*time.Millisecond)); err != nil {
		t.Errorf("rotate inside forward's cooldown: %v", err)
	}
}

func TestDispatch_TakeOffWhileAirborne(t *testing.T) {
	d, tr, _ := newTestDispatcher(true)
	err := d.Dispatch(command.New(command.ActionTakeOff, command.SourceManual, time.Now()), time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}
	if tr.callCount() != 0 {
		t.Error("rejected takeoff still reached the transport")
	}
}

func TestDispatch_LandWhileLandedIsIdempotent(t *testing.T) {
	d, tr, _ := newTestDispatcher(false)
	if err := d.Dispatch(command.New(command.ActionLand, command.SourceManual, time.Now()), time.Now()); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if tr.callCount() != 0 {
		t.Error("no-op landing reached the transport")
	}
}

func TestDispatch_TransportFailureSurfacedNotRetried(t *testing.T) {
	d, tr, _ := newTestDispatcher(true)
	tr.fail = errors.New("link dropped")

	err := d.Dispatch(command.New(command.ActionMoveForward, command.SourceGesture, time.Now()), time.Now())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if te.Op != "move_forward" {
		t.Errorf("op: got %q, want move_forward", te.Op)
	}
	if tr.callCount() != 1 {
		t.Errorf("movement retried: %d calls", tr.callCount())
	}
}

func TestDispatch_VisionBusyAndCooldown(t *testing.T) {
	d, _, _ := newTestDispatcher(true)
	now := time.Now()
	query := command.New(command.ActionQueryVision, command.SourceVision, now)

	if err := d.Dispatch(query, now); err != nil {
		t.Fatalf("first query: %v", err)
	}
	d.BeginQuery("q1")

	// Outstanding query wins over the cooldown check.
	if err := d.Dispatch(query, now.Add(5*time.Second)); !errors.Is(err, ErrBusy) {
		t.Errorf("outstanding: got %v, want ErrBusy", err)
	}

	if !d.EndQuery("q1") {
		t.Fatal("matching id rejected")
	}
	if err := d.Dispatch(query, now.Add(time.Second)); !errors.Is(err, ErrRateLimited) {
		t.Errorf("inside vision cooldown: got %v, want ErrRateLimited", err)
	}
	if err := d.Dispatch(query, now.Add(4*time.Second)); err != nil {
		t.Errorf("after vision cooldown: %v", err)
	}
}

func TestEndQuery_StaleIDRejected(t *testing.T) {
	d, _, _ := newTestDispatcher(true)
	d.BeginQuery("q2")

	if d.EndQuery("q1") {
		t.Error("stale id accepted")
	}
	if d.EndQuery("") {
		t.Error("empty id accepted")
	}
	if !d.EndQuery("q2") {
		t.Error("matching id rejected")
	}
}

func TestSafetyLand_BypassesCooldownAndRetries(t *testing.T) {
	d, tr, _ := newTestDispatcher(true)
	now := time.Now()

	// A regular land first, so the kind is cooling down.
	if err := d.Dispatch(command.New(command.ActionLand, command.SourceManual, now), now); err != nil {
		t.Fatalf("setup land: %v", err)
	}

	tr.failFor = 2
	if err := d.SafetyLand(now.Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("safety land: %v", err)
	}
	// One setup call plus two failures and the success.
	if tr.callCount() != 4 {
		t.Errorf("transport calls: got %d, want 4", tr.callCount())
	}
}

func TestSafetyLand_GivesUpAfterBudget(t *testing.T) {
	d, tr, _ := newTestDispatcher(true)
	tr.fail = errors.New("link dead")

	err := d.SafetyLand(time.Now())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if tr.callCount() != 3 {
		t.Errorf("attempts: got %d, want 3", tr.callCount())
	}
}

func TestSafetyLand_SnapshotReadableDuringAttempt(t *testing.T) {
	d, tr, _ := newTestDispatcher(true)
	gate := make(chan struct{})
	tr.landGate = gate

	done := make(chan error, 1)
	go func() { done <- d.SafetyLand(time.Now()) }()
	<-gate // landing attempt is in flight

	got := make(chan Snapshot, 1)
	go func() { got <- d.Snapshot() }()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked behind the landing attempt")
	}

	gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("safety land: %v", err)
	}
}

func TestSafetyLand_IdempotentWhenLanded(t *testing.T) {
	d, tr, _ := newTestDispatcher(false)
	if err := d.SafetyLand(time.Now()); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if tr.callCount() != 0 {
		t.Error("no-op safety land reached the transport")
	}
}

func TestSafetyHover_PacedByInterval(t *testing.T) {
	d, tr, _ := newTestDispatcher(true)
	now := time.Now()

	if err := d.SafetyHover(now); err != nil {
		t.Fatalf("first hover: %v", err)
	}
	if err := d.SafetyHover(now.Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("paced hover: %v", err)
	}
	// Inside the 2s interval the second call is a silent no-op.
	if tr.callCount() != 1 {
		t.Errorf("transport calls: got %d, want 1", tr.callCount())
	}
	if err := d.SafetyHover(now.Add(3 * time.Second)); err != nil {
		t.Fatalf("hover after interval: %v", err)
	}
	if tr.lastCall() != "hover" || tr.callCount() != 2 {
		t.Errorf("calls: got %v", tr.calls)
	}
}

func TestMarkShutdown_Terminal(t *testing.T) {
	d, _, _ := newTestDispatcher(true)
	d.MarkShutdown()

	err := d.Dispatch(command.New(command.ActionMoveForward, command.SourceManual, time.Now()), time.Now())
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("dispatch: got %v, want ErrShuttingDown", err)
	}
	if err := d.SafetyHover(time.Now()); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("hover: got %v, want ErrShuttingDown", err)
	}
}

func TestSnapshot_TracksCurrentCommand(t *testing.T) {
	d, _, _ := newTestDispatcher(true)
	now := time.Now()

	d.Dispatch(command.New(command.ActionRotateCW, command.SourceVoice, now), now)
	s := d.Snapshot()
	if s.Current.Action != command.ActionRotateCW || s.Current.Source != command.SourceVoice {
		t.Errorf("current: got %v from %v", s.Current.Action, s.Current.Source)
	}
}
