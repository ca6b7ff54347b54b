package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"patientcore/pkg/domain"
)

type collector struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (c *collector) handle(event domain.ChangeEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *collector) snapshot() []domain.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChangeEvent(nil), c.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func insertEvent(table domain.Table) domain.ChangeEvent {
	return domain.ChangeEvent{Type: domain.ActionInsert, Table: table}
}

func TestPublishReachesPeersNotSelf(t *testing.T) {
	hub := NewHub()
	a := hub.Open("changes", zerolog.Nop())
	b := hub.Open("changes", zerolog.Nop())
	defer a.Close()
	defer b.Close()

	var fromA, fromB collector
	a.OnReceive(fromA.handle)
	b.OnReceive(fromB.handle)

	a.Publish(insertEvent(domain.TablePatients))

	waitFor(t, func() bool { return len(fromB.snapshot()) == 1 })
	if got := fromB.snapshot()[0]; got.Table != domain.TablePatients || got.Type != domain.ActionInsert {
		t.Fatalf("unexpected event at peer: %+v", got)
	}
	if len(fromA.snapshot()) != 0 {
		t.Fatalf("sender received its own event")
	}
}

func TestDistinctChannelNamesAreIsolated(t *testing.T) {
	hub := NewHub()
	a := hub.Open("changes", zerolog.Nop())
	other := hub.Open("elsewhere", zerolog.Nop())
	defer a.Close()
	defer other.Close()

	var got collector
	other.OnReceive(got.handle)

	a.Publish(insertEvent(domain.TableAllergies))

	time.Sleep(50 * time.Millisecond)
	if len(got.snapshot()) != 0 {
		t.Fatalf("event leaked across channel names")
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	hub := NewHub()
	a := hub.Open("changes", zerolog.Nop())
	defer a.Close()

	a.Publish(insertEvent(domain.TablePatients))

	late := hub.Open("changes", zerolog.Nop())
	defer late.Close()
	var got collector
	late.OnReceive(got.handle)

	a.Publish(insertEvent(domain.TableAllergies))

	waitFor(t, func() bool { return len(got.snapshot()) == 1 })
	if got.snapshot()[0].Table != domain.TableAllergies {
		t.Fatalf("late subscriber saw a replayed event: %+v", got.snapshot())
	}
}

func TestOrderingPreservedPerSender(t *testing.T) {
	hub := NewHub()
	a := hub.Open("changes", zerolog.Nop())
	b := hub.Open("changes", zerolog.Nop())
	defer a.Close()
	defer b.Close()

	var got collector
	b.OnReceive(got.handle)

	tables := []domain.Table{domain.TablePatients, domain.TableAllergies, domain.TableSavedQueries}
	for i := 0; i < 30; i++ {
		a.Publish(insertEvent(tables[i%len(tables)]))
	}

	waitFor(t, func() bool { return len(got.snapshot()) == 30 })
	for i, ev := range got.snapshot() {
		if ev.Table != tables[i%len(tables)] {
			t.Fatalf("event %d out of order: %+v", i, ev)
		}
	}
}

func TestCloseDetachesAndIsIdempotent(t *testing.T) {
	hub := NewHub()
	a := hub.Open("changes", zerolog.Nop())
	b := hub.Open("changes", zerolog.Nop())

	b.Close()
	b.Close() // second close is a no-op

	// Publishing after a peer closed must not panic or block.
	a.Publish(insertEvent(domain.TablePatients))
	a.Close()
}

func TestNilHandlerRestoresDefault(t *testing.T) {
	hub := NewHub()
	a := hub.Open("changes", zerolog.Nop())
	b := hub.Open("changes", zerolog.Nop())
	defer a.Close()
	defer b.Close()

	var got collector
	b.OnReceive(got.handle)
	b.OnReceive(nil)

	a.Publish(insertEvent(domain.TablePatients))

	time.Sleep(50 * time.Millisecond)
	if len(got.snapshot()) != 0 {
		t.Fatalf("replaced handler still invoked after reset")
	}
}

func TestChannelIDsAreUnique(t *testing.T) {
	hub := NewHub()
	a := hub.Open("changes", zerolog.Nop())
	b := hub.Open("changes", zerolog.Nop())
	defer a.Close()
	defer b.Close()

	if a.ID() == b.ID() || a.ID() == "" {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID(), b.ID())
	}
}
