package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/player-oidc/internal/testutil"
	"github.com/giantswarm/player-oidc/storage"
)

func newTestCodeStore(t *testing.T, maxAge, interval time.Duration) (*CodeStore, *testutil.MockTime) {
	t.Helper()
	clock := testutil.NewMockTime(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	codes := NewCodeStore(maxAge, interval)
	codes.SetClock(clock.Now)
	codes.SetLogger(testutil.DiscardLogger())
	return codes, clock
}

func testPending(clientID string) *storage.PendingAuthorization {
	return &storage.PendingAuthorization{
		ClientID:            clientID,
		RedirectURI:         testRedirectPattern,
		Scope:               "openid",
		State:               "xyz",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		SubjectAccountID:    "account-1",
	}
}

func TestCodeStore_PutTake(t *testing.T) {
	codes, _ := newTestCodeStore(t, time.Minute, time.Minute)

	if err := codes.Put("code-1", testPending("client-1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if codes.Len() != 1 {
		t.Errorf("Len() = %d, want 1", codes.Len())
	}

	got, ok := codes.Take("code-1")
	if !ok {
		t.Fatal("Take() ok = false, want true")
	}
	if got.Code != "code-1" || got.ClientID != "client-1" {
		t.Errorf("Take() = %+v", got)
	}

	if _, ok := codes.Take("code-1"); ok {
		t.Error("second Take() ok = true, want false")
	}
	if codes.Len() != 0 {
		t.Errorf("Len() = %d, want 0", codes.Len())
	}
}

func TestCodeStore_PutValidation(t *testing.T) {
	codes, _ := newTestCodeStore(t, time.Minute, time.Minute)

	if err := codes.Put("", testPending("c")); err == nil {
		t.Error("Put() with empty code expected error")
	}
	if err := codes.Put("code", nil); err == nil {
		t.Error("Put() with nil data expected error")
	}
	if err := codes.Put("code", testPending("c")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := codes.Put("code", testPending("c")); err != ErrCodeExists {
		t.Errorf("duplicate Put() error = %v, want ErrCodeExists", err)
	}
}

func TestCodeStore_TakeExpiredConsumes(t *testing.T) {
	codes, clock := newTestCodeStore(t, time.Minute, time.Hour)

	if err := codes.Put("code-1", testPending("client-1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	clock.Advance(time.Minute + time.Millisecond)

	if _, ok := codes.Take("code-1"); ok {
		t.Error("Take() of expired code ok = true, want false")
	}
	if codes.Len() != 0 {
		t.Errorf("Len() = %d after taking expired code, want 0", codes.Len())
	}
}

func TestCodeStore_ConcurrentTake(t *testing.T) {
	codes, _ := newTestCodeStore(t, time.Minute, time.Minute)

	const attempts = 64
	for round := 0; round < 20; round++ {
		code := fmt.Sprintf("code-%d", round)
		if err := codes.Put(code, testPending("client-1")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, ok := codes.Take(code); ok {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("round %d: %d successful Take() calls, want exactly 1", round, got)
		}
	}
}

func TestCodeStore_SweepBoundary(t *testing.T) {
	maxAge := 10 * time.Minute
	codes, clock := newTestCodeStore(t, maxAge, time.Minute)

	// at sweep time: old is maxAge+1ms old, exact is maxAge old, young is maxAge/2 old
	if err := codes.Put("old", testPending("c")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Millisecond)
	if err := codes.Put("exact", testPending("c")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(maxAge / 2)
	if err := codes.Put("young", testPending("c")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(maxAge / 2)

	removed := codes.SweepExpired(maxAge)
	if removed != 1 {
		t.Errorf("SweepExpired() removed = %d, want 1", removed)
	}
	if codes.Len() != 2 {
		t.Errorf("Len() = %d, want 2", codes.Len())
	}
	if _, ok := codes.Take("young"); !ok {
		t.Error("young entry was removed")
	}
}

func TestCodeStore_SweepThrottled(t *testing.T) {
	codes, clock := newTestCodeStore(t, time.Minute, time.Minute)

	if err := codes.Put("a", testPending("c")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)

	if removed := codes.SweepExpired(time.Minute); removed != 1 {
		t.Fatalf("first SweepExpired() = %d, want 1", removed)
	}

	if err := codes.Put("b", testPending("c")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Second)
	// b is 30s old; even with a tiny maxAge the sweep is throttled
	if removed := codes.SweepExpired(time.Second); removed != 0 {
		t.Errorf("throttled SweepExpired() = %d, want 0", removed)
	}

	clock.Advance(31 * time.Second)
	if removed := codes.SweepExpired(time.Second); removed != 1 {
		t.Errorf("SweepExpired() after interval = %d, want 1", removed)
	}
}

func TestCodeStore_ConcurrentSweepScansOnce(t *testing.T) {
	codes, clock := newTestCodeStore(t, time.Minute, time.Minute)

	for i := 0; i < 100; i++ {
		if err := codes.Put(fmt.Sprintf("code-%d", i), testPending("c")); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(2 * time.Minute)

	var total atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			total.Add(int64(codes.SweepExpired(time.Minute)))
		}()
	}
	wg.Wait()

	if total.Load() != 100 {
		t.Errorf("total removed = %d, want 100", total.Load())
	}
}

// Entries inserted while a sweep is running are never removed by it, and
// every entry older than maxAge at sweep start is removed.
func TestCodeStore_SweepWithConcurrentInserts(t *testing.T) {
	maxAge := time.Minute
	codes, clock := newTestCodeStore(t, maxAge, time.Nanosecond)

	for i := 0; i < 500; i++ {
		if err := codes.Put(fmt.Sprintf("old-%d", i), testPending("c")); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(maxAge + time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = codes.Put(fmt.Sprintf("new-%d", i), testPending("c"))
		}
	}()
	removed := codes.SweepExpired(maxAge)
	wg.Wait()

	if removed != 500 {
		t.Errorf("SweepExpired() removed = %d, want 500", removed)
	}
	for i := 0; i < 500; i++ {
		if _, ok := codes.Take(fmt.Sprintf("new-%d", i)); !ok {
			t.Fatalf("new-%d was removed by the sweep", i)
		}
		if _, ok := codes.Take(fmt.Sprintf("old-%d", i)); ok {
			t.Fatalf("old-%d survived the sweep", i)
		}
	}
}
