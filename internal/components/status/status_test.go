package status_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/appctx"
	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/status"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return base }

// memAdapter is an in-memory availability.SyncAdapter.
type memAdapter struct {
	mu      sync.Mutex
	records map[string]availability.Record
	writes  int
}

func newMemAdapter() *memAdapter {
	return &memAdapter{records: make(map[string]availability.Record)}
}

func (a *memAdapter) ReadStatus(ctx context.Context, userID string) (availability.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[userID]
	if !ok {
		return availability.Record{}, availability.ErrNoRecord
	}
	return rec, nil
}

func (a *memAdapter) WriteStatus(ctx context.Context, userID string, rec availability.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[userID] = rec
	a.writes++
	return nil
}

func (a *memAdapter) get(userID string) availability.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[userID]
}

func withUser(r *http.Request, id string) *http.Request {
	return r.WithContext(appctx.WithUser(r.Context(), &appctx.User{ID: id, Username: id}))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) status.Response {
	t.Helper()
	var resp status.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestRegistry_EnterReconciles(t *testing.T) {
	adapter := newMemAdapter()
	adapter.records["free"] = availability.Record{UserID: "free", Status: availability.Free, ExpiresAt: availability.NewExpiry(base.Add(30 * time.Minute))}
	adapter.records["stale"] = availability.Record{UserID: "stale", Status: availability.Free, ExpiresAt: availability.NewExpiry(base.Add(-time.Minute))}
	reg := status.NewRegistry(adapter, status.Config{Clock: fixedClock}, nil, nil)

	v := reg.Enter(context.Background(), "free")
	if v.State.Status != availability.Free || !v.State.Loaded {
		t.Errorf("expected loaded Free, got %+v", v.State)
	}
	if v.Activity != "Café" {
		t.Errorf("expected default activity, got %q", v.Activity)
	}

	v = reg.Enter(context.Background(), "stale")
	if v.State.Status != availability.Busy || !v.Stale {
		t.Errorf("expected stale Busy, got %+v", v)
	}
	if adapter.get("stale").Status != availability.Free {
		t.Error("stale row should be left alone without repair")
	}

	v = reg.Enter(context.Background(), "nobody")
	if v.State.Status != availability.Busy {
		t.Errorf("expected Busy for a missing row, got %+v", v.State)
	}

	if reg.Machine("free") != reg.Machine("free") {
		t.Error("expected one machine per user")
	}
}

func TestRegistry_RepairStale(t *testing.T) {
	adapter := newMemAdapter()
	adapter.records["u1"] = availability.Record{UserID: "u1", Status: availability.Free, ExpiresAt: availability.NewExpiry(base.Add(-time.Minute))}
	reg := status.NewRegistry(adapter, status.Config{Clock: fixedClock, RepairStale: true}, nil, nil)

	reg.Enter(context.Background(), "u1")
	if rec := adapter.get("u1"); rec.Status != availability.Busy || !rec.ExpiresAt.IsZero() {
		t.Errorf("expected repaired Busy row, got %+v", rec)
	}
}

// slowReader holds ReadStatus until released, after returning the record
// it saw on entry.
type slowReader struct {
	*memAdapter
	reading chan struct{}
	release chan struct{}
}

func (a *slowReader) ReadStatus(ctx context.Context, userID string) (availability.Record, error) {
	rec, err := a.memAdapter.ReadStatus(ctx, userID)
	close(a.reading)
	<-a.release
	return rec, err
}

func TestRegistry_EnterKeepsToggleMadeDuringRead(t *testing.T) {
	adapter := &slowReader{memAdapter: newMemAdapter(), reading: make(chan struct{}), release: make(chan struct{})}
	reg := status.NewRegistry(adapter, status.Config{Clock: fixedClock}, nil, nil)
	m := reg.Machine("u1")

	done := make(chan status.View)
	go func() { done <- reg.Enter(context.Background(), "u1") }()

	<-adapter.reading
	m.Toggle(context.Background())
	m.Wait()
	close(adapter.release)

	v := <-done
	if v.State.Status != availability.Free || v.State.Pending {
		t.Errorf("expected the confirmed Free to survive reconciliation, got %+v", v.State)
	}
	if got := m.State(); got.Status != availability.Free {
		t.Errorf("machine state overwritten by an older read: %+v", got)
	}
	if rec := adapter.get("u1"); rec.Status != availability.Free {
		t.Errorf("expected Free stored, got %+v", rec)
	}
}

func TestHandler_Get(t *testing.T) {
	adapter := newMemAdapter()
	adapter.records["u1"] = availability.Record{UserID: "u1", Status: availability.Free, ExpiresAt: availability.NewExpiry(base.Add(30 * time.Minute))}
	h := status.NewHandler(status.NewRegistry(adapter, status.Config{Clock: fixedClock}, nil, nil), nil)

	w := httptest.NewRecorder()
	h.Get(w, withUser(httptest.NewRequest(http.MethodGet, "/api/status", nil), "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp.Status != "Libre" || resp.Countdown != "00:30:00" || resp.Label != "Libre por: 00:30:00" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.ExpiresAt == nil || *resp.ExpiresAt != string(availability.NewExpiry(base.Add(30*time.Minute))) {
		t.Errorf("unexpected expires_at %v", resp.ExpiresAt)
	}
}

func TestHandler_GetFreeWithoutExpiry(t *testing.T) {
	adapter := newMemAdapter()
	adapter.records["u1"] = availability.Record{UserID: "u1", Status: availability.Free}
	h := status.NewHandler(status.NewRegistry(adapter, status.Config{Clock: fixedClock}, nil, nil), nil)

	w := httptest.NewRecorder()
	h.Get(w, withUser(httptest.NewRequest(http.MethodGet, "/api/status", nil), "u1"))

	resp := decode(t, w)
	if resp.Status != "Libre" || resp.Label != availability.StaticLabel || resp.Countdown != "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_Unauthenticated(t *testing.T) {
	h := status.NewHandler(status.NewRegistry(newMemAdapter(), status.Config{}, nil, nil), nil)
	for name, fn := range map[string]http.HandlerFunc{"get": h.Get, "toggle": h.Toggle, "stream": h.Stream} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, w.Code)
		}
	}
}

func TestHandler_ToggleAnnouncesActivity(t *testing.T) {
	adapter := newMemAdapter()
	adapter.records["u1"] = availability.BusyRecord("u1")

	var mu sync.Mutex
	var events []availability.FreeEvent
	reg := status.NewRegistry(adapter, status.Config{Clock: fixedClock}, func(ev availability.FreeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, nil)
	h := status.NewHandler(reg, nil)

	w := httptest.NewRecorder()
	r := withUser(httptest.NewRequest(http.MethodPost, "/api/status/toggle", strings.NewReader(`{"activity":"Deporte"}`)), "u1")
	h.Toggle(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp.Status != "Libre" || !resp.Pending || resp.Activity != "Deporte" || resp.Countdown != "01:00:00" {
		t.Errorf("unexpected optimistic response %+v", resp)
	}

	reg.Wait()

	rec := adapter.get("u1")
	if rec.Status != availability.Free || rec.ExpiresAt != availability.NewExpiry(base.Add(time.Hour)) {
		t.Errorf("unexpected stored record %+v", rec)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Activity != "Deporte" || events[0].UserID != "u1" {
		t.Errorf("unexpected free events %+v", events)
	}

	// Toggle back without a body.
	w = httptest.NewRecorder()
	h.Toggle(w, withUser(httptest.NewRequest(http.MethodPost, "/api/status/toggle", nil), "u1"))
	if resp := decode(t, w); resp.Status != "Ocupado" || resp.ExpiresAt != nil {
		t.Errorf("expected Busy, got %+v", resp)
	}
	reg.Wait()
	if rec := adapter.get("u1"); rec.Status != availability.Busy {
		t.Errorf("expected Busy stored, got %+v", rec)
	}
}

func TestHandler_ToggleRejectsBadActivity(t *testing.T) {
	adapter := newMemAdapter()
	h := status.NewHandler(status.NewRegistry(adapter, status.Config{}, nil, nil), nil)

	w := httptest.NewRecorder()
	body := `{"activity":"` + strings.Repeat("x", 40) + `"}`
	h.Toggle(w, withUser(httptest.NewRequest(http.MethodPost, "/api/status/toggle", strings.NewReader(body)), "u1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if adapter.writes != 0 {
		t.Error("no write expected for a rejected toggle")
	}
}

func TestAnnouncer(t *testing.T) {
	var gotUser, gotActivity string
	hook := status.Announcer(func(ctx context.Context, userID, activity string) error {
		gotUser, gotActivity = userID, activity
		return nil
	}, nil)

	hook(availability.FreeEvent{UserID: "u1", Activity: "Cena"})
	if gotUser != "u1" || gotActivity != "Cena" {
		t.Errorf("unexpected call: %q %q", gotUser, gotActivity)
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return ev
}

func TestHandler_StreamFollowsToggles(t *testing.T) {
	adapter := newMemAdapter()
	adapter.records["u1"] = availability.Record{UserID: "u1", Status: availability.Free, ExpiresAt: availability.NewExpiry(base.Add(90 * time.Second))}
	reg := status.NewRegistry(adapter, status.Config{Clock: fixedClock, TickInterval: 20 * time.Millisecond}, nil, nil)
	h := status.NewHandler(reg, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Stream(w, withUser(r, "u1"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	first := readEvent(t, sc)
	if first.name != "state" || !strings.Contains(first.data, `"status":"Libre"`) {
		t.Fatalf("unexpected first event %+v", first)
	}
	tick := readEvent(t, sc)
	if tick.name != "tick" || !strings.Contains(tick.data, `"countdown":"00:01:30"`) {
		t.Fatalf("unexpected tick %+v", tick)
	}

	reg.Machine("u1").Toggle(context.Background())

	for {
		ev := readEvent(t, sc)
		if ev.name == "state" {
			if !strings.Contains(ev.data, `"status":"Ocupado"`) {
				t.Errorf("expected Busy state event, got %s", ev.data)
			}
			break
		}
	}
	reg.Wait()
}

func TestHandler_StreamDoesNotReplayFinishedCountdown(t *testing.T) {
	var mu sync.Mutex
	now := base
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	expiry := availability.NewExpiry(base.Add(time.Second))

	adapter := newMemAdapter()
	adapter.records["u1"] = availability.Record{UserID: "u1", Status: availability.Free, ExpiresAt: expiry}
	reg := status.NewRegistry(adapter, status.Config{Clock: clock, TickInterval: 10 * time.Millisecond}, nil, nil)
	h := status.NewHandler(reg, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Stream(w, withUser(r, "u1"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)

	if ev := readEvent(t, sc); ev.name != "state" {
		t.Fatalf("expected initial state event, got %+v", ev)
	}
	mu.Lock()
	now = base.Add(2 * time.Second)
	mu.Unlock()
	for {
		ev := readEvent(t, sc)
		if ev.name == "tick" && strings.Contains(ev.data, `"countdown":"00:00:00"`) {
			break
		}
	}

	// Same expiry again, then a real change.
	m := reg.Machine("u1")
	m.Load(availability.Effective{Status: availability.Free, ExpiresAt: expiry})
	if ev := readEvent(t, sc); ev.name != "state" || !strings.Contains(ev.data, `"status":"Libre"`) {
		t.Fatalf("expected Free state event, got %+v", ev)
	}
	m.Toggle(context.Background())
	m.Wait()
	if ev := readEvent(t, sc); ev.name != "state" {
		t.Errorf("finished countdown was restarted: got %+v", ev)
	}
}
