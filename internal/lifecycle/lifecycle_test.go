package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Pharaoh-Labs/teamarr/internal/domain"
	"github.com/Pharaoh-Labs/teamarr/internal/hostapi"
	"github.com/Pharaoh-Labs/teamarr/internal/matcher"
	"github.com/Pharaoh-Labs/teamarr/internal/storage"
)

func TestShouldCreateChannel_DayOfBecomesTrueOnEventDate(t *testing.T) {
	loc := time.UTC
	event := domain.Event{StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, loc)}
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)

	ok, _ := ShouldCreateChannel(event, "day_of", loc, now)
	if !ok {
		t.Fatal("expected should-create true on event day with day_of timing")
	}
}

func TestShouldCreateChannel_WeekBeforeTooEarly(t *testing.T) {
	loc := time.UTC
	event := domain.Event{StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, loc)}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, loc)

	ok, reason := ShouldCreateChannel(event, "week_before", loc, now)
	if ok {
		t.Fatalf("expected too early, got reason %q", reason)
	}
}

func TestShouldCreateChannel_WeekBeforeThresholdReached(t *testing.T) {
	loc := time.UTC
	event := domain.Event{StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, loc)}
	now := time.Date(2026, 3, 3, 8, 0, 0, 0, loc)

	ok, _ := ShouldCreateChannel(event, "week_before", loc, now)
	if !ok {
		t.Fatal("expected should-create true exactly at the 7-day threshold")
	}
}

func TestCalculateDeleteTime_ManualReturnsNoTime(t *testing.T) {
	event := domain.Event{StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)}
	_, ok := CalculateDeleteTime(event, "manual", time.UTC)
	if ok {
		t.Fatal("expected manual timing to have no scheduled delete time")
	}
}

func TestCalculateDeleteTime_EndOfDayIsMidnightAfterEvent(t *testing.T) {
	loc := time.UTC
	event := domain.Event{StartTime: time.Date(2026, 3, 10, 19, 0, 0, 0, loc)}
	deleteAt, ok := CalculateDeleteTime(event, "end_of_day", loc)
	if !ok {
		t.Fatal("expected a scheduled delete time")
	}
	want := time.Date(2026, 3, 11, 0, 0, 0, 0, loc)
	if !deleteAt.Equal(want) {
		t.Fatalf("got %v, want %v", deleteAt, want)
	}
}

func TestGenerateChannelName_FallsBackToAwayAtHome(t *testing.T) {
	event := domain.Event{
		Home: domain.Team{Name: "Celtics"},
		Away: domain.Team{Name: "Lakers"},
	}
	got := GenerateChannelName(event, nil, "")
	if got != "Lakers @ Celtics" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateChannelName_UsesRenderWhenPatternPresent(t *testing.T) {
	event := domain.Event{}
	got := GenerateChannelName(event, func(p string) string { return "rendered:" + p }, "{team_name}")
	if got != "rendered:{team_name}" {
		t.Fatalf("got %q", got)
	}
}

// fakeChannelStore is an in-memory ChannelStore used to exercise
// ProcessMatchedStreams without a real Postgres instance.
type fakeChannelStore struct {
	nextNumber       int
	failCreatesUntil int // CreateManagedChannel returns ErrChannelNumberConflict this many times first
	createCalls      int
	created          []domain.ManagedChannel
}

func (f *fakeChannelStore) GetManagedChannelByEvent(ctx context.Context, eventID, groupID string) (*domain.ManagedChannel, error) {
	return nil, nil
}

func (f *fakeChannelStore) NextChannelNumber(ctx context.Context, groupID string) (int, error) {
	f.nextNumber++
	return f.nextNumber, nil
}

func (f *fakeChannelStore) CreateManagedChannel(ctx context.Context, ch domain.ManagedChannel) error {
	f.createCalls++
	if f.createCalls <= f.failCreatesUntil {
		return storage.ErrChannelNumberConflict
	}
	f.created = append(f.created, ch)
	return nil
}

func (f *fakeChannelStore) ManagedChannelsForGroup(ctx context.Context, groupID string) ([]domain.ManagedChannel, error) {
	return f.created, nil
}

func (f *fakeChannelStore) MarkManagedChannelDeleted(ctx context.Context, id string) error {
	return nil
}

func (f *fakeChannelStore) ChannelsPendingDeletion(ctx context.Context, asOf time.Time) ([]domain.ManagedChannel, error) {
	return nil, nil
}

func testGroup() domain.EventEPGGroup {
	start := 100
	return domain.EventEPGGroup{ID: "grp-1", ChannelStart: &start, CreateTiming: "day_of", DeleteTiming: "stream_removed"}
}

func matchedResult(eventID, streamID string, start time.Time) matcher.StreamMatchResult {
	event := domain.Event{ID: eventID, Home: domain.Team{Name: "Lakers"}, Away: domain.Team{Name: "Celtics"}, StartTime: start}
	return matcher.StreamMatchResult{StreamName: "Lakers vs Celtics", StreamID: streamID, Matched: true, Included: true, Event: &event}
}

func newTestHost(t *testing.T, createdChannels *int) *hostapi.Client {
	t.Helper()
	counter := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/channels":
			counter++
			if createdChannels != nil {
				*createdChannels = counter
			}
			json.NewEncoder(w).Encode(hostapi.Channel{ID: "host-chan", Name: "test"})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return hostapi.New(srv.URL, "admin", "secret")
}

func TestProcessMatchedStreams_CreatesChannelForNewMatch(t *testing.T) {
	host := newTestHost(t, nil)
	store := &fakeChannelStore{nextNumber: 99}
	mgr := NewManager(host, store)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	results := []matcher.StreamMatchResult{matchedResult("evt-1", "stream-1", now)}

	out := mgr.ProcessMatchedStreams(context.Background(), results, testGroup(), nil, time.UTC, now)
	if len(out.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}
	if len(out.Created) != 1 || out.Created[0].ChannelNumber != 100 {
		t.Fatalf("expected one channel at number 100, got %+v", out.Created)
	}
}

func TestProcessMatchedStreams_RetriesOnChannelNumberConflict(t *testing.T) {
	var hostCreates int
	host := newTestHost(t, &hostCreates)
	store := &fakeChannelStore{nextNumber: 99, failCreatesUntil: 1}
	mgr := NewManager(host, store)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	results := []matcher.StreamMatchResult{matchedResult("evt-1", "stream-1", now)}

	out := mgr.ProcessMatchedStreams(context.Background(), results, testGroup(), nil, time.UTC, now)
	if len(out.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}
	if len(out.Created) != 1 {
		t.Fatalf("expected the retried create to succeed, got %+v", out.Created)
	}
	if out.Created[0].ChannelNumber != 101 {
		t.Fatalf("expected the retry to land on the second allocated number 101, got %d", out.Created[0].ChannelNumber)
	}
	if hostCreates != 2 {
		t.Fatalf("expected two host CreateChannel calls (one rolled back), got %d", hostCreates)
	}
}

func TestProcessMatchedStreams_GivesUpAfterExhaustingRetries(t *testing.T) {
	host := newTestHost(t, nil)
	store := &fakeChannelStore{failCreatesUntil: maxChannelNumberRetries}
	mgr := NewManager(host, store)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	results := []matcher.StreamMatchResult{matchedResult("evt-1", "stream-1", now)}

	out := mgr.ProcessMatchedStreams(context.Background(), results, testGroup(), nil, time.UTC, now)
	if len(out.Created) != 0 {
		t.Fatalf("expected no channel created, got %+v", out.Created)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("expected exactly one failed stream, got %+v", out.Errors)
	}
}
