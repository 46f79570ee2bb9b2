package patrol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/refpatrol/internal/builder"
	"git.home.luguber.info/inful/refpatrol/internal/journal"
	"git.home.luguber.info/inful/refpatrol/internal/refs"
)

// fakeStore is an in-memory journal.Store with failure injection.
type fakeStore struct {
	mu        sync.Mutex
	polls     []journal.PollRecord
	steps     []journal.BuildStepRecord
	failPoll  bool
	failStep  bool
	latestErr error
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) LatestPoll(_ context.Context, alias string) (*journal.PollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	for i := len(s.polls) - 1; i >= 0; i-- {
		if s.polls[i].Alias == alias {
			record := s.polls[i]
			return &record, nil
		}
	}
	return nil, journal.ErrNoPolls
}

func (s *fakeStore) RecordPoll(_ context.Context, record journal.PollRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPoll {
		return uuid.Nil, fmt.Errorf("journal unavailable")
	}
	record.ID = uuid.New()
	s.polls = append(s.polls, record)
	return record.ID, nil
}

func (s *fakeStore) RecordBuildStep(_ context.Context, record journal.BuildStepRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStep {
		return uuid.Nil, fmt.Errorf("journal unavailable")
	}
	record.ID = uuid.New()
	s.steps = append(s.steps, record)
	return record.ID, nil
}

func (s *fakeStore) PollHistory(_ context.Context, alias string, limit int) ([]journal.PollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journal.PollRecord
	for i := len(s.polls) - 1; i >= 0 && len(out) < limit; i-- {
		if s.polls[i].Alias == alias {
			out = append(out, s.polls[i])
		}
	}
	return out, nil
}

func (s *fakeStore) BuildSteps(_ context.Context, pollID uuid.UUID) ([]journal.BuildStepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journal.BuildStepRecord
	for _, step := range s.steps {
		if step.PollID == pollID {
			out = append(out, step)
		}
	}
	return out, nil
}

func (s *fakeStore) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (s *fakeStore) Close() error                                    { return nil }

func (s *fakeStore) allPolls() []journal.PollRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journal.PollRecord, len(s.polls))
	copy(out, s.polls)
	return out
}

func (s *fakeStore) allSteps() []journal.BuildStepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journal.BuildStepRecord, len(s.steps))
	copy(out, s.steps)
	return out
}

// fakeSource returns queued snapshots in order, repeating the last one.
type fakeSource struct {
	mu        sync.Mutex
	snapshots []refs.Snapshot
	err       error
	calls     int
}

func (f *fakeSource) List(context.Context, string, []string) (refs.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.snapshots) == 0 {
		return refs.Snapshot{}, nil
	}
	snap := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snap.Clone(), nil
}

// stepScript drives the fake build runner for one submission, in order.
type stepScript struct {
	startErr    error
	awaitErr    error
	describeErr error
	// terminal is the status field of the describe payload; empty means
	// the payload carries no terminal field at all.
	terminal string
}

// fakeBuilder replays stepScripts for successive Start calls.
type fakeBuilder struct {
	mu      sync.Mutex
	scripts []stepScript
	started int
}

func (f *fakeBuilder) current() stepScript {
	idx := f.started - 1
	if idx < len(f.scripts) {
		return f.scripts[idx]
	}
	return stepScript{terminal: builder.StatusSuccess}
}

func (f *fakeBuilder) Start(context.Context, builder.SubmitRequest) (*builder.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	script := f.current()
	if script.startErr != nil {
		return nil, script.startErr
	}
	id := uuid.New()
	status, err := builder.ParseStatus([]byte(fmt.Sprintf(`{"id":%q,"status":"QUEUED"}`, id)))
	if err != nil {
		return nil, err
	}
	return &builder.Submission{ID: id, Status: status}, nil
}

func (f *fakeBuilder) Await(context.Context, uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current().awaitErr
}

func (f *fakeBuilder) Describe(_ context.Context, id uuid.UUID) (*builder.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.current()
	if script.describeErr != nil {
		return nil, script.describeErr
	}
	payload := fmt.Sprintf(`{"id":%q}`, id)
	if script.terminal != "" {
		payload = fmt.Sprintf(`{"id":%q,"status":%q}`, id, script.terminal)
	}
	return builder.ParseStatus([]byte(payload))
}
