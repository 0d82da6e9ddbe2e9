package updater

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"aninotify/internal/consumet"
	"aninotify/internal/db"
	"aninotify/internal/settings"
)

type fakeStore struct {
	mu sync.Mutex

	titles        map[string]db.Title
	episodes      map[episodeKey]db.Episode
	subscriptions map[string][]int64
	updates       []db.TitleUpdate
	nextID        int64

	subscribeErr error

	// conflictOnce makes the next CreateEpisode behave as if another writer
	// inserted the row first.
	conflictOnce bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		titles:        make(map[string]db.Title),
		episodes:      make(map[episodeKey]db.Episode),
		subscriptions: make(map[string][]int64),
	}
}

func (s *fakeStore) GetTitle(ctx context.Context, id string) (db.Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.titles[id]
	if !ok {
		return db.Title{}, fmt.Errorf("title %s: %w", id, db.ErrNotFound)
	}
	return t, nil
}

func (s *fakeStore) CreateTitle(ctx context.Context, t db.Title) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.titles[t.ID]; ok {
		return db.ErrConflict
	}
	s.titles[t.ID] = t
	return nil
}

func (s *fakeStore) UpdateTitle(ctx context.Context, id string, u db.TitleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.titles[id]
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.TotalEpisodes != nil {
		t.TotalEpisodes = *u.TotalEpisodes
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	s.titles[id] = t
	s.updates = append(s.updates, u)
	return nil
}

func (s *fakeStore) CreateEpisode(ctx context.Context, ep db.Episode) (db.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ep.ID = s.nextID
	k := keyOf(ep)
	if s.conflictOnce {
		s.conflictOnce = false
		other := ep
		other.Providers = "someone-else"
		s.episodes[k] = other
		return db.Episode{}, db.ErrConflict
	}
	if _, ok := s.episodes[k]; ok {
		return db.Episode{}, db.ErrConflict
	}
	s.episodes[k] = ep
	return ep, nil
}

func (s *fakeStore) FindEpisode(ctx context.Context, titleID string, number int, dub bool) (db.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[episodeKey{number: number, dub: dub}]
	if !ok {
		return db.Episode{}, db.ErrNotFound
	}
	return ep, nil
}

func (s *fakeStore) UpdateEpisodeProviders(ctx context.Context, id int64, providers string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ep := range s.episodes {
		if ep.ID == id {
			ep.Providers = providers
			s.episodes[k] = ep
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) CountEpisodes(ctx context.Context, titleID string, dub bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ep := range s.episodes {
		if ep.TitleID == titleID && ep.Dub == dub {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Subscribe(ctx context.Context, userID int64, titleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscriptions[titleID] = append(s.subscriptions[titleID], userID)
	return nil
}

func (s *fakeStore) all() []db.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Episode, 0, len(s.episodes))
	for _, ep := range s.episodes {
		out = append(out, ep)
	}
	return out
}

type fakeSource struct {
	mu sync.Mutex

	// lists is keyed by provider then dub.
	lists     map[string]map[bool][]consumet.Episode
	info      consumet.TitleInfo
	infoOK    bool
	infoCalls int
}

func (s *fakeSource) FetchEpisodes(ctx context.Context, titleID string, dub bool, provider string) []consumet.Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists[provider][dub]
}

func (s *fakeSource) FetchTitleInfo(ctx context.Context, titleID, titleType string) (consumet.TitleInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infoCalls++
	return s.info, s.infoOK
}

func episodes(numbers ...int) []consumet.Episode {
	out := make([]consumet.Episode, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, consumet.Episode{Number: n, Title: fmt.Sprintf("Episode %d", n)})
	}
	return out
}

func newReconciler(store *fakeStore, source *fakeSource) *Reconciler {
	r := NewReconciler(store, source, NewStatusUpdater(store, source), nil)
	r.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestReconcile_CollapsesProvidersAndKeepsFirstMetadata(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{lists: map[string]map[bool][]consumet.Episode{
		"gogoanime": {false: {{Number: 1, Description: "from gogo"}}},
		"zoro":      {false: {{Number: 1, Description: "from zoro"}}, true: {{Number: 1}}},
	}}
	title := db.Title{ID: "1", Status: db.StatusReleasing, TotalEpisodes: 12}

	got := newReconciler(store, source).Reconcile(context.Background(), title, nil, []string{"gogoanime", "zoro"}, settings.Defaults())
	if len(got) != 2 {
		t.Fatalf("discovered = %d, want 2 (%+v)", len(got), got)
	}
	if got[0].Dub || got[0].Providers != "gogoanime,zoro" || got[0].Description != "from gogo" {
		t.Fatalf("sub episode = %+v, want providers gogoanime,zoro and first description", got[0])
	}
	if !got[1].Dub || got[1].Providers != "zoro" {
		t.Fatalf("dub episode = %+v, want providers zoro", got[1])
	}
	if n := len(store.all()); n != 2 {
		t.Fatalf("stored episodes = %d, want 2", n)
	}
	if !got[0].ReleaseAt.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ReleaseAt = %v, want fallback to now", got[0].ReleaseAt)
	}
}

func TestReconcile_SecondRunFindsNothingNew(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{lists: map[string]map[bool][]consumet.Episode{
		"gogoanime": {false: episodes(1, 2, 3), true: episodes(1)},
	}}
	title := db.Title{ID: "1", Status: db.StatusReleasing, TotalEpisodes: 12}
	r := newReconciler(store, source)

	first := r.Reconcile(context.Background(), title, nil, []string{"gogoanime"}, settings.Defaults())
	if len(first) != 4 {
		t.Fatalf("first run discovered = %d, want 4", len(first))
	}

	second := r.Reconcile(context.Background(), title, store.all(), []string{"gogoanime"}, settings.Defaults())
	if len(second) != 0 {
		t.Fatalf("second run discovered = %d, want 0 (%+v)", len(second), second)
	}
	if n := len(store.all()); n != 4 {
		t.Fatalf("stored episodes = %d, want 4", n)
	}
}

func TestReconcile_LaterProviderMergesIntoKnownEpisode(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{lists: map[string]map[bool][]consumet.Episode{
		"gogoanime": {false: episodes(5)},
	}}
	title := db.Title{ID: "1", Status: db.StatusReleasing, TotalEpisodes: 12}
	r := newReconciler(store, source)

	if got := r.Reconcile(context.Background(), title, nil, []string{"gogoanime"}, settings.Defaults()); len(got) != 1 {
		t.Fatalf("first run discovered = %d, want 1", len(got))
	}

	source.lists["zoro"] = map[bool][]consumet.Episode{false: episodes(5)}
	got := r.Reconcile(context.Background(), title, store.all(), []string{"gogoanime", "zoro"}, settings.Defaults())
	if len(got) != 0 {
		t.Fatalf("second run discovered = %d, want 0", len(got))
	}

	stored := store.all()
	if len(stored) != 1 || stored[0].Providers != "gogoanime,zoro" {
		t.Fatalf("stored = %+v, want one episode with providers gogoanime,zoro", stored)
	}
}

func TestReconcile_ConflictOnCreateFallsBackToMerge(t *testing.T) {
	store := newFakeStore()
	store.conflictOnce = true
	source := &fakeSource{lists: map[string]map[bool][]consumet.Episode{
		"gogoanime": {false: episodes(1)},
	}}
	title := db.Title{ID: "1", Status: db.StatusReleasing, TotalEpisodes: 12}

	got := newReconciler(store, source).Reconcile(context.Background(), title, nil, []string{"gogoanime"}, settings.Defaults())
	if len(got) != 0 {
		t.Fatalf("discovered = %d, want 0 after losing the insert race", len(got))
	}
	stored := store.all()
	if len(stored) != 1 || stored[0].Providers != "someone-else,gogoanime" {
		t.Fatalf("stored = %+v, want merged providers", stored)
	}
}

func TestReconcile_CompleteTitleTriggersRefresh(t *testing.T) {
	var known []db.Episode
	for i := 1; i <= 12; i++ {
		known = append(known,
			db.Episode{ID: int64(i), TitleID: "1", Number: i, Providers: "gogoanime"},
			db.Episode{ID: int64(100 + i), TitleID: "1", Number: i, Dub: true, Providers: "gogoanime"},
		)
	}

	tests := []struct {
		name      string
		title     db.Title
		known     []db.Episode
		lists     map[bool][]consumet.Episode
		wantCalls int
	}{
		{
			name:      "12 of 12 sub and dub",
			title:     db.Title{ID: "1", Status: db.StatusReleasing, TotalEpisodes: 12},
			known:     known,
			wantCalls: 1,
		},
		{
			name:      "half way",
			title:     db.Title{ID: "1", Status: db.StatusReleasing, TotalEpisodes: 24},
			known:     known,
			wantCalls: 0,
		},
		{
			name:      "not yet released starts airing",
			title:     db.Title{ID: "1", Status: db.StatusNotYetReleased, TotalEpisodes: 24},
			lists:     map[bool][]consumet.Episode{false: episodes(1, 2)},
			wantCalls: 1,
		},
		{
			name:      "not yet released single episode",
			title:     db.Title{ID: "1", Status: db.StatusNotYetReleased, TotalEpisodes: 24},
			lists:     map[bool][]consumet.Episode{false: episodes(1)},
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.titles["1"] = tt.title
			for _, ep := range tt.known {
				store.episodes[keyOf(ep)] = ep
			}
			source := &fakeSource{
				lists:  map[string]map[bool][]consumet.Episode{"gogoanime": tt.lists},
				info:   consumet.TitleInfo{ID: "1", Status: consumet.StatusFinished, TotalEpisodes: tt.title.TotalEpisodes},
				infoOK: true,
			}

			newReconciler(store, source).Reconcile(context.Background(), tt.title, tt.known, []string{"gogoanime"}, settings.Defaults())
			if source.infoCalls != tt.wantCalls {
				t.Fatalf("info calls = %d, want %d", source.infoCalls, tt.wantCalls)
			}
		})
	}
}

func TestRefresh_WritesOnlyChangedFields(t *testing.T) {
	store := newFakeStore()
	title := db.Title{ID: "1", Title: "Name", Status: db.StatusReleasing, TotalEpisodes: 12}
	store.titles["1"] = title
	source := &fakeSource{infoOK: true, info: consumet.TitleInfo{ID: "1", Title: "Name", Status: consumet.StatusFinished, TotalEpisodes: 12}}

	changed, err := NewStatusUpdater(store, source).Refresh(context.Background(), title, settings.Defaults())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !changed {
		t.Fatalf("Refresh() changed = false, want true")
	}
	if len(store.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(store.updates))
	}
	u := store.updates[0]
	if u.Status == nil || *u.Status != db.StatusFinished || u.Title != nil || u.TotalEpisodes != nil {
		t.Fatalf("update = %+v, want status only", u)
	}
}

func TestRefresh_NoChangeIsNoop(t *testing.T) {
	store := newFakeStore()
	title := db.Title{ID: "1", Title: "Name", Status: db.StatusReleasing, TotalEpisodes: 12}
	source := &fakeSource{infoOK: true, info: consumet.TitleInfo{ID: "1", Title: "Name", Status: consumet.StatusReleasing, TotalEpisodes: 12}}

	changed, err := NewStatusUpdater(store, source).Refresh(context.Background(), title, settings.Defaults())
	if err != nil || changed {
		t.Fatalf("Refresh() = %v, %v; want false, nil", changed, err)
	}
	if len(store.updates) != 0 {
		t.Fatalf("updates = %d, want 0", len(store.updates))
	}
}

func TestRefresh_UnavailableInfo(t *testing.T) {
	source := &fakeSource{}
	_, err := NewStatusUpdater(newFakeStore(), source).Refresh(context.Background(), db.Title{ID: "1"}, settings.Defaults())
	if !errors.Is(err, ErrTitleNotFound) {
		t.Fatalf("Refresh() error = %v, want ErrTitleNotFound", err)
	}
}

func newRegistrar(store *fakeStore, source *fakeSource) *Registrar {
	return NewRegistrar(store, source, newReconciler(store, source), []string{"gogoanime"}, nil)
}

func TestAddTitle_RejectsMissingAndFinished(t *testing.T) {
	tests := []struct {
		name    string
		source  *fakeSource
		wantErr error
	}{
		{name: "not found", source: &fakeSource{}, wantErr: ErrTitleNotFound},
		{name: "finished", source: &fakeSource{infoOK: true, info: consumet.TitleInfo{ID: "1", Status: consumet.StatusFinished}}, wantErr: ErrTitleFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			err := newRegistrar(store, tt.source).AddTitle(context.Background(), "1", settings.Defaults(), nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddTitle() error = %v, want %v", err, tt.wantErr)
			}
			if len(store.titles) != 0 {
				t.Fatalf("titles = %d, want 0", len(store.titles))
			}
		})
	}
}

func TestAddTitleToUser_RegistersSeedsAndSubscribes(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{
		infoOK: true,
		info:   consumet.TitleInfo{ID: "1", Title: "Show", Status: consumet.StatusReleasing, TotalEpisodes: 12},
		lists:  map[string]map[bool][]consumet.Episode{"gogoanime": {false: episodes(1, 2)}},
	}
	user := db.User{ID: 7, Username: "someone"}

	if err := newRegistrar(store, source).AddTitleToUser(context.Background(), "1", user, settings.Defaults()); err != nil {
		t.Fatalf("AddTitleToUser() error = %v", err)
	}
	if got := store.titles["1"]; got.Title != "Show" || got.Status != db.StatusReleasing {
		t.Fatalf("title = %+v", got)
	}
	if n := len(store.all()); n != 2 {
		t.Fatalf("seeded episodes = %d, want 2", n)
	}
	if got := store.subscriptions["1"]; !reflect.DeepEqual(got, []int64{7}) {
		t.Fatalf("subscriptions = %v, want [7]", got)
	}

	// A tracked title is only subscribed to.
	other := db.User{ID: 8, Username: "other"}
	if err := newRegistrar(store, source).AddTitleToUser(context.Background(), "1", other, settings.Defaults()); err != nil {
		t.Fatalf("AddTitleToUser() error = %v", err)
	}
	if got := store.subscriptions["1"]; !reflect.DeepEqual(got, []int64{7, 8}) {
		t.Fatalf("subscriptions = %v, want [7 8]", got)
	}
}

func TestAddTitle_FailedSubscribeKeepsSeededEpisodes(t *testing.T) {
	store := newFakeStore()
	store.subscribeErr = errors.New("FOREIGN KEY constraint failed")
	source := &fakeSource{
		infoOK: true,
		info:   consumet.TitleInfo{ID: "9", Title: "Show", Status: consumet.StatusReleasing, TotalEpisodes: 24},
		lists:  map[string]map[bool][]consumet.Episode{"gogoanime": {false: episodes(1, 2, 3)}},
	}

	err := newRegistrar(store, source).AddTitle(context.Background(), "9", settings.Defaults(), &db.User{ID: 999})
	if !errors.Is(err, store.subscribeErr) {
		t.Fatalf("AddTitle() error = %v, want subscribe error", err)
	}
	if n := len(store.all()); n != 3 {
		t.Fatalf("seeded episodes = %d, want 3", n)
	}

	// The next check must not announce the back catalogue.
	got := newReconciler(store, source).Reconcile(context.Background(), store.titles["9"], store.all(), []string{"gogoanime"}, settings.Defaults())
	if len(got) != 0 {
		t.Fatalf("Reconcile() after failed subscribe = %d new episodes, want 0", len(got))
	}
}

func TestUntracked_SkipsKnownTitles(t *testing.T) {
	store := newFakeStore()
	store.titles["1"] = db.Title{ID: "1"}

	queued, failed := newRegistrar(store, &fakeSource{}).Untracked(context.Background(), []string{"1", "2", "3"})
	if !reflect.DeepEqual(queued, []string{"2", "3"}) {
		t.Fatalf("queued = %v, want [2 3]", queued)
	}
	if len(failed) != 0 {
		t.Fatalf("failed = %v, want none", failed)
	}
}

func TestTallyReasons(t *testing.T) {
	got := TallyReasons([]Failure{
		{ID: "1", Reason: Reason(ErrTitleFinished)},
		{ID: "2", Reason: Reason(fmt.Errorf("wrapped: %w", ErrTitleNotFound))},
		{ID: "3", Reason: Reason(ErrTitleFinished)},
	})
	want := []string{
		"- Reason: Title is finished Count: 2",
		"- Reason: Title not found Count: 1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TallyReasons() = %v, want %v", got, want)
	}
}
