package content

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/communitysite/internal/auth"
	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/reorder"
	"github.com/briangreenhill/communitysite/internal/store"
)

const threeEvents = `[
  {"id": 1, "title": "Home only", "display_on": "home", "sort_order": 0},
  {"id": 2, "title": "Events only", "display_on": "events", "sort_order": 1},
  {"id": 3, "title": "Everywhere", "display_on": "both", "sort_order": 2}
]`

type fixture struct {
	st    *fakeStore
	cache *cache.Store
	rec   *countingRecorder
	opts  Options
}

func newFixture(t *testing.T, samples fstest.MapFS) *fixture {
	t.Helper()
	f := &fixture{st: newFakeStore(), cache: cache.NewStore(0), rec: newCountingRecorder()}
	f.opts = DefaultOptions()
	f.opts.Recorder = f.rec
	if samples != nil {
		f.opts.Samples = samples
	}
	return f
}

func (f *fixture) events() *Service[Event] {
	return NewService(EventsDomain, f.st, f.cache, f.opts)
}

func eventSamples() fstest.MapFS {
	return fstest.MapFS{"sampledata/events.json": {Data: []byte(threeEvents)}}
}

func adminCtx() context.Context {
	return auth.WithAdmin(context.Background(), auth.Admin{Email: "admin@example.org"})
}

func eventIDs(items []Event) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.RecordID()
	}
	return out
}

func TestListFallsBackToFilteredSamples(t *testing.T) {
	f := newFixture(t, eventSamples())
	f.st.failSelect = errRemote
	svc := f.events()

	got, err := svc.List(context.Background(), Home)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, eventIDs(got))

	// the fallback result is cached like any other result
	got, err = svc.List(context.Background(), Home)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, eventIDs(got))
	selects, _ := f.st.calls()
	assert.Equal(t, 1, selects)
	assert.Equal(t, 1, f.rec.fallbacks["events/error"])

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, eventIDs(all))
	assert.Contains(t, f.cache.Keys(), "events_all")
	assert.Contains(t, f.cache.Keys(), "events_home")
}

func TestListEmptyRemote(t *testing.T) {
	t.Run("falls back by default", func(t *testing.T) {
		f := newFixture(t, eventSamples())
		got, err := f.events().List(context.Background(), Events)
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, eventIDs(got))
		assert.Equal(t, 1, f.rec.fallbacks["events/empty"])
	})

	t.Run("served empty when disabled", func(t *testing.T) {
		f := newFixture(t, eventSamples())
		f.opts.FallbackOnEmpty = false
		got, err := f.events().List(context.Background(), Events)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("errors still fall back when disabled", func(t *testing.T) {
		f := newFixture(t, eventSamples())
		f.opts.FallbackOnEmpty = false
		f.st.failSelect = errRemote
		got, err := f.events().List(context.Background(), Events)
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, eventIDs(got))
	})
}

func TestListRemoteRows(t *testing.T) {
	f := newFixture(t, eventSamples())
	f.st.seed("events",
		map[string]any{"id": 10, "title": "b", "display_on": "both", "sort_order": 2},
		map[string]any{"id": 11, "title": "a", "display_on": "home", "sort_order": 1},
		map[string]any{"id": 12, "title": "x", "display_on": "events", "sort_order": 0},
	)

	got, err := f.events().List(context.Background(), Home)
	require.NoError(t, err)
	assert.Equal(t, []string{"11", "10"}, eventIDs(got))
	assert.Zero(t, f.rec.fallbacks["events/empty"]+f.rec.fallbacks["events/error"])
}

func TestListIgnoresLocationForUnplacedDomains(t *testing.T) {
	f := newFixture(t, nil)
	team := NewService(TeamDomain, f.st, f.cache, f.opts)

	got, err := team.List(context.Background(), Home)
	require.NoError(t, err)
	assert.Len(t, got, 3, "bundled team sample")
	assert.Equal(t, []string{"team_all"}, f.cache.Keys())
}

func TestListMalformedSamples(t *testing.T) {
	f := newFixture(t, fstest.MapFS{"sampledata/events.json": {Data: []byte("{not json")}})
	f.st.failSelect = errRemote

	got, err := f.events().List(context.Background(), Home)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListCancelledContextIsNotCached(t *testing.T) {
	f := newFixture(t, eventSamples())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.events().List(ctx, Home)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.cache.Len())
}

func TestGet(t *testing.T) {
	f := newFixture(t, eventSamples())
	f.st.seed("events", map[string]any{"id": 7, "title": "Remote", "display_on": "both"})
	svc := f.events()

	got, err := svc.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Remote", got.Title)
	assert.Contains(t, f.cache.Keys(), "events_7")

	f.st.failSelect = errRemote
	got, err = svc.Get(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "Events only", got.Title)

	_, err = svc.Get(context.Background(), "99")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotContains(t, f.cache.Keys(), "events_99")
}

func TestGetRejectedIDIsNotFound(t *testing.T) {
	f := newFixture(t, eventSamples())
	f.st.failSelect = fmt.Errorf("%w: (22P02) invalid input syntax for type bigint", store.ErrRejected)
	svc := f.events()

	_, err := svc.Get(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.rec.fallbacks["events/item"], "a rejected id never reaches the sample data")
	assert.Zero(t, f.cache.Len())
}

func TestGetReservedIDs(t *testing.T) {
	f := newFixture(t, eventSamples())
	svc := f.events()
	_, err := svc.List(context.Background(), Home)
	require.NoError(t, err)
	selects, _ := f.st.calls()

	for _, id := range []string{"", "all", "home", "both", "page_1_20"} {
		_, err := svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	after, _ := f.st.calls()
	assert.Equal(t, selects, after, "reserved ids never reach the store")
	assert.Equal(t, []string{"events_home"}, f.cache.Keys())
}

func TestLoadSkipsCacheAndSamples(t *testing.T) {
	f := newFixture(t, eventSamples())
	f.st.seed("events", map[string]any{"id": 7, "title": "Remote", "display_on": "both"})
	svc := f.events()

	got, err := svc.Load(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Remote", got.Title)
	assert.Zero(t, f.cache.Len())

	_, err = svc.Load(context.Background(), "2")
	assert.ErrorIs(t, err, ErrNotFound, "sample items are not loadable")

	f.st.failSelect = errRemote
	_, err = svc.Load(context.Background(), "7")
	assert.ErrorIs(t, err, errRemote)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMutationInvalidatesDomain(t *testing.T) {
	f := newFixture(t, eventSamples())
	svc := f.events()
	acts := NewService(ActivitiesDomain, f.st, f.cache, f.opts)

	_, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	_, err = svc.List(context.Background(), Home)
	require.NoError(t, err)
	_, err = svc.Page(context.Background(), 1, 20)
	require.NoError(t, err)
	_, err = acts.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, f.cache.Keys(), 4)

	created, err := svc.Create(adminCtx(), Event{Title: "New event", Base: Base{DisplayOn: Home}})
	require.NoError(t, err)
	assert.NotEmpty(t, created.RecordID())

	assert.Equal(t, []string{"activities_all"}, f.cache.Keys(), "only the mutated domain is invalidated")
	assert.Equal(t, 1, f.rec.mutations["events/create/ok"])

	selectsBefore, _ := f.st.calls()
	got, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	selectsAfter, _ := f.st.calls()
	assert.Equal(t, selectsBefore+1, selectsAfter, "next read goes to the remote store")
	assert.Equal(t, []string{created.RecordID()}, eventIDs(got))
}

func TestWritesRequireAdmin(t *testing.T) {
	f := newFixture(t, eventSamples())
	svc := f.events()
	ctx := context.Background()

	_, err := svc.Create(ctx, Event{Title: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Update(ctx, "1", Event{Title: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, svc.Delete(ctx, "1"), ErrUnauthorized)
	assert.ErrorIs(t, svc.UpdateSortOrders(ctx, nil), ErrUnauthorized)
	_, err = svc.UpdateFrom(ctx, "1", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = svc.Arrange(ctx, []string{"1"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	selects, writes := f.st.calls()
	assert.Zero(t, selects, "no remote call before the auth check")
	assert.Zero(t, writes)
}

func TestFailedWriteKeepsCache(t *testing.T) {
	f := newFixture(t, eventSamples())
	svc := f.events()
	_, err := svc.List(context.Background(), Home)
	require.NoError(t, err)

	f.st.failWrite = errRemote
	_, err = svc.Create(adminCtx(), Event{Title: "x"})
	require.ErrorIs(t, err, errRemote)

	assert.Equal(t, []string{"events_home"}, f.cache.Keys())
	assert.Equal(t, 1, f.rec.mutations["events/create/error"])
	_, writes := f.st.calls()
	assert.Equal(t, 1, writes, "failed writes are not retried")
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t, nil)
	svc := f.events()

	_, err := svc.Create(adminCtx(), Event{Description: "no title"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.Create(adminCtx(), Event{Title: "x", Base: Base{DisplayOn: "sidebar"}})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.Create(adminCtx(), Event{Title: "x", ImageURL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, writes := f.st.calls()
	assert.Zero(t, writes)
}

func TestCreateDefaultsLocation(t *testing.T) {
	f := newFixture(t, nil)

	created, err := f.events().Create(adminCtx(), Event{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, Both, created.DisplayOn)

	member, err := NewService(TeamDomain, f.st, f.cache, f.opts).Create(adminCtx(), TeamMember{Name: "Ana", Base: Base{DisplayOn: Home}})
	require.NoError(t, err)
	assert.Empty(t, member.DisplayOn, "team has no location column")
}

func TestUpdateFromKeepsUnsentColumns(t *testing.T) {
	f := newFixture(t, nil)
	f.st.seed("gallery_images", map[string]any{
		"id": 5, "title": "Old", "image_url": "https://cdn.example.org/a.jpg",
		"storage_path": "gallery/a.jpg", "display_on": "home", "sort_order": 4,
	})
	gallery := NewService(GalleryDomain, f.st, f.cache, f.opts)

	rec, err := gallery.UpdateFrom(adminCtx(), "5", map[string]any{"title": "New"})
	require.NoError(t, err)
	img := rec.(GalleryImage)
	assert.Equal(t, "New", img.Title)
	assert.Equal(t, "gallery/a.jpg", img.StoragePath)
	assert.Equal(t, Home, img.DisplayOn)
	assert.Equal(t, 4, img.SortOrder)

	_, err = gallery.UpdateFrom(adminCtx(), "404", map[string]any{"title": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteReportsOwnedObjects(t *testing.T) {
	f := newFixture(t, nil)
	f.st.seed("gallery_images", map[string]any{"id": 5, "title": "a", "image_url": "https://x.org/a.jpg", "storage_path": "gallery/a.jpg"})
	var removed []string
	f.opts.ObjectsRemoved = func(_ context.Context, domain string, paths []string) {
		assert.Equal(t, "gallery", domain)
		removed = paths
	}
	gallery := NewService(GalleryDomain, f.st, f.cache, f.opts)

	require.NoError(t, gallery.Delete(adminCtx(), "5"))
	assert.Equal(t, []string{"gallery/a.jpg"}, removed)

	removed = nil
	f.st.failWrite = errRemote
	f.st.seed("gallery_images", map[string]any{"id": 6, "title": "b", "image_url": "https://x.org/b.jpg", "storage_path": "gallery/b.jpg"})
	assert.Error(t, gallery.Delete(adminCtx(), "6"))
	assert.Nil(t, removed, "nothing is cleaned up when the delete fails")
}

func seedOrdered(f *fixture) {
	f.st.seed("events",
		map[string]any{"id": 1, "title": "a", "display_on": "both", "sort_order": 0},
		map[string]any{"id": 2, "title": "b", "display_on": "both", "sort_order": 1},
		map[string]any{"id": 3, "title": "c", "display_on": "both", "sort_order": 2},
	)
}

func TestArrange(t *testing.T) {
	f := newFixture(t, nil)
	seedOrdered(f)
	svc := f.events()
	_, err := svc.List(context.Background(), "")
	require.NoError(t, err)

	items, state, err := svc.Arrange(adminCtx(), []string{"3", "1", "2"})
	require.NoError(t, err)
	assert.Equal(t, reorder.Stable, state)
	assert.Equal(t, []string{"3", "1", "2"}, eventIDs(items))
	assert.Zero(t, f.cache.Len())

	all, err := svc.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1", "2"}, eventIDs(all))
}

func TestArrangeRollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t, nil)
	seedOrdered(f)
	f.st.failWrite = errRemote
	svc := f.events()

	items, state, err := svc.Arrange(adminCtx(), []string{"3", "1", "2"})
	require.ErrorIs(t, err, errRemote)
	assert.Equal(t, reorder.RolledBack, state)

	remote, lerr := svc.LoadAll(context.Background())
	require.NoError(t, lerr)
	assert.Equal(t, eventIDs(remote), eventIDs(items))
	assert.Equal(t, []string{"1", "2", "3"}, eventIDs(items))
}

func TestArrangePartialWriteInvalidates(t *testing.T) {
	f := newFixture(t, nil)
	seedOrdered(f)
	svc := f.events()
	before, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, eventIDs(before))

	f.st.failOrderAt = 1
	items, state, err := svc.Arrange(adminCtx(), []string{"3", "1", "2"})
	require.ErrorIs(t, err, errRemote)
	assert.Equal(t, reorder.RolledBack, state)
	assert.Zero(t, f.cache.Len(), "a partly applied batch drops the cached order")

	remote, lerr := svc.LoadAll(context.Background())
	require.NoError(t, lerr)
	assert.Equal(t, eventIDs(remote), eventIDs(items))

	listed, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, eventIDs(remote), eventIDs(listed))
}

func TestArrangeRejectsUnknownIDs(t *testing.T) {
	f := newFixture(t, nil)
	seedOrdered(f)

	_, _, err := f.events().Arrange(adminCtx(), []string{"1", "2", "9"})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, reorder.ErrMismatch)
	_, writes := f.st.calls()
	assert.Zero(t, writes)
}

func TestMove(t *testing.T) {
	f := newFixture(t, nil)
	seedOrdered(f)

	items, state, err := f.events().Move(adminCtx(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, reorder.Stable, state)
	assert.Equal(t, []string{"2", "3", "1"}, eventIDs(items))
	assert.Equal(t, 2, items[2].SortOrder)
}

func TestPage(t *testing.T) {
	f := newFixture(t, eventSamples())
	for i := 0; i < 5; i++ {
		f.st.seed("events", map[string]any{"id": i + 1, "title": "e", "sort_order": i})
	}
	svc := f.events()

	p, err := svc.Page(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 3, p.Pages())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.Equal(t, []string{"3", "4"}, eventIDs(p.Items))
	assert.Contains(t, f.cache.Keys(), "events_page_2_2")

	f.st.failSelect = errRemote
	_, err = svc.Page(context.Background(), 3, 2)
	assert.ErrorIs(t, err, errRemote, "admin pages do not fall back")
}

func TestParseForm(t *testing.T) {
	fields := []Field{
		{Name: "title", Label: "Title", Kind: KindText, Required: true},
		{Name: "event_date", Label: "Date", Kind: KindDate},
		{Name: "seats", Label: "Seats", Kind: KindInt},
		{Name: "display_on", Label: "Show on", Kind: KindLocation},
	}

	tests := []struct {
		name    string
		form    url.Values
		want    map[string]any
		wantErr bool
	}{
		{"all fields", url.Values{"title": {" Fair "}, "event_date": {"2025-05-01"}, "seats": {"40"}, "display_on": {"home"}},
			map[string]any{"title": "Fair", "event_date": "2025-05-01", "seats": 40, "display_on": "home"}, false},
		{"optional left out", url.Values{"title": {"Fair"}, "display_on": {"all"}}, map[string]any{"title": "Fair"}, false},
		{"missing required", url.Values{"seats": {"1"}}, nil, true},
		{"bad date", url.Values{"title": {"x"}, "event_date": {"May 1"}}, nil, true},
		{"bad number", url.Values{"title": {"x"}, "seats": {"many"}}, nil, true},
		{"bad location", url.Values{"title": {"x"}, "display_on": {"sidebar"}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseForm(fields, tt.form, false)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("expected ErrInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormPartial(t *testing.T) {
	fields := []Field{
		{Name: "title", Label: "Title", Kind: KindText, Required: true},
		{Name: "venue", Label: "Venue", Kind: KindText},
		{Name: "image_url", Label: "Image", Kind: KindImage, Required: true},
	}
	got, err := ParseForm(fields, url.Values{"venue": {""}, "image_url": {""}}, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"venue": ""}, got, "submitted text is cleared, image kept, absent title untouched")
}

func TestCatalogRegistry(t *testing.T) {
	cat := NewCatalog(newFakeStore(), cache.NewStore(0), DefaultOptions())

	assert.Equal(t, []string{"events", "activities", "gallery", "team", "volunteers"}, cat.List())
	m, ok := cat.Get("gallery")
	require.True(t, ok)
	assert.Equal(t, "gallery_images", m.Table())
	assert.True(t, m.HasLocation())

	_, err := cat.Lookup("news")
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestBundledSamplesParse(t *testing.T) {
	f := newFixture(t, nil)
	f.st.failSelect = errRemote
	cat := NewCatalog(f.st, f.cache, f.opts)

	for _, m := range cat.All() {
		items, err := m.Records(context.Background(), "")
		require.NoError(t, err, m.Name())
		assert.NotEmpty(t, items, "%s sample data", m.Name())
	}
}
