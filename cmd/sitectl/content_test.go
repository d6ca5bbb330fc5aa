package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/communitysite/internal/backup"
	"github.com/briangreenhill/communitysite/internal/cache"
	"github.com/briangreenhill/communitysite/internal/content"
	"github.com/briangreenhill/communitysite/internal/store/sqlite"
)

func TestSampleDocumentSeedsStore(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	opts := content.DefaultOptions()
	opts.FallbackOnEmpty = false
	cat := content.NewCatalog(st, cache.NewStore(0), opts)
	svc := backup.New(st, backup.Domains(cat.All()), zerolog.Nop())

	doc, err := sampleDocument(cat.List())
	require.NoError(t, err)
	require.NoError(t, svc.Check(doc))

	written, err := svc.Import(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 3, written["events"])
	assert.Equal(t, 2, written["volunteers"])

	// seeded rows are served from the store, not the fallback
	events, err := cat.Events.List(context.Background(), content.Events)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Community Picnic", events[0].Title)

	// seeding twice overwrites by id
	_, err = svc.Import(context.Background(), doc)
	require.NoError(t, err)
	all, err := cat.Events.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSampleDocumentUnknownDomain(t *testing.T) {
	_, err := sampleDocument([]string{"recipes"})
	assert.Error(t, err)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Picnic", title(content.Event{Title: "Picnic"}))
	assert.Equal(t, "Amara", title(content.TeamMember{Name: "Amara"}))
}
