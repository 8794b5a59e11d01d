package handler_test

import (
	"testing"
	"time"

	"github.com/Ryuzii/FerraEura/internal/handler"
	"github.com/Ryuzii/FerraEura/internal/nodetest"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleLeaver(t *testing.T) {
	f := newFixture(t)
	f.server.AddLoadResult("ytmsearch:take on me", nodetest.SearchResult(nodetest.Track("enc-1", "Take On Me")))
	f.server.AddLoadResult("ytmsearch:africa", nodetest.SearchResult(nodetest.Track("enc-2", "Africa")))
	session := &mockSession{}

	mock := clock.NewMock()
	f.manager.Subscribe(handler.NewIdleLeaver(t.Context(), f.manager, mock, 5*time.Minute))

	f.handle(session, slash("play", stringOption("query", "take on me")))
	s := f.manager.Session(guildID)
	require.NotNil(t, s)

	finish := func(encoded string) {
		t.Helper()
		require.NoError(t, f.server.Send(map[string]any{
			"op":      "event",
			"type":    "TrackEndEvent",
			"guildId": guildID,
			"track":   nodetest.Track(encoded, encoded),
			"reason":  "finished",
		}))
		require.Eventually(t, func() bool { return s.Current() == nil }, time.Second, 10*time.Millisecond)
	}

	t.Run("A new track keeps the session", func(t *testing.T) {
		finish("enc-1")
		f.handle(session, slash("play", stringOption("query", "africa")))
		require.Equal(t, "Now playing **Africa**.", session.lastEdit())

		// Let the timer goroutine register before moving time.
		time.Sleep(20 * time.Millisecond)
		mock.Add(5 * time.Minute)
		time.Sleep(20 * time.Millisecond)
		assert.Same(t, s, f.manager.Session(guildID))
	})

	t.Run("An idle session is left", func(t *testing.T) {
		finish("enc-2")
		time.Sleep(20 * time.Millisecond)
		mock.Add(4 * time.Minute)
		time.Sleep(20 * time.Millisecond)
		require.NotNil(t, f.manager.Session(guildID))

		mock.Add(time.Minute)
		require.Eventually(t, func() bool { return f.manager.Session(guildID) == nil }, time.Second, 10*time.Millisecond)
	})
}
