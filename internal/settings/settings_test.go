package settings

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	s, err := Open(path, testLogger())
	require.NoError(t, err)
	return s, path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateNamesEveryBadField(t *testing.T) {
	a := Defaults()
	a.ParticleCount = 5
	a.Speed = 99
	a.Watermark.Position = "middle"
	a.Watermark.Opacity = 2

	err := Validate(a)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 4)
	assert.Contains(t, ve.Fields, "particle_count")
	assert.Contains(t, ve.Fields, "speed")
	assert.Contains(t, ve.Fields, "watermark.position")
	assert.Contains(t, ve.Fields, "watermark.opacity")
	assert.Contains(t, ve.Error(), "particle_count: must be between 100 and 50000")
}

func TestOpenWithoutFileUsesDefaults(t *testing.T) {
	s, _ := openStore(t)
	assert.Equal(t, Defaults(), s.Current())
}

func TestUpdateMergesValidatesAndPersists(t *testing.T) {
	s, path := openStore(t)

	got, err := s.Update(map[string]any{
		"particle_count": 9000,
		"watermark":      map[string]any{"enabled": true, "path": "/logos/mark.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, 9000, got.ParticleCount)
	assert.True(t, got.Watermark.Enabled)
	assert.Equal(t, "/logos/mark.png", got.Watermark.Path)
	assert.Equal(t, Defaults().Speed, got.Speed, "untouched fields keep their value")
	assert.Equal(t, "bottom-right", got.Watermark.Position, "untouched nested fields survive a partial update")

	// Another store must see the persisted state.
	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, got, reopened.Current())
}

func TestUpdateRejectsInvalidPartialAtomically(t *testing.T) {
	s, _ := openStore(t)
	before := s.Current()

	_, err := s.Update(map[string]any{"particle_count": 9000, "speed": 500})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "speed")
	assert.Equal(t, before, s.Current(), "a rejected update must change nothing, even its valid fields")
}

func TestUpdateCoercesStringNumbers(t *testing.T) {
	s, _ := openStore(t)
	got, err := s.Update(map[string]any{"particle_count": "1200", "speed": "2.5"})
	require.NoError(t, err)
	assert.Equal(t, 1200, got.ParticleCount)
	assert.Equal(t, 2.5, got.Speed)
}

func TestConcurrentUpdatesBothLand(t *testing.T) {
	s, _ := openStore(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := s.Update(map[string]any{"particle_count": 1000 + i})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := s.Update(map[string]any{"speed": 1.0 + float64(i)*0.1})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	// Each writer touched a distinct field; neither update may be lost to
	// the other's merge.
	cur := s.Current()
	assert.Equal(t, 1049, cur.ParticleCount)
	assert.InDelta(t, 5.9, cur.Speed, 1e-9)
}

func TestOnChangeFiresAfterAcceptedUpdate(t *testing.T) {
	s, _ := openStore(t)

	var mu sync.Mutex
	var seen []Animation
	unsub := s.OnChange(func(a Animation) {
		mu.Lock()
		seen = append(seen, a)
		mu.Unlock()
	})

	_, err := s.Update(map[string]any{"speed": 3})
	require.NoError(t, err)
	_, err = s.Update(map[string]any{"speed": 500})
	require.Error(t, err)

	mu.Lock()
	require.Len(t, seen, 1, "rejected updates must not notify")
	assert.Equal(t, 3.0, seen[0].Speed)
	mu.Unlock()

	unsub()
	_, err = s.Update(map[string]any{"speed": 4})
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, seen, 1, "unsubscribed handlers stay silent")
	mu.Unlock()
}

func TestWatchPicksUpOutsideEdits(t *testing.T) {
	s, path := openStore(t)
	require.NoError(t, s.Watch())
	defer s.Close()

	var mu sync.Mutex
	notified := 0
	s.OnChange(func(Animation) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	// An invalid outside edit is ignored; the last good settings survive.
	require.NoError(t, os.WriteFile(path, []byte("particle_count = 5\n"), 0o644))
	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, Defaults().ParticleCount, s.Current().ParticleCount)
	mu.Lock()
	assert.Zero(t, notified)
	mu.Unlock()

	require.NoError(t, os.WriteFile(path, []byte("particle_count = 7500\n"), 0o644))
	require.Eventually(t, func() bool { return s.Current().ParticleCount == 7500 },
		3*time.Second, 25*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, notified)
	mu.Unlock()
}

func TestOpenRejectsInvalidPersistedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("speed = 500.0\n"), 0o644))

	_, err := Open(path, testLogger())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestEngineMapMirrorsSettings(t *testing.T) {
	a := Defaults()
	a.ParticleCount = 1234
	a.Watermark.Enabled = true

	m := a.EngineMap()
	assert.Equal(t, 1234, m["particle_count"])
	wm, ok := m["watermark"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, wm["enabled"])
	assert.Equal(t, "bottom-right", wm["position"])
}
