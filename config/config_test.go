package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "homeassistant", s.MQTT.DiscoveryPrefix)
	assert.Equal(t, "ngenic", s.MQTT.TopicPrefix)
	assert.Equal(t, ".ngenic-entries.json", s.Entries)
}

func TestLoadFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ngenic.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
timezone: Europe/Stockholm
mqtt:
  broker: tcp://broker:1883
  topic_prefix: tune
`), 0o600))

	t.Setenv("NGENIC_TOKEN", "secret")
	t.Setenv("NGENIC_MQTT_CLIENT_ID", "bridge")

	s, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "secret", s.Token)
	assert.Equal(t, "tcp://broker:1883", s.MQTT.Broker)
	assert.Equal(t, "tune", s.MQTT.TopicPrefix)
	assert.Equal(t, "bridge", s.MQTT.ClientID)

	loc, err := s.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Stockholm", loc.String())
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("NGENIC_LOG_LEVEL", "chatty")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLocationFallback(t *testing.T) {
	t.Setenv("TZ", "")

	loc, err := Settings{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestStore(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "entries.json"))

	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	mine, err := s.Add(Entry{Title: "My Tune", Token: "a", Options: DefaultOptions()})
	require.NoError(t, err)
	assert.NotEmpty(t, mine.ID)
	_, err = s.Add(Entry{Title: "Cabin", Token: "b", Options: DefaultOptions()})
	require.NoError(t, err)

	tokens, err := s.Tokens()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tokens)

	opts, err := s.UpdateOptions("Cabin", map[string]any{
		"create_utility_meters":        "true",
		"create_previous_month_sensor": false,
	})
	require.NoError(t, err)
	assert.True(t, opts.CreateUtilityMeters)
	assert.True(t, opts.CreateCurrentMonthSensor)
	assert.False(t, opts.CreatePreviousMonthSensor)

	_, err = s.UpdateOptions("Cabin", map[string]any{"unknown": true})
	assert.Error(t, err)

	_, err = s.UpdateOptions("Nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Remove(mine.ID))
	entries, err = s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Cabin", entries[0].Title)
	assert.True(t, entries[0].Options.CreateUtilityMeters)
}

func TestStoreDefaultsMissingOptions(t *testing.T) {
	file := filepath.Join(t.TempDir(), "entries.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"title":"Old","token":"x"}]`), 0o600))

	entries, err := NewStore(file).Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultOptions(), entries[0].Options)

	// the generated id is persisted
	require.NotEmpty(t, entries[0].ID)
	again, err := NewStore(file).Entries()
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, again[0].ID)
}

func TestStoreDuplicateTitles(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "entries.json"))

	first, err := s.Add(Entry{Title: "My Tune", Token: "a", Options: DefaultOptions()})
	require.NoError(t, err)
	second, err := s.Add(Entry{Title: "My Tune", Token: "b", Options: DefaultOptions()})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = s.UpdateOptions("My Tune", map[string]any{"create_utility_meters": true})
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.ErrorIs(t, s.Remove("My Tune"), ErrAmbiguous)

	opts, err := s.UpdateOptions(second.ID, map[string]any{"create_utility_meters": true})
	require.NoError(t, err)
	assert.True(t, opts.CreateUtilityMeters)

	require.NoError(t, s.Remove(first.ID))
	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Token)
	assert.True(t, entries[0].Options.CreateUtilityMeters)

	// unique again
	require.NoError(t, s.Remove("My Tune"))
}
