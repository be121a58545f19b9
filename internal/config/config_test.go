package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BROKER_URL", "CITIES_CONFIG", "PRIORITY_QUEUE_NAME", "DEFAULT_QUEUE_NAME",
		"AUTOPRIORITIZE_SEEN_TTL_HOURS", "MAX_CONTENT_LENGTH", "WEBHOOK_URL",
		"DISCOVERY_TIME_MORNING", "DISCOVERY_TIME_EVENING",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadRequiresBrokerURL(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.ErrorIs(t, err, ErrMissingBrokerURL)
}

func TestLoadRequiresCitiesConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("BROKER_URL", "redis://localhost:6379/0")
	_, err := Load()
	require.ErrorIs(t, err, ErrMissingCitiesConfig)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BROKER_URL", "redis://localhost:6379/0")
	t.Setenv("CITIES_CONFIG", `[{"id":"flex3","name":"Flex 3","mount_path":"/mnt/flex-3"}]`)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "caption_priority", cfg.PriorityQueue)
	require.Equal(t, "default", cfg.DefaultQueue)
	require.Equal(t, 24, cfg.DedupTTLHours)
	require.EqualValues(t, 52_428_800, cfg.MaxContentLength)
	require.Equal(t, "04:00", cfg.DiscoveryMorning)
	require.Equal(t, "19:00", cfg.DiscoveryEvening)

	city, ok := cfg.Cities.Lookup("flex3")
	require.True(t, ok)
	require.Equal(t, "/mnt/flex-3", city.MountPath)
}

func TestLoadFromFilePath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "cities.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"flex1","name":"Flex 1","mount_path":"/mnt/flex-1","title_patterns":["council"]}]`), 0o644))

	t.Setenv("BROKER_URL", "redis://localhost:6379/0")
	t.Setenv("CITIES_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	city, ok := cfg.Cities.Lookup("flex1")
	require.True(t, ok)
	require.True(t, city.MatchesTitle("City Council Meeting"))
	require.False(t, city.MatchesTitle("Budget Workshop"))
}

func TestRegistryRejectsDuplicateIDs(t *testing.T) {
	_, err := NewRegistry([]City{
		{ID: "flex1", MountPath: "/mnt/flex-1"},
		{ID: "flex1", MountPath: "/mnt/flex-1-b"},
	})
	require.ErrorIs(t, err, ErrDuplicateCityID)
}

func TestCityMatchesTitleEmptyPatternsMatchesAll(t *testing.T) {
	c := City{ID: "flex2", MountPath: "/mnt/flex-2"}
	require.True(t, c.MatchesTitle("anything at all"))
}
