package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, "followup_state.json", cfg.State.File)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, "08:00", cfg.Reminder.Time)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SHEPHERD_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "followup_state.json"), cfg.State.File)
	assert.Equal(t, filepath.Join(dir, "shepherd.db"), cfg.State.Database)
	assert.Empty(t, cfg.ThemesFile)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: ` + dir + `
timezone: America/New_York
themes_file: themes.yaml
log:
  level: debug
  format: json
state:
  backend: sqlite
pco:
  app_id: app
  secret: shh
  list_id: "123"
telegram:
  chat_id: "-100"
reminder:
  time: "07:30"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, BackendSQLite, cfg.State.Backend)
	assert.Equal(t, "123", cfg.PCO.ListID)
	assert.Equal(t, "https://api.planningcenteronline.com", cfg.PCO.BaseURL)
	assert.Equal(t, "-100", cfg.Telegram.ChatID)
	assert.Equal(t, "07:30", cfg.Reminder.Time)
	assert.Equal(t, filepath.Join(dir, "themes.yaml"), cfg.ThemesFile)
	assert.Equal(t, "America/New_York", cfg.Location().String())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dir+"\npco:\n  app_id: from-file\n"), 0644))

	t.Setenv("SHEPHERD_PCO_APP_ID", "from-env")
	t.Setenv("SHEPHERD_NOTION_TOKEN", "secret-token")
	t.Setenv("SHEPHERD_STATE_FILE", "/var/lib/shepherd/state.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.PCO.AppID)
	assert.Equal(t, "secret-token", cfg.Notion.Token)
	assert.Equal(t, "/var/lib/shepherd/state.json", cfg.State.File)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"backend", "SHEPHERD_STATE_BACKEND", "postgres"},
		{"timezone", "SHEPHERD_TIMEZONE", "Mars/Olympus"},
		{"reminder time", "SHEPHERD_REMINDER_TIME", "8am"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SHEPHERD_DATA_DIR", t.TempDir())
			t.Setenv(tt.env, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
