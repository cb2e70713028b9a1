package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettingsYAML(t *testing.T) {
	data := []byte(`
repl:
  prompt: "oxy> "
  banner: false
  history_limit: 50
vm:
  stack_size: 512
  max_frames: 128
log:
  verbosity: 3
module: main
`)
	s, err := ParseSettings(data, "oxython.yaml")
	require.NoError(t, err)

	assert.Equal(t, "oxy> ", s.REPL.Prompt)
	assert.False(t, s.ShowBanner())
	assert.True(t, s.HistoryEnabled())
	assert.Equal(t, 50, s.REPL.HistoryLimit)
	assert.Equal(t, 512, s.VM.StackSize)
	assert.Equal(t, 128, s.VM.MaxFrames)
	assert.Equal(t, 3, s.Log.Verbosity)
	assert.Equal(t, "main", s.Module)
}

func TestParseSettingsTOML(t *testing.T) {
	data := []byte(`
module = "tool"

[repl]
prompt = ">>> "
history = false

[vm]
max_frames = 10
`)
	s, err := ParseSettings(data, "oxython.toml")
	require.NoError(t, err)

	assert.Equal(t, ">>> ", s.REPL.Prompt)
	assert.False(t, s.HistoryEnabled())
	assert.True(t, s.ShowBanner())
	assert.Equal(t, 10, s.VM.MaxFrames)
	assert.Equal(t, StackMax, s.VM.StackSize)
	assert.Equal(t, "tool", s.Module)
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "> ", s.REPL.Prompt)
	assert.Equal(t, StackMax, s.VM.StackSize)
	assert.Equal(t, FramesMax, s.VM.MaxFrames)
	assert.Equal(t, DefaultModuleName, s.Module)
	assert.Equal(t, 1000, s.REPL.HistoryLimit)
	assert.NotEmpty(t, s.REPL.HistoryFile)
}

func TestParseSettingsValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"stack too small", "vm:\n  stack_size: 4\n", "vm.stack_size"},
		{"frames too large", "vm:\n  max_frames: 100000\n", "vm.max_frames"},
		{"verbosity", "log:\n  verbosity: 9\n", "log.verbosity"},
		{"history limit", "repl:\n  history_limit: -1\n", "repl.history_limit"},
		{"bad yaml", "repl: [\n", "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.data), "oxython.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindSettingsWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	cfgPath := filepath.Join(root, "oxython.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("module: x\n"), 0o644))

	found, err := FindSettings(nested)
	require.NoError(t, err)
	assert.Equal(t, cfgPath, found)

	s, err := LoadSettings(found)
	require.NoError(t, err)
	assert.Equal(t, "x", s.Module)
}

func TestResolveHonoursEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("module = \"env\"\n"), 0o644))
	t.Setenv(ConfigEnvVar, cfgPath)

	s, path, err := Resolve(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, cfgPath, path)
	assert.Equal(t, "env", s.Module)
}
