package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar names an explicit settings file, bypassing the search.
const ConfigEnvVar = "OXYTHON_CONFIG"

// settingsFileNames are probed in order in every directory on the search path.
var settingsFileNames = []string{"oxython.yaml", "oxython.yml", ".oxython.yaml", "oxython.toml"}

// Settings represents oxython.yaml (or oxython.toml).
type Settings struct {
	REPL REPLSettings `yaml:"repl" toml:"repl"`
	VM   VMSettings   `yaml:"vm" toml:"vm"`
	Log  LogSettings  `yaml:"log" toml:"log"`

	// Module is the module name recorded in functions compiled from
	// sources that have no file name.
	Module string `yaml:"module" toml:"module"`
}

type REPLSettings struct {
	Prompt string `yaml:"prompt" toml:"prompt"`

	// Banner and History are pointers so an explicit false survives
	// setDefaults.
	Banner       *bool  `yaml:"banner" toml:"banner"`
	History      *bool  `yaml:"history" toml:"history"`
	HistoryFile  string `yaml:"history_file" toml:"history_file"`
	HistoryLimit int    `yaml:"history_limit" toml:"history_limit"`
}

type VMSettings struct {
	StackSize int `yaml:"stack_size" toml:"stack_size"`
	MaxFrames int `yaml:"max_frames" toml:"max_frames"`
}

type LogSettings struct {
	// Verbosity 0 logs warnings and errors; 1 adds notices, 2 info and
	// 3 or more debug.
	Verbosity int    `yaml:"verbosity" toml:"verbosity"`
	File      string `yaml:"file" toml:"file"`
}

// DefaultSettings returns settings with every default filled in.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.setDefaults()
	return s
}

// LoadSettings reads and parses a settings file. The format is chosen by
// extension: .toml is TOML, anything else YAML.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseSettings(data, path)
}

// ParseSettings parses settings content from bytes.
// The path argument selects the format and is used in error messages.
func ParseSettings(data []byte, path string) (*Settings, error) {
	var s Settings
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := s.validate(path); err != nil {
		return nil, err
	}
	s.setDefaults()
	return &s, nil
}

// FindSettings searches for a settings file starting from dir and walking
// up to parent directories. Returns "" and nil error when none exists.
func FindSettings(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range settingsFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Resolve locates and loads the settings for a run: $OXYTHON_CONFIG if set,
// else the nearest file above dir, else one in the home directory, else
// defaults. The returned path is empty when defaults were used.
func Resolve(dir string) (*Settings, string, error) {
	if explicit := os.Getenv(ConfigEnvVar); explicit != "" {
		s, err := LoadSettings(explicit)
		return s, explicit, err
	}

	path, err := FindSettings(dir)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			path, err = FindSettings(home)
			if err != nil {
				return nil, "", err
			}
		}
	}
	if path == "" {
		return DefaultSettings(), "", nil
	}
	s, err := LoadSettings(path)
	return s, path, err
}

// validate checks the configuration for semantic errors.
func (s *Settings) validate(path string) error {
	if s.VM.StackSize != 0 && (s.VM.StackSize < 16 || s.VM.StackSize > 65536) {
		return fmt.Errorf("%s: vm.stack_size must be between 16 and 65536, got %d", path, s.VM.StackSize)
	}
	if s.VM.MaxFrames != 0 && (s.VM.MaxFrames < 1 || s.VM.MaxFrames > 4096) {
		return fmt.Errorf("%s: vm.max_frames must be between 1 and 4096, got %d", path, s.VM.MaxFrames)
	}
	if s.Log.Verbosity < 0 || s.Log.Verbosity > 5 {
		return fmt.Errorf("%s: log.verbosity must be between 0 and 5, got %d", path, s.Log.Verbosity)
	}
	if s.REPL.HistoryLimit < 0 {
		return fmt.Errorf("%s: repl.history_limit must not be negative", path)
	}
	return nil
}

// setDefaults fills in default values for omitted fields.
func (s *Settings) setDefaults() {
	if s.REPL.Prompt == "" {
		s.REPL.Prompt = "> "
	}
	if s.REPL.Banner == nil {
		s.REPL.Banner = boolPtr(true)
	}
	if s.REPL.History == nil {
		s.REPL.History = boolPtr(true)
	}
	if s.REPL.HistoryFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.REPL.HistoryFile = filepath.Join(home, ".oxython_history.db")
		} else {
			s.REPL.HistoryFile = ".oxython_history.db"
		}
	}
	if s.REPL.HistoryLimit == 0 {
		s.REPL.HistoryLimit = 1000
	}
	if s.VM.StackSize == 0 {
		s.VM.StackSize = StackMax
	}
	if s.VM.MaxFrames == 0 {
		s.VM.MaxFrames = FramesMax
	}
	if s.Module == "" {
		s.Module = DefaultModuleName
	}
}

// ShowBanner reports whether the REPL greets the user.
func (s *Settings) ShowBanner() bool {
	return s.REPL.Banner == nil || *s.REPL.Banner
}

// HistoryEnabled reports whether REPL lines are persisted.
func (s *Settings) HistoryEnabled() bool {
	return s.REPL.History == nil || *s.REPL.History
}

func boolPtr(b bool) *bool {
	return &b
}
