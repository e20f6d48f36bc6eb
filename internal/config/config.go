package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaudRate       = 115200
	DefaultChip           = "esp8266"
	DefaultFlashOffset    = 2097152
	DefaultPageSize       = 256
	DefaultBlockSize      = 8192
	DefaultImageSize      = 2072576
	DefaultDataDir        = "data"
	DefaultWorkDir        = ".fsflash/work"
	DefaultMonitorTimeout = 2 * time.Second
	DefaultUniformFile    = "macs.txt"
	DefaultPerDeviceFile  = "deauth_settings.txt"

	dirName  = ".fsflash"
	fileName = "config.yaml"
)

// Config holds all fsflash configuration.
type Config struct {
	DataDir        string        `yaml:"data_dir,omitempty"`
	WorkDir        string        `yaml:"work_dir,omitempty"`
	Chip           string        `yaml:"chip,omitempty"`
	BaudRate       int           `yaml:"baud_rate,omitempty"`
	FlashOffset    int           `yaml:"flash_offset,omitempty"`
	PageSize       int           `yaml:"page_size,omitempty"`
	BlockSize      int           `yaml:"block_size,omitempty"`
	ImageSize      int           `yaml:"image_size,omitempty"`
	MklittlefsPath string        `yaml:"mklittlefs_path,omitempty"`
	EsptoolPath    string        `yaml:"esptool_path,omitempty"`
	VenvPath       string        `yaml:"venv_path,omitempty"`
	PortPrefix     string        `yaml:"port_prefix,omitempty"`
	MonitorTimeout time.Duration `yaml:"monitor_timeout,omitempty"`
	Concurrency    int           `yaml:"concurrency,omitempty"`
	UniformFile    string        `yaml:"uniform_file,omitempty"`
	PerDeviceFile  string        `yaml:"per_device_file,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		DataDir:        DefaultDataDir,
		WorkDir:        DefaultWorkDir,
		Chip:           DefaultChip,
		BaudRate:       DefaultBaudRate,
		FlashOffset:    DefaultFlashOffset,
		PageSize:       DefaultPageSize,
		BlockSize:      DefaultBlockSize,
		ImageSize:      DefaultImageSize,
		MonitorTimeout: DefaultMonitorTimeout,
		Concurrency:    1,
		UniformFile:    DefaultUniformFile,
		PerDeviceFile:  DefaultPerDeviceFile,
	}
}

// Load reads and merges global and project configs.
// Order: defaults → global (~/.config/fsflash/config.yaml) → project (.fsflash/config.yaml).
func Load(projectRoot string) Config {
	cfg := Defaults()

	if home, err := os.UserHomeDir(); err == nil {
		mergeFromFile(&cfg, filepath.Join(home, ".config", "fsflash", fileName))
	}

	if projectRoot != "" {
		mergeFromFile(&cfg, filepath.Join(projectRoot, dirName, fileName))
	}

	return cfg
}

// Save writes the config to the project .fsflash/config.yaml by default,
// or to the global config if global is true.
func Save(cfg Config, projectRoot string, global bool) error {
	var dir string
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, ".config", "fsflash")
	} else {
		dir = filepath.Join(projectRoot, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, fileName), data, 0o644)
}

// mergeFromFile overlays the keys present in path onto cfg. Unreadable or
// malformed files are ignored.
func mergeFromFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	fileCfg := *cfg
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return
	}
	*cfg = fileCfg
}
