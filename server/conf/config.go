// Package conf loads the engine's runtime configuration from an ini file,
// adapted from the teacher's server/conf/config.go (same Cfg/NewCfg/Load
// shape), re-fielded for imoocdb's own knobs (spec.md §6 "Config").
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
}

// Cfg holds every tunable named in spec.md §6: working directory, listening
// address, cleartext password, page size, LRU capacity, external-sort chunk
// size and lock wait timeout. ExternalSortChunkSize and
// LockWaitTimeoutDuration are loaded but not read by the operators, which
// use fixed values instead (64 rows per sort run, a 5-second lock wait).
type Cfg struct {
	Raw *ini.File

	WorkingDirectory  string
	ListenAddress     string
	ClearTextPassword string

	PageSize              int
	LRUCapacity           int
	ExternalSortChunkSize int

	LockWaitTimeout         string
	LockWaitTimeoutDuration time.Duration

	LogLevel     string
	InfoLogPath  string
	ErrorLogPath string
}

// NewCfg returns the engine's defaults, used when no ini file is supplied.
func NewCfg() *Cfg {
	return &Cfg{
		Raw:                     ini.Empty(),
		WorkingDirectory:        "./imoocdb_data",
		ListenAddress:           "127.0.0.1:54321",
		ClearTextPassword:       "abcd",
		PageSize:                4096,
		LRUCapacity:             256,
		ExternalSortChunkSize:   1024,
		LockWaitTimeout:         "5s",
		LockWaitTimeoutDuration: 5 * time.Second,
		LogLevel:                "info",
	}
}

// Load reads an ini file (section [imoocdb]) on top of the defaults. Missing
// keys keep their default value rather than failing -- unlike the teacher's
// config loader, which treats every MySQL session knob as mandatory, none of
// this engine's knobs are required for a usable default configuration.
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	setConfigPath(args)
	if ConfigPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(ConfigPath); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", ConfigPath, err)
	}
	cfg.Raw = iniFile

	section := iniFile.Section("imoocdb")
	cfg.WorkingDirectory = section.Key("working_directory").MustString(cfg.WorkingDirectory)
	cfg.ListenAddress = section.Key("listen_address").MustString(cfg.ListenAddress)
	cfg.ClearTextPassword = section.Key("cleartext_password").MustString(cfg.ClearTextPassword)
	cfg.PageSize = section.Key("page_size").MustInt(cfg.PageSize)
	cfg.LRUCapacity = section.Key("lru_capacity").MustInt(cfg.LRUCapacity)
	cfg.ExternalSortChunkSize = section.Key("external_sort_chunk_size").MustInt(cfg.ExternalSortChunkSize)
	cfg.LockWaitTimeout = section.Key("lock_wait_timeout").MustString(cfg.LockWaitTimeout)
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	cfg.InfoLogPath = section.Key("info_log_path").MustString(cfg.InfoLogPath)
	cfg.ErrorLogPath = section.Key("error_log_path").MustString(cfg.ErrorLogPath)

	cfg.LockWaitTimeoutDuration, err = time.ParseDuration(cfg.LockWaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("parsing lock_wait_timeout %q: %w", cfg.LockWaitTimeout, err)
	}
	return cfg, nil
}

func setConfigPath(args *CommandLineArgs) {
	if args != nil && args.ConfigPath != "" {
		ConfigPath, _ = filepath.Abs(args.ConfigPath)
	}
}
