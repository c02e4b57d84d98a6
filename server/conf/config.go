package conf

import (
	"os"
	"time"

	"gopkg.in/ini.v1"

	"github.com/zhukovaskychina/storagecore/logger"
)

// CommandLineArgs carries the flags main() parses before loading Cfg.
type CommandLineArgs struct {
	ConfigPath string
}

// Cfg is the process-wide configuration for one storage engine
// instance, trimmed from the teacher's Cfg (server/conf/config.go) down
// to storage-core knobs: no bind address, session pool, or MySQL
// wire-protocol tuning survives. cmd/storageengine-bench reads
// PageSize, BufferPoolFrames, LRUKReplacerK, the two B+ tree fanouts
// and LogLevel; DataDir, DataFile, HashTableBucketSize and the deadlock
// detection interval are loaded but not read by any component.
type Cfg struct {
	Raw *ini.File

	DataDir  string `default:"data" yaml:"data_dir" json:"data_dir,omitempty"`
	DataFile string `default:"storagecore.db" yaml:"data_file" json:"data_file,omitempty"`

	PageSize             int `default:"4096" yaml:"page_size" json:"page_size,omitempty"`
	BufferPoolFrames     int `default:"1024" yaml:"buffer_pool_frames" json:"buffer_pool_frames,omitempty"`
	LRUKReplacerK        int `default:"2" yaml:"lru_k_replacer_k" json:"lru_k_replacer_k,omitempty"`
	HashTableBucketSize  int `default:"4" yaml:"hash_table_bucket_size" json:"hash_table_bucket_size,omitempty"`
	BTreeLeafMaxSize     int `default:"128" yaml:"btree_leaf_max_size" json:"btree_leaf_max_size,omitempty"`
	BTreeInternalMaxSize int `default:"128" yaml:"btree_internal_max_size" json:"btree_internal_max_size,omitempty"`

	DeadlockDetectionInterval         string `default:"500ms" yaml:"deadlock_detection_interval" json:"deadlock_detection_interval,omitempty"`
	DeadlockDetectionIntervalDuration time.Duration

	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`
}

// NewCfg returns a Cfg populated with defaults, the same shape as the
// teacher's NewCfg constructor.
func NewCfg() *Cfg {
	cfg := &Cfg{
		Raw:                       ini.Empty(),
		DataDir:                   "data",
		DataFile:                  "storagecore.db",
		PageSize:                  4096,
		BufferPoolFrames:          1024,
		LRUKReplacerK:             2,
		HashTableBucketSize:       4,
		BTreeLeafMaxSize:          128,
		BTreeInternalMaxSize:      128,
		DeadlockDetectionInterval: "500ms",
		LogLevel:                  "info",
	}
	cfg.DeadlockDetectionIntervalDuration, _ = time.ParseDuration(cfg.DeadlockDetectionInterval)
	return cfg
}

// Load reads args.ConfigPath (or "conf/storagecore.ini" if unset) over
// the defaults, falling back to defaults entirely when the file is
// absent or fails to parse — the teacher's loadConfiguration does the
// same rather than treating a missing config file as fatal.
func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	iniFile, err := cfg.loadConfiguration(args)
	if err != nil {
		logger.Warnf("conf: failed to load config, using defaults: %v", err)
		return cfg
	}
	cfg.Raw = iniFile

	cfg.parseStorageCfg(cfg.Raw.Section("storage"))
	cfg.parseLogsCfg(cfg.Raw.Section("logs"))
	return cfg
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	configFile := "conf/storagecore.ini"
	if args != nil && args.ConfigPath != "" {
		configFile = args.ConfigPath
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Debugf("conf: %s not found, using defaults", configFile)
		return ini.Empty(), nil
	}

	parsed, err := ini.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger.Debugf("conf: loaded %s", configFile)
	return parsed, nil
}

func (cfg *Cfg) parseStorageCfg(section *ini.Section) {
	if section == nil {
		return
	}
	cfg.DataDir = section.Key("data_dir").MustString(cfg.DataDir)
	cfg.DataFile = section.Key("data_file").MustString(cfg.DataFile)
	cfg.PageSize = section.Key("page_size").MustInt(cfg.PageSize)
	cfg.BufferPoolFrames = section.Key("buffer_pool_frames").MustInt(cfg.BufferPoolFrames)
	cfg.LRUKReplacerK = section.Key("lru_k_replacer_k").MustInt(cfg.LRUKReplacerK)
	cfg.HashTableBucketSize = section.Key("hash_table_bucket_size").MustInt(cfg.HashTableBucketSize)
	cfg.BTreeLeafMaxSize = section.Key("btree_leaf_max_size").MustInt(cfg.BTreeLeafMaxSize)
	cfg.BTreeInternalMaxSize = section.Key("btree_internal_max_size").MustInt(cfg.BTreeInternalMaxSize)

	cfg.DeadlockDetectionInterval = section.Key("deadlock_detection_interval").MustString(cfg.DeadlockDetectionInterval)
	if d, err := time.ParseDuration(cfg.DeadlockDetectionInterval); err == nil {
		cfg.DeadlockDetectionIntervalDuration = d
	} else {
		logger.Warnf("conf: invalid deadlock_detection_interval %q, keeping %s", cfg.DeadlockDetectionInterval, cfg.DeadlockDetectionIntervalDuration)
	}
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) {
	if section == nil {
		return
	}
	level := section.Key("log_level").MustString(cfg.LogLevel)
	switch level {
	case "debug", "info", "warn", "error", "fatal", "panic":
		cfg.LogLevel = level
	default:
		logger.Debugf("conf: invalid log_level %q, keeping %s", level, cfg.LogLevel)
	}
}
