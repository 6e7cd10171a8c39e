package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/securemsg/accountdir/internal/flagx"
	"github.com/securemsg/accountdir/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN                 string         `json:"database_dsn"`
	RedisAddrs                  []string       `json:"redis_addrs"`
	AWSRegion                   string         `json:"aws_region"`
	AWSEndpoint                 string         `json:"aws_endpoint"`
	AWSAccessKeyID              string         `json:"aws_access_key_id"`
	AWSSecretAccessKey          string         `json:"aws_secret_access_key"`
	AccountsTable               string         `json:"accounts_table"`
	NumbersTable                string         `json:"numbers_table"`
	KeysTable                   string         `json:"keys_table"`
	DirectoryQueueURL           string         `json:"directory_queue_url"`
	StorageBucket               string         `json:"storage_bucket"`
	BackupBucket                string         `json:"backup_bucket"`
	MetricsAddr                 string         `json:"metrics_addr"`
	DynamicConfigPath           string         `json:"dynamic_config_path"`
	DynamicConfigReloadInterval timex.Duration `json:"dynamic_config_reload_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; if neither is set, no JSON file is loaded. If the file cannot be
// read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.RedisAddrs = c.RedisAddrs
	config.AWSRegion = c.AWSRegion
	config.AWSEndpoint = c.AWSEndpoint
	config.AWSAccessKeyID = c.AWSAccessKeyID
	config.AWSSecretAccessKey = c.AWSSecretAccessKey
	config.AccountsTable = c.AccountsTable
	config.NumbersTable = c.NumbersTable
	config.KeysTable = c.KeysTable
	config.DirectoryQueueURL = c.DirectoryQueueURL
	config.StorageBucket = c.StorageBucket
	config.BackupBucket = c.BackupBucket
	config.MetricsAddr = c.MetricsAddr
	config.DynamicConfigPath = c.DynamicConfigPath
	config.DynamicConfigReloadInterval = time.Duration(c.DynamicConfigReloadInterval.Duration)
}
