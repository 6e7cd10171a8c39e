package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/securemsg/accountdir/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   metrics bind address (e.g., ":9090")
//	-d string   PostgreSQL DSN
//	-r string   comma-separated Redis addresses
//	-g string   AWS region
//	-e string   AWS endpoint override (e.g., "http://127.0.0.1:4566")
//	-y string   dynamic configuration file path
//	-i int      dynamic configuration reload interval, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-g", "-e", "-y", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.MetricsAddr, "a", config.MetricsAddr, "metrics bind address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	redisAddrs := fs.String("r", strings.Join(config.RedisAddrs, ","), "comma-separated redis addresses")

	fs.StringVar(&config.AWSRegion, "g", config.AWSRegion, "AWS region")
	fs.StringVar(&config.AWSEndpoint, "e", config.AWSEndpoint, "AWS endpoint override")
	fs.StringVar(&config.DynamicConfigPath, "y", config.DynamicConfigPath, "dynamic configuration file")

	reloadInterval := fs.Int("i", int(config.DynamicConfigReloadInterval.Seconds()), "dynamic configuration reload interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RedisAddrs = strings.Split(*redisAddrs, ",")
	config.DynamicConfigReloadInterval = time.Duration(*reloadInterval) * time.Second
}
