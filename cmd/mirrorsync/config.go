package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yuya-takeyama/mirrorsync/pkg/executor"
	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
	"github.com/yuya-takeyama/mirrorsync/pkg/transfer"
)

const (
	envPrefix      = "MIRRORSYNC"
	configFileName = "config"
)

// Config is the resolved configuration of one run.
type Config struct {
	Concurrency      int
	RangeConcurrency int
	HeadConcurrency  int
	StagingThreshold int64
	RangeThreshold   int64
	ChunkSize        int64
	TempDir          string

	Excludes []string
	NoDelete bool
	Strict   bool
	DryRun   bool

	Quiet   bool
	Verbose bool

	Profile     string
	Region      string
	EndpointURL string
	PathStyle   bool
	AccessKey   string
	SecretKey   string

	PlanJSONFile   string
	ResultJSONFile string
}

func addFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false

	flags.Int("concurrency", executor.DefaultConcurrency, "Number of actions run concurrently")
	flags.Int("range-concurrency", transfer.DefaultConcurrency, "Number of byte ranges fetched concurrently per large object (1 disables range transfer)")
	flags.Int("head-concurrency", storage.DefaultHeadConcurrency, "Number of concurrent HEAD requests while listing S3")
	flags.String("staging-threshold", "1MiB", "Payloads up to this size are staged in memory, larger ones in a temporary file")
	flags.String("range-threshold", "1MiB", "Objects above this size are fetched as parallel byte ranges")
	flags.String("chunk-size", "1MiB", "Size of each byte range")
	flags.String("temp-dir", "", "Directory for temporary staging files (default: system temp dir)")

	flags.StringSlice("exclude", nil, "Exclude patterns (multiple allowed, doublestar syntax)")
	flags.Bool("no-delete", false, "Keep destination files that are not in the source")
	flags.Bool("strict", false, "Overwrite unless size and timestamp match exactly")
	flags.Bool("dryrun", false, "Shows operations without executing")

	flags.BoolP("quiet", "q", false, "Suppress non-error output")
	flags.BoolP("verbose", "v", false, "Enable debug logging")

	flags.String("profile", "", "AWS profile to use")
	flags.String("region", "", "AWS region (uses default if not specified)")
	flags.String("endpoint-url", "", "Custom S3 endpoint for S3-compatible storage")
	flags.Bool("path-style", false, "Use path-style S3 addressing")

	flags.String("plan-json-file", "", "Path to output plan as JSON file")
	flags.String("result-json-file", "", "Path to output result as JSON file")
}

// configKey maps a flag name to its config file key.
func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// loadConfig reads the optional config file and binds flags and environment
// variables. Precedence is flag, environment, file, default.
func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	explicit := cmd.Flag("config").Changed
	if explicit {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "mirrorsync"))
		v.SetConfigName(configFileName)
	}

	// a missing default config file is fine, a missing explicit one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || f.Name == "version" {
			return
		}
		if err := v.BindPFlag(configKey(f.Name), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return bindErr
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// credentials are only read from the config file or environment
	_ = v.BindEnv("access_key")
	_ = v.BindEnv("secret_key")

	return nil
}

func configFromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Concurrency:      v.GetInt("concurrency"),
		RangeConcurrency: v.GetInt("range_concurrency"),
		HeadConcurrency:  v.GetInt("head_concurrency"),
		TempDir:          v.GetString("temp_dir"),
		Excludes:         v.GetStringSlice("exclude"),
		NoDelete:         v.GetBool("no_delete"),
		Strict:           v.GetBool("strict"),
		DryRun:           v.GetBool("dryrun"),
		Quiet:            v.GetBool("quiet"),
		Verbose:          v.GetBool("verbose"),
		Profile:          v.GetString("profile"),
		Region:           v.GetString("region"),
		EndpointURL:      v.GetString("endpoint_url"),
		PathStyle:        v.GetBool("path_style"),
		AccessKey:        v.GetString("access_key"),
		SecretKey:        v.GetString("secret_key"),
		PlanJSONFile:     v.GetString("plan_json_file"),
		ResultJSONFile:   v.GetString("result_json_file"),
	}

	var err error
	if cfg.StagingThreshold, err = parseSize(v, "staging_threshold"); err != nil {
		return nil, err
	}
	if cfg.RangeThreshold, err = parseSize(v, "range_threshold"); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = parseSize(v, "chunk_size"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseSize accepts plain byte counts and humanized sizes such as "8MiB".
func parseSize(v *viper.Viper, key string) (int64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return int64(n), nil
}

func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RangeConcurrency < 1 {
		return fmt.Errorf("range_concurrency must be at least 1, got %d", c.RangeConcurrency)
	}
	if c.HeadConcurrency < 1 {
		return fmt.Errorf("head_concurrency must be at least 1, got %d", c.HeadConcurrency)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1 byte")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	return nil
}
