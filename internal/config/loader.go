package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/quotanorm/internal/blob"
	"github.com/rpattn/quotanorm/internal/db"
	"github.com/rpattn/quotanorm/internal/logging"
	"github.com/rpattn/quotanorm/internal/retry"
)

// EnvPrefix prefixes every environment override, e.g. QUOTANORM_TARGET_HOST.
const EnvPrefix = "QUOTANORM"

type SourceConfig struct {
	// Path of the sqlite catalog holding the raw quota table.
	Path  string
	Table string
}

type ReportConfig struct {
	Output      string
	CornerLabel string
	Blob        blob.Config
}

type MetricsConfig struct {
	Textfile string
}

// Config is the full application configuration.
type Config struct {
	Source  SourceConfig
	Target  db.Config
	Report  ReportConfig
	Log     logging.Config
	Retry   retry.Config
	Metrics MetricsConfig

	// File is the config file that was read, empty when none was found.
	File string
}

func Default() Config {
	return Config{
		Source: SourceConfig{Path: "payroll_database.db", Table: "quota"},
		Target: db.DefaultConfig(),
		Report: ReportConfig{
			Output:      "quota_report.xlsx",
			CornerLabel: "型号",
			Blob:        blob.Config{Driver: string(blob.DriverFilesystem), Root: "./reports"},
		},
		Log:   logging.Config{ServiceName: "quotanorm", Level: "info", Format: "json"},
		Retry: retry.DefaultConfig(),
	}
}

var keys = []string{
	"source.path",
	"source.table",
	"target.host",
	"target.port",
	"target.user",
	"target.password",
	"target.dbname",
	"target.sslmode",
	"report.output",
	"report.corner_label",
	"report.blob_driver",
	"report.blob_root",
	"report.s3_bucket",
	"report.s3_region",
	"report.s3_endpoint",
	"report.s3_path_style",
	"log.level",
	"log.format",
	"retry.max_retries",
	"retry.delay",
	"metrics.textfile",
}

// Load reads config.yaml from configPath (when present) and applies
// QUOTANORM_* environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	setString(v, "source.path", &cfg.Source.Path)
	setString(v, "source.table", &cfg.Source.Table)

	setString(v, "target.host", &cfg.Target.Host)
	if v.IsSet("target.port") {
		cfg.Target.Port = v.GetInt("target.port")
	}
	setString(v, "target.user", &cfg.Target.User)
	setString(v, "target.password", &cfg.Target.Password)
	setString(v, "target.dbname", &cfg.Target.DBName)
	setString(v, "target.sslmode", &cfg.Target.SSLMode)

	setString(v, "report.output", &cfg.Report.Output)
	setString(v, "report.corner_label", &cfg.Report.CornerLabel)
	setString(v, "report.blob_driver", &cfg.Report.Blob.Driver)
	setString(v, "report.blob_root", &cfg.Report.Blob.Root)
	setString(v, "report.s3_bucket", &cfg.Report.Blob.S3.Bucket)
	setString(v, "report.s3_region", &cfg.Report.Blob.S3.Region)
	setString(v, "report.s3_endpoint", &cfg.Report.Blob.S3.Endpoint)
	if v.IsSet("report.s3_path_style") {
		cfg.Report.Blob.S3.PathStyle = v.GetBool("report.s3_path_style")
	}

	setString(v, "log.level", &cfg.Log.Level)
	setString(v, "log.format", &cfg.Log.Format)

	if v.IsSet("retry.max_retries") {
		cfg.Retry.MaxRetries = v.GetInt("retry.max_retries")
	}
	if v.IsSet("retry.delay") {
		cfg.Retry.Delay = v.GetDuration("retry.delay")
	}

	setString(v, "metrics.textfile", &cfg.Metrics.Textfile)

	return cfg, cfg.validate()
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func (c Config) validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Retry.Delay < 0 || c.Retry.Delay > time.Hour {
		return fmt.Errorf("retry.delay %s out of range", c.Retry.Delay)
	}
	if c.Target.Port <= 0 {
		return fmt.Errorf("target.port must be positive")
	}
	return nil
}
