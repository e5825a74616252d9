package main

import (
	"flag"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BemiHQ/BemiSync/common"
	"github.com/BemiHQ/BemiSync/remote"
	"github.com/BemiHQ/BemiSync/syncer"
)

const (
	ENV_CATALOG_PATH = "BEMISYNC_CATALOG_PATH"

	// One-shot run
	ENV_SYNC_CONFIG_ID = "BEMISYNC_SYNC_CONFIG_ID"
	ENV_CONNECTION_ID  = "BEMISYNC_CONNECTION_ID"
	ENV_OBJECT         = "BEMISYNC_OBJECT"

	ENV_CONCURRENCY               = "BEMISYNC_CONCURRENCY"
	ENV_DATA_QUALITY_POLICY       = "BEMISYNC_DATA_QUALITY_POLICY"
	ENV_STALL_TIMEOUT_SECONDS     = "BEMISYNC_STALL_TIMEOUT_SECONDS"
	ENV_LIVENESS_INTERVAL_SECONDS = "BEMISYNC_LIVENESS_INTERVAL_SECONDS"

	// Worker mode
	ENV_NATS_URL                      = "NATS_URL"
	ENV_NATS_STREAM                   = "NATS_JETSTREAM_STREAM"
	ENV_NATS_SUBJECT                  = "NATS_JETSTREAM_SUBJECT"
	ENV_NATS_CONSUMER_NAME            = "NATS_JETSTREAM_CONSUMER_NAME"
	ENV_NATS_FETCH_TIMEOUT_SECONDS    = "NATS_FETCH_TIMEOUT_SECONDS"
	ENV_NATS_ACK_WAIT_SECONDS         = "NATS_ACK_WAIT_SECONDS"
	ENV_NATS_MAX_DELIVER              = "NATS_MAX_DELIVER"
	ENV_NATS_LIFECYCLE_SUBJECT_PREFIX = "NATS_LIFECYCLE_SUBJECT_PREFIX"

	DEFAULT_CONCURRENCY                = 4
	DEFAULT_LIVENESS_INTERVAL_SECONDS  = 5
	DEFAULT_NATS_FETCH_TIMEOUT_SECONDS = 30
	DEFAULT_NATS_ACK_WAIT_SECONDS      = 60
	DEFAULT_NATS_MAX_DELIVER           = 10
)

type NatsConfig struct {
	Url                    string
	Stream                 string
	Subject                string
	ConsumerName           string
	FetchTimeoutSeconds    int
	AckWaitSeconds         int
	MaxDeliver             int
	LifecycleSubjectPrefix string
}

type Config struct {
	CommonConfig *common.CommonConfig
	CatalogPath  string

	SyncConfigId string // One-shot run
	ConnectionId string // One-shot run
	Object       string // One-shot run

	Concurrency             int
	DataQualityPolicy       remote.DataQualityPolicy
	StallTimeoutSeconds     int
	LivenessIntervalSeconds int
	Nats                    NatsConfig // Worker mode
}

var _config Config

func init() {
	registerFlags()
}

func registerFlags() {
	_config = Config{CommonConfig: &common.CommonConfig{}}

	flag.StringVar(&_config.CommonConfig.LogLevel, "log-level", os.Getenv(common.ENV_LOG_LEVEL), `Log level: "ERROR", "WARN", "INFO", "DEBUG", "TRACE". Default: "`+common.DEFAULT_LOG_LEVEL+`"`)
	flag.StringVar(&_config.CommonConfig.CatalogDatabaseUrl, "catalog-database-url", os.Getenv(common.ENV_CATALOG_DATABASE_URL), "Catalog database URL to store sync cursors. Default: in-memory cursors")
	flag.StringVar(&_config.CommonConfig.Aws.Region, "aws-region", os.Getenv(common.ENV_AWS_REGION), "AWS region")
	flag.StringVar(&_config.CommonConfig.Aws.S3Endpoint, "aws-s3-endpoint", os.Getenv(common.ENV_AWS_S3_ENDPOINT), "AWS S3 endpoint. Default: \""+common.DEFAULT_AWS_S3_ENDPOINT+`"`)
	flag.StringVar(&_config.CommonConfig.Aws.S3Bucket, "aws-s3-bucket", os.Getenv(common.ENV_AWS_S3_BUCKET), "AWS S3 bucket name to archive skipped records")
	flag.StringVar(&_config.CommonConfig.Aws.AccessKeyId, "aws-access-key-id", os.Getenv(common.ENV_AWS_ACCESS_KEY_ID), "AWS access key ID")
	flag.StringVar(&_config.CommonConfig.Aws.SecretAccessKey, "aws-secret-access-key", os.Getenv(common.ENV_AWS_SECRET_ACCESS_KEY), "AWS secret access key")

	flag.StringVar(&_config.CatalogPath, "catalog-path", os.Getenv(ENV_CATALOG_PATH), "Path to the YAML catalog with providers, schemas, connections, destinations and sync configs")
	flag.StringVar(&_config.SyncConfigId, "sync-config-id", os.Getenv(ENV_SYNC_CONFIG_ID), "Sync config to run once")
	flag.StringVar(&_config.ConnectionId, "connection-id", os.Getenv(ENV_CONNECTION_ID), "Connection to run once")
	flag.StringVar(&_config.Object, "object", os.Getenv(ENV_OBJECT), `Object to run once, e.g. "crm/common/contact"`)
	flag.StringVar((*string)(&_config.DataQualityPolicy), "data-quality-policy", os.Getenv(ENV_DATA_QUALITY_POLICY), `Malformed record policy: "abort" or "skip". Default: "`+string(remote.DEFAULT_DATA_QUALITY_POLICY)+`"`)
	intFlag(&_config.Concurrency, "concurrency", ENV_CONCURRENCY, DEFAULT_CONCURRENCY, "Maximum number of concurrent sync runs in worker mode")
	intFlag(&_config.StallTimeoutSeconds, "stall-timeout-seconds", ENV_STALL_TIMEOUT_SECONDS, 0, "Fail a run when no record arrives for this long. Default: disabled")
	intFlag(&_config.LivenessIntervalSeconds, "liveness-interval-seconds", ENV_LIVENESS_INTERVAL_SECONDS, DEFAULT_LIVENESS_INTERVAL_SECONDS, "Minimum interval between liveness signals")

	flag.StringVar(&_config.Nats.Url, "nats-url", os.Getenv(ENV_NATS_URL), "NATS URL. Enables worker mode")
	flag.StringVar(&_config.Nats.Stream, "nats-stream", os.Getenv(ENV_NATS_STREAM), "NATS stream to read run requests from")
	flag.StringVar(&_config.Nats.Subject, "nats-subject", os.Getenv(ENV_NATS_SUBJECT), "NATS subject to read run requests from")
	flag.StringVar(&_config.Nats.ConsumerName, "nats-consumer-name", os.Getenv(ENV_NATS_CONSUMER_NAME), "NATS consumer name for the JetStream consumer")
	flag.StringVar(&_config.Nats.LifecycleSubjectPrefix, "nats-lifecycle-subject-prefix", os.Getenv(ENV_NATS_LIFECYCLE_SUBJECT_PREFIX), "NATS subject prefix for lifecycle events. Default: \""+syncer.DEFAULT_LIFECYCLE_SUBJECT_PREFIX+`"`)
	intFlag(&_config.Nats.FetchTimeoutSeconds, "nats-fetch-timeout-seconds", ENV_NATS_FETCH_TIMEOUT_SECONDS, DEFAULT_NATS_FETCH_TIMEOUT_SECONDS, "NATS fetch timeout in seconds")
	intFlag(&_config.Nats.AckWaitSeconds, "nats-ack-wait-seconds", ENV_NATS_ACK_WAIT_SECONDS, DEFAULT_NATS_ACK_WAIT_SECONDS, "Seconds without a liveness signal after which a run request is redelivered")
	intFlag(&_config.Nats.MaxDeliver, "nats-max-deliver", ENV_NATS_MAX_DELIVER, DEFAULT_NATS_MAX_DELIVER, "Maximum deliveries of a run request")
}

func intFlag(target *int, name string, envName string, defaultValue int, usage string) {
	flag.IntVar(target, name, defaultValue, usage)
	value := os.Getenv(envName)
	if value != "" {
		*target = common.StringToInt(value)
	}
}

func parseFlags() {
	flag.Parse()

	if _config.CommonConfig.LogLevel == "" {
		_config.CommonConfig.LogLevel = common.DEFAULT_LOG_LEVEL
	} else if !slices.Contains(common.LOG_LEVELS, _config.CommonConfig.LogLevel) {
		panic("Invalid log level " + _config.CommonConfig.LogLevel + ". Must be one of " + strings.Join(common.LOG_LEVELS, ", "))
	}
	if _config.CommonConfig.Aws.S3Endpoint == "" {
		_config.CommonConfig.Aws.S3Endpoint = common.DEFAULT_AWS_S3_ENDPOINT
	}
	if _config.CommonConfig.Aws.S3Bucket != "" && _config.CommonConfig.Aws.Region == "" {
		panic("AWS region is required")
	}
	if _config.CommonConfig.Aws.AccessKeyId != "" && _config.CommonConfig.Aws.SecretAccessKey == "" {
		panic("AWS secret access key is required")
	}
	if _config.CommonConfig.Aws.AccessKeyId == "" && _config.CommonConfig.Aws.SecretAccessKey != "" {
		panic("AWS access key ID is required")
	}

	if _config.CatalogPath == "" {
		panic("Catalog path is required")
	}
	if _config.DataQualityPolicy == "" {
		_config.DataQualityPolicy = remote.DEFAULT_DATA_QUALITY_POLICY
	} else if !slices.Contains(remote.DATA_QUALITY_POLICIES, string(_config.DataQualityPolicy)) {
		panic("Invalid data quality policy " + string(_config.DataQualityPolicy) + ". Must be one of " + strings.Join(remote.DATA_QUALITY_POLICIES, ", "))
	}
	if _config.Concurrency <= 0 {
		panic("Concurrency must be greater than 0")
	}
	if _config.StallTimeoutSeconds < 0 {
		panic("Stall timeout must not be negative")
	}
	if _config.LivenessIntervalSeconds <= 0 {
		panic("Liveness interval must be greater than 0")
	}

	if _config.Nats.Url == "" {
		if _config.SyncConfigId == "" {
			panic("Sync config ID is required")
		}
		if _config.ConnectionId == "" {
			panic("Connection ID is required")
		}
		if _config.Object == "" {
			panic("Object is required")
		}
		return
	}

	if _config.Nats.Stream == "" {
		panic("NATS stream is required")
	}
	if _config.Nats.Subject == "" {
		panic("NATS subject is required")
	}
	if _config.Nats.ConsumerName == "" {
		panic("NATS consumer name is required")
	}
	if _config.Nats.FetchTimeoutSeconds <= 0 {
		panic("NATS fetch timeout must be greater than 0")
	}
	if _config.Nats.AckWaitSeconds <= _config.LivenessIntervalSeconds {
		panic("NATS ack wait must be greater than the liveness interval")
	}
	if _config.Nats.MaxDeliver <= 0 {
		panic("NATS max deliver must be greater than 0")
	}
	if _config.Nats.LifecycleSubjectPrefix == "" {
		_config.Nats.LifecycleSubjectPrefix = syncer.DEFAULT_LIFECYCLE_SUBJECT_PREFIX
	}
}

func (config *Config) IsWorkerMode() bool {
	return config.Nats.Url != ""
}

func (config *Config) StallTimeout() time.Duration {
	return time.Duration(config.StallTimeoutSeconds) * time.Second
}

func (config *Config) LivenessInterval() time.Duration {
	return time.Duration(config.LivenessIntervalSeconds) * time.Second
}

func LoadConfig() *Config {
	parseFlags()
	return &_config
}
