package common

const (
	VERSION = "0.4.0"

	ENV_LOG_LEVEL = "BEMISYNC_LOG_LEVEL"

	ENV_CATALOG_DATABASE_URL = "CATALOG_DATABASE_URL"

	ENV_AWS_REGION            = "AWS_REGION"
	ENV_AWS_S3_ENDPOINT       = "AWS_S3_ENDPOINT"
	ENV_AWS_S3_BUCKET         = "AWS_S3_BUCKET"
	ENV_AWS_ACCESS_KEY_ID     = "AWS_ACCESS_KEY_ID"
	ENV_AWS_SECRET_ACCESS_KEY = "AWS_SECRET_ACCESS_KEY"

	DEFAULT_LOG_LEVEL       = "INFO"
	DEFAULT_AWS_S3_ENDPOINT = "s3.amazonaws.com"
)

type AwsConfig struct {
	Region          string
	S3Endpoint      string // optional
	S3Bucket        string // optional, enables the dead-letter archive
	AccessKeyId     string
	SecretAccessKey string
}

func (awsConfig AwsConfig) IsConfigured() bool {
	return awsConfig.Region != "" && awsConfig.S3Bucket != ""
}

type CommonConfig struct {
	Aws                AwsConfig
	LogLevel           string
	CatalogDatabaseUrl string // optional, in-memory cursors when empty
}
