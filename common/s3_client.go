package common

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client struct {
	Config *CommonConfig
	S3     *s3.Client
}

func NewS3Client(config *CommonConfig) *S3Client {
	var awsConfigOptions = []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(config.Aws.Region),
	}

	if config.LogLevel == LOG_LEVEL_TRACE {
		awsConfigOptions = append(awsConfigOptions, awsConfig.WithClientLogMode(aws.LogRequest))
	}

	if IsLocalHost(config.Aws.S3Endpoint) {
		awsConfigOptions = append(awsConfigOptions, awsConfig.WithBaseEndpoint("http://"+config.Aws.S3Endpoint))
	} else {
		awsConfigOptions = append(awsConfigOptions, awsConfig.WithBaseEndpoint("https://"+config.Aws.S3Endpoint))
	}

	// Falls back to the default credential chain (env, shared config, instance role)
	if config.Aws.AccessKeyId != "" {
		awsCredentials := credentials.NewStaticCredentialsProvider(
			config.Aws.AccessKeyId,
			config.Aws.SecretAccessKey,
			"",
		)
		awsConfigOptions = append(awsConfigOptions, awsConfig.WithCredentialsProvider(awsCredentials))
	}

	loadedAwsConfig, err := awsConfig.LoadDefaultConfig(context.Background(), awsConfigOptions...)
	PanicIfError(config, err)

	client := s3.NewFromConfig(loadedAwsConfig, func(o *s3.Options) {
		if config.Aws.S3Endpoint != DEFAULT_AWS_S3_ENDPOINT {
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		Config: config,
		S3:     client,
	}
}

func (s3Client *S3Client) BucketS3Prefix() string {
	return "s3://" + s3Client.Config.Aws.S3Bucket + "/"
}

func (s3Client *S3Client) UploadObject(ctx context.Context, fileKey string, contentType string, body io.Reader) error {
	LogDebug(s3Client.Config, "Uploading to S3:", s3Client.BucketS3Prefix()+fileKey)

	uploader := manager.NewUploader(s3Client.S3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3Client.Config.Aws.S3Bucket),
		Key:         aws.String(fileKey),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	return err
}
