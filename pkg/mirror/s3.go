package mirror

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

// fetchS3 downloads an s3://bucket/key mirror. Mirror buckets are public,
// so the client runs with anonymous credentials.
func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL, dest string) (*FetchResult, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("malformed s3 mirror url %s", u)
	}

	f.log.Info("fetch_started", "bucket", bucket, "key", key, "dest", dest)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(f.s3Region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	client := s3.NewFromConfig(cfg)

	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &TransferError{URL: u.String(), Err: err}
	}
	defer obj.Body.Close()

	return f.writeArchive(u.String(), dest, obj.Body)
}
