// Package publish is an optional post-write step: it uploads a
// region's written GeoPackage/shapefile/FAILED.csv output directory to
// an S3-compatible bucket (Cloudflare R2 in the teacher's own
// deployment), adapted from the teacher's tile-upload client into a
// flat directory publisher for watershed output partitions.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Config describes an S3-compatible bucket to publish output to.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	BucketPath      string
	AccessKeyID     string
	SecretAccessKey string
}

// Client uploads a region's output directory to the configured bucket.
type Client struct {
	client     *s3.Client
	bucket     string
	bucketPath string
	uploader   *manager.Uploader
}

// NewClient builds a Client against cfg, following the same
// custom-endpoint-resolver + pooled-HTTP-client setup the teacher uses
// for its own R2 client.
func NewClient(cfg Config) (*Client, error) {
	logger := slog.With("endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	logger.Info("initializing S3 client for watershed output publishing")

	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if service == s3.ServiceID {
			return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: cfg.Region}, nil
		}
		return aws.Endpoint{}, &smithy.GenericAPIError{Code: "UnknownEndpoint"}
	})

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        150,
			MaxIdleConnsPerHost: 150,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 5 * time.Minute,
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithHTTPClient(httpClient),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("publish: loading AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) { o.UsePathStyle = true })
	return &Client{
		client:     s3Client,
		bucket:     cfg.Bucket,
		bucketPath: cfg.BucketPath,
		uploader:   manager.NewUploader(s3Client),
	}, nil
}

type fileToUpload struct {
	path    string
	relPath string
	s3Key   string
	size    int64
}

// UploadDirectory uploads every file under localDir to s3Prefix, using
// a bounded worker pool — the same parallel-upload pattern as the
// teacher's own directory uploader, sized down since a region's output
// partition is a handful of files, not a tile pyramid.
func (c *Client) UploadDirectory(ctx context.Context, localDir, s3Prefix string) (filesUploaded int, bytesUploaded int64, err error) {
	logger := slog.With("local_dir", localDir, "s3_prefix", s3Prefix)

	var files []fileToUpload
	walkErr := filepath.Walk(localDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(localDir, filePath)
		if err != nil {
			return err
		}
		files = append(files, fileToUpload{
			path:    filePath,
			relPath: relPath,
			s3Key:   filepath.Join(s3Prefix, filepath.ToSlash(relPath)),
			size:    info.Size(),
		})
		return nil
	})
	if walkErr != nil {
		return 0, 0, fmt.Errorf("publish: scanning %s: %w", localDir, walkErr)
	}

	const numWorkers = 8
	var totalBytes int64
	var fileCount int
	var mu sync.Mutex
	var wg sync.WaitGroup

	workChan := make(chan fileToUpload, numWorkers*2)
	errChan := make(chan error, 1)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range workChan {
				f, err := os.Open(file.path)
				if err != nil {
					trySend(errChan, fmt.Errorf("publish: opening %s: %w", file.relPath, err))
					return
				}
				_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
					Bucket: aws.String(c.bucket),
					Key:    aws.String(file.s3Key),
					Body:   f,
				})
				f.Close()
				if err != nil {
					trySend(errChan, fmt.Errorf("publish: uploading %s: %w", file.relPath, err))
					return
				}
				mu.Lock()
				totalBytes += file.size
				fileCount++
				mu.Unlock()
			}
		}()
	}

	go func() {
		for _, f := range files {
			select {
			case <-ctx.Done():
				close(workChan)
				return
			case workChan <- f:
			}
		}
		close(workChan)
	}()

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return fileCount, totalBytes, err
	}

	logger.Info("directory upload complete", "files", fileCount, "bytes", totalBytes)
	return fileCount, totalBytes, nil
}

func trySend(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// PublicURL returns the public URL for an uploaded key, stripping the
// configured bucket path prefix the same way the teacher's own
// GetPublicURL does.
func (c *Client) PublicURL(baseURL, s3Key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), strings.TrimPrefix(s3Key, c.bucketPath+"/"))
}
