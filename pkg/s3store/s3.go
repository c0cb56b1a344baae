// Amazon S3 and S3-compatible backends (generic S3 endpoints, OpenStack
// swift behind its S3 middleware). Implements the dstore.Store interface
// by plugging an aws-sdk-go driver into the shared remote-caching base.
package s3store

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/scidata/dstore/pkg/dstore"
	"github.com/scidata/dstore/pkg/remote"
)

const signedURLExpiry = 24 * time.Hour

type Config struct {
	AccessKey string
	SecretKey string
	Region    string

	Bucket               string
	UseReducedRedundancy bool

	// MaxChunkSize is the multipart part size in bytes. 0 keeps the SDK
	// default.
	MaxChunkSize int64
	Multipart    bool

	// Host/Port/ConnPath describe a non-AWS endpoint. Empty host means
	// plain AWS.
	Host     string
	Port     int
	ConnPath string
	IsSecure bool

	// PathStyle forces path-style bucket addressing, required by most
	// S3-compatible stores and by swift's S3 middleware.
	PathStyle bool

	Cache   remote.CacheTarget
	StoreBy dstore.StoreBy
}

// Store is an S3-backed object store with a local cache.
type Store struct {
	*remote.CachingStore
}

// New connects to the configured endpoint, resolves (or creates) the
// bucket, and returns the store.
func New(logger dstore.Logger, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket name")
	}

	awsCfg := aws.NewConfig()
	if cfg.AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg = awsCfg.WithRegion(region)
	if cfg.Host != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint(cfg)).WithDisableSSL(!cfg.IsSecure)
	}
	if cfg.PathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "establishing s3 session")
	}
	svc := s3.New(sess)

	driver := &s3Driver{
		svc:          svc,
		bucket:       cfg.Bucket,
		reducedRed:   cfg.UseReducedRedundancy,
		multipart:    cfg.Multipart,
		maxChunkSize: cfg.MaxChunkSize,
		log:          logger,
	}
	if err := driver.ensureBucket(); err != nil {
		return nil, err
	}

	base, err := remote.NewCachingStore(logger, driver, cfg.Cache, cfg.StoreBy)
	if err != nil {
		return nil, err
	}
	return &Store{CachingStore: base}, nil
}

// NewGeneric builds a store against a non-AWS S3-compatible endpoint.
func NewGeneric(logger dstore.Logger, cfg Config) (*Store, error) {
	if cfg.Host == "" {
		return nil, errors.New("generic s3 store requires a connection host")
	}
	cfg.PathStyle = true
	return New(logger, cfg)
}

// NewSwift builds a store against swift's S3 middleware, which only
// speaks path-style addressing.
func NewSwift(logger dstore.Logger, cfg Config) (*Store, error) {
	if cfg.Host == "" {
		return nil, errors.New("swift store requires a connection host")
	}
	cfg.PathStyle = true
	return New(logger, cfg)
}

func endpoint(cfg Config) string {
	scheme := "http"
	if cfg.IsSecure {
		scheme = "https"
	}
	ep := fmt.Sprintf("%s://%s", scheme, cfg.Host)
	if cfg.Port != 0 {
		ep = fmt.Sprintf("%s:%d", ep, cfg.Port)
	}
	if cfg.ConnPath != "" {
		ep += "/" + cfg.ConnPath
	}
	return ep
}

type s3Driver struct {
	svc          *s3.S3
	bucket       string
	reducedRed   bool
	multipart    bool
	maxChunkSize int64
	log          dstore.Logger
}

// ensureBucket resolves the bucket, creating it on first use.
func (d *s3Driver) ensureBucket() error {
	_, err := d.svc.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err == nil {
		return nil
	}
	if !isMissing(err) {
		return errors.Wrapf(err, "resolving bucket %s", d.bucket)
	}
	d.log.Infof("bucket %s not found, creating it", d.bucket)
	_, err = d.svc.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(d.bucket)})
	return errors.Wrapf(err, "creating bucket %s", d.bucket)
}

func (d *s3Driver) Exists(key string) (bool, error) {
	_, err := d.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissing(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *s3Driver) Size(key string) (int64, error) {
	head, err := d.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, err
	}
	return aws.Int64Value(head.ContentLength), nil
}

func (d *s3Driver) Open(key string) (io.ReadCloser, error) {
	out, err := d.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (d *s3Driver) Put(key string, r io.Reader, size int64) error {
	uploader := s3manager.NewUploaderWithClient(d.svc, func(u *s3manager.Uploader) {
		if d.multipart && d.maxChunkSize > 0 {
			u.PartSize = d.maxChunkSize
		}
		if !d.multipart {
			// S3's maximum upload part size (5 GiB). aws-sdk-go v1's s3manager
			// does not export this constant (aws-sdk-go-v2 does, as
			// manager.MaxUploadPartSize).
			u.PartSize = 1024 * 1024 * 1024 * 5
		}
	})
	input := &s3manager.UploadInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if d.reducedRed {
		input.StorageClass = aws.String(s3.StorageClassReducedRedundancy)
	}
	_, err := uploader.Upload(input)
	return err
}

func (d *s3Driver) Delete(key string) error {
	_, err := d.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (d *s3Driver) Keys(prefix string) ([]string, error) {
	var keys []string
	err := d.svc.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	return keys, err
}

func (d *s3Driver) URL(key string) string {
	req, _ := d.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(signedURLExpiry)
	if err != nil {
		d.log.Errorf("presigning %s: %v", key, err)
		return ""
	}
	return url
}

// isMissing recognizes the various spellings of "not there" across S3
// implementations.
func isMissing(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return true
		}
		if reqErr, ok := err.(awserr.RequestFailure); ok {
			return reqErr.StatusCode() == http.StatusNotFound
		}
	}
	return false
}
