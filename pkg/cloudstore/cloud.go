// Cloud-provider blob backend (AWS, Azure, Google) built on the Go CDK's
// portable blob API. One driver covers all three providers; everything
// provider-specific is confined to how the bucket handle is opened.
package cloudstore

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/gcp"

	"github.com/scidata/dstore/pkg/dstore"
	"github.com/scidata/dstore/pkg/remote"
)

const signedURLExpiry = 24 * time.Hour

type Config struct {
	// Provider is one of "aws", "azure", "google".
	Provider string

	Bucket string

	// aws
	AccessKey string
	SecretKey string
	Region    string

	// azure
	AccountName string
	AccountKey  string

	// google; empty means application default credentials
	CredentialsFile string

	Cache   remote.CacheTarget
	StoreBy dstore.StoreBy
}

// Store is a cloud-blob-backed object store with a local cache.
type Store struct {
	*remote.CachingStore
}

func New(logger dstore.Logger, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("cloud store requires a bucket name")
	}

	ctx := context.Background()
	bucket, err := openBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}

	driver := &blobDriver{bucket: bucket, log: logger}
	base, err := remote.NewCachingStore(logger, driver, cfg.Cache, cfg.StoreBy)
	if err != nil {
		return nil, err
	}
	return &Store{CachingStore: base}, nil
}

func openBucket(ctx context.Context, cfg Config) (*blob.Bucket, error) {
	switch cfg.Provider {
	case "aws":
		awsCfg := aws.NewConfig().WithRegion(cfg.Region)
		if cfg.AccessKey != "" {
			awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""))
		}
		sess, err := session.NewSession(awsCfg)
		if err != nil {
			return nil, errors.Wrap(err, "establishing aws session")
		}
		return s3blob.OpenBucket(ctx, sess, cfg.Bucket, nil)

	case "azure":
		credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, errors.Wrap(err, "bad azure credentials")
		}
		pipeline := azureblob.NewPipeline(credential, azblob.PipelineOptions{})
		return azureblob.OpenBucket(ctx, pipeline, azureblob.AccountName(cfg.AccountName),
			cfg.Bucket, &azureblob.Options{Credential: credential})

	case "google":
		if cfg.CredentialsFile != "" {
			// the google libraries only take credentials through the env
			os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.CredentialsFile)
		}
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "resolving google credentials")
		}
		client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, errors.Wrap(err, "building google http client")
		}
		return gcsblob.OpenBucket(ctx, client, cfg.Bucket, nil)

	default:
		return nil, errors.Errorf("unrecognized cloud provider %q", cfg.Provider)
	}
}

type blobDriver struct {
	bucket *blob.Bucket
	log    dstore.Logger
}

func (d *blobDriver) Exists(key string) (bool, error) {
	return d.bucket.Exists(context.Background(), key)
}

func (d *blobDriver) Size(key string) (int64, error) {
	attrs, err := d.bucket.Attributes(context.Background(), key)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (d *blobDriver) Open(key string) (io.ReadCloser, error) {
	return d.bucket.NewReader(context.Background(), key, nil)
}

func (d *blobDriver) Put(key string, r io.Reader, size int64) error {
	ctx := context.Background()
	w, err := d.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (d *blobDriver) Delete(key string) error {
	err := d.bucket.Delete(context.Background(), key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (d *blobDriver) Keys(prefix string) ([]string, error) {
	ctx := context.Background()
	iter := d.bucket.List(&blob.ListOptions{Prefix: prefix})
	var keys []string
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return keys, nil
		}
		if err != nil {
			return keys, err
		}
		keys = append(keys, obj.Key)
	}
}

func (d *blobDriver) URL(key string) string {
	url, err := d.bucket.SignedURL(context.Background(), key, &blob.SignedURLOptions{
		Expiry: signedURLExpiry,
	})
	if err != nil {
		d.log.Errorf("signing url for %s: %v", key, err)
		return ""
	}
	return url
}
