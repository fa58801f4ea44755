// Package s3 provides a storage driver backed by Amazon S3 or a compatible
// object store.
//
// Folders do not exist in S3, so a path is a directory while objects are
// stored below it. Modification times set with Chtimes are kept in object
// metadata since S3 does not allow changing the Last-Modified header.
package s3

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	storagedriver "github.com/mavenhub/registry/registry/storage/driver"
	"github.com/mavenhub/registry/registry/storage/driver/factory"
)

const (
	driverName = "s3aws"

	// listMax is the largest amount of objects you can request from S3 in a
	// list call.
	listMax = 1000

	// deleteMax is the largest amount of objects you can delete from S3 in a
	// delete objects call.
	deleteMax = 1000

	// mtimeMetadataKey holds the modification time set by Chtimes.
	mtimeMetadataKey = "Origin-Mtime"

	defaultInitialInterval     = 100 * time.Millisecond
	defaultRandomizationFactor = 0.5
	defaultMultiplier          = 2
	defaultMaxInterval         = 5 * time.Second
	defaultMaxElapsedTime      = time.Minute
	defaultMaxRetries          = int64(5)
	defaultMaxRequestsPerSec   = int64(350)
	defaultBurst               = 500
)

// DriverParameters is a struct that encapsulates all of the driver
// parameters after all values have been set.
type DriverParameters struct {
	AccessKey            string `mapstructure:"accesskey"`
	SecretKey            string `mapstructure:"secretkey"`
	SessionToken         string `mapstructure:"sessiontoken"`
	Bucket               string `mapstructure:"bucket"`
	Region               string `mapstructure:"region"`
	RegionEndpoint       string `mapstructure:"regionendpoint"`
	Encrypt              bool   `mapstructure:"encrypt"`
	KeyID                string `mapstructure:"keyid"`
	Secure               bool   `mapstructure:"secure"`
	SkipVerify           bool   `mapstructure:"skipverify"`
	PathStyle            bool   `mapstructure:"pathstyle"`
	RootDirectory        string `mapstructure:"rootdirectory"`
	StorageClass         string `mapstructure:"storageclass"`
	MaxRequestsPerSecond int64  `mapstructure:"maxrequestspersecond"`
	MaxRetries           int64  `mapstructure:"maxretries"`
	ParallelWalk         bool   `mapstructure:"parallelwalk"`
}

func init() {
	factory.Register(driverName, &s3DriverFactory{})
}

// s3DriverFactory implements the factory.StorageDriverFactory interface.
type s3DriverFactory struct{}

func (factory *s3DriverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return FromParameters(parameters)
}

// Driver is a storagedriver.StorageDriver implementation backed by S3.
type Driver struct {
	S3            *s3wrapper
	Bucket        string
	Encrypt       bool
	KeyID         string
	RootDirectory string
	StorageClass  string
	ParallelWalk  bool
}

var _ storagedriver.StorageDriver = &Driver{}

// FromParameters constructs a new Driver with a given parameters map.
// Required parameters:
// - region
// - bucket
func FromParameters(parameters map[string]interface{}) (*Driver, error) {
	params, err := parseParameters(parameters)
	if err != nil {
		return nil, err
	}
	return New(*params)
}

func parseParameters(parameters map[string]interface{}) (*DriverParameters, error) {
	params := DriverParameters{
		Secure:               true,
		StorageClass:         s3.StorageClassStandard,
		MaxRequestsPerSecond: defaultMaxRequestsPerSec,
		MaxRetries:           defaultMaxRetries,
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &params,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(parameters); err != nil {
		return nil, fmt.Errorf("invalid s3 parameters: %w", err)
	}

	if params.Region == "" {
		return nil, errors.New("no region parameter provided")
	}
	if params.Bucket == "" {
		return nil, errors.New("no bucket parameter provided")
	}
	switch params.StorageClass {
	case s3.StorageClassStandard, s3.StorageClassReducedRedundancy, s3.StorageClassStandardIa:
	default:
		return nil, fmt.Errorf("the storageclass parameter must be one of %v, %v or %v", s3.StorageClassStandard, s3.StorageClassReducedRedundancy, s3.StorageClassStandardIa)
	}

	return &params, nil
}

// New constructs a new Driver with the given AWS credentials, region,
// encryption flag, and bucket name.
func New(params DriverParameters) (*Driver, error) {
	awsConfig := aws.NewConfig().
		WithRegion(params.Region).
		WithS3ForcePathStyle(params.PathStyle).
		WithDisableSSL(!params.Secure)

	if params.RegionEndpoint != "" {
		awsConfig.WithEndpoint(params.RegionEndpoint)
	}
	if params.AccessKey != "" || params.SecretKey != "" {
		awsConfig.WithCredentials(credentials.NewStaticCredentials(params.AccessKey, params.SecretKey, params.SessionToken))
	}
	if params.SkipVerify {
		awsConfig.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		})
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create new session with aws config: %w", err)
	}

	log := logrus.WithField("driver", driverName)
	w := newS3Wrapper(
		s3.New(sess),
		withRateLimit(params.MaxRequestsPerSecond, defaultBurst),
		withExponentialBackoff(params.MaxRetries),
		withBackoffNotify(func(err error, t time.Duration) {
			log.WithError(err).WithField("backoff", t.String()).Info("S3 API operation failed, will retry")
		}),
	)

	return &Driver{
		S3:            w,
		Bucket:        params.Bucket,
		Encrypt:       params.Encrypt,
		KeyID:         params.KeyID,
		RootDirectory: params.RootDirectory,
		StorageClass:  params.StorageClass,
		ParallelWalk:  params.ParallelWalk,
	}, nil
}

// Name implements the StorageDriver interface.
func (d *Driver) Name() string {
	return driverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	reader, err := d.Reader(ctx, path, 0)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return ioutil.ReadAll(reader)
}

// PutContent stores the []byte content at a location designated by "path".
func (d *Driver) PutContent(ctx context.Context, path string, contents []byte) error {
	input := &s3.PutObjectInput{
		Bucket:       aws.String(d.Bucket),
		Key:          aws.String(d.s3Path(path)),
		StorageClass: aws.String(d.StorageClass),
		Body:         bytes.NewReader(contents),
	}
	if d.Encrypt {
		if d.KeyID != "" {
			input.ServerSideEncryption = aws.String(s3.ServerSideEncryptionAwsKms)
			input.SSEKMSKeyId = aws.String(d.KeyID)
		} else {
			input.ServerSideEncryption = aws.String(s3.ServerSideEncryptionAes256)
		}
	}

	_, err := d.S3.PutObjectWithContext(ctx, input)
	return parseError(path, err)
}

// Reader retrieves an io.ReadCloser for the content stored at "path" with a
// given byte offset.
func (d *Driver) Reader(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	resp, err := d.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.s3Path(path)),
		Range:  aws.String("bytes=" + fmt.Sprint(offset) + "-"),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == "InvalidRange" {
			return ioutil.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, parseError(path, err)
	}
	return resp.Body, nil
}

// Writer returns a FileWriter which uploads the written content on Commit.
func (d *Driver) Writer(ctx context.Context, path string) (storagedriver.FileWriter, error) {
	if !storagedriver.PathRegexp.MatchString(path) {
		return nil, storagedriver.InvalidPathError{Path: path, DriverName: driverName}
	}
	return &writer{ctx: ctx, driver: d, path: path}, nil
}

// Stat retrieves the FileInfo for the given path, including the current size
// in bytes and the modification time.
func (d *Driver) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	head, err := d.S3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.s3Path(path)),
	})
	if err == nil {
		fi := storagedriver.FileInfoFields{
			Path: path,
			Size: aws.Int64Value(head.ContentLength),
		}
		fi.ModTime = aws.TimeValue(head.LastModified)
		if mtime, ok := metadataMtime(head.Metadata); ok {
			fi.ModTime = mtime
		}
		return storagedriver.FileInfoInternal{FileInfoFields: fi}, nil
	}
	if !isNotFound(err) {
		return nil, parseError(path, err)
	}

	found := false
	err = d.S3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.Bucket),
		Prefix:  aws.String(d.s3Path(path) + "/"),
		MaxKeys: aws.Int64(1),
	}, func(out *s3.ListObjectsV2Output, _ bool) bool {
		found = len(out.Contents) > 0
		return false
	})
	if err != nil {
		return nil, parseError(path, err)
	}
	if !found {
		return nil, storagedriver.PathNotFoundError{Path: path, DriverName: driverName}
	}

	return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{Path: path, IsDir: true}}, nil
}

// List returns a list of the objects that are direct descendants of the
// given path.
func (d *Driver) List(ctx context.Context, opath string) ([]string, error) {
	path := opath
	if path != "/" && !strings.HasSuffix(path, "/") {
		path = path + "/"
	}

	// This is to cover for the cases when the rootDirectory of the driver is
	// either "" or "/". In those cases, there is no root prefix to replace
	// and we must actually add a "/" to all results in order to keep them as
	// valid paths as recognized by storagedriver.PathRegexp
	prefix := ""
	if d.s3Path("") == "" {
		prefix = "/"
	}

	var children []string
	err := d.S3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.Bucket),
		Prefix:    aws.String(d.s3Path(path)),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int64(listMax),
	}, func(out *s3.ListObjectsV2Output, _ bool) bool {
		for _, key := range out.Contents {
			children = append(children, strings.Replace(aws.StringValue(key.Key), d.s3Path(""), prefix, 1))
		}
		for _, commonPrefix := range out.CommonPrefixes {
			p := aws.StringValue(commonPrefix.Prefix)
			children = append(children, strings.Replace(p[0:len(p)-1], d.s3Path(""), prefix, 1))
		}
		return true
	})
	if err != nil {
		return nil, parseError(opath, err)
	}

	if opath != "/" && len(children) == 0 {
		return nil, storagedriver.PathNotFoundError{Path: opath, DriverName: driverName}
	}
	sort.Strings(children)

	return children, nil
}

// Move moves an object stored at sourcePath to destPath, removing the
// original object.
func (d *Driver) Move(ctx context.Context, sourcePath string, destPath string) error {
	if err := d.copy(ctx, sourcePath, destPath, nil); err != nil {
		return err
	}
	return d.deleteKeys(ctx, sourcePath, []string{d.s3Path(sourcePath)})
}

// Chtimes records mtime in the object metadata.
func (d *Driver) Chtimes(ctx context.Context, path string, mtime time.Time) error {
	return d.copy(ctx, path, path, map[string]*string{
		mtimeMetadataKey: aws.String(mtime.UTC().Format(time.RFC3339Nano)),
	})
}

func (d *Driver) copy(ctx context.Context, sourcePath, destPath string, metadata map[string]*string) error {
	input := &s3.CopyObjectInput{
		Bucket:       aws.String(d.Bucket),
		Key:          aws.String(d.s3Path(destPath)),
		StorageClass: aws.String(d.StorageClass),
		CopySource:   aws.String(d.Bucket + "/" + d.s3Path(sourcePath)),
	}
	if metadata != nil {
		input.Metadata = metadata
		input.MetadataDirective = aws.String(s3.MetadataDirectiveReplace)
	}
	if d.Encrypt {
		input.ServerSideEncryption = aws.String(s3.ServerSideEncryptionAes256)
		if d.KeyID != "" {
			input.ServerSideEncryption = aws.String(s3.ServerSideEncryptionAwsKms)
			input.SSEKMSKeyId = aws.String(d.KeyID)
		}
	}

	_, err := d.S3.CopyObjectWithContext(ctx, input)
	return parseError(sourcePath, err)
}

// Delete recursively deletes all objects stored at "path" and its subpaths.
func (d *Driver) Delete(ctx context.Context, path string) error {
	key := d.s3Path(path)

	var keys []string
	err := d.S3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.Bucket),
		Prefix: aws.String(key),
	}, func(out *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range out.Contents {
			k := aws.StringValue(obj.Key)
			// the prefix also matches siblings such as a.jar.sha1 for a.jar
			if k == key || strings.HasPrefix(k, key+"/") {
				keys = append(keys, k)
			}
		}
		return true
	})
	if err != nil {
		return parseError(path, err)
	}
	if len(keys) == 0 {
		return storagedriver.PathNotFoundError{Path: path, DriverName: driverName}
	}

	return d.deleteKeys(ctx, path, keys)
}

func (d *Driver) deleteKeys(ctx context.Context, path string, keys []string) error {
	for len(keys) > 0 {
		n := len(keys)
		if n > deleteMax {
			n = deleteMax
		}

		objects := make([]*s3.ObjectIdentifier, 0, n)
		for _, k := range keys[:n] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(k)})
		}
		keys = keys[n:]

		resp, err := d.S3.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.Bucket),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(false)},
		})
		if err != nil {
			return parseError(path, err)
		}
		if len(resp.Errors) > 0 {
			return storagedriver.Error{
				DriverName: driverName,
				Enclosed:   fmt.Errorf("deleting %s: %s", aws.StringValue(resp.Errors[0].Key), aws.StringValue(resp.Errors[0].Message)),
			}
		}
	}
	return nil
}

// Walk traverses a filesystem defined within driver, starting from the given
// path, calling f on each file.
func (d *Driver) Walk(ctx context.Context, path string, f storagedriver.WalkFn) error {
	if d.ParallelWalk {
		return storagedriver.WalkFallbackParallel(ctx, d, path, f)
	}
	return storagedriver.WalkFallback(ctx, d, path, f)
}

func (d *Driver) s3Path(path string) string {
	return strings.TrimLeft(strings.TrimRight(d.RootDirectory, "/")+path, "/")
}

func metadataMtime(metadata map[string]*string) (time.Time, bool) {
	for k, v := range metadata {
		if !strings.EqualFold(k, mtimeMetadataKey) {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, aws.StringValue(v))
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var awsErr awserr.Error
	return errors.As(err, &awsErr) && (awsErr.Code() == s3.ErrCodeNoSuchKey || awsErr.Code() == "NotFound")
}

func parseError(path string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return storagedriver.PathNotFoundError{Path: path, DriverName: driverName}
	}
	return storagedriver.Error{DriverName: driverName, Enclosed: err}
}

// writer buffers content and uploads it on Commit.
type writer struct {
	ctx       context.Context
	driver    *Driver
	path      string
	buf       bytes.Buffer
	closed    bool
	committed bool
	cancelled bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("already closed")
	} else if w.committed {
		return 0, fmt.Errorf("already committed")
	} else if w.cancelled {
		return 0, fmt.Errorf("already cancelled")
	}
	return w.buf.Write(p)
}

func (w *writer) Size() int64 {
	return int64(w.buf.Len())
}

func (w *writer) Close() error {
	w.closed = true
	return nil
}

func (w *writer) Cancel() error {
	w.cancelled = true
	w.buf.Reset()
	return nil
}

func (w *writer) Commit() error {
	if w.committed {
		return fmt.Errorf("already committed")
	} else if w.cancelled {
		return fmt.Errorf("already cancelled")
	}
	w.committed = true
	return w.driver.PutContent(w.ctx, w.path, w.buf.Bytes())
}
