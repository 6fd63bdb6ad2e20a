package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Scheme prefixes object-store locations, e.g. s3://bucket/prefix.
const S3Scheme = "s3://"

var _ Provider = (*S3Provider)(nil)

// s3API is the subset of the S3 client the provider calls.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Provider exposes a bucket prefix as a Provider. Keys ending in "/" and
// shared key prefixes are reported as directories.
type S3Provider struct {
	client   s3API
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// IsS3URL reports whether location uses the s3:// scheme.
func IsS3URL(location string) bool {
	return strings.HasPrefix(location, S3Scheme)
}

// ParseS3URL splits s3://bucket/prefix into bucket and prefix.
func ParseS3URL(location string) (bucket, prefix string, err error) {
	if !IsS3URL(location) {
		return "", "", fmt.Errorf("not an s3 url: %q", location)
	}
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(location, S3Scheme), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 url %q has no bucket", location)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewS3Provider creates an S3Provider using the default AWS credential chain.
func NewS3Provider(ctx context.Context, bucket string, prefix string) (*S3Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Provider{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// buildKey maps a provider path onto an object key under the prefix.
// "." and "" both address the prefix itself.
func (p *S3Provider) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if subPath == "." {
		subPath = ""
	}
	if p.prefix == "" {
		return subPath
	}
	return strings.TrimPrefix(path.Join(p.prefix, subPath), "/")
}

// isMissingObject reports whether err is S3's answer for an absent key.
func isMissingObject(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

// Stat returns the FileInfo for the given path. A key that is neither an
// object nor a prefix of other objects is ErrNotFound.
func (p *S3Provider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	if key != "" {
		head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		switch {
		case err == nil:
			return &staticFileInfo{
				name:    path.Base(key),
				size:    aws.ToInt64(head.ContentLength),
				isDir:   strings.HasSuffix(key, "/"),
				modTime: aws.ToTime(head.LastModified),
			}, nil
		case !isMissingObject(err):
			return nil, fmt.Errorf("stat %q: %w", pth, err)
		}
	}

	dirPrefix := ""
	if key != "" {
		dirPrefix = strings.TrimSuffix(key, "/") + "/"
	}
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(dirPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", pth, err)
	}
	if len(out.Contents) > 0 || len(out.CommonPrefixes) > 0 {
		return &staticFileInfo{name: path.Base(key), isDir: true}, nil
	}

	return nil, fmt.Errorf("stat s3://%s/%s: %w", p.bucket, key, ErrNotFound)
}

// List returns the contents of the given directory sorted by key.
func (p *S3Provider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	dirPrefix := p.buildKey(pth)
	if dirPrefix != "" && !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}

	var infos []FileInfo
	var token *string
	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(dirPrefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", pth, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), dirPrefix), "/")
			infos = append(infos, &staticFileInfo{name: name, isDir: true})
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dirPrefix)
			if name == "" {
				continue // the directory marker itself
			}
			isDir := strings.HasSuffix(name, "/")
			infos = append(infos, &staticFileInfo{
				name:    strings.TrimSuffix(name, "/"),
				size:    aws.ToInt64(obj.Size),
				isDir:   isDir,
				modTime: aws.ToTime(obj.LastModified),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	if len(infos) == 0 && dirPrefix != "" {
		return nil, fmt.Errorf("list s3://%s/%s: %w", p.bucket, dirPrefix, ErrNotFound)
	}
	return infos, nil
}

// OpenRead opens a file for streaming reads.
func (p *S3Provider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.buildKey(pth)),
	})
	if err != nil {
		if isMissingObject(err) {
			return nil, fmt.Errorf("open %q: %w", pth, ErrNotFound)
		}
		return nil, fmt.Errorf("open %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite streams an upload through the multipart uploader. The object's
// LastModified is set by S3 at upload time, which is always at or after the
// source mtime, so uploaded copies read as up to date on the next run.
func (p *S3Provider) OpenWrite(ctx context.Context, pth string, metadata FileInfo) (io.WriteCloser, error) {
	key := p.buildKey(pth)

	if metadata != nil && metadata.IsDir() {
		if !strings.HasSuffix(key, "/") {
			key += "/"
		}
		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader(""),
		})
		if err != nil {
			return nil, fmt.Errorf("write directory marker %q: %w", key, err)
		}
		return nopWriteCloser{}, nil
	}

	if p.uploader == nil {
		return nil, fmt.Errorf("write %q: provider has no uploader", key)
	}

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		errCh <- err
	}()

	return &asyncS3Writer{pw: pw, errCh: errCh}, nil
}

type asyncS3Writer struct {
	pw    *io.PipeWriter
	errCh <-chan error
}

func (w *asyncS3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close finishes the upload and waits for S3 to acknowledge it.
func (w *asyncS3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	if err := <-w.errCh; err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }
