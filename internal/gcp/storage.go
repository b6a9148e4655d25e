package gcp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	uploadRetries        = 4
	uploadInitialBackoff = 1 * time.Second
	uploadAttemptTimeout = 50 * time.Second
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvDuration reads a duration such as "90s". Unset means fallback.
func GetEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "%s is not a duration", key)
	}
	return d, nil
}

// GetEnvFloat reads a float. Unset means fallback.
func GetEnvFloat(key string, fallback float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s is not a number", key)
	}
	return v, nil
}

// IsPreconditionFailed reports whether err is a GCS 412, which for a
// DoesNotExist write means the object is already there.
func IsPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// UploadFileAtomically copies localPath to objectName only if the object does
// not exist yet, attaching metadata to the new object. An existing object is
// not an error: created is false and the caller decides whether it matches.
// Transient failures are retried with exponential backoff.
func UploadFileAtomically(ctx context.Context, bucket *storage.BucketHandle, localPath, objectName string, metadata map[string]string) (created bool, err error) {
	backoff := uploadInitialBackoff
	var lastErr error

	for attempt := 1; attempt <= uploadRetries; attempt++ {
		err := uploadOnce(ctx, bucket, localPath, objectName, metadata)
		switch {
		case err == nil:
			return true, nil
		case IsPreconditionFailed(err):
			slog.Info("Object already exists. Skipping upload.", "gcsObject", objectName)
			return false, nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", objectName,
			"attempt", attempt,
			"maxRetries", uploadRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", objectName, "error", ctx.Err())
			return false, ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", objectName, "error", lastErr)
	return false, errors.Wrapf(lastErr, "upload for %s failed after all retries", objectName)
}

func uploadOnce(ctx context.Context, bucket *storage.BucketHandle, localPath, objectName string, metadata map[string]string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "could not open local file %s", localPath)
	}
	defer f.Close()

	writeCtx, cancel := context.WithTimeout(ctx, uploadAttemptTimeout)
	defer cancel()

	w := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	w.ContentType = "application/pdf"
	w.Metadata = metadata
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "io.Copy to GCS failed")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "failed to close GCS writer (finalize upload)")
	}
	return nil
}

// ObjectMetadata returns the custom metadata of an existing object.
func ObjectMetadata(ctx context.Context, bucket *storage.BucketHandle, objectName string) (map[string]string, error) {
	attrs, err := bucket.Object(objectName).Attrs(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read attributes of %s", objectName)
	}
	return attrs.Metadata, nil
}

// DownloadObject streams gs://bucket/object into destPath.
func DownloadObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to get GCS object reader for gs://%s/%s", bucket, object)
	}
	defer r.Close()
	local, err := os.Create(destPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file at %s", destPath)
	}
	defer local.Close()
	if _, err := io.Copy(local, r); err != nil {
		return errors.Wrap(err, "failed to copy GCS object to local file")
	}
	return nil
}

// ListObjects returns the object names under prefix accepted by keep, sorted
// by name.
func ListObjects(ctx context.Context, client *storage.Client, bucket, prefix string, keep func(name string) bool) ([]string, error) {
	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list gs://%s/%s", bucket, prefix)
		}
		if keep == nil || keep(attrs.Name) {
			names = append(names, attrs.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
