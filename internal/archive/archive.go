package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/imamik/dropship/internal/config"
	"github.com/imamik/dropship/internal/util/naming"
)

// ErrNoBucket is returned when the archive configuration names no bucket.
var ErrNoBucket = errors.New("archive bucket is not configured")

// ObjectStore is the subset of S3 the archiver needs. *S3Client satisfies it.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Archiver uploads output directories.
type Archiver struct {
	store  ObjectStore
	bucket string
	prefix string
}

// New returns an archiver writing to cfg's bucket through store.
func New(store ObjectStore, cfg *config.ArchiveConfig) (*Archiver, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	return &Archiver{store: store, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// skipped reports files that must not be uploaded.
func skipped(rel string) bool {
	base := filepath.Base(rel)
	return base == naming.LockFile || base == naming.SessionFile
}

// key returns the object key of a file.
func (a *Archiver) key(runID, rel string) string {
	return path.Join(a.prefix, runID, filepath.ToSlash(rel))
}

// Upload copies every regular file below outDir and returns the number of
// objects written.
func (a *Archiver) Upload(ctx context.Context, outDir, runID string) (int, error) {
	if runID == "" {
		return 0, errors.New("archive: run id is required")
	}
	if err := a.store.CreateBucket(ctx, a.bucket); err != nil {
		return 0, err
	}

	count := 0
	err := filepath.WalkDir(outDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(outDir, p)
		if err != nil {
			return err
		}
		if skipped(rel) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		if err := a.store.PutObject(ctx, a.bucket, a.key(runID, rel), data); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("archive %s: %w", outDir, err)
	}
	return count, nil
}

// Runs returns the run ids archived under the prefix, in key order.
func (a *Archiver) Runs(ctx context.Context) ([]string, error) {
	prefix := a.prefix
	if prefix != "" {
		prefix += "/"
	}
	keys, err := a.store.ListObjects(ctx, a.bucket, prefix)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var runs []string
	for _, k := range keys {
		run, _, ok := strings.Cut(strings.TrimPrefix(k, prefix), "/")
		if !ok || seen[run] {
			continue
		}
		seen[run] = true
		runs = append(runs, run)
	}
	return runs, nil
}
