package filestore

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/yarcoin/marketplace/core"
)

// URLPrefix is where the API serves the stored files from.
const URLPrefix = "/media"

// Local stores files under a directory of the local filesystem.
// Files are renamed to random names; only the extension of the uploaded name is kept.
type Local struct {
	root string
}

var _ core.FileStore = (*Local)(nil) // interface compliance check

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (s *Local) Root() string { return s.root }

// Save writes r to <root>/<category>/<uuid><ext> and returns its URL path.
func (s *Local) Save(ctx context.Context, category, filename string, r io.Reader) (string, error) {
	if category == "" || strings.ContainsAny(category, `/\.`) {
		return "", errors.Errorf("invalid category %q", category)
	}
	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating directory")
	}

	name := uuid.New().String() + strings.ToLower(filepath.Ext(filepath.Base(filename)))
	fp := filepath.Join(dir, name)
	f, err := os.OpenFile(fp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}

	if _, err = io.Copy(f, ctxReader{ctx: ctx, r: r}); err != nil {
		_ = f.Close()
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "closing file")
	}
	return path.Join(URLPrefix, category, name), nil
}

// ctxReader stops copying once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
