package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

const genericMIME = "application/octet-stream"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// Store keeps uploaded documents in a single directory on local disk.
type Store struct {
	dir string
	log *zap.Logger
	now func() time.Time
}

// New creates a Store rooted at dir.
func New(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log.Named("filestore"), now: utils.Now}
}

// Dir returns the upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDir creates the upload directory if it does not exist.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create upload dir %s: %w", s.dir, err)
	}
	return nil
}

// Path returns the on-disk path of a stored file.
func (s *Store) Path(storedAs string) string {
	return filepath.Join(s.dir, filepath.Base(storedAs))
}

// StorageName builds "<safe base>_<unix millis><ext>" for an uploaded file name.
func StorageName(originalName string, at time.Time) string {
	name := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	if name == "." || name == "/" {
		name = ""
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	ext = unsafeChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "_")
	if ext != "" {
		ext = "." + ext
	}
	safeBase := unsafeChars.ReplaceAllString(base, "_")
	if safeBase == "" {
		safeBase = "file"
	}
	return safeBase + "_" + strconv.FormatInt(at.UnixMilli(), 10) + ext
}

// Save writes r to disk under a generated name and returns its descriptor.
// Content longer than maxBytes (when > 0) is rejected and nothing is kept.
// declaredMIME is trusted unless it is empty or generic, in which case the
// content is sniffed.
func (s *Store) Save(originalName, declaredMIME string, r io.Reader, maxBytes int64) (model.FileDescriptor, error) {
	f, storedAs, err := s.create(StorageName(originalName, s.now()))
	if err != nil {
		return model.FileDescriptor{}, err
	}
	path := f.Name()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return model.FileDescriptor{}, fmt.Errorf("write %s: %w", storedAs, errors.Join(copyErr, closeErr))
	}
	if maxBytes > 0 && written > maxBytes {
		_ = os.Remove(path)
		return model.FileDescriptor{}, fmt.Errorf("%w: file %q exceeds %s", apperrors.ErrValidation, originalName, utils.ByteCountSI(maxBytes))
	}

	mimeType := strings.TrimSpace(strings.SplitN(declaredMIME, ";", 2)[0])
	if mimeType == "" || mimeType == genericMIME {
		if detected, err := mimetype.DetectFile(path); err == nil {
			mimeType = detected.String()
		} else {
			s.log.Warn("MIME detection failed", zap.String("stored_as", storedAs), zap.Error(err))
			mimeType = genericMIME
		}
	}

	s.log.Debug("Stored upload",
		zap.String("stored_as", storedAs),
		zap.String("mime_type", mimeType),
		zap.String("size", utils.ByteCountSI(written)),
	)

	return model.FileDescriptor{
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         written,
		StoredAs:     storedAs,
		Path:         path,
	}, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(storedAs string) (*os.File, error) {
	f, err := os.Open(s.Path(storedAs))
	if err != nil {
		return nil, fmt.Errorf("open stored file %s: %w", storedAs, err)
	}
	return f, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(storedAs string) error {
	if err := os.Remove(s.Path(storedAs)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stored file %s: %w", storedAs, err)
	}
	return nil
}

// create opens a new file exclusively, adding a numeric suffix on collision.
func (s *Store) create(name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; i <= 100; i++ {
		f, err := os.OpenFile(filepath.Join(s.dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	return nil, "", fmt.Errorf("create %s: too many name collisions", name)
}
