// Package archive keeps a copy of every uploaded order form.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

// Drivers selectable in ArchiveConfig.
const (
	DriverNone = "none"
	DriverFS   = "fs"
	DriverS3   = "s3"
)

const spreadsheetType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Store archives order form files under opaque keys.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Driver() string
}

// New opens the store selected by cfg.Driver. The none driver discards uploads.
func New(ctx context.Context, cfg domain.ArchiveConfig, logger *logrus.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", DriverNone:
		store = Discard{}
	case DriverFS:
		store, err = NewFSStore(cfg.Root)
	case DriverS3:
		store, err = OpenS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s archive: %w", cfg.Driver, err)
	}
	if logger != nil {
		logger.WithField("driver", store.Driver()).Info("Order form archive ready")
	}
	return store, nil
}

// Key builds a unique archive key for an uploaded file: orderforms/<date>/<uuid>-<name>.
func Key(filename string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "orderform.xlsx"
	}
	return path.Join("orderforms", now.UTC().Format("2006/01/02"), uuid.NewString()+"-"+name)
}

// Save archives an order form under a fresh key and returns the key.
func Save(ctx context.Context, store Store, filename string, body io.Reader) (string, error) {
	key := Key(filename, time.Now())
	if err := store.Put(ctx, key, body, spreadsheetType); err != nil {
		return "", fmt.Errorf("archiving %s: %w", filename, err)
	}
	return key, nil
}

// Discard is the archive used when archiving is switched off.
type Discard struct{}

func (Discard) Put(_ context.Context, _ string, body io.Reader, _ string) error {
	_, err := io.Copy(io.Discard, body)
	return err
}

func (Discard) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("archive key %s: %w", key, domain.ErrNotFound)
}

func (Discard) Driver() string { return DriverNone }
