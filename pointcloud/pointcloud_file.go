package pointcloud

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/bevdet/logging"
)

// NewFromFile returns a pointcloud read in from the given .pcd, .las or ascii .ply file.
func NewFromFile(fn string, logger logging.Logger) (*PointCloud, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		pc, err := ReadPCD(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", fn)
		}
		return pc, nil
	case ".ply":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		pc, err := ReadPLY(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", fn)
		}
		return pc, nil
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// WriteToFile writes the cloud to fn, choosing the format from its extension. PCD files
// are written in binary. The file is written to a temporary name and renamed into place so
// readers never see a partial cloud.
func WriteToFile(cloud *PointCloud, fn string) error {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		tmp := strings.TrimSuffix(fn, filepath.Ext(fn)) + ".tmp.las"
		if err := WriteToLASFile(cloud, tmp); err != nil {
			return multierr.Combine(err, removeIfExists(tmp))
		}
		return os.Rename(tmp, fn)
	case ".pcd":
		tmp := fn + ".tmp"
		//nolint:gosec
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if err := WritePCD(cloud, f, PCDBinary); err != nil {
			return multierr.Combine(err, f.Close(), removeIfExists(tmp))
		}
		if err := f.Close(); err != nil {
			return multierr.Combine(err, removeIfExists(tmp))
		}
		return os.Rename(tmp, fn)
	default:
		return errors.Errorf("do not know how to write file %q", fn)
	}
}

func removeIfExists(fn string) error {
	if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
