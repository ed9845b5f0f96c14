package device

import (
	"encoding/json"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"github.com/hybridstore/storage/errors"
)

// manifestName is the file persisted alongside a device's region files so a
// later open can detect a configuration that no longer matches what's on
// disk. The original source left this as
// "TODO(MrCroxx): write and read config to a manifest file for pinning";
// this is that manifest.
const manifestName = "MANIFEST"

type manifest struct {
	Align    int64  `json:"align"`
	FileSize int64  `json:"file_size"`
	Capacity int64  `json:"capacity"`
	Regions  uint32 `json:"regions"`
}

func manifestOf(cfg FsDeviceConfig) manifest {
	return manifest{
		Align:    cfg.Align,
		FileSize: cfg.FileSize,
		Capacity: cfg.Capacity,
		Regions:  cfg.Regions(),
	}
}

// checkManifest reads the directory's existing MANIFEST, if any, and
// rejects cfg if it disagrees; otherwise it writes a fresh one.
func checkManifest(cfg FsDeviceConfig) error {
	path := filepath.Join(cfg.Dir, manifestName)
	want := manifestOf(cfg)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var got manifest
		if jsonErr := json.Unmarshal(data, &got); jsonErr != nil {
			return errors.E(errors.Corrupt, jsonErr, "device: parse MANIFEST")
		}
		if got != want {
			return errors.E(errors.Invalid,
				"device: MANIFEST mismatch, device config changed since the cache directory was created")
		}
		return nil
	case os.IsNotExist(err):
		return writeManifest(cfg.Dir, want)
	default:
		return errors.E(errors.IO, err, "device: read MANIFEST")
	}
}

// writeManifest writes m to dir/MANIFEST atomically, by writing to a
// temporary file in the same directory and renaming it into place,
// mirroring the create-temp-then-rename idiom used for local file writes
// elsewhere in this stack.
func writeManifest(dir string, m manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.E(errors.Invalid, err, "device: marshal MANIFEST")
	}

	tmp, err := os.CreateTemp(dir, manifestName+".tmp")
	if err != nil {
		return errors.E(errors.IO, pkgerrors.Wrap(err, "device: create MANIFEST temp file"))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.E(errors.IO, pkgerrors.Wrap(err, "device: write MANIFEST temp file"))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.E(errors.IO, pkgerrors.Wrap(err, "device: close MANIFEST temp file"))
	}
	if err := os.Rename(tmpName, filepath.Join(dir, manifestName)); err != nil {
		_ = os.Remove(tmpName)
		return errors.E(errors.IO, pkgerrors.Wrap(err, "device: rename MANIFEST into place"))
	}
	return nil
}
