// Package storage exposes the two sound volumes: the internal volume that
// holds the init sound and the external card that holds the bank files.
package storage

import (
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/micro-nova/musicbox-go/internal/models"
)

// Volume is a directory of sound files.
type Volume struct {
	name         string
	root         string
	requireMount bool
	mounted      bool
}

// New creates a volume rooted at root. When requireMount is set, Mount also
// requires root to be a filesystem mount point, which is how an absent card
// shows up on Linux: the mount directory exists but nothing is mounted on it.
func New(name, root string, requireMount bool) *Volume {
	return &Volume{name: name, root: root, requireMount: requireMount}
}

// Name returns the volume name used in logs.
func (v *Volume) Name() string { return v.name }

// Root returns the directory the volume is rooted at.
func (v *Volume) Root() string { return v.root }

// Mount checks the volume is usable. Failures are marked ErrStorageMount.
func (v *Volume) Mount() error {
	v.mounted = false
	info, err := os.Stat(v.root)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "storage: %s mount", v.name), models.ErrStorageMount)
	}
	if !info.IsDir() {
		return errors.Mark(errors.Newf("storage: %s mount: %s is not a directory", v.name, v.root), models.ErrStorageMount)
	}
	if err := unix.Access(v.root, unix.R_OK|unix.X_OK); err != nil {
		return errors.Mark(errors.Wrapf(err, "storage: %s mount: %s not readable", v.name, v.root), models.ErrStorageMount)
	}
	if v.requireMount {
		ok, err := isMountPoint(v.root)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "storage: %s mount", v.name), models.ErrStorageMount)
		}
		if !ok {
			return errors.Mark(errors.Newf("storage: %s mount: no card attached at %s", v.name, v.root), models.ErrStorageMount)
		}
	}
	v.mounted = true
	slog.Info("storage: volume mounted", "volume", v.name, "root", v.root)
	return nil
}

// Open opens a file by its absolute name on the volume, e.g. "/word2.mp3".
func (v *Volume) Open(name string) (io.ReadCloser, error) {
	if !v.mounted {
		return nil, errors.Wrapf(models.ErrNotMounted, "storage: %s", v.name)
	}
	f, err := os.Open(v.path(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// path maps a volume file name onto the host filesystem. Cleaning the name
// as an absolute path keeps ".." from escaping the root.
func (v *Volume) path(name string) string {
	return filepath.Join(v.root, filepath.FromSlash(path.Clean("/"+name)))
}

// isMountPoint reports whether dir is on a different device than its parent,
// or is the filesystem root.
func isMountPoint(dir string) (bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	var st, parent unix.Stat_t
	if err := unix.Stat(abs, &st); err != nil {
		return false, err
	}
	if err := unix.Stat(filepath.Dir(abs), &parent); err != nil {
		return false, err
	}
	return st.Dev != parent.Dev || st.Ino == parent.Ino, nil
}
