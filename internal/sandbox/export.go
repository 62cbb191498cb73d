package sandbox

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/errors"
)

// Export stops the container and writes its root filesystem to path as a
// gzip tarball. Runtimes that can stream an export are asked to; otherwise
// the rootfs directory is walked on the host.
func (s *Sandbox) Export(ctx context.Context, path string) error {
	st, err := s.ctrl.Status(ctx, s.handle)
	if err != nil {
		return err
	}
	if !st.Exists {
		return errors.NewContainerError(s.Name(), "export", errors.ErrNotFound)
	}
	if err := s.ctrl.Stop(ctx, s.handle); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "Exporting container %s to %s ...\n", s.Name(), path)
	tmp := path + ".partial"
	if err := s.writeArchive(ctx, tmp); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.NewContainerError(s.Name(), "export", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.NewContainerError(s.Name(), "export", err)
	}
	s.status("Exported container %s", s.Name())
	return nil
}

func (s *Sandbox) writeArchive(ctx context.Context, path string) error {
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)

	if exp, ok := s.handle.(container.Exporter); ok {
		err = copyExport(ctx, exp, gz)
	} else {
		var root string
		if root, err = s.handle.RootFS(ctx); err == nil {
			err = writeTar(ctx, s.fs, root, gz)
		}
	}

	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func copyExport(ctx context.Context, exp container.Exporter, w io.Writer) error {
	rc, err := exp.Export(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	_, err = io.Copy(w, rc)
	return err
}

// writeTar archives the tree under root with paths relative to it.
func writeTar(ctx context.Context, fs afero.Fs, root string, w io.Writer) error {
	tw := tar.NewWriter(w)
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			lr, ok := fs.(afero.LinkReader)
			if !ok {
				return nil
			}
			if link, err = lr.ReadlinkIfPossible(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := fs.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}
