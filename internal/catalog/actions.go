package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/cibox/internal/command"
	"github.com/Iron-Ham/cibox/internal/container"
	"github.com/Iron-Ham/cibox/internal/pipeline"
)

// succeeds returns a Check that passes when argv exits zero in the container.
func (c *Catalog) succeeds(argv ...string) Check {
	return func(ctx context.Context, h container.Handle) (bool, error) {
		code, err := h.Run(ctx, argv)
		if err != nil {
			// The program could not be started at all: treat it as absent.
			c.logger.WithContainer(h.Name()).Debug("check could not run", "program", argv[0], "error", err.Error())
			return false, nil
		}
		return code == 0, nil
	}
}

// hostPath maps an absolute path inside the container to the host path of
// the same file under the container's rootfs.
func hostPath(ctx context.Context, h container.Handle, path string) (string, error) {
	root, err := h.RootFS(ctx)
	if err != nil {
		return "", fmt.Errorf("locating rootfs of %s: %w", h.Name(), err)
	}
	return filepath.Join(root, path), nil
}

// appendToRootFS appends text to a file inside the container, creating it
// when missing.
func (c *Catalog) appendToRootFS(path, text string) pipeline.LocalFunc {
	return func(ctx context.Context, h container.Handle) (int, error) {
		target, err := hostPath(ctx, h, path)
		if err != nil {
			return 1, err
		}
		f, err := c.fs.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 1, fmt.Errorf("opening %s: %w", path, err)
		}
		if _, err := f.WriteString(text); err != nil {
			_ = f.Close()
			return 1, fmt.Errorf("writing %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return 1, fmt.Errorf("closing %s: %w", path, err)
		}
		return 0, nil
	}
}

// copySecrets copies the host directory src to dst inside the container.
func (c *Catalog) copySecrets(src, dst string) pipeline.LocalFunc {
	return func(ctx context.Context, h container.Handle) (int, error) {
		target, err := hostPath(ctx, h, dst)
		if err != nil {
			return 1, err
		}
		if err := CopyTree(c.fs, src, target); err != nil {
			return 1, err
		}
		return 0, nil
	}
}

// CopyTree recursively copies the directory src to dst on fs, keeping file
// modes.
func CopyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyFile(fs, path, target, info.Mode().Perm())
	})
}

func copyFile(fs afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// inCheckout returns a local action running argv on the host with the
// checkout directory, seen through the rootfs, as working directory.
func (c *Catalog) inCheckout(argv ...string) pipeline.LocalFunc {
	return func(ctx context.Context, h container.Handle) (int, error) {
		dir, err := hostPath(ctx, h, c.settings.CheckoutDir)
		if err != nil {
			return 1, err
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		cmd.Stdout = c.stdout
		cmd.Stderr = c.stderr
		return command.ExitCode(c.runner.Run(cmd))
	}
}
