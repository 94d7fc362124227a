package main

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const installPathFile = "install.path"

// Install extracts the package archive into the directory named by
// root/install.path. A missing install.path is not an error.
func Install(root, pkg string, out io.Writer) error {
	raw, err := os.ReadFile(filepath.Join(root, installPathFile))
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "Skipping installation: install.path file not found.")
		fmt.Fprintln(out, `Create a file named "install.path" in the root directory containing the target directory path to enable auto-installation.`)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", installPathFile, err)
	}

	target := strings.TrimSpace(string(raw))
	if target == "" {
		return fmt.Errorf("%s is empty", installPathFile)
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("target directory %q does not exist", target)
	}

	if !filepath.IsAbs(pkg) {
		pkg = filepath.Join(root, pkg)
	}
	fmt.Fprintf(out, "Unzipping %s to %s...\n", filepath.Base(pkg), target)
	n, err := extractZip(pkg, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Installation complete (%d files).\n", n)
	return nil
}

// extractZip unpacks archive into dest, overwriting existing files. Entries
// that would land outside dest are rejected.
func extractZip(archive, dest string) (int, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", archive, err)
	}
	defer r.Close()

	base, err := filepath.Abs(dest)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", dest, err)
	}

	files := 0
	for _, f := range r.File {
		path := filepath.Join(base, f.Name)
		if path != base && !strings.HasPrefix(path, base+string(os.PathSeparator)) {
			return files, fmt.Errorf("illegal file path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return files, fmt.Errorf("create dir %s: %w", path, err)
			}
			continue
		}
		if err := writeZipFile(f, path); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func writeZipFile(f *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s in archive: %w", f.Name, err)
	}
	defer src.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return dst.Close()
}
