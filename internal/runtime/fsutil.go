package runtime

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyPath copies src to dst with docker-cp-like semantics: a src ending in
// "/." pours the directory's contents into dst; a plain directory src lands
// under an existing dst directory or becomes dst when dst is absent; a file
// src lands inside an existing dst directory or at dst itself.
func CopyPath(src, dst string) error {
	srcContents := strings.HasSuffix(src, string(filepath.Separator)+".") || strings.HasSuffix(src, "/.")
	if srcContents {
		src = strings.TrimSuffix(strings.TrimSuffix(src, "."), string(filepath.Separator))
		src = strings.TrimSuffix(src, "/")
	}
	dst = strings.TrimSuffix(strings.TrimSuffix(dst, "."), string(filepath.Separator))
	dst = strings.TrimSuffix(dst, "/")

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copy source %s: %w", src, err)
	}

	if info.IsDir() {
		if !srcContents {
			if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
				dst = filepath.Join(dst, filepath.Base(src))
			}
		}
		return copyTree(src, dst)
	}

	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return copyFile(src, dst, info.Mode())
}

// copyTree recursively copies the directory src to dst.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ReplaceDirWithContents atomically swaps target's contents for those of
// srcDir: the new tree is staged as a sibling, then renamed over the old
// one. On any error the original target is left in place.
func ReplaceDirWithContents(srcDir, target string) error {
	parent := filepath.Dir(target)
	staging, err := os.MkdirTemp(parent, ".staging-*")
	if err != nil {
		return fmt.Errorf("stage replacement for %s: %w", target, err)
	}
	defer os.RemoveAll(staging)

	staged := filepath.Join(staging, "tree")
	if err := copyTree(srcDir, staged); err != nil {
		return fmt.Errorf("stage replacement for %s: %w", target, err)
	}

	old := filepath.Join(staging, "old")
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, old); err != nil {
			return fmt.Errorf("displace %s: %w", target, err)
		}
	}
	if err := os.Rename(staged, target); err != nil {
		// roll the original back
		if _, statErr := os.Stat(old); statErr == nil {
			_ = os.Rename(old, target)
		}
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}
