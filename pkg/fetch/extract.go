package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ErrUnsafePath marks an archive entry that would be written outside the destination.
var ErrUnsafePath = errors.New("archive entry escapes destination")

type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatTarGz
	formatTarBz2
	formatTarXz
	formatTarZst
	formatTar
	formatZip
)

var formatSuffixes = []struct {
	suffix string
	format archiveFormat
}{
	{".tar.gz", formatTarGz},
	{".tgz", formatTarGz},
	{".tar.bz2", formatTarBz2},
	{".tbz2", formatTarBz2},
	{".tar.xz", formatTarXz},
	{".txz", formatTarXz},
	{".tar.zst", formatTarZst},
	{".tar", formatTar},
	{".zip", formatZip},
}

func detectFormat(name string) archiveFormat {
	name = strings.ToLower(name)
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	for _, s := range formatSuffixes {
		if strings.HasSuffix(name, s.suffix) {
			return s.format
		}
	}
	return formatUnknown
}

// ArchiveName returns the file name part of a download url.
func ArchiveName(rawURL string) string {
	name := rawURL
	if idx := strings.IndexAny(name, "?#"); idx >= 0 {
		name = name[:idx]
	}
	return name[strings.LastIndex(name, "/")+1:]
}

// Extract unpacks archive into dest, choosing the format from name. When the
// archive holds a single top-level directory, the returned path points at
// that directory instead of dest.
//
// Every write goes through an os.Root opened on dest, and entries whose
// parent directories include a symlink are rejected, so links created by
// earlier entries cannot redirect later ones outside dest.
func Extract(archive, name, dest string) (string, error) {
	format := detectFormat(name)
	if format == formatUnknown {
		return "", fmt.Errorf("unsupported archive format: %s", name)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", err
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return "", err
	}
	defer root.Close()

	x := &extractor{dest: dest, root: root}
	if format == formatZip {
		err = x.unzip(archive)
	} else {
		err = x.untar(archive, format)
	}
	if err != nil {
		return "", err
	}
	return stripSingleRoot(dest)
}

func stripSingleRoot(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dest, entries[0].Name()), nil
	}
	return dest, nil
}

func decompressor(r io.Reader, format archiveFormat) (io.Reader, func(), error) {
	switch format {
	case formatTarGz:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gzr, func() { gzr.Close() }, nil
	case formatTarBz2:
		return bzip2.NewReader(r), func() {}, nil
	case formatTarXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xzr, func() {}, nil
	case formatTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}

type extractor struct {
	dest string
	root *os.Root
}

func (x *extractor) untar(src string, format archiveFormat) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closeFn, err := decompressor(f, format)
	if err != nil {
		return err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		rel, err := x.entryPath(header.Name)
		if err != nil {
			return err
		}
		if rel == "." {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := x.root.MkdirAll(rel, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.writeFile(rel, tr, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := x.symlink(rel, header.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			if err := x.hardlink(rel, header.Linkname); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *extractor) unzip(src string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		rel, err := x.entryPath(f.Name)
		if err != nil {
			return err
		}
		if rel == "." {
			continue
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := x.root.MkdirAll(rel, 0755); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			rc.Close()
			if err != nil {
				return err
			}
			if err := x.symlink(rel, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			err = x.writeFile(rel, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// entryPath returns name relative to dest, rejecting names that leave it
// lexically or pass through a symlink already extracted.
func (x *extractor) entryPath(name string) (string, error) {
	target := filepath.Join(x.dest, filepath.FromSlash(name))
	if !within(x.dest, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	rel, err := filepath.Rel(x.dest, target)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if err := x.checkParents(rel); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnsafePath, name, err)
	}
	return rel, nil
}

func (x *extractor) checkParents(rel string) error {
	dir := filepath.Dir(rel)
	if dir == "." {
		return nil
	}
	parts := strings.Split(dir, string(filepath.Separator))
	for i := range parts {
		p := filepath.Join(parts[:i+1]...)
		info, err := x.root.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("parent %s is a symlink", p)
		}
	}
	return nil
}

func (x *extractor) writeFile(rel string, r io.Reader, perm os.FileMode) error {
	if err := x.root.MkdirAll(filepath.Dir(rel), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	// Never write through a link left by an earlier entry.
	if info, err := x.root.Lstat(rel); err == nil && !info.Mode().IsRegular() {
		if err := x.root.Remove(rel); err != nil {
			return err
		}
	}
	out, err := x.root.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile applies the umask; restore the execute bits explicitly.
	if perm&0111 != 0 {
		return x.root.Chmod(rel, perm)
	}
	return nil
}

func (x *extractor) symlink(rel, link string) error {
	if filepath.IsAbs(link) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, rel, link)
	}
	resolved := filepath.Join(x.dest, filepath.Dir(rel), filepath.FromSlash(link))
	if !within(x.dest, resolved) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, rel, link)
	}
	if err := x.root.MkdirAll(filepath.Dir(rel), 0755); err != nil {
		return err
	}
	_ = x.root.Remove(rel)
	return x.root.Symlink(link, rel)
}

func (x *extractor) hardlink(rel, linkname string) error {
	source, err := x.entryPath(linkname)
	if err != nil {
		return err
	}
	info, err := x.root.Lstat(source)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: hard link %s -> %s is not a regular file", ErrUnsafePath, rel, linkname)
	}
	if err := x.root.MkdirAll(filepath.Dir(rel), 0755); err != nil {
		return err
	}
	_ = x.root.Remove(rel)
	return x.root.Link(source, rel)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
