package installer

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is a supported package archive layout
type Format string

const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
)

// ErrUnsupportedArchive is returned for content that is not a known archive
var ErrUnsupportedArchive = errors.New("unsupported archive format")

// DetectFormat sniffs the archive format from file content
func DetectFormat(archive string) (Format, error) {
	mtype, err := mimetype.DetectFile(archive)
	if err != nil {
		return "", fmt.Errorf("failed to read archive: %w", err)
	}
	switch {
	case mtype.Is("application/zip"):
		return FormatZip, nil
	case mtype.Is("application/gzip"):
		return FormatTarGz, nil
	case mtype.Is("application/zstd"):
		return FormatTarZst, nil
	case mtype.Is("application/x-tar"):
		return FormatTar, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedArchive, mtype.String())
}

// Extract unpacks archive into dest. When every entry lives under one
// top-level directory that directory is stripped, so files land directly
// in dest. Entries resolving outside dest are rejected.
func Extract(archive, dest string) error {
	format, err := DetectFormat(archive)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	if format == FormatZip {
		err = extractZip(archive, dest)
	} else {
		err = extractTar(archive, dest, format)
	}
	if err != nil {
		return err
	}
	return verifyTree(dest)
}

func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	root := commonRoot(names)

	for _, f := range zr.File {
		rel, ok := stripRoot(f.Name, root)
		if !ok {
			continue
		}
		target, err := safeJoin(dest, rel)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			rc.Close()
			if err != nil {
				return err
			}
			if err := writeSymlink(dest, string(link), target); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			err = writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// tarReader opens archive and wraps it in the decompressor format needs
func tarReader(archive string, format Format) (*tar.Reader, func(), error) {
	file, err := os.Open(archive)
	if err != nil {
		return nil, nil, err
	}

	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("gzip failed: %w", err)
		}
		return tar.NewReader(gz), func() { gz.Close(); file.Close() }, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("zstd failed: %w", err)
		}
		return tar.NewReader(zr), func() { zr.Close(); file.Close() }, nil
	default:
		return tar.NewReader(file), func() { file.Close() }, nil
	}
}

func extractTar(archive, dest string, format Format) error {
	// First pass collects names so the shared root is known before writing
	tr, closeFn, err := tarReader(archive, format)
	if err != nil {
		return err
	}
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			closeFn()
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if isMetaHeader(hdr) {
			continue
		}
		names = append(names, hdr.Name)
	}
	closeFn()
	root := commonRoot(names)

	tr, closeFn, err = tarReader(archive, format)
	if err != nil {
		return err
	}
	defer closeFn()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if isMetaHeader(hdr) {
			continue
		}
		rel, ok := stripRoot(hdr.Name, root)
		if !ok {
			continue
		}
		target, err := safeJoin(dest, rel)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(dest, hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			linkRel, ok := stripRoot(hdr.Linkname, root)
			if !ok {
				return fmt.Errorf("illegal hard link target: %s", hdr.Linkname)
			}
			source, err := safeJoin(dest, linkRel)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return err
			}
		}
	}
}

func isMetaHeader(hdr *tar.Header) bool {
	return hdr.Typeflag == tar.TypeXGlobalHeader || hdr.Typeflag == tar.TypeXHeader
}

// commonRoot returns "<dir>/" when every entry sits under one top-level
// directory, and "" otherwise
func commonRoot(names []string) string {
	root := ""
	nested := false
	for _, name := range names {
		clean := cleanEntry(name)
		if clean == "" || skipEntry(clean) {
			continue
		}
		first, rest, hasRest := strings.Cut(clean, "/")
		if root == "" {
			root = first
		} else if first != root {
			return ""
		}
		if hasRest && rest != "" {
			nested = true
		}
	}
	if root == "" || !nested {
		return ""
	}
	return root + "/"
}

// stripRoot removes root from name. ok is false for entries that carry
// nothing to extract.
func stripRoot(name, root string) (string, bool) {
	clean := cleanEntry(name)
	if clean == "" || skipEntry(clean) {
		return "", false
	}
	if root != "" {
		if clean+"/" == root {
			return "", false
		}
		clean = strings.TrimPrefix(clean, root)
	}
	return clean, clean != ""
}

func cleanEntry(name string) string {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "./")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return ""
	}
	clean := path.Clean(name)
	if clean == "." {
		return ""
	}
	return clean
}

// skipEntry drops resource-fork folders some zip tools add
func skipEntry(clean string) bool {
	return clean == "__MACOSX" || strings.HasPrefix(clean, "__MACOSX/")
}

// safeJoin resolves rel under dest. Entries may not land outside dest nor
// pass through a symlink extracted by an earlier entry.
func safeJoin(dest, rel string) (string, error) {
	cleanDest := filepath.Clean(dest)
	target := filepath.Join(cleanDest, filepath.FromSlash(rel))
	if !within(cleanDest, target) || target == cleanDest {
		return "", fmt.Errorf("illegal file path: %s", rel)
	}

	cur := cleanDest
	for _, part := range strings.Split(strings.TrimPrefix(target, cleanDest+string(os.PathSeparator)), string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", fmt.Errorf("illegal path through symlink: %s", rel)
		}
	}
	return target, nil
}

// within reports whether p is root or lies beneath it
func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeSymlink(dest, link, target string) error {
	resolved := link
	if !filepath.IsAbs(link) {
		resolved = filepath.Join(filepath.Dir(target), link)
	}
	cleanDest := filepath.Clean(dest)
	if !within(cleanDest, filepath.Clean(resolved)) {
		return fmt.Errorf("symlink %s escapes the app directory", strings.TrimPrefix(target, cleanDest+string(os.PathSeparator)))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Symlink(link, target)
}

// verifyTree rejects symlinks whose target resolves outside root
func verifyTree(root string) error {
	cleanRoot := filepath.Clean(root)
	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, cleanRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		link, err := os.Readlink(p)
		if err != nil {
			return err
		}
		resolved := link
		if !filepath.IsAbs(link) {
			resolved = filepath.Join(filepath.Dir(p), link)
		}
		if !within(cleanRoot, filepath.Clean(resolved)) {
			return fmt.Errorf("symlink %s escapes the app directory", strings.TrimPrefix(p, cleanRoot+string(os.PathSeparator)))
		}
		return nil
	})
}
