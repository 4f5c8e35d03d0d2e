// archive.go
//
// An industrial shop operations backend with versioned database backups
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of shopdb.
// shopdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// shopdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with shopdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/localnerve/shopdb/internal/fsutil"
	"github.com/localnerve/shopdb/internal/types"
)

// ArchiveTransfer moves snapshots in and out of the service as zip files.
type ArchiveTransfer struct {
	engine *BackupEngine
}

// NewArchiveTransfer returns a transfer bound to engine's backup root and
// live registry.
func NewArchiveTransfer(engine *BackupEngine) *ArchiveTransfer {
	return &ArchiveTransfer{engine: engine}
}

// SnapshotExport is a snapshot ready to be streamed as a zip archive. It
// holds open handles on the version's files, so pruning or rotation while
// it streams does not affect the archive.
type SnapshotExport struct {
	VersionName string
	Files       []string

	handles []*os.File
}

// FileName is the attachment name offered to clients.
func (x *SnapshotExport) FileName() string {
	return x.VersionName + ".zip"
}

// Export resolves version for download and opens its files. The archive
// itself is built while it is written, so no staged copy ever touches the
// disk, and no engine lock is held while it streams.
func (t *ArchiveTransfer) Export(version string) (*SnapshotExport, error) {
	e := t.engine
	e.mu.RLock()
	defer e.mu.RUnlock()

	dir, err := e.versionPath(version)
	if err != nil {
		return nil, err
	}
	files, err := e.snapshotFiles(dir)
	if err != nil {
		return nil, types.Maintenance("export", err)
	}

	x := &SnapshotExport{VersionName: version}
	for _, file := range files {
		if e.cfg.IsProtectedFile(file) {
			continue
		}
		f, err := os.Open(filepath.Join(dir, file))
		if err != nil {
			x.Close()
			return nil, types.Maintenance("export", err)
		}
		x.Files = append(x.Files, file)
		x.handles = append(x.handles, f)
	}
	return x, nil
}

// WriteTo streams the archive to w and closes the export.
func (x *SnapshotExport) WriteTo(w io.Writer) (int64, error) {
	defer x.Close()

	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for i, file := range x.Files {
		if err := addZipFile(zw, x.handles[i], file); err != nil {
			return cw.n, types.Maintenance("export", err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, types.Maintenance("export", err)
	}
	return cw.n, nil
}

// Close releases the file handles of an export that is not written.
func (x *SnapshotExport) Close() error {
	var first error
	for _, f := range x.handles {
		if err := f.Close(); err != nil && first == nil && !errors.Is(err, os.ErrClosed) {
			first = err
		}
	}
	return first
}

func addZipFile(zw *zip.Writer, f *os.File, name string) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Import replaces live collection files with the entries of an uploaded
// zip archive. Every entry name is checked before anything is written: a
// single entry that is nested, absolute or climbs out of the store rejects
// the whole archive. Protected and unknown entries are skipped.
func (t *ArchiveTransfer) Import(r io.ReaderAt, size int64) (*RestoreResult, error) {
	e := t.engine
	limit := e.cfg.MaxImportBytes

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable zip archive", types.ErrValidation)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	var files []string
	for _, f := range zr.File {
		name := f.Name
		if !isPlainFileName(name) || f.FileInfo().IsDir() {
			return nil, fmt.Errorf("%w: archive entry %q is not a plain file name", types.ErrValidation, name)
		}
		if _, dup := entries[name]; dup {
			return nil, fmt.Errorf("%w: archive entry %q appears twice", types.ErrValidation, name)
		}
		entries[name] = f

		if e.cfg.IsProtectedFile(name) {
			log.Printf("Archive import skipped protected entry %s", name)
			continue
		}
		if _, ok := e.registry.CollectionForFile(name); !ok {
			log.Printf("Archive import skipped unknown entry %s", name)
			continue
		}
		if limit > 0 && f.UncompressedSize64 > uint64(limit) {
			return nil, fmt.Errorf("%w: archive entry %q is larger than %d bytes", types.ErrValidation, name, limit)
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: archive holds no %s collection files", types.ErrValidation, e.registry.Engine().Name())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.replaceLive("archive", files, func(file, dst string) error {
		rc, err := entries[file].Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		if limit > 0 {
			_, err = fsutil.WriteFileAtomicLimit(dst, rc, limit)
		} else {
			err = fsutil.WriteFileAtomic(dst, rc)
		}
		return err
	})
	if err != nil {
		maintenanceFailuresTotal.WithLabelValues("import").Inc()
		log.Printf("Archive import failed: %v", err)
		return nil, types.Maintenance("import", err)
	}
	restoresTotal.WithLabelValues("archive").Inc()
	return result, nil
}
