// backup.go
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
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/database"
	"github.com/localnerve/shopdb/internal/fsutil"
	"github.com/localnerve/shopdb/internal/types"
	"golang.org/x/sync/errgroup"
)

const (
	versionWidth  = 3
	stagingPrefix = ".staging-"
	incomingMark  = ".incoming-"
	displacedMark = ".displaced-"
	statWorkers   = 8
)

// SnapshotResult describes a completed CreateSnapshot.
type SnapshotResult struct {
	VersionName    string   `json:"versionName"`
	TotalKept      int      `json:"totalKept"`
	ActiveVersions []string `json:"activeVersions"`
}

// SnapshotInfo is one row of the snapshot listing.
type SnapshotInfo struct {
	VersionName   string    `json:"versionName"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	FileCount     int       `json:"fileCount"`
	SizeInBytes   int64     `json:"sizeInBytes"`
	SizeFormatted string    `json:"sizeFormatted"`
	Files         []string  `json:"files"`
}

// SnapshotFile is the inspection view of one file inside a snapshot.
type SnapshotFile struct {
	VersionName string `json:"versionName"`
	FileName    string `json:"fileName"`
	*database.FileContents
}

// RestoreResult reports which live files were replaced.
type RestoreResult struct {
	Source     string   `json:"source"`
	Files      []string `json:"files"`
	Restarting bool     `json:"restarting"`
}

type versionDir struct {
	Name   string
	Number int
}

// BackupEngine creates, lists, inspects, restores and prunes versioned
// snapshots of the live collection files. Every operation that changes the
// backup root or replaces live files holds mu exclusively; listing and
// inspection hold it shared.
type BackupEngine struct {
	cfg       *config.Config
	registry  *database.Registry
	restarter Restarter

	mu sync.RWMutex
}

// NewBackupEngine wires a backup engine to the live registry.
func NewBackupEngine(cfg *config.Config, registry *database.Registry, restarter Restarter) *BackupEngine {
	return &BackupEngine{cfg: cfg, registry: registry, restarter: restarter}
}

// Config returns the settings the engine was built with.
func (e *BackupEngine) Config() *config.Config {
	return e.cfg
}

// FormatVersion renders the directory name for version n. The width is a
// minimum; numbers past 999 widen the field.
func FormatVersion(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, versionWidth, n)
}

// ParseVersion returns the number encoded in name, which must be the prefix
// followed by decimal digits only.
func ParseVersion(prefix, name string) (int, bool) {
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	suffix := name[len(prefix):]
	if suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// scanVersions returns every version directory, highest number first.
func (e *BackupEngine) scanVersions() ([]versionDir, error) {
	entries, err := os.ReadDir(e.cfg.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var versions []versionDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if n, ok := ParseVersion(e.cfg.BackupPrefix, entry.Name()); ok {
			versions = append(versions, versionDir{Name: entry.Name(), Number: n})
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		if versions[i].Number != versions[j].Number {
			return versions[i].Number > versions[j].Number
		}
		return versions[i].Name > versions[j].Name
	})
	return versions, nil
}

// versionPath resolves a caller supplied version name. Anything that is not
// an existing, well formed version directory is reported as not found.
func (e *BackupEngine) versionPath(version string) (string, error) {
	if _, ok := ParseVersion(e.cfg.BackupPrefix, version); !ok {
		return "", fmt.Errorf("backup version %q: %w", version, types.ErrNotFound)
	}
	dir := filepath.Join(e.cfg.BackupDir, version)
	if !fsutil.IsDir(dir) {
		return "", fmt.Errorf("backup version %q: %w", version, types.ErrNotFound)
	}
	return dir, nil
}

// snapshotFiles lists the non-protected regular files of a version directory.
func (e *BackupEngine) snapshotFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || e.cfg.IsProtectedFile(name) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// CreateSnapshot copies every non-protected live collection file into a new
// version directory and rotates the backup root down to MaxBackups.
func (e *BackupEngine) CreateSnapshot(ctx context.Context) (*SnapshotResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	result, err := e.createSnapshot(ctx)
	if err != nil {
		maintenanceFailuresTotal.WithLabelValues("snapshot").Inc()
		log.Printf("Snapshot failed: %v", err)
		return nil, err
	}
	snapshotsCreatedTotal.Inc()
	snapshotDurationSeconds.Observe(time.Since(start).Seconds())
	log.Printf("Snapshot %s created, keeping %d versions", result.VersionName, result.TotalKept)
	return result, nil
}

func (e *BackupEngine) createSnapshot(ctx context.Context) (*SnapshotResult, error) {
	root := e.cfg.BackupDir
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, types.Maintenance("create backup root", err)
	}

	versions, err := e.scanVersions()
	if err != nil {
		return nil, types.Maintenance("scan", err)
	}
	next := 1
	if len(versions) > 0 {
		next = versions[0].Number + 1
	}
	name := FormatVersion(e.cfg.BackupPrefix, next)

	// files are collected under a hidden name so a failed copy never leaves
	// a partial version behind
	staging := filepath.Join(root, stagingPrefix+name)
	if err := os.RemoveAll(staging); err != nil {
		return nil, types.Maintenance("stage", err)
	}
	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, types.Maintenance("stage", err)
	}

	err = e.registry.Exclusive(func() error {
		return e.copyLive(ctx, staging)
	})
	if err == nil {
		err = os.Rename(staging, filepath.Join(root, name))
	}
	if err != nil {
		os.RemoveAll(staging)
		return nil, types.Maintenance("copy", err)
	}

	kept, err := e.rotate()
	if err != nil {
		return nil, types.Maintenance("rotate", err)
	}
	return &SnapshotResult{VersionName: name, TotalKept: len(kept), ActiveVersions: kept}, nil
}

func (e *BackupEngine) copyLive(ctx context.Context, dst string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range e.registry.Names() {
		if e.cfg.IsProtectedCollection(name) {
			continue
		}
		src := e.registry.Path(name)
		if !fsutil.Exists(src) {
			continue
		}
		file := e.registry.FileName(name)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := fsutil.CopyFile(src, filepath.Join(dst, file))
			return err
		})
	}
	return g.Wait()
}

// rotate deletes every version beyond the MaxBackups highest numbers and
// returns the names kept.
func (e *BackupEngine) rotate() ([]string, error) {
	versions, err := e.scanVersions()
	if err != nil {
		return nil, err
	}
	kept := make([]string, 0, e.cfg.MaxBackups)
	for i, v := range versions {
		if i < e.cfg.MaxBackups {
			kept = append(kept, v.Name)
			continue
		}
		if err := os.RemoveAll(filepath.Join(e.cfg.BackupDir, v.Name)); err != nil {
			return kept, err
		}
		snapshotsPrunedTotal.WithLabelValues("rotation").Inc()
		log.Printf("Rotation purged old version %s", v.Name)
	}
	return kept, nil
}

// ListSnapshots describes every version directory, highest number first.
// A missing backup root is an empty list.
func (e *BackupEngine) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	versions, err := e.scanVersions()
	if err != nil {
		return nil, types.Maintenance("list", err)
	}

	infos := make([]*SnapshotInfo, len(versions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statWorkers)
	for i, v := range versions {
		g.Go(func() error {
			info, err := e.describe(ctx, v)
			if err != nil {
				// a version that cannot be read is left out of the listing
				log.Printf("Skipping unreadable backup %s: %v", v.Name, err)
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, types.Maintenance("list", err)
	}

	out := make([]SnapshotInfo, 0, len(infos))
	for _, info := range infos {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out, nil
}

func (e *BackupEngine) describe(ctx context.Context, v versionDir) (*SnapshotInfo, error) {
	dir := filepath.Join(e.cfg.BackupDir, v.Name)
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	files, err := e.snapshotFiles(dir)
	if err != nil {
		return nil, err
	}

	sizes := make([]int64, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fi, err := os.Stat(filepath.Join(dir, file))
			if err != nil {
				return err
			}
			sizes[i] = fi.Size()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, s := range sizes {
		total += s
	}
	return &SnapshotInfo{
		VersionName:   v.Name,
		Version:       v.Number,
		CreatedAt:     st.ModTime(),
		FileCount:     len(files),
		SizeInBytes:   total,
		SizeFormatted: humanize.Bytes(uint64(total)),
		Files:         files,
	}, nil
}

// InspectSnapshotFile decodes one collection file of a snapshot.
func (e *BackupEngine) InspectSnapshotFile(version, file string) (*SnapshotFile, error) {
	if e.cfg.IsProtectedFile(file) {
		return nil, fmt.Errorf("%s: %w", file, types.ErrForbidden)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	dir, err := e.versionPath(version)
	if err != nil {
		return nil, err
	}
	if !isPlainFileName(file) {
		return nil, fmt.Errorf("file %q: %w", file, types.ErrNotFound)
	}
	engine, ok := database.EngineForFile(file)
	if !ok {
		return nil, fmt.Errorf("file %q: %w", file, types.ErrNotFound)
	}

	contents, err := engine.ReadFile(filepath.Join(dir, file), e.cfg.InspectLimit)
	if err != nil {
		return nil, types.Maintenance("inspect", err)
	}
	return &SnapshotFile{VersionName: version, FileName: file, FileContents: contents}, nil
}

// RestoreSnapshot copies the non-protected collection files of version over
// the live store. Depending on the restore policy the registry then either
// reloads in place or stops serving until the scheduled restart.
func (e *BackupEngine) RestoreSnapshot(version string) (*RestoreResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir, err := e.versionPath(version)
	if err != nil {
		return nil, err
	}
	all, err := e.snapshotFiles(dir)
	if err != nil {
		return nil, types.Maintenance("restore", err)
	}
	var files []string
	for _, file := range all {
		if _, ok := e.registry.CollectionForFile(file); ok {
			files = append(files, file)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s holds no %s collection files", types.ErrValidation, version, e.registry.Engine().Name())
	}

	result, err := e.replaceLive(version, files, func(file, dst string) error {
		_, err := fsutil.CopyFile(filepath.Join(dir, file), dst)
		return err
	})
	if err != nil {
		maintenanceFailuresTotal.WithLabelValues("restore").Inc()
		log.Printf("Restore of %s failed: %v", version, err)
		return nil, types.Maintenance("restore", err)
	}
	restoresTotal.WithLabelValues("snapshot").Inc()
	return result, nil
}

// replaceLive swaps files into the live directory through the registry.
// write produces each file at a staging path; nothing is renamed into place
// until every write succeeded.
func (e *BackupEngine) replaceLive(source string, files []string, write func(file, dst string) error) (*RestoreResult, error) {
	restart := e.cfg.RestorePolicy == config.RestoreRestart
	err := e.registry.Replace(!restart, func(live string) error {
		return swapIn(live, files, write)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Live store replaced from %s: %s", source, strings.Join(files, ", "))
	if restart {
		e.restarter.ScheduleRestart("live store replaced from " + source)
	}
	return &RestoreResult{Source: source, Files: files, Restarting: restart}, nil
}

// rename is swapped out by tests to fail part way through a swap.
var rename = os.Rename

// swapIn writes every file to a staging path, then moves each live file
// aside and renames the staged one into place. If any rename fails, files
// already swapped are put back, so the live directory never mixes versions.
func swapIn(dir string, files []string, write func(file, dst string) error) error {
	staged := make([]string, 0, len(files))
	discard := func() {
		for _, p := range staged {
			os.Remove(p)
		}
	}

	for _, file := range files {
		tmp := filepath.Join(dir, incomingMark+file)
		if err := write(file, tmp); err != nil {
			os.Remove(tmp)
			discard()
			return err
		}
		staged = append(staged, tmp)
	}

	// displaced[i] is empty when files[i] had no live file
	displaced := make([]string, len(files))
	rollback := func(n int) {
		for i := n - 1; i >= 0; i-- {
			live := filepath.Join(dir, files[i])
			if displaced[i] == "" {
				os.Remove(live)
				continue
			}
			if err := rename(displaced[i], live); err != nil {
				log.Printf("Rollback of %s failed, previous copy left at %s: %v", files[i], displaced[i], err)
			}
		}
	}

	for i, file := range files {
		live := filepath.Join(dir, file)
		aside := filepath.Join(dir, displacedMark+file)
		if err := rename(live, aside); err == nil {
			displaced[i] = aside
		} else if !os.IsNotExist(err) {
			rollback(i)
			discard()
			return err
		}
		if err := rename(staged[i], live); err != nil {
			rollback(i + 1)
			discard()
			return err
		}
	}

	for _, aside := range displaced {
		if aside != "" {
			os.Remove(aside)
		}
	}
	return nil
}

// PruneSnapshot deletes one version directory. Names that are not existing
// version directories under the backup root are not found.
func (e *BackupEngine) PruneSnapshot(version string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir, err := e.versionPath(version)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		maintenanceFailuresTotal.WithLabelValues("prune").Inc()
		return types.Maintenance("prune", err)
	}
	snapshotsPrunedTotal.WithLabelValues("manual").Inc()
	log.Printf("Purged backup version %s", version)
	return nil
}

// FactoryReset empties every non-protected collection in place and returns
// how many were cleared.
func (e *BackupEngine) FactoryReset() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var names []string
	for _, name := range e.registry.Names() {
		if !e.cfg.IsProtectedCollection(name) {
			names = append(names, name)
		}
	}
	cleared, err := e.registry.Truncate(names)
	if err != nil {
		maintenanceFailuresTotal.WithLabelValues("reset").Inc()
		return cleared, types.Maintenance("reset", err)
	}
	log.Printf("Factory reset cleared %d collections", cleared)
	return cleared, nil
}

// isPlainFileName rejects anything that could address a path other than a
// direct child of a directory.
func isPlainFileName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
