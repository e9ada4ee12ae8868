package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/internal/storage"
	"github.com/litekeep/litekeep/pkg/types"
)

// Rotate prunes backup artifacts in dir, keeping the keep newest files
// matching pattern. Modification time decides age; name breaks ties so
// repeated runs agree. Artifacts that fail to delete are logged and left
// out of the removed list.
func Rotate(dir, pattern string, keep int) (*types.RotationResult, error) {
	if keep <= 0 {
		return nil, lkerrors.NewValidationError(lkerrors.CodeInvalidOptions, "keep must be positive")
	}
	if pattern == "" {
		pattern = "*"
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, lkerrors.NewValidationError(lkerrors.CodeInvalidOptions,
			fmt.Sprintf("bad rotation pattern %q: %v", pattern, err))
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, candidate{path: m, mod: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path > files[j].path
		}
		return files[i].mod.After(files[j].mod)
	})

	result := &types.RotationResult{Dir: dir}
	for i, f := range files {
		if i < keep {
			result.Kept = append(result.Kept, f.path)
			continue
		}
		if err := os.Remove(f.path); err != nil {
			log.WithFields(log.Fields{"path": f.path, "error": err}).Warn("failed to remove expired backup")
			continue
		}
		result.Removed = append(result.Removed, f.path)
	}

	log.WithFields(log.Fields{
		"dir":     dir,
		"pattern": pattern,
		"kept":    len(result.Kept),
		"removed": len(result.Removed),
	}).Info("backup rotation complete")
	return result, nil
}

// RotateRemote prunes replicated artifacts under prefix, keeping the keep
// newest objects. Artifact names embed their creation timestamp, so
// descending name order is age order.
func RotateRemote(ctx context.Context, store storage.ObjectStorage, prefix string, keep int) (*types.RotationResult, error) {
	if keep <= 0 {
		return nil, lkerrors.NewValidationError(lkerrors.CodeInvalidOptions, "keep must be positive")
	}

	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, lkerrors.NewStorageError(lkerrors.CodeListFailed,
			fmt.Sprintf("list remote objects under %s", prefix), err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(objects)))

	result := &types.RotationResult{Dir: prefix}
	for i, obj := range objects {
		if i < keep {
			result.Kept = append(result.Kept, obj)
			continue
		}
		if err := store.Delete(ctx, obj); err != nil {
			log.WithFields(log.Fields{"object": obj, "error": err}).Warn("failed to remove expired remote backup")
			continue
		}
		result.Removed = append(result.Removed, obj)
	}

	log.WithFields(log.Fields{
		"prefix":  prefix,
		"kept":    len(result.Kept),
		"removed": len(result.Removed),
	}).Info("remote backup rotation complete")
	return result, nil
}
