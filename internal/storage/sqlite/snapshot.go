package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/ontograph/internal/storage"
)

// SnapshotInfo describes one snapshot file.
type SnapshotInfo struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Snapshot writes a consistent copy of the database into dir with VACUUM
// INTO, verifies it with integrity_check, and then prunes all but the
// newest keep snapshots (keep <= 0 keeps everything).
func (s *Store) Snapshot(ctx context.Context, dir string, keep int) (string, error) {
	if s.path == "" {
		return "", fmt.Errorf("%w: cannot snapshot an in-memory database", storage.ErrNotSupported)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sqlite: snapshot dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
	dest := filepath.Join(dir, fmt.Sprintf("%s-%s.db", base, time.Now().UTC().Format("20060102T150405.000000000")))

	// VACUUM INTO takes a literal, not a bind parameter.
	quoted := strings.ReplaceAll(dest, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return "", fmt.Errorf("sqlite: snapshot: %w", err)
	}

	if err := verifySnapshot(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return "", err
	}

	if keep > 0 {
		if err := pruneSnapshots(dir, base, keep); err != nil {
			slog.Warn("sqlite: snapshot retention failed", "dir", dir, "error", err)
		}
	}

	slog.Info("sqlite: snapshot written", "path", dest)
	return dest, nil
}

// verifySnapshot runs PRAGMA integrity_check on a snapshot file.
func verifySnapshot(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("sqlite: open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("sqlite: snapshot integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("sqlite: snapshot integrity check failed: %s", result)
	}
	return nil
}

// ListSnapshots returns the snapshots of the database named base in dir,
// newest first.
func ListSnapshots(dir, base string) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read snapshot dir: %w", err)
	}

	var out []SnapshotInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, base+"-") || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, SnapshotInfo{
			Path:      filepath.Join(dir, name),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	// Names embed a sortable UTC timestamp.
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func pruneSnapshots(dir, base string, keep int) error {
	snaps, err := ListSnapshots(dir, base)
	if err != nil {
		return err
	}
	for i := keep; i < len(snaps); i++ {
		if err := os.Remove(snaps[i].Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
