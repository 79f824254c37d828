// Package reliability provides database backups and maintenance jobs.
package reliability

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
)

const (
	backupFilePrefix = "portvault-"
	backupFileSuffix = ".db"
	backupTimeLayout = "2006-01-02-150405"
	minBackupsToKeep = 3
	stagingDirName   = "backup-staging"
)

// StoredObject describes one object in the backup store
type StoredObject struct {
	Key       string
	SizeBytes int64
}

// ObjectStore is the remote side of a backup
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// BackupResult describes an uploaded backup
type BackupResult struct {
	Key       string        `json:"key"`
	SizeBytes int64         `json:"size_bytes"`
	Checksum  string        `json:"checksum"`
	Duration  time.Duration `json:"duration"`
}

// BackupInfo represents a backup stored remotely
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots the database and ships it to an object store
type BackupService struct {
	db            *database.DB
	store         ObjectStore
	prefix        string
	dataDir       string
	retentionDays int
	log           zerolog.Logger
}

// NewBackupService creates a new backup service. A nil store disables backups.
func NewBackupService(db *database.DB, store ObjectStore, prefix, dataDir string, retentionDays int, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:            db,
		store:         store,
		prefix:        strings.Trim(prefix, "/"),
		dataDir:       dataDir,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// Enabled reports whether backups have a destination
func (s *BackupService) Enabled() bool {
	return s.store != nil
}

// CreateAndUpload snapshots the database with VACUUM INTO and uploads the copy.
// Returns nil, nil when backups are disabled.
func (s *BackupService) CreateAndUpload(ctx context.Context) (*BackupResult, error) {
	if !s.Enabled() {
		s.log.Debug().Msg("Backups disabled, skipping")
		return nil, nil
	}

	s.log.Info().Msg("Starting database backup")
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, stagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	fileName := backupFilePrefix + time.Now().UTC().Format(backupTimeLayout) + backupFileSuffix
	localPath := filepath.Join(stagingDir, fileName)

	if err := s.db.BackupTo(ctx, localPath); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	checksum, err := calculateChecksum(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer file.Close()

	key := s.key(fileName)
	if err := s.store.Upload(ctx, key, file); err != nil {
		return nil, fmt.Errorf("failed to upload backup: %w", err)
	}

	result := &BackupResult{
		Key:       key,
		SizeBytes: info.Size(),
		Checksum:  checksum,
		Duration:  time.Since(start),
	}

	s.log.Info().
		Str("key", key).
		Int64("size_bytes", result.SizeBytes).
		Str("checksum", checksum).
		Dur("duration_ms", result.Duration).
		Msg("Database backup uploaded")

	return result, nil
}

// ListBackups returns stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	if !s.Enabled() {
		return []BackupInfo{}, nil
	}

	objects, err := s.store.List(ctx, s.key(backupFilePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasPrefix(name, backupFilePrefix) || !strings.HasSuffix(name, backupFileSuffix) {
			continue
		}

		raw := strings.TrimSuffix(strings.TrimPrefix(name, backupFilePrefix), backupFileSuffix)
		timestamp, err := time.Parse(backupTimeLayout, raw)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from backup name")
			continue
		}

		backups = append(backups, BackupInfo{
			Key:       obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes backups older than the retention period, always keeping the
// newest three. A failed delete is logged and skipped.
func (s *BackupService) RotateOldBackups(ctx context.Context) (int, error) {
	if !s.Enabled() || s.retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, backup := range backups[minBackupsToKeep:] {
		if !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")

	return deleted, nil
}

func (s *BackupService) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
