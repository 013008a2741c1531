package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gitcats/internal/common/cache"
	appErr "gitcats/pkg/errors"
)

const checkedKeyPrefix = "gitcats:checked:"

// Marker records a submission variant whose required tests all passed.
type Marker struct {
	Digest    string
	RunID     string
	CheckedAt time.Time
	Tests     int
}

// CheckedRepository persists checked markers keyed by participant,
// assignment and submission id.
type CheckedRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewCheckedRepository creates a new repository.
func NewCheckedRepository(cacheClient cache.Cache, ttl time.Duration) *CheckedRepository {
	return &CheckedRepository{cache: cacheClient, TTL: ttl}
}

func markerKey(participant, assignment, submissionID string) string {
	return checkedKeyPrefix + participant + ":" + assignment + ":" + submissionID
}

// FileDigest returns the hex SHA-256 of a file.
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the marker, or false when none is stored.
func (r *CheckedRepository) Get(ctx context.Context, participant, assignment, submissionID string) (Marker, bool, error) {
	if participant == "" || assignment == "" {
		return Marker{}, false, appErr.ValidationError("participant", "required")
	}
	if r.cache == nil {
		return Marker{}, false, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	fields, err := r.cache.HGetAll(ctx, markerKey(participant, assignment, submissionID))
	if err != nil {
		return Marker{}, false, appErr.Wrapf(err, appErr.MarkerStoreFailed, "load checked marker failed")
	}
	if len(fields) == 0 || fields["digest"] == "" {
		return Marker{}, false, nil
	}
	m := Marker{Digest: fields["digest"], RunID: fields["run_id"]}
	if ts, err := strconv.ParseInt(fields["checked_at"], 10, 64); err == nil {
		m.CheckedAt = time.Unix(ts, 0).UTC()
	}
	if n, err := strconv.Atoi(fields["tests"]); err == nil {
		m.Tests = n
	}
	return m, true, nil
}

// IsChecked reports whether the program file is unchanged since it was
// marked. A marker for a changed file is removed.
func (r *CheckedRepository) IsChecked(ctx context.Context, participant, assignment, submissionID, programPath string) (bool, error) {
	marker, ok, err := r.Get(ctx, participant, assignment, submissionID)
	if err != nil || !ok {
		return false, err
	}
	digest, err := FileDigest(programPath)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.ProgramFileMissing, "digest program file failed")
	}
	if digest == marker.Digest {
		return true, nil
	}
	if err := r.cache.Del(ctx, markerKey(participant, assignment, submissionID)); err != nil {
		return false, appErr.Wrapf(err, appErr.MarkerStoreFailed, "drop stale checked marker failed")
	}
	return false, nil
}

// MarkChecked stores a marker for the current content of the program file.
func (r *CheckedRepository) MarkChecked(ctx context.Context, participant, assignment, submissionID, programPath, runID string, tests int) error {
	if participant == "" || assignment == "" {
		return appErr.ValidationError("participant", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	digest, err := FileDigest(programPath)
	if err != nil {
		return appErr.Wrapf(err, appErr.ProgramFileMissing, "digest program file failed")
	}
	key := markerKey(participant, assignment, submissionID)
	fields := map[string]interface{}{
		"digest":     digest,
		"run_id":     runID,
		"checked_at": strconv.FormatInt(time.Now().Unix(), 10),
		"tests":      strconv.Itoa(tests),
	}
	if err := r.cache.HMSet(ctx, key, fields); err != nil {
		return appErr.Wrapf(err, appErr.MarkerStoreFailed, "store checked marker failed")
	}
	if r.TTL > 0 {
		if err := r.cache.Expire(ctx, key, cache.JitterTTL(r.TTL)); err != nil {
			return fmt.Errorf("expire checked marker failed: %w", err)
		}
	}
	return nil
}
