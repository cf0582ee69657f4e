package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages engine toggles with gradual per-student rollout.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	studentOverrides map[string]map[string]bool // studentID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Students are assigned based on hash of their ID
	RolloutPercent int
}

// Predefined feature flag names.
const (
	FeatureAchievementsDedupe = "achievements.dedupe" // Report an achievement as new only on first unlock
	FeatureStatsConcurrent    = "stats.concurrent"    // Issue question statistics upserts concurrently
	FeatureProgressCache      = "progress.cache"      // Serve progress views through the cache
	FeatureScoringSpeedBonus  = "scoring.speed_bonus" // Award the under-a-minute speed bonus
)

// LoadFeatureFlags loads defaults and applies FEATURE_* environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns the defaults without reading the environment.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		studentOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureAchievementsDedupe] = &Feature{
		Name:           FeatureAchievementsDedupe,
		Description:    "Report achievements as new only when first unlocked",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureStatsConcurrent] = &Feature{
		Name:           FeatureStatsConcurrent,
		Description:    "Concurrent per-question statistics updates",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureProgressCache] = &Feature{
		Name:           FeatureProgressCache,
		Description:    "Read-through cache for progress views",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureScoringSpeedBonus] = &Feature{
		Name:           FeatureScoringSpeedBonus,
		Description:    "Speed bonus for sessions under one minute per question",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment accepts FEATURE_<NAME>=true|false or a 0-100 percentage.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled evaluates a flag for a student. An empty studentID only passes
// fully rolled-out flags.
func (ff *FeatureFlags) IsEnabled(featureName, studentID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if studentID != "" {
		if overrides, ok := ff.studentOverrides[studentID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent >= 100 {
		return true
	}
	if studentID == "" {
		return false
	}
	return isInRollout(studentID, featureName, feature.RolloutPercent)
}

func isInRollout(studentID, featureName string, percent int) bool {
	// Consistent hash for this student+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	bucket := int(h.Sum32() % 100)
	return bucket < percent
}

// SetStudentOverride forces a flag for one student.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.studentOverrides[studentID]; !ok {
		ff.studentOverrides[studentID] = make(map[string]bool)
	}
	ff.studentOverrides[studentID][featureName] = enabled
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Engine toggles ---

// DedupeAchievements reports whether repeat unlocks are suppressed.
func (ff *FeatureFlags) DedupeAchievements(studentID string) bool {
	return ff.IsEnabled(FeatureAchievementsDedupe, studentID)
}

// ConcurrentStats reports whether statistics upserts run concurrently.
func (ff *FeatureFlags) ConcurrentStats(studentID string) bool {
	return ff.IsEnabled(FeatureStatsConcurrent, studentID)
}

// SpeedBonus reports whether the speed bonus applies.
func (ff *FeatureFlags) SpeedBonus(studentID string) bool {
	return ff.IsEnabled(FeatureScoringSpeedBonus, studentID)
}

// ProgressCache reports whether progress views are cached.
func (ff *FeatureFlags) ProgressCache(studentID string) bool {
	return ff.IsEnabled(FeatureProgressCache, studentID)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
