package config

import (
	"os"
	"testing"
)

func clearFaceEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FACE_TOLERANCE", "MIN_FACE_SIZE", "FACE_WEIGHT_PROFILE",
		"FACE_WEIGHT_EUCLIDEAN", "FACE_WEIGHT_COSINE", "FACE_WEIGHT_CORRELATION",
		"ALLOW_MULTIPLE_CHECKIN", "LATE_THRESHOLD_HOUR", "LATE_THRESHOLD_MINUTE",
		"DATA_DIR", "DATABASE_URL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearFaceEnv(t)

	cfg := Load()

	if cfg.Face.Tolerance != 0.6 {
		t.Errorf("expected default tolerance 0.6, got %v", cfg.Face.Tolerance)
	}
	if cfg.Face.MinFaceSize != 50 {
		t.Errorf("expected default min face size 50, got %d", cfg.Face.MinFaceSize)
	}
	if cfg.Attendance.LateHour != 10 || cfg.Attendance.LateMinute != 0 {
		t.Errorf("expected default late cutoff 10:00, got %d:%02d",
			cfg.Attendance.LateHour, cfg.Attendance.LateMinute)
	}
	if cfg.Attendance.AllowMultipleCheckin {
		t.Error("expected multiple check-in disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_BalancedProfileWeights(t *testing.T) {
	clearFaceEnv(t)

	cfg := Load()

	if cfg.Face.WEuclidean != 0.3 || cfg.Face.WCosine != 0.4 || cfg.Face.WCorrelation != 0.3 {
		t.Errorf("expected balanced weights 0.3/0.4/0.3, got %v/%v/%v",
			cfg.Face.WEuclidean, cfg.Face.WCosine, cfg.Face.WCorrelation)
	}
}

func TestLoad_NamedProfile(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("FACE_WEIGHT_PROFILE", "cosine")

	cfg := Load()

	if cfg.Face.WCosine != 0.8 {
		t.Errorf("expected cosine profile weight 0.8, got %v", cfg.Face.WCosine)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("cosine profile should validate, got %v", err)
	}
}

func TestLoad_UnknownProfileFallsBack(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("FACE_WEIGHT_PROFILE", "does-not-exist")

	cfg := Load()

	if cfg.Face.WEuclidean != 0.3 || cfg.Face.WCosine != 0.4 {
		t.Errorf("expected fallback to balanced weights, got %v/%v",
			cfg.Face.WEuclidean, cfg.Face.WCosine)
	}
}

func TestLoad_ExplicitWeightsOverrideProfile(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("FACE_WEIGHT_EUCLIDEAN", "0.5")
	t.Setenv("FACE_WEIGHT_COSINE", "0.5")
	t.Setenv("FACE_WEIGHT_CORRELATION", "0")

	cfg := Load()

	if cfg.Face.WEuclidean != 0.5 || cfg.Face.WCosine != 0.5 || cfg.Face.WCorrelation != 0 {
		t.Errorf("expected explicit weights 0.5/0.5/0, got %v/%v/%v",
			cfg.Face.WEuclidean, cfg.Face.WCosine, cfg.Face.WCorrelation)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("explicit weights should validate, got %v", err)
	}
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("FACE_WEIGHT_EUCLIDEAN", "0.9")
	t.Setenv("FACE_WEIGHT_COSINE", "0.9")
	t.Setenv("FACE_WEIGHT_CORRELATION", "0.9")

	cfg := Load()

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for weights summing to 2.7")
	}
}

func TestValidate_NegativeWeightRejected(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("FACE_WEIGHT_EUCLIDEAN", "-0.5")
	t.Setenv("FACE_WEIGHT_COSINE", "1.0")
	t.Setenv("FACE_WEIGHT_CORRELATION", "0.5")

	cfg := Load()

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative weight")
	}
}

func TestValidate_ToleranceRange(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("FACE_TOLERANCE", "1.5")

	cfg := Load()

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for tolerance above 1")
	}
}

func TestLoad_LateCutoffMinuteZeroAccepted(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("LATE_THRESHOLD_HOUR", "9")
	t.Setenv("LATE_THRESHOLD_MINUTE", "0")

	cfg := Load()

	if cfg.Attendance.LateHour != 9 || cfg.Attendance.LateMinute != 0 {
		t.Errorf("expected cutoff 9:00, got %d:%02d",
			cfg.Attendance.LateHour, cfg.Attendance.LateMinute)
	}
}

func TestLoad_DatabaseDefaultUnderDataDir(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("DATA_DIR", "/tmp/att")

	cfg := Load()

	if cfg.Database.URL != "/tmp/att/attendance.db" {
		t.Errorf("expected sqlite default under data dir, got %q", cfg.Database.URL)
	}
	if cfg.Data.FacesDir() != "/tmp/att/known_faces" {
		t.Errorf("unexpected faces dir %q", cfg.Data.FacesDir())
	}
}

func TestLoad_MultipleCheckinFlag(t *testing.T) {
	clearFaceEnv(t)
	t.Setenv("ALLOW_MULTIPLE_CHECKIN", "true")

	cfg := Load()

	if !cfg.Attendance.AllowMultipleCheckin {
		t.Error("expected multiple check-in enabled")
	}
}
