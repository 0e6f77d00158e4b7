package config

import (
	"testing"
	"time"
)

func TestParseOrigins(t *testing.T) {
	if got := parseOrigins(""); got != nil {
		t.Fatalf("parseOrigins(\"\") = %v, want nil", got)
	}
	got := parseOrigins(" https://a.test , ,https://b.test")
	if len(got) != 2 || got[0] != "https://a.test" || got[1] != "https://b.test" {
		t.Fatalf("parseOrigins = %v", got)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("UPLOAD_CONCURRENCY", "7")
	t.Setenv("ISSUE_CERTIFICATES", "false")
	t.Setenv("PLATFORM_TIMEOUT_SECONDS", "3")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "not-a-number")

	cfg := Load()
	if cfg.UploadConcurrency != 7 {
		t.Fatalf("UploadConcurrency = %d, want 7", cfg.UploadConcurrency)
	}
	if cfg.IssueCertificates {
		t.Fatalf("IssueCertificates = true, want false")
	}
	if cfg.PlatformTimeout != 3*time.Second {
		t.Fatalf("PlatformTimeout = %v, want 3s", cfg.PlatformTimeout)
	}
	if cfg.MaxUploadBytes != 10*1024*1024 {
		t.Fatalf("MaxUploadBytes = %d, want fallback of 10MB", cfg.MaxUploadBytes)
	}
}

func TestCacheKeys(t *testing.T) {
	if got := CacheKey.LearnerCompletedExamsKey("l-1"); got != "learner:l-1:completed_exams" {
		t.Fatalf("LearnerCompletedExamsKey = %q", got)
	}
	if got := CacheKey.SessionEventChannel("e-1", "l-1"); got != "exam:e-1:learner:l-1:events" {
		t.Fatalf("SessionEventChannel = %q", got)
	}
}
