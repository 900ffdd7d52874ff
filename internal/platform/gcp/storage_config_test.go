package gcp

import (
	"errors"
	"testing"
)

func TestStorageConfigFromEnvDefaultGCS(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	cfg, err := StorageConfigFromEnv()
	if err != nil {
		t.Fatalf("StorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != StorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCS, cfg.Mode)
	}
}

func TestStorageConfigFromEnvEmulatorFallback(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := StorageConfigFromEnv()
	if err != nil {
		t.Fatalf("StorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != StorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCSEmulator, cfg.Mode)
	}
}

func TestStorageConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name string
		mode string
		host string
		code StorageConfigErrorCode
	}{
		{name: "invalid mode", mode: "s3", code: StorageConfigErrorInvalidMode},
		{name: "missing host", mode: "gcs_emulator", code: StorageConfigErrorMissingEmulatorHost},
		{name: "relative host", mode: "gcs_emulator", host: "fake-gcs:4443", code: StorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.host)
			_, err := StorageConfigFromEnv()
			var ce *StorageConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected StorageConfigError, got=%v", err)
			}
			if ce.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, ce.Code)
			}
		})
	}
}

func TestParseURI(t *testing.T) {
	cases := []struct {
		in, bucket, prefix string
		wantErr            bool
	}{
		{in: "gs://docs", bucket: "docs"},
		{in: "gs://docs/aws/guides", bucket: "docs", prefix: "aws/guides"},
		{in: "gs:///x", wantErr: true},
		{in: "data/", wantErr: true},
	}
	for _, tc := range cases {
		bucket, prefix, err := ParseURI(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseURI(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseURI(%q): %v", tc.in, err)
		}
		if bucket != tc.bucket || prefix != tc.prefix {
			t.Fatalf("ParseURI(%q): want=%q,%q got=%q,%q", tc.in, tc.bucket, tc.prefix, bucket, prefix)
		}
	}
}
