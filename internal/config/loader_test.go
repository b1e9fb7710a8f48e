package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("loads a full config file", func(t *testing.T) {
		t.Parallel()

		content := `endpoint: https://metrics.example.com
timezone: Asia/Tokyo
proxy: 127.0.0.1:1080
schedule:
  weekly:
    enabled: true
    weekday: monday
    hour: 9
  monthly:
    enabled: true
    day: 1
    hour: 9
archive:
  bucket: reports
  endpoint: http://localhost:9000
  region: us-east-1
  prefix: mentionscan
subjects:
  - handle: alice
    name: Alice Example
  - handle: bob
    term: "robert OR bob"
defaults:
  concurrency: 8
  format: markdown
`
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cf.Endpoint != "https://metrics.example.com" {
			t.Errorf("expected endpoint, got %q", cf.Endpoint)
		}
		if cf.Timezone != "Asia/Tokyo" {
			t.Errorf("expected timezone Asia/Tokyo, got %q", cf.Timezone)
		}
		if !cf.Schedule.Weekly.Enabled || cf.Schedule.Weekly.Weekday != "monday" {
			t.Errorf("expected enabled weekly monday trigger, got %+v", cf.Schedule.Weekly)
		}
		if cf.Archive.Bucket != "reports" {
			t.Errorf("expected archive bucket, got %q", cf.Archive.Bucket)
		}
		if len(cf.Subjects) != 2 {
			t.Fatalf("expected 2 subjects, got %d", len(cf.Subjects))
		}
		if cf.Subjects[1].Term != "robert OR bob" {
			t.Errorf("expected term override, got %q", cf.Subjects[1].Term)
		}
		if cf.Defaults.Concurrency != 8 {
			t.Errorf("expected defaults concurrency 8, got %d", cf.Defaults.Concurrency)
		}
	})

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("malformed yaml returns an error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte("subjects: [unclosed"), 0o600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected an error for malformed yaml")
		}
	})
}

func TestFile_SubjectRoster(t *testing.T) {
	t.Parallel()

	t.Run("materializes subjects in file order", func(t *testing.T) {
		t.Parallel()

		cf := &File{Subjects: []SubjectEntry{
			{Handle: "carol"},
			{Handle: "alice", Name: "Alice Example"},
			{Handle: "bob", Term: "robert"},
		}}

		subjects, err := cf.SubjectRoster()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(subjects) != 3 {
			t.Fatalf("expected 3 subjects, got %d", len(subjects))
		}
		if subjects[0].Handle() != "carol" {
			t.Errorf("expected file order preserved, got %q first", subjects[0].Handle())
		}
		if subjects[1].DisplayName() != "Alice Example" {
			t.Errorf("expected display name, got %q", subjects[1].DisplayName())
		}
		if subjects[2].SearchTerm() != "robert" {
			t.Errorf("expected term override, got %q", subjects[2].SearchTerm())
		}
	})

	t.Run("invalid handle fails with context", func(t *testing.T) {
		t.Parallel()

		cf := &File{Subjects: []SubjectEntry{{Handle: "not ok!"}}}
		if _, err := cf.SubjectRoster(); err == nil {
			t.Error("expected an error for an invalid handle")
		}
	})
}

func TestFile_ApplyTo(t *testing.T) {
	t.Parallel()

	t.Run("file values override defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cf := &File{
			Endpoint: "https://metrics.example.com",
			Timezone: "Europe/Berlin",
			Subjects: []SubjectEntry{{Handle: "alice"}},
			Defaults: Defaults{Concurrency: 8, Format: FormatJSON},
		}

		if err := cf.ApplyTo(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Endpoint != "https://metrics.example.com" {
			t.Errorf("expected endpoint applied, got %q", cfg.Endpoint)
		}
		if cfg.Timezone != "Europe/Berlin" {
			t.Errorf("expected timezone applied, got %q", cfg.Timezone)
		}
		if cfg.Concurrency != 8 {
			t.Errorf("expected concurrency applied, got %d", cfg.Concurrency)
		}
		if cfg.Format != FormatJSON {
			t.Errorf("expected format applied, got %q", cfg.Format)
		}
		if len(cfg.Subjects) != 1 {
			t.Errorf("expected roster applied, got %d subjects", len(cfg.Subjects))
		}
	})

	t.Run("empty file values keep defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cf := &File{Subjects: []SubjectEntry{{Handle: "alice"}}}

		if err := cf.ApplyTo(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Timezone != DefaultTimezone {
			t.Errorf("expected default timezone kept, got %q", cfg.Timezone)
		}
		if cfg.Concurrency != DefaultConcurrency {
			t.Errorf("expected default concurrency kept, got %d", cfg.Concurrency)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	// No t.Parallel: this test changes the working directory.

	t.Run("explicit path wins when it exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("endpoint: https://x.example.com"), 0o600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
	})

	t.Run("missing explicit path returns empty", func(t *testing.T) {
		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("expected empty path, got %q", got)
		}
	})

	t.Run("finds config in current directory", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, DefaultConfigFile)
		if err := os.WriteFile(path, []byte("endpoint: https://x.example.com"), 0o600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		t.Chdir(dir)

		got := FindConfigFile("")
		if got == "" {
			t.Fatal("expected config file to be found in current directory")
		}
		if filepath.Base(got) != DefaultConfigFile {
			t.Errorf("expected %q, got %q", DefaultConfigFile, got)
		}
	})
}
