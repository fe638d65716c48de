package config

import (
	"os"
	"testing"
)

func TestLoad_RequiresMongoURI(t *testing.T) {
	os.Unsetenv("MONGO_URI")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when MONGO_URI is missing")
	}
}

func TestLoad_WithMongoURI(t *testing.T) {
	os.Setenv("MONGO_URI", "mongodb://localhost:27017")
	defer os.Unsetenv("MONGO_URI")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("expected MONGO_URI to be set, got %s", cfg.MongoURI)
	}
	if cfg.MongoDatabase != "matchminer" {
		t.Errorf("expected default database 'matchminer', got %s", cfg.MongoDatabase)
	}
	if cfg.Workers <= 0 {
		t.Errorf("expected a positive default worker count, got %d", cfg.Workers)
	}
	if cfg.MatchOnClosed {
		t.Error("expected MATCH_ON_CLOSED to default to false")
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestLoad_DefaultIsDevelopment(t *testing.T) {
	os.Unsetenv("ENV")
	os.Setenv("MONGO_URI", "mongodb://localhost:27017")
	defer os.Unsetenv("MONGO_URI")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != "development" {
		t.Errorf("expected default ENV to be 'development', got %q", cfg.Env)
	}
}

func TestValidate_RequiresMongoURI(t *testing.T) {
	c := &Config{Workers: 5, QueryTimeoutMS: 1000}
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate() to fail without MONGO_URI")
	}
}

func TestValidate_RequiresPositiveWorkers(t *testing.T) {
	c := &Config{MongoURI: "mongodb://localhost:27017", Workers: 0, QueryTimeoutMS: 1000}
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate() to fail with zero workers")
	}
}

func TestValidate_OK(t *testing.T) {
	c := &Config{MongoURI: "mongodb://localhost:27017", Workers: 5, QueryTimeoutMS: 1000}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected Validate() error: %v", err)
	}
}
