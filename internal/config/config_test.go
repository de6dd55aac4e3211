package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// t.Setenv restores any outer value afterwards; Unsetenv then leaves the
	// variables absent so Load falls back to the struct-tag defaults.
	t.Setenv("CINET_HOST", "")
	t.Setenv("CINET_PORT", "")
	os.Unsetenv("CINET_HOST")
	os.Unsetenv("CINET_PORT")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CinetAddr() != "0.0.0.0:4509" {
		t.Fatalf("CinetAddr = %q", c.CinetAddr())
	}
}

func TestRedactedMasksSecret(t *testing.T) {
	c := Config{JWTSecret: "super-secret"}
	r := c.Redacted()
	if r.JWTSecret == "super-secret" {
		t.Fatalf("JWTSecret was not redacted")
	}
	if c.JWTSecret != "super-secret" {
		t.Fatalf("Redacted should not mutate the receiver's copy source")
	}
}
