package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	c := &Config{}
	c.AI.Credentials = []string{"cred-a", "cred-b"}
	c.AI.ModelGenerate = "models/gemini-2.5-flash-lite"
	c.AI.ModelEmbed = "text-embedding-004"
	c.AI.MinGapBetweenCalls = 2 * time.Second
	c.AI.PerSlotCooldown = 60 * time.Second
	c.AI.EmbeddingDim = 768
	c.AI.Temperature = 0.3
	c.Server.Port = "8080"
	c.Kafka.Topic = "jobs_raw"
	c.Kafka.GroupID = "job-enrichment"
	c.App.DefaultFormat = "json"
	c.App.SupportedFormats = []string{"json", "text"}
	return c
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Errorf("valid config rejected: %v", err)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		c := validConfig()
		c.AI.Credentials = nil
		if err := c.Validate(); err == nil {
			t.Error("expected error for empty credential pool")
		}
	})

	t.Run("blank credential", func(t *testing.T) {
		c := validConfig()
		c.AI.Credentials = []string{"cred-a", "  "}
		if err := c.Validate(); err == nil {
			t.Error("expected error for blank credential")
		}
	})

	t.Run("bad temperature", func(t *testing.T) {
		c := validConfig()
		c.AI.Temperature = 1.5
		if err := c.Validate(); err == nil {
			t.Error("expected error for temperature > 1")
		}
	})

	t.Run("zero embedding dim", func(t *testing.T) {
		c := validConfig()
		c.AI.EmbeddingDim = 0
		if err := c.Validate(); err == nil {
			t.Error("expected error for zero embedding dim")
		}
	})

	t.Run("missing kafka group", func(t *testing.T) {
		c := validConfig()
		c.Kafka.GroupID = ""
		if err := c.Validate(); err == nil {
			t.Error("expected error for missing kafka group id")
		}
	})
}

func TestMaxRetriesDerivedFromPoolSize(t *testing.T) {
	c := validConfig()

	c.AI.MaxRetriesOnRateLimit = 0
	if got := c.AI.MaxRetries(); got != 2 {
		t.Errorf("MaxRetries() = %d, want pool size 2", got)
	}

	c.AI.MaxRetriesOnRateLimit = 5
	if got := c.AI.MaxRetries(); got != 5 {
		t.Errorf("MaxRetries() = %d, want configured 5", got)
	}
}

func TestApplyFallbacksSplitsCredentialList(t *testing.T) {
	c := validConfig()
	c.AI.Credentials = []string{"cred-a, cred-b ,cred-c"}
	c.applyFallbacks()

	if len(c.AI.Credentials) != 3 {
		t.Fatalf("expected 3 credentials, got %v", c.AI.Credentials)
	}
	if c.AI.Credentials[1] != "cred-b" {
		t.Errorf("credential not trimmed: %q", c.AI.Credentials[1])
	}
}

func TestApplyFallbacksDerivesWorkerBackoff(t *testing.T) {
	c := validConfig()
	c.Worker.RetryBackoff = 0
	c.applyFallbacks()

	if c.Worker.RetryBackoff != c.AI.PerSlotCooldown {
		t.Errorf("worker backoff = %v, want slot cooldown %v", c.Worker.RetryBackoff, c.AI.PerSlotCooldown)
	}
}
