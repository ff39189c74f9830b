package ai

import (
	"reflect"
	"testing"

	"jobpulse/internal/types"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\": 1}\n```  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.in); got != tt.want {
				t.Errorf("StripCodeFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeSeniority(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Senior", types.SenioritySenior},
		{"Junior", types.SeniorityJunior},
		{"Mid", types.SeniorityMid},
		{"Lead", types.SeniorityLead},
		{"Entry Level", types.SeniorityJunior},
		{"Sr. Engineer", types.SenioritySenior},
		{"Principal", types.SeniorityLead},
		{"Staff Engineer", types.SeniorityLead},
		{"Intermediate", types.SeniorityMid},
		{"", types.SeniorityMid},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeSeniority(tt.in); got != tt.want {
				t.Errorf("NormalizeSeniority(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDedupeStrings(t *testing.T) {
	t.Run("case-insensitive, first occurrence wins", func(t *testing.T) {
		got := DedupeStrings([]string{"Python", "python", "AWS", " aws ", "Docker"}, 0)
		want := []string{"Python", "AWS", "Docker"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("DedupeStrings() = %v, want %v", got, want)
		}
	})

	t.Run("cap applies after dedup", func(t *testing.T) {
		got := DedupeStrings([]string{"a", "A", "b", "c", "d"}, 3)
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("DedupeStrings() = %v, want %v", got, want)
		}
	})

	t.Run("blank entries dropped", func(t *testing.T) {
		got := DedupeStrings([]string{"", "  ", "x"}, 0)
		want := []string{"x"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("DedupeStrings() = %v, want %v", got, want)
		}
	})
}

func TestToStringListAcceptsCommaSeparated(t *testing.T) {
	got, err := toStringList("Go, Kafka , Postgres")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Go", "Kafka", "Postgres"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toStringList() = %v, want %v", got, want)
	}
}
