package utilities

import (
	"reflect"
	"testing"
)

func TestGenerateRandomToken(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantLen int
	}{
		{name: "default length", length: 0, wantLen: 16},
		{name: "short", length: 6, wantLen: 6},
		{name: "long", length: 32, wantLen: 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateRandomToken(tt.length)
			if err != nil {
				t.Fatalf("GenerateRandomToken() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("GenerateRandomToken() len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}

	first, _ := GenerateRandomToken(16)
	second, _ := GenerateRandomToken(16)
	if first == second {
		t.Errorf("two tokens should differ, both %s", first)
	}
}

func TestUniqueStrings(t *testing.T) {
	got := UniqueStrings([]string{"b", "a", "", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueStrings() = %v, want %v", got, want)
	}
}

func TestRemoveString(t *testing.T) {
	got := RemoveString([]string{"a", "b", "a"}, "a")
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("RemoveString() = %v", got)
	}
}

func TestDBMultiValuePlaceholders(t *testing.T) {
	if got := DBMultiValuePlaceholders(3); got != "(?,?,?)" {
		t.Errorf("DBMultiValuePlaceholders(3) = %s", got)
	}
}

func TestRuneLen(t *testing.T) {
	if got := RuneLen("héllo"); got != 5 {
		t.Errorf("RuneLen() = %d, want 5", got)
	}
}
