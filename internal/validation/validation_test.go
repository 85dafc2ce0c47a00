package validation

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "simple name",
			input:   "Mia",
			wantErr: false,
		},
		{
			name:    "single character",
			input:   "J",
			wantErr: false,
		},
		{
			name:    "unicode name",
			input:   "小明",
			wantErr: false,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only spaces",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "too long",
			input:   strings.Repeat("a", MaxNameLength+1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePoints(t *testing.T) {
	tests := []struct {
		name    string
		points  int
		wantErr bool
	}{
		{name: "positive", points: 5, wantErr: false},
		{name: "negative", points: -7, wantErr: false},
		{name: "zero", points: 0, wantErr: true},
		{name: "at upper bound", points: MaxPoints, wantErr: false},
		{name: "at lower bound", points: -MaxPoints, wantErr: false},
		{name: "above bound", points: MaxPoints + 1, wantErr: true},
		{name: "below bound", points: -MaxPoints - 1, wantErr: true},
		{name: "min int", points: math.MinInt, wantErr: true},
		{name: "max int", points: math.MaxInt, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePoints(tt.points)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePoints(%d) error = %v, wantErr %v", tt.points, err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrorField(t *testing.T) {
	err := ValidateID("childId", "")
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Field != "childId" {
		t.Errorf("Field = %q, want childId", verr.Field)
	}
	if err.Error() != "childId: childId is required" {
		t.Errorf("Error() = %q", err.Error())
	}
}
