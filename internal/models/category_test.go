package models_test

import (
	"testing"

	"thiepcuoi/internal/models"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Category
		wantErr bool
	}{
		{"album", models.CategoryAlbum, false},
		{" qr-groom ", models.CategoryQRGroom, false},
		{"qr-bride", models.CategoryQRBride, false},
		{"story", models.CategoryStory, false},
		{"couple", models.CategoryCouple, false},
		{"", "", true},
		{"Album", "", true},
		{"qr", "", true},
	}
	for _, tt := range tests {
		got, err := models.ParseCategory(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCategory_IsSingleton(t *testing.T) {
	for _, c := range models.Categories {
		want := c == models.CategoryQRGroom || c == models.CategoryQRBride
		if c.IsSingleton() != want {
			t.Fatalf("%s.IsSingleton() = %v, want %v", c, c.IsSingleton(), want)
		}
		if !c.Valid() {
			t.Fatalf("%s should be valid", c)
		}
	}
}
