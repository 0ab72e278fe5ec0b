package moderation

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/imgproxy/imgproxy/internal/document"
)

func TestFlattenPrefersParentName(t *testing.T) {
	got := Flatten(nil, []RawLabel{{Name: "Female Swimwear Or Underwear", ParentName: "Suggestive"}})
	want := []Category{Suggestive}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}

func TestFlattenFallsBackToNameWithoutParent(t *testing.T) {
	got := Flatten(nil, []RawLabel{{Name: "Gambling", ParentName: ""}})
	want := []Category{Gambling}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}

func TestFlattenUnknownNameMapsToUnknown(t *testing.T) {
	got := Flatten(nil, []RawLabel{{Name: "Something Rekognition Never Returned Before"}})
	want := []Category{Unknown}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}

func TestFlattenDedupsAndSorts(t *testing.T) {
	got := Flatten(nil, []RawLabel{
		{ParentName: "Hate"},
		{ParentName: "Violence"},
		{ParentName: "Hate"},
	})
	want := []Category{Violence, Hate}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}

func TestFlattenIgnoresEmptyLabel(t *testing.T) {
	got := Flatten(nil, []RawLabel{{Name: "", ParentName: ""}})
	if len(got) != 0 {
		t.Errorf("Flatten() = %v, want empty", got)
	}
}

func TestResultBlocked(t *testing.T) {
	if (Result{}).Blocked() {
		t.Error("Blocked() = true for empty categories, want false")
	}
	if !(Result{Categories: []Category{Violence}}).Blocked() {
		t.Error("Blocked() = false for non-empty categories, want true")
	}
}

func TestDummyMatchesScriptedCategories(t *testing.T) {
	d := NewDummy()
	d.Set("http://localhost/x.jpg", []Category{Gambling, Drugs})

	ref := document.NewRef(&document.Document{ID: uuid.New(), URL: "http://localhost/x.jpg"})
	result, err := d.Moderate(context.Background(), ref)
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if !reflect.DeepEqual(result.Categories, []Category{Gambling, Drugs}) {
		t.Errorf("categories = %v, want [Gambling Drugs]", result.Categories)
	}
	if d.MaxDocumentSize() != 12 {
		t.Errorf("MaxDocumentSize() = %d, want 12", d.MaxDocumentSize())
	}
	if len(d.SupportedTypes()) != 1 {
		t.Errorf("SupportedTypes() = %v, want len 1", d.SupportedTypes())
	}
}

func TestDummyUnsetURLModeratesEmpty(t *testing.T) {
	d := NewDummy()
	ref := document.NewRef(&document.Document{ID: uuid.New(), URL: "http://localhost/unset.jpg"})
	result, err := d.Moderate(context.Background(), ref)
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if len(result.Categories) != 0 {
		t.Errorf("categories = %v, want empty", result.Categories)
	}
}
