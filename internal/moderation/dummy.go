package moderation

import (
	"context"
	"sync"

	"github.com/imgproxy/imgproxy/internal/document"
)

// Dummy is an in-memory, URL-keyed test double grounded on
// moderation.rs's DummyModerationProvider: tests call Set to script the
// categories a given URL should "moderate" to; any unset URL moderates
// to an empty category set.
type Dummy struct {
	mu    sync.Mutex
	byURL map[string][]Category
}

// NewDummy returns an empty Dummy provider.
func NewDummy() *Dummy {
	return &Dummy{byURL: make(map[string][]Category)}
}

// Set scripts the categories a subsequent Moderate call for url should
// return.
func (d *Dummy) Set(url string, categories []Category) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byURL[url] = categories
}

func (d *Dummy) Moderate(ctx context.Context, ref *document.Ref) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cats := d.byURL[ref.Document().URL]
	out := make([]Category, len(cats))
	copy(out, cats)
	return Result{Categories: out, Provider: ProviderNone}, nil
}

func (d *Dummy) SupportedTypes() []string {
	return []string{"image/jpeg"}
}

func (d *Dummy) MaxDocumentSize() int64 {
	return 12
}
