package videoqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/imgproxy/imgproxy/internal/document"
	"github.com/imgproxy/imgproxy/internal/store/memstore"
)

func TestDispatcherSubmitPersistsVerdictAndClearsJobExists(t *testing.T) {
	st := memstore.New()
	d := NewDispatcher(New(2, nil), &fakeBlobs{}, &scriptedModerator{statuses: []string{"SUCCEEDED"}}, st, nil)

	doc := &document.Document{ID: uuid.New(), URL: "http://x/clip.mp4", ContentType: "video/mp4", Bytes: []byte("bytes")}
	d.Submit(context.Background(), doc)

	deadline := time.After(time.Second)
	for d.JobExists(doc.URL) {
		select {
		case <-deadline:
			t.Fatal("job still tracked after task should have completed")
		case <-time.After(time.Millisecond):
		}
	}

	verdicts, _ := st.GetVerdicts(context.Background(), []string{doc.URL})
	if len(verdicts) != 1 {
		t.Fatalf("verdicts = %+v, want one persisted verdict", verdicts)
	}
}
