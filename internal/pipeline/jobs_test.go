package pipeline

import (
	"testing"
	"time"
)

func TestContentHashHex(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, c := range cases {
		if got := ContentHashHex([]byte(c.in)); got != c.want {
			t.Errorf("ContentHashHex(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if ContentHashHex([]byte("aaa")) == ContentHashHex([]byte("bbb")) {
		t.Error("expected different hashes for different inputs")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing document"},
		{StatusChunking, "splitting into chunks"},
		{StatusEmbedding, "embedding chunks"},
		{StatusStoring, "storing results"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_ProgressCounters(t *testing.T) {
	job := &Job{ID: "progress", UpdatedAt: time.Now()}
	job.SetTotalChunks(60)
	job.AddEmbedded(50)
	job.AddEmbedded(7)
	job.AddError("batch 2 (chunks 57-59): quota exceeded")
	job.SetStored(57)
	job.SetStatus(StatusPartial, "3 of 60 chunks failed")

	snap := job.Snapshot()
	p := snap.Progress
	if p.TotalChunks != 60 || p.ChunksEmbedded != 57 || p.ChunksStored != 57 {
		t.Errorf("unexpected counters %+v", p)
	}
	if len(p.Errors) != 1 || p.Errors[0] != "batch 2 (chunks 57-59): quota exceeded" {
		t.Errorf("unexpected errors %v", p.Errors)
	}
	if snap.Status != StatusPartial {
		t.Errorf("expected status %q, got %q", StatusPartial, snap.Status)
	}
}

func TestJob_SetParsed(t *testing.T) {
	job := &Job{ID: "parsed-test", UpdatedAt: time.Now()}
	job.SetParsed("Annual Report", 12, "abc")

	snap := job.Snapshot()
	if snap.Title != "Annual Report" || snap.Progress.Pages != 12 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if job.ContentHash != "abc" {
		t.Errorf("expected content hash %q, got %q", "abc", job.ContentHash)
	}
}

func TestJob_FileData(t *testing.T) {
	job := &Job{ID: "data-test"}
	data := []byte("file content here")
	job.SetFileData(data)
	got := job.FileData()
	if string(got) != string(data) {
		t.Errorf("expected file data %q, got %q", data, got)
	}
}

func TestJob_TerminalStatusDropsFileData(t *testing.T) {
	job := NewJob("a.txt", []byte("content"), 1000, 200)
	job.SetStatus(StatusCompleted, "done")
	if job.FileData() != nil {
		t.Error("expected file data to be released once the job finished")
	}
}

func TestNewJob(t *testing.T) {
	data := []byte("hello world")
	job := NewJob("notes.txt", data, 800, 100)
	if job.ID == "" {
		t.Fatal("expected a job id")
	}
	if job.DocID != ContentHashHex(data)[:16] {
		t.Errorf("expected doc id derived from content, got %q", job.DocID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.ChunkSize != 800 || job.ChunkOverlap != 100 {
		t.Errorf("unexpected chunk settings %d/%d", job.ChunkSize, job.ChunkOverlap)
	}
	other := NewJob("notes.txt", data, 800, 100)
	if other.ID == job.ID {
		t.Error("expected distinct job ids")
	}
	if other.DocID != job.DocID {
		t.Error("expected identical content to share a doc id")
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	for _, s := range []JobStatus{StatusCompleted, StatusFailed, StatusPartial, StatusDupSkipped} {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []JobStatus{StatusQueued, StatusParsing, StatusChunking, StatusEmbedding, StatusStoring} {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(expired)
	running := &Job{ID: "running", Status: StatusEmbedding, UpdatedAt: time.Now()}
	store.Put(running)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(fresh)

	if n := store.Cleanup(); n != 1 {
		t.Errorf("expected 1 job evicted, got %d", n)
	}

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Get("running") == nil {
		t.Error("expected in-flight job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	if n := store.Cleanup(); n != 0 || store.Len() != 0 {
		t.Errorf("expected nothing to clean, evicted %d, len %d", n, store.Len())
	}
}
