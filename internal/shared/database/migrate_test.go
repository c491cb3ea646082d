package database

import "testing"

func TestPendingFilesSkipsApplied(t *testing.T) {
	files, err := pendingFiles(map[string]bool{})
	if err != nil {
		t.Fatalf("pendingFiles: %v", err)
	}
	if len(files) == 0 || files[0] != "001_init.sql" {
		t.Fatalf("expected 001_init.sql first, got %v", files)
	}

	files, err = pendingFiles(map[string]bool{"001_init": true})
	if err != nil {
		t.Fatalf("pendingFiles: %v", err)
	}
	for _, f := range files {
		if f == "001_init.sql" {
			t.Fatal("applied migration still listed as pending")
		}
	}
}
