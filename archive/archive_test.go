package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "chat.log")
	content := bytes.Repeat([]byte(`{"traces": [{"name": "Echo"}]}`+"\n"), 200)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "archive", "chat.log"+Ext)
	stats, err := Write(dest, src)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if stats.Uncompressed != int64(len(content)) {
		t.Errorf("Uncompressed = %d, want %d", stats.Uncompressed, len(content))
	}
	if stats.Compressed == 0 || stats.Ratio() >= 1 {
		t.Errorf("stats = %+v, ratio %.2f", stats, stats.Ratio())
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}

	got, err := Read(dest)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("round trip mismatch")
	}

	restored := filepath.Join(dir, "restored.log")
	if err := Restore(restored, dest); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	data, _ := os.ReadFile(restored)
	if !bytes.Equal(data, content) {
		t.Error("restored content mismatch")
	}
}

func TestWrite_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := Write(filepath.Join(dir, "out.zst"), filepath.Join(dir, "missing.log")); !os.IsNotExist(err) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestRead_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("expected error for corrupt archive")
	}
}

func TestStats_RatioEmpty(t *testing.T) {
	if r := (Stats{}).Ratio(); r != 0 {
		t.Errorf("Ratio = %v, want 0", r)
	}
}
