package backup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hearthside/chorebank/internal/database"
)

type fakeS3 struct {
	keys  []string
	bytes int64
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.keys = append(f.keys, *input.Key)
	n, err := io.Copy(io.Discard, input.Body)
	if err != nil {
		return nil, err
	}
	f.bytes = n
	return &s3.PutObjectOutput{}, nil
}

func TestRunNowUploadsSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chorebank.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := &fakeS3{}
	m := NewManager(Config{DBPath: dbPath}, db, slog.Default())
	m.client = fake

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if !strings.HasPrefix(key, "snapshots/chorebank-") {
		t.Errorf("key = %q, want snapshots/chorebank- prefix", key)
	}
	if len(fake.keys) != 1 || fake.keys[0] != key {
		t.Errorf("uploaded keys = %v, want [%s]", fake.keys, key)
	}
	if fake.bytes == 0 {
		t.Error("uploaded zero bytes")
	}

	status := m.Status()
	if status.LastBackup == nil || status.LastKey != key {
		t.Errorf("status = %+v, want last backup recorded", status)
	}
}

func TestRunNowWithoutCredentials(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chorebank.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(Config{DBPath: dbPath}, db, slog.Default())
	if m.Enabled() {
		t.Error("manager should be disabled without credentials")
	}
	if _, err := m.RunNow(context.Background()); err == nil {
		t.Error("expected error when not configured")
	}
}
