package maintenance_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"thiepcuoi/internal/models"
	"thiepcuoi/pkg/hasher"
	"thiepcuoi/pkg/maintenance"
	"thiepcuoi/pkg/storage/local"
)

func newMaintenance(t *testing.T) maintenance.Maintenance {
	t.Helper()
	m, err := maintenance.NewMaintenance(filepath.Join(t.TempDir(), "logs"), 2)
	if err != nil {
		t.Fatalf("NewMaintenance: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestGenerateFileManifest(t *testing.T) {
	m := newMaintenance(t)
	library := t.TempDir()
	files := map[string]string{"b.webp": "bbb", "a.webp": "aaa", "c.jpg": "ccc"}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(library, name), []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	manifest, err := m.GenerateFileManifest(context.Background(), library, filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatalf("GenerateFileManifest: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(manifest), "manifest_") {
		t.Fatalf("清单文件名 = %s", manifest)
	}
	data, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := hasher.Digest([]byte("aaa")) + " *a.webp\n" +
		hasher.Digest([]byte("bbb")) + " *b.webp\n" +
		hasher.Digest([]byte("ccc")) + " *c.jpg\n"
	if string(data) != want {
		t.Fatalf("清单内容 =\n%s\nwant\n%s", data, want)
	}
}

func TestGenerateFileManifest_Cancelled(t *testing.T) {
	m := newMaintenance(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.GenerateFileManifest(ctx, t.TempDir(), t.TempDir()); err == nil {
		t.Fatalf("取消后应该返回错误")
	}
}

func TestAudit(t *testing.T) {
	m := newMaintenance(t)
	assets, err := local.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, name := range []string{"kept.webp", "orphan-b.jpg", "orphan-a.webp"} {
		if err := assets.WriteFile(name, []byte(name)); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	missingID := primitive.NewObjectID()
	images := []models.Image{
		{ID: primitive.NewObjectID(), FileName: "kept.webp"},
		{ID: missingID, FileName: "gone.webp"},
	}

	report, err := m.Audit(images, assets)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	wantMissing := []maintenance.MissingAsset{{ID: missingID.Hex(), FileName: "gone.webp"}}
	if !reflect.DeepEqual(report.Missing, wantMissing) {
		t.Fatalf("Missing = %+v, want %+v", report.Missing, wantMissing)
	}
	if !reflect.DeepEqual(report.Orphans, []string{"orphan-a.webp", "orphan-b.jpg"}) {
		t.Fatalf("Orphans = %v", report.Orphans)
	}
}
