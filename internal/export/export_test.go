package export_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"offsider/internal/db"
	"offsider/internal/engine"
	"offsider/internal/export"
	"offsider/internal/migrate"
)

func readEntry(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(data)
	}
	t.Fatalf("entry %s missing", name)
	return ""
}

func TestWriteArchive(t *testing.T) {
	conn, err := db.Open(db.Config{DataDir: t.TempDir(), Rig: "default"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn)
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }
	eng.Audit.Now = eng.Now
	ctx := context.Background()

	if _, err := eng.CreateStockItem(ctx, engine.StockCreateOptions{
		Name: "Rags", OnRigQty: 4, MinQty: 1, BufferQty: 2, Location: "Shed", Actor: "kez",
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if _, err := eng.CreateRestockItem(ctx, engine.RestockCreateOptions{Actor: "kez"}); err != nil {
		t.Fatalf("seed restock: %v", err)
	}

	var buf bytes.Buffer
	if err := export.Write(ctx, conn, &buf, export.Options{Actor: "kez", Now: eng.Now}); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}

	wantNames := []string{
		"settings.csv", "stock_items.csv", "restock_items.csv", "bits.csv",
		"equipment_faults.csv", "handover_notes.csv", "job_tasks.csv",
		"location_nodes.csv", "stock_location_links.csv", "travel_logs.csv",
		"refuel_logs.csv", "usage_logs.csv", "shrouds.csv", "manifest.txt",
	}
	if len(zr.File) != len(wantNames) {
		t.Fatalf("got %d entries, want %d", len(zr.File), len(wantNames))
	}
	for i, f := range zr.File {
		if f.Name != wantNames[i] {
			t.Fatalf("entry %d = %s, want %s", i, f.Name, wantNames[i])
		}
	}

	stock := readEntry(t, zr, "stock_items.csv")
	lines := strings.Split(strings.TrimRight(stock, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("stock lines = %d: %q", len(lines), stock)
	}
	if lines[0] != "buffer_qty,created_at,id,location,min_qty,name,on_rig_qty,unit,updated_at" {
		t.Fatalf("stock header = %q", lines[0])
	}
	if lines[1] != "2,2024-06-01T08:00:00Z,1,Shed,1,Rags,4,ea,2024-06-01T08:00:00Z" {
		t.Fatalf("stock row = %q", lines[1])
	}

	// an unlinked restock leaves stock_item_id blank
	restock := readEntry(t, zr, "restock_items.csv")
	lines = strings.Split(strings.TrimRight(restock, "\n"), "\n")
	if lines[0] != "created_at,id,is_closed,name,priority,qty,stock_item_id,unit" {
		t.Fatalf("restock header = %q", lines[0])
	}
	if lines[1] != "2024-06-01T08:00:00Z,1,0,Unnamed,2,1,,ea" {
		t.Fatalf("restock row = %q", lines[1])
	}

	// empty tables stay as zero-byte entries, not a lone header
	if got := readEntry(t, zr, "travel_logs.csv"); got != "" {
		t.Fatalf("travel_logs not empty: %q", got)
	}

	manifest := readEntry(t, zr, "manifest.txt")
	want := "exported_at,2024-06-01T08:00:00Z\nexported_by,kez\n"
	if manifest != want {
		t.Fatalf("manifest = %q, want %q", manifest, want)
	}
}
