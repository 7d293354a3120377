package db_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"offsider/internal/db"
	"offsider/internal/migrate"
)

func TestSafeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"default", "default"},
		{"rig-12", "rig-12"},
		{"Rig 12!", "Rig12"},
		{"../evil", "evil"},
		{"a/b\\c", "abc"},
		{"", "default"},
		{"///", "default"},
	}
	for _, c := range cases {
		if got := db.SafeName(c.in); got != c.want {
			t.Errorf("SafeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPath(t *testing.T) {
	if got := db.Path("", "alpha"); got != filepath.Join("data", "alpha.db") {
		t.Errorf("Path with empty dir = %q", got)
	}
	if got := db.Path("/var/rig", "a b"); got != filepath.Join("/var/rig", "ab.db") {
		t.Errorf("Path = %q", got)
	}
}

func TestDirRegistry(t *testing.T) {
	dir := t.TempDir()
	reg := db.DirRegistry{Dir: dir}

	ids, err := reg.ListRigIDs()
	if err != nil {
		t.Fatalf("list empty dir: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"default"}) {
		t.Fatalf("empty dir ids = %v", ids)
	}

	for _, name := range []string{"alpha.db", "default.db", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.db"), 0o755); err != nil {
		t.Fatal(err)
	}

	ids, err = reg.ListRigIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"alpha", "default"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestDirRegistryMissingDir(t *testing.T) {
	reg := db.DirRegistry{Dir: filepath.Join(t.TempDir(), "nope")}
	ids, err := reg.ListRigIDs()
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"default"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestStoresGetCachesAndInits(t *testing.T) {
	dir := t.TempDir()
	stores := db.NewStores(dir, migrate.Migrate)
	defer stores.Close()

	conn, err := stores.Get("alpha")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM stock_items`).Scan(&n); err != nil {
		t.Fatalf("migrated schema missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alpha.db")); err != nil {
		t.Fatalf("store file not created: %v", err)
	}

	again, err := stores.Get("alpha")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again != conn {
		t.Fatal("second Get returned a different connection")
	}

	// Unsafe ids collapse onto the same store as their safe name.
	aliased, err := stores.Get("alpha!")
	if err != nil {
		t.Fatalf("aliased get: %v", err)
	}
	if aliased != conn {
		t.Fatal("SafeName alias should share the cached connection")
	}
}
