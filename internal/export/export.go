// Package export writes one rig database as a zip of per-table CSV files,
// the offline fallback for crews without a reliable link back to town.
package export

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// Filename is the download name for the archive.
const Filename = "offline_export.csv.zip"

// tables lists every exported table in archive order. The audit trail and
// the equipment register stay out of the offline bundle.
var tables = []string{
	"settings",
	"stock_items",
	"restock_items",
	"bits",
	"equipment_faults",
	"handover_notes",
	"job_tasks",
	"location_nodes",
	"stock_location_links",
	"travel_logs",
	"refuel_logs",
	"usage_logs",
	"shrouds",
}

type Options struct {
	Actor string
	Now   func() time.Time
}

// Write streams the archive to w: one CSV per table with an alphabetized
// header row, empty tables as zero-byte entries, plus a manifest naming the
// exporter and the export time.
func Write(ctx context.Context, conn *sql.DB, w io.Writer, opts Options) error {
	zw := zip.NewWriter(w)
	for _, table := range tables {
		f, err := zw.Create(table + ".csv")
		if err != nil {
			return err
		}
		if err := writeTable(ctx, conn, f, table); err != nil {
			return fmt.Errorf("export %s: %w", table, err)
		}
	}
	f, err := zw.Create("manifest.txt")
	if err != nil {
		return err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	actor := opts.Actor
	if actor == "" {
		actor = "crew"
	}
	if _, err := fmt.Fprintf(f, "exported_at,%s\nexported_by,%s\n", now().UTC().Format(time.RFC3339), actor); err != nil {
		return err
	}
	return zw.Close()
}

func writeTable(ctx context.Context, conn *sql.DB, w io.Writer, table string) error {
	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	order := make([]int, len(cols))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return cols[order[i]] < cols[order[j]] })

	cw := csv.NewWriter(w)
	wroteHeader := false
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(cols))
	for rows.Next() {
		if !wroteHeader {
			header := make([]string, len(cols))
			for i, idx := range order {
				header[i] = cols[idx]
			}
			if err := cw.Write(header); err != nil {
				return err
			}
			wroteHeader = true
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, idx := range order {
			record[i] = cell(values[idx])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
