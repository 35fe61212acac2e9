package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// snapshotTables lists every table in foreign key order, so a snapshot can
// be replayed front to back.
var snapshotTables = []string{
	"projects",
	"phases",
	"steps",
	"users",
	"jobs",
	"job_users",
	"files",
	"methods",
	"method_parameters",
	"tasks",
	"task_edges",
	"task_jobs",
	"task_files",
	"method_executions",
	"feedback",
	"notifications",
}

const snapshotTimeFormat = "2006-01-02 15:04:05.999999999-07:00"

type snapshotRecord struct {
	RecordType string         `json:"record_type"`
	Data       map[string]any `json:"data,omitempty"`
	Version    int            `json:"version,omitempty"`
}

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation. A failed export
// is logged and does not fail the write.
func (db *DB) EnableAutoSnapshot(path string, log logrus.FieldLogger) {
	db.SetOnChange(func(ctx context.Context) {
		if err := db.ExportSnapshot(ctx, path); err != nil {
			log.WithError(err).WithField("path", path).Warn("failed to export snapshot")
		}
	})
}

// ExportSnapshot writes every row of every table to path as JSONL, one
// record per line, atomically using a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	enc := json.NewEncoder(w)
	if err := enc.Encode(snapshotRecord{RecordType: "meta", Version: 1}); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	for _, table := range snapshotTables {
		if err := db.exportTable(ctx, enc, table); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (db *DB) exportTable(ctx context.Context, enc *json.Encoder, table string) error {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read %s columns: %w", table, err)
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		data := make(map[string]any, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				data[col] = string(v)
			case time.Time:
				data[col] = v.Format(snapshotTimeFormat)
			default:
				data[col] = v
			}
		}

		if err := enc.Encode(snapshotRecord{RecordType: table, Data: data}); err != nil {
			return fmt.Errorf("failed to write %s row: %w", table, err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

// ImportSnapshot replays a JSONL snapshot in one transaction. Rows whose
// primary key already exists are kept as they are.
//
// Methods are matched by name: a snapshot method whose name the database
// already holds under another id is not inserted, its parameters are
// dropped, and executions referring to it are pointed at the existing row.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := &Queries{exec: tx}
	methodIDs := map[string]string{}

	columns := make(map[string]map[string]bool, len(snapshotTables))
	for _, table := range snapshotTables {
		cols, err := tableColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		columns[table] = cols
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec snapshotRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot record: %w", err)
		}
		if rec.RecordType == "meta" {
			continue
		}

		allowed, ok := columns[rec.RecordType]
		if !ok {
			return fmt.Errorf("unknown snapshot record type: %s", rec.RecordType)
		}

		skip, err := q.remapMethod(ctx, &rec, methodIDs)
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		names := make([]string, 0, len(rec.Data))
		for name := range rec.Data {
			if !allowed[name] {
				return fmt.Errorf("unknown column %s.%s in snapshot", rec.RecordType, name)
			}
			names = append(names, name)
		}
		sort.Strings(names)

		args := make([]any, len(names))
		for i, name := range names {
			args[i] = rec.Data[name]
		}

		query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
			rec.RecordType, strings.Join(names, ", "), placeholders(len(names)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to import %s row: %w", rec.RecordType, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// remapMethod records in ids the snapshot method ids that already exist
// under another id and rewrites references to them. It reports whether rec
// should be skipped.
func (q *Queries) remapMethod(ctx context.Context, rec *snapshotRecord, ids map[string]string) (bool, error) {
	switch rec.RecordType {
	case "methods":
		name, _ := rec.Data["name"].(string)
		existing, err := q.GetMethodByName(ctx, name)
		if err != nil {
			return false, err
		}
		if existing == nil {
			return false, nil
		}
		if id, _ := rec.Data["id"].(string); id != existing.ID {
			ids[id] = existing.ID
			return true, nil
		}
	case "method_parameters":
		id, _ := rec.Data["method_id"].(string)
		_, remapped := ids[id]
		return remapped, nil
	case "method_executions":
		id, _ := rec.Data["method_id"].(string)
		if to, ok := ids[id]; ok {
			rec.Data["method_id"] = to
		}
	}
	return false, nil
}

func tableColumns(ctx context.Context, exec executor, table string) (map[string]bool, error) {
	rows, err := exec.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
