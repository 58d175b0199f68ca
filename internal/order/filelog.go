package order

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// record is one line of the append log: either a full order or a status
// patch referencing an earlier order by id.
type record struct {
	Kind    string `json:"kind"` // "order" or "status"
	Order   *Order `json:"order,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Status  Status `json:"status,omitempty"`
}

// FileLog is a [Store] backed by an append-only JSONL file. Every mutation
// is a single buffered write of one full line, so concurrent sessions never
// interleave partial records. Reads fold the log: the latest status patch
// for an id wins.
type FileLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

var _ Store = (*FileLog)(nil)

// OpenFileLog opens (creating if needed) the append log at path.
func OpenFileLog(path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("order: open log %q: %w", path, err)
	}
	return &FileLog{f: f, path: path}, nil
}

// Close closes the underlying file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Append writes a new order record as one log line.
func (l *FileLog) Append(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.appendRecord(record{Kind: "order", Order: &o})
}

// List replays the log and returns every order with its folded status,
// oldest first.
func (l *FileLog) List(ctx context.Context) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	data, err := os.ReadFile(l.path)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("order: read log %q: %w", l.path, err)
	}
	return foldLog(data)
}

// UpdateStatus appends a status patch for the given order. Appending is
// skipped when the order already carries the requested status, which keeps
// repeated terminal updates from growing the log.
func (l *FileLog) UpdateStatus(ctx context.Context, id string, status Status) (bool, error) {
	if !status.IsValid() {
		return false, fmt.Errorf("order: invalid status %q", status)
	}
	orders, err := l.List(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.ID != id {
			continue
		}
		if o.Status == status {
			return true, nil
		}
		if err := l.appendRecord(record{Kind: "status", OrderID: id, Status: status}); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (l *FileLog) appendRecord(rec record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("order: marshal record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("order: append: %w", err)
	}
	return nil
}

// foldLog replays log lines in order, applying status patches to their
// orders. Unparseable lines are skipped rather than failing the whole read.
func foldLog(data []byte) ([]Order, error) {
	var orders []Order
	index := make(map[string]int)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		switch rec.Kind {
		case "order":
			if rec.Order == nil {
				continue
			}
			index[rec.Order.ID] = len(orders)
			orders = append(orders, *rec.Order)
		case "status":
			if i, ok := index[rec.OrderID]; ok {
				orders[i].Status = rec.Status
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("order: scan log: %w", err)
	}
	return orders, nil
}
