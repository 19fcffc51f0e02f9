package internal

import (
	"chat-relay/repositories"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const (
	InspectEndpoint = "/inspect"
	StatsEndpoint   = "/stats"
	defaultPrefix   = "msg:"
	maxInspectRows  = 500
)

type InspectRow struct {
	Key       string
	Kind      string
	Timestamp string
	Entity    string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() any

type PageData struct {
	Prefix    string
	Prefixes  []string
	Items     []InspectRow
	Truncated bool
}

// DebugServer serves a read-only view of the Badger store and the latest
// health sample. It is only started at debug log level.
type DebugServer struct {
	log      *slog.Logger
	db       *badger.DB
	mapper   RowMapper
	stats    StatsProvider
	prefixes []string
	tmpl     *template.Template
}

func NewDebugServer(log *slog.Logger, db *badger.DB, mapper RowMapper, stats StatsProvider, prefixes []string) *DebugServer {
	if mapper == nil {
		mapper = DefaultMapper
	}
	return &DebugServer{
		log:      log,
		db:       db,
		mapper:   mapper,
		stats:    stats,
		prefixes: prefixes,
		tmpl:     template.Must(template.ParseFS(templatesFS, "inspect.html")),
	}
}

func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(InspectEndpoint, d.inspect)
	mux.HandleFunc(StatsEndpoint, d.serveStats)
	return mux
}

// Start listens on every interface so the inspector is reachable from the
// network. The returned server is shut down by the caller.
func (d *DebugServer) Start(port int) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Warn("Debug server stopped", "error", err)
		}
	}()
	d.log.Info("Debug Badger inspector available",
		"url", fmt.Sprintf("http://localhost:%d%s", port, InspectEndpoint))
	return srv
}

func (d *DebugServer) inspect(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = defaultPrefix
	}
	data := PageData{Prefix: prefix, Prefixes: d.prefixes}

	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if len(data.Items) == maxInspectRows {
				data.Truncated = true
				return nil
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				data.Items = append(data.Items, d.mapper(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.tmpl.Execute(w, data); err != nil {
		d.log.Debug("Error while rendering inspector", "error", err)
	}
}

func (d *DebugServer) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var stats any = struct{}{}
	if d.stats != nil {
		stats = d.stats()
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		d.log.Debug("Error while encoding stats", "error", err)
	}
}

func DefaultMapper(key string, val []byte) InspectRow {
	return InspectRow{
		Key:       key,
		Kind:      "RAW",
		Timestamp: "--:--:--",
		Entity:    "--------",
		Detail:    fmt.Sprintf("Size: %d bytes", len(val)),
	}
}

// RecordMapper decodes relay records, password hashes stay hidden.
func RecordMapper(key string, val []byte) InspectRow {
	rec := repositories.Describe(key, val)
	row := InspectRow{Key: key, Kind: rec.Kind, Timestamp: "--:--:--", Entity: rec.Entity, Detail: rec.Detail}
	if !rec.Timestamp.IsZero() {
		row.Timestamp = rec.Timestamp.Format(time.DateTime)
	}
	return row
}
