package metrics

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SysHealth represents real-time system metrics.
type SysHealth struct {
	Status       string `json:"status"`
	Database     string `json:"database"`
	AllocMB      uint64 `json:"allocMb"`
	TotalAllocMB uint64 `json:"totalAllocMb"`
	SysMB        uint64 `json:"sysMb"`
	NumGC        uint32 `json:"numGc"`
	Goroutines   int    `json:"goroutines"`
	DataDiskSize string `json:"dataDiskSize"`
	Uptime       string `json:"uptime"`
}

// Reporter collects health data for the process and its database.
type Reporter struct {
	db       Pinger
	dataPath string
	started  time.Time
}

func NewReporter(db Pinger, dataPath string) *Reporter {
	return &Reporter{db: db, dataPath: dataPath, started: time.Now()}
}

// Health collects real-time health data. Status is "degraded" when the
// database does not answer a ping within two seconds.
func (r *Reporter) Health(ctx context.Context) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := SysHealth{
		Status:       "ok",
		Database:     "ok",
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DataDiskSize: humanize.Bytes(dirSize(r.dataPath)),
		Uptime:       time.Since(r.started).Truncate(time.Second).String(),
	}

	if r.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.db.PingContext(pingCtx); err != nil {
			h.Status = "degraded"
			h.Database = err.Error()
		}
	}
	return h
}

func dirSize(path string) uint64 {
	var size uint64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += uint64(info.Size())
		}
		return nil
	})
	return size
}
