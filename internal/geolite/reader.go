package geolite

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
	"golang.org/x/sync/singleflight"

	"anonedits/internal/netaddr"
)

// ErrNoDatabase is returned when no ASN database path is configured.
var ErrNoDatabase = errors.New("geolite: no ASN database configured")

// Reader resolves addresses to their autonomous system using a GeoLite2-ASN
// database. A nil or empty Reader answers every lookup with ok == false.
type Reader struct {
	path string

	mu sync.RWMutex
	db *geoip2.Reader

	reloads singleflight.Group
}

func Open(path string) (*Reader, error) {
	if path == "" {
		return nil, ErrNoDatabase
	}

	r := &Reader{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reopens the database file, replacing the current handle. Concurrent
// callers share one reload.
func (r *Reader) Reload() error {
	_, err, _ := r.reloads.Do("reload", func() (interface{}, error) {
		db, err := geoip2.Open(r.path)
		if err != nil {
			return nil, fmt.Errorf("geolite: open %s: %w", r.path, err)
		}

		r.mu.Lock()
		old := r.db
		r.db = db
		r.mu.Unlock()

		if old != nil {
			_ = old.Close()
		}
		log.Info("GeoLite ASN database loaded", "path", r.path, "build", db.Metadata().BuildEpoch)
		return nil, nil
	})
	return err
}

func (r *Reader) Lookup(addr netaddr.Value) (asn uint, org string, ok bool) {
	if r == nil {
		return 0, "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return 0, "", false
	}

	record, err := r.db.ASN(addr.IP())
	if err != nil {
		log.Debug("GeoLite ASN lookup failed", "ip", addr.String(), "error", err)
		return 0, "", false
	}
	if record.AutonomousSystemNumber == 0 {
		return 0, "", false
	}
	return record.AutonomousSystemNumber, record.AutonomousSystemOrganization, true
}

func (r *Reader) Close() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
