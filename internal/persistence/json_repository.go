// Package persistence provides a JSON-file-backed implementation of the
// scan row repository, in the same spirit as the teacher's own
// mutex-guarded JSON persistence layer: an in-memory index backed by a
// single file rewritten atomically on every mutation.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/secinto/httpobservatory/internal/domain/scan"
	"github.com/secinto/httpobservatory/internal/grader"
	"github.com/secinto/httpobservatory/internal/shared/constants"
	secerrors "github.com/secinto/httpobservatory/internal/shared/errors"
)

// rowDTO is the on-disk shape of a scan.Row. Kept distinct from the
// domain type so a future storage format change doesn't ripple into
// internal/domain/scan, following the teacher's own toDTO/fromDTO split.
type rowDTO struct {
	ID               int64         `json:"id"`
	SiteKey          string        `json:"site_key"`
	StartTime        string        `json:"start_time"`
	AlgorithmVersion int           `json:"algorithm_version"`
	Grade            *grader.Grade `json:"grade"`
	Score            *int          `json:"score"`
	StatusCode       int           `json:"status_code"`
	Error            string        `json:"error,omitempty"`
	TestsPassed      int           `json:"tests_passed"`
	TestsFailed      int           `json:"tests_failed"`
	TestsQuantity    int           `json:"tests_quantity"`
}

func toDTO(r scan.Row) rowDTO {
	return rowDTO{
		ID:               r.ID,
		SiteKey:          r.SiteKey,
		StartTime:        r.StartTime.UTC().Format("2006-01-02T15:04:05.000Z"),
		AlgorithmVersion: r.AlgorithmVersion,
		Grade:            r.Grade,
		Score:            r.Score,
		StatusCode:       r.StatusCode,
		Error:            r.Error,
		TestsPassed:      r.TestsPassed,
		TestsFailed:      r.TestsFailed,
		TestsQuantity:    r.TestsQuantity,
	}
}

func fromDTO(d rowDTO) scan.Row {
	t, _ := parseISO8601(d.StartTime)
	return scan.Row{
		ID:               d.ID,
		SiteKey:          d.SiteKey,
		StartTime:        t,
		AlgorithmVersion: d.AlgorithmVersion,
		Grade:            d.Grade,
		Score:            d.Score,
		StatusCode:       d.StatusCode,
		Error:            d.Error,
		TestsPassed:      d.TestsPassed,
		TestsFailed:      d.TestsFailed,
		TestsQuantity:    d.TestsQuantity,
	}
}

// Repository is a mutex-guarded, file-backed scan.Repository. Every
// mutation rewrites the whole file; this repo is sized for the modest
// corpus a single-node deployment accumulates, not for a high-churn
// workload — the same tradeoff the teacher's own JSON repositories make.
type Repository struct {
	mu      sync.RWMutex
	path    string
	rows    []rowDTO
	nextID  int64
}

// Open loads path if it exists (creating its parent directory if
// needed) and returns a ready Repository. A missing file is not an
// error: it is treated as an empty store.
func Open(path string) (*Repository, error) {
	r := &Repository{path: path, nextID: 1}
	if err := os.MkdirAll(filepath.Dir(path), constants.DefaultDirPerm); err != nil {
		return nil, secerrors.ErrRepositoryOperation
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, secerrors.ErrRepositoryOperation
	}
	if len(data) == 0 {
		return r, nil
	}
	var rows []rowDTO
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, secerrors.ErrSerializationFailed
	}
	r.rows = rows
	for _, row := range rows {
		if row.ID >= r.nextID {
			r.nextID = row.ID + 1
		}
	}
	return r, nil
}

func (r *Repository) Save(row scan.Row) (scan.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, toDTO(row))
	if err := r.flushLocked(); err != nil {
		return scan.Row{}, err
	}
	return row, nil
}

func (r *Repository) Latest(siteKey string) (scan.Row, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *rowDTO
	for i := range r.rows {
		if r.rows[i].SiteKey == siteKey {
			if latest == nil || r.rows[i].ID > latest.ID {
				latest = &r.rows[i]
			}
		}
	}
	if latest == nil {
		return scan.Row{}, false, nil
	}
	return fromDTO(*latest), true, nil
}

func (r *Repository) History(siteKey string) ([]scan.Row, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []scan.Row
	for _, d := range r.rows {
		if d.SiteKey == siteKey {
			out = append(out, fromDTO(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) All() ([]scan.Row, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]scan.Row, 0, len(r.rows))
	for _, d := range r.rows {
		out = append(out, fromDTO(d))
	}
	return out, nil
}

// flushLocked rewrites the whole file. Callers must hold r.mu for
// writing.
func (r *Repository) flushLocked() error {
	data, err := json.MarshalIndent(r.rows, "", "  ")
	if err != nil {
		return secerrors.ErrSerializationFailed
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, constants.DefaultFilePerm); err != nil {
		return secerrors.ErrRepositoryOperation
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return secerrors.ErrRepositoryOperation
	}
	return nil
}
