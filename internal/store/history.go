package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ccw-dev/ccw/internal/ccw"
)

// ProjectLister enumerates the child projects of a root base dir. The
// engine treats project layout as an external concern; the default
// implementation scans for immediate subdirectories that carry a
// conversation database.
type ProjectLister interface {
	ChildProjects(root string) ([]string, error)
}

// DirLister is the filesystem ProjectLister.
type DirLister struct{}

// ChildProjects returns immediate subdirectories of root that contain a
// conversation database.
func (DirLister) ChildProjects(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		child := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(child, filepath.FromSlash(DBRelPath))); err == nil {
			dirs = append(dirs, child)
		}
	}
	return dirs, nil
}

// RecursiveHistory aggregates History across the root project and all
// its child projects. The per-project limit is applied at each source
// before merging, so no single project loads unbounded history; the
// merged set is then re-sorted newest-first and re-limited globally.
func (f *Factory) RecursiveHistory(ctx context.Context, root string, filters Filters, lister ProjectLister) ([]ccw.Summary, error) {
	dirs := []string{root}
	children, err := lister.ChildProjects(root)
	if err == nil {
		dirs = append(dirs, children...)
	}

	var mu sync.Mutex
	var merged []ccw.Summary

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			st, err := f.ForProject(dir)
			if err != nil {
				// A project with an unreadable store degrades to "no
				// history" rather than failing the aggregate.
				return nil
			}
			sums, err := st.History(filters)
			if err != nil {
				return nil
			}
			mu.Lock()
			merged = append(merged, sums...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].SortTime().After(merged[j].SortTime())
	})
	if len(merged) > filters.limit() {
		merged = merged[:filters.limit()]
	}
	return merged, nil
}
