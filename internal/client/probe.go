package client

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
)

// FSMarkerProbe finds partial plugin downloads in a plugin directory shared
// with the remote workload.
type FSMarkerProbe struct {
	Dir  string
	Glob string
}

// PendingDownloads returns the sorted base names of files matching Glob in Dir.
func (p FSMarkerProbe) PendingDownloads(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(p.Dir, p.Glob))
	if err != nil {
		return nil, fmt.Errorf("invalid download marker pattern %q: %w", p.Glob, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}
