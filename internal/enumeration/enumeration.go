// Package enumeration walks the DVB adapter tree and instantiates one
// Frontend per discovered frontend device node.
package enumeration

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/mpostema/dvbstreamer/internal/frontend"
	"github.com/mpostema/dvbstreamer/internal/logging"
)

var frontendPathPattern = regexp.MustCompile(`^adapter(\d+)/frontend(\d+)$`)

// Discovered describes one frontend device node found under root.
type Discovered struct {
	Adapter  int
	Frontend int
	Paths    frontend.Paths
}

// WalkAdapterTree walks root (conventionally /dev/dvb) with filepath.WalkDir
// for frontendM nodes and derives the sibling demuxM/dvrM paths. Only nodes
// at adapterN/frontendM relative to root are recognised; frontends at any
// other depth or under other directory names are skipped.
func WalkAdapterTree(root string) ([]Discovered, error) {
	var out []Discovered

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // missing adapters are not fatal; keep scanning
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		m := frontendPathPattern.FindStringSubmatch(rel)
		if m == nil {
			return nil
		}
		adapter, _ := strconv.Atoi(m[1])
		fe, _ := strconv.Atoi(m[2])
		out = append(out, Discovered{
			Adapter:  adapter,
			Frontend: fe,
			Paths: frontend.Paths{
				Frontend: path,
				Demux:    filepath.Join(root, fmt.Sprintf("adapter%d", adapter), fmt.Sprintf("demux%d", fe)),
				DVR:      filepath.Join(root, fmt.Sprintf("adapter%d", adapter), fmt.Sprintf("dvr%d", fe)),
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk adapter tree %s: %w", root, err)
	}
	return out, nil
}

// BuildFrontends discovers every frontend under root and constructs (but
// does not open) a *frontend.Frontend for each, assigning a small
// sequential FeID in discovery order.
func BuildFrontends(root string, logger logging.Logger) ([]*frontend.Frontend, error) {
	discovered, err := WalkAdapterTree(root)
	if err != nil {
		return nil, err
	}
	out := make([]*frontend.Frontend, 0, len(discovered))
	for i, d := range discovered {
		out = append(out, frontend.New(i, d.Paths, logger))
	}
	return out, nil
}
