package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dshills/modelstore/pkg/types"
)

// resourceDirs maps the top-level directory of a model file to the kind of
// resource it declares. workspace.yaml at the root declares the workspace.
var resourceDirs = map[string]types.ResourceType{
	"domains":       types.ResourceDomain,
	"tables":        types.ResourceTable,
	"relationships": types.ResourceRelation,
	"systems":       types.ResourceSystem,
	"decisions":     types.ResourceDecision,
	"knowledge":     types.ResourceArticle,
}

// ScanConfig contains configuration for ScanDirectory
type ScanConfig struct {
	Workers int // Number of concurrent readers (default: runtime.NumCPU())
}

// ScanResult describes a ScanDirectory run
type ScanResult struct {
	Report        *ReconcileReport
	FilesScanned  int
	FilesSkipped  int
	FilesFailed   int
	Duration      time.Duration
	ErrorMessages []string
}

// ScanDirectory reads every model file under root and reconciles the set
// with the stored sync metadata. Files that cannot be read or do not
// declare an id are reported and left out of the reconciliation, so their
// previous metadata is marked deleted.
func (s *Syncer) ScanDirectory(ctx context.Context, root string, config *ScanConfig) (*ScanResult, error) {
	if config == nil {
		config = &ScanConfig{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	res := &ScanResult{ErrorMessages: make([]string, 0)}

	paths, skipped, err := discoverModelFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	res.FilesSkipped = skipped

	var (
		failed atomic.Int32
		mu     sync.Mutex // Protects res.ErrorMessages
	)
	files := make([]*types.TrackedFile, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := readModelFile(root, rel)
			if err != nil {
				failed.Add(1)
				mu.Lock()
				res.ErrorMessages = append(res.ErrorMessages, fmt.Sprintf("%s: %v", rel, err))
				mu.Unlock()
				// Continue with other files
				return nil
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tracked := make([]types.TrackedFile, 0, len(files))
	for _, f := range files {
		if f != nil {
			tracked = append(tracked, *f)
		}
	}

	report, err := s.ReconcileFiles(ctx, tracked)
	if err != nil {
		return nil, err
	}
	res.Report = report
	res.FilesScanned = len(tracked)
	res.FilesFailed = int(failed.Load())
	res.Duration = time.Since(start)

	s.log.WithFields(logrus.Fields{
		"root":     root,
		"scanned":  res.FilesScanned,
		"failed":   res.FilesFailed,
		"new":      len(report.New),
		"modified": len(report.Modified),
		"deleted":  len(report.Deleted),
	}).Info("Scanned model files")
	return res, nil
}

// discoverModelFiles returns the slash-separated paths, relative to root,
// of every YAML or JSON file in a resource directory, plus the number of
// other regular files seen
func discoverModelFiles(root string) ([]string, int, error) {
	var (
		files   []string
		skipped int
	)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if _, ok := resourceTypeOf(rel); !ok {
			if d.Type().IsRegular() {
				skipped++
			}
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files, skipped, err
}

// resourceTypeOf classifies a relative model file path
func resourceTypeOf(rel string) (types.ResourceType, bool) {
	switch path.Ext(rel) {
	case ".yaml", ".yml", ".json":
	default:
		return "", false
	}
	dir, _, found := strings.Cut(rel, "/")
	if !found {
		if strings.TrimSuffix(rel, path.Ext(rel)) == "workspace" {
			return types.ResourceWorkspace, true
		}
		return "", false
	}
	kind, ok := resourceDirs[dir]
	return kind, ok
}

// readModelFile loads a model file and the id it declares. JSON is valid
// YAML, so one decoder serves both.
func readModelFile(root, rel string) (*types.TrackedFile, error) {
	kind, _ := resourceTypeOf(rel)
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	var header struct {
		ID string `yaml:"id"`
	}
	if err := yaml.Unmarshal(content, &header); err != nil {
		return nil, fmt.Errorf("invalid model file: %w", err)
	}
	if header.ID == "" {
		return nil, types.ErrMissingID
	}
	return &types.TrackedFile{
		Path:         rel,
		Content:      content,
		ResourceType: kind,
		ResourceID:   header.ID,
	}, nil
}
