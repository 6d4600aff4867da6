package services

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed data/size_guide.yaml
var defaultSizeGuide []byte

// Chart kinds in the size guide
const (
	ChartShirt = "shirt"
	ChartPants = "pants"
)

type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

type SizeRow struct {
	Size   string `yaml:"size"`
	Chest  *Range `yaml:"chest,omitempty"`
	Waist  *Range `yaml:"waist,omitempty"`
	Height Range  `yaml:"height"`
	Weight Range  `yaml:"weight"`
}

type SizeChart struct {
	Shirt []SizeRow `yaml:"shirt"`
	Pants []SizeRow `yaml:"pants"`
}

func (c SizeChart) rows(kind string) []SizeRow {
	if kind == ChartPants {
		return c.Pants
	}
	return c.Shirt
}

func (c SizeChart) validate() error {
	if len(c.Shirt) == 0 || len(c.Pants) == 0 {
		return fmt.Errorf("size guide needs both shirt and pants charts")
	}
	for _, rows := range [][]SizeRow{c.Shirt, c.Pants} {
		for _, row := range rows {
			if row.Size == "" || row.Height.Max < row.Height.Min || row.Weight.Max < row.Weight.Min {
				return fmt.Errorf("invalid size row %q", row.Size)
			}
		}
	}
	return nil
}

// SizeRecommendation is the size computed from body figures
type SizeRecommendation struct {
	Chart    string
	Size     string
	ByHeight string
	ByWeight string
	Rows     []SizeRow
}

// SizeGuide holds the active size chart. Reload swaps it atomically.
type SizeGuide struct {
	mu     sync.RWMutex
	chart  SizeChart
	path   string
	logger *zap.Logger
}

// NewSizeGuide loads the embedded chart, or the YAML file at path when set
func NewSizeGuide(path string, logger *zap.Logger) (*SizeGuide, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &SizeGuide{path: path, logger: logger.With(zap.String("component", "size_guide"))}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *SizeGuide) Reload() error {
	data := defaultSizeGuide
	if g.path != "" {
		b, err := os.ReadFile(g.path)
		if err != nil {
			return fmt.Errorf("read size guide: %w", err)
		}
		data = b
	}

	var chart SizeChart
	if err := yaml.Unmarshal(data, &chart); err != nil {
		return fmt.Errorf("parse size guide: %w", err)
	}
	if err := chart.validate(); err != nil {
		return err
	}

	g.mu.Lock()
	g.chart = chart
	g.mu.Unlock()
	return nil
}

// Chart returns a copy of the active chart
func (g *SizeGuide) Chart() SizeChart {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return SizeChart{
		Shirt: append([]SizeRow(nil), g.chart.Shirt...),
		Pants: append([]SizeRow(nil), g.chart.Pants...),
	}
}

// Recommend picks the size whose height and weight ranges cover the figures.
// Zero figures are ignored. When the figures point at different sizes, or a
// figure sits on a shared boundary, the larger size wins. ok is false when
// neither figure is given.
func (g *SizeGuide) Recommend(kind string, heightCM, weightKG int) (SizeRecommendation, bool) {
	if heightCM <= 0 && weightKG <= 0 {
		return SizeRecommendation{}, false
	}
	if kind != ChartPants {
		kind = ChartShirt
	}

	g.mu.RLock()
	rows := append([]SizeRow(nil), g.chart.rows(kind)...)
	g.mu.RUnlock()

	rec := SizeRecommendation{Chart: kind, Rows: rows}
	idx := -1
	if heightCM > 0 {
		i := rowFor(rows, heightCM, func(r SizeRow) Range { return r.Height })
		rec.ByHeight = rows[i].Size
		idx = i
	}
	if weightKG > 0 {
		i := rowFor(rows, weightKG, func(r SizeRow) Range { return r.Weight })
		rec.ByWeight = rows[i].Size
		if i > idx {
			idx = i
		}
	}
	rec.Size = rows[idx].Size
	return rec, true
}

// rowFor returns the last row covering v, clamping to the first or last row
// outside the chart
func rowFor(rows []SizeRow, v int, field func(SizeRow) Range) int {
	match := -1
	for i, row := range rows {
		if field(row).Contains(v) {
			match = i
		}
	}
	if match >= 0 {
		return match
	}
	if v < field(rows[0]).Min {
		return 0
	}
	if v > field(rows[len(rows)-1]).Max {
		return len(rows) - 1
	}
	// gap between rows: take the next larger one
	for i, row := range rows {
		if v < field(row).Min {
			return i
		}
	}
	return len(rows) - 1
}

// ChartKindFor maps a category slug or message onto the shirt or pants chart
func ChartKindFor(category, message string) string {
	if strings.HasPrefix(category, "quan") {
		return ChartPants
	}
	if category == "" && strings.Contains(strings.ToLower(message), "quần") {
		return ChartPants
	}
	return ChartShirt
}

// FormatRows renders chart rows as context lines for the size prompt
func FormatRows(kind string, rows []SizeRow) string {
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "Size %s: chiều cao %scm, cân nặng %skg", row.Size, row.Height, row.Weight)
		if kind == ChartPants && row.Waist != nil {
			fmt.Fprintf(&b, ", vòng eo %scm", row.Waist)
		}
		if kind != ChartPants && row.Chest != nil {
			fmt.Fprintf(&b, ", vòng ngực %scm", row.Chest)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// WatchSizeGuide reloads guide whenever its file changes, until ctx is done.
// It returns immediately; a guide without a file path is not watched.
func WatchSizeGuide(ctx context.Context, guide *SizeGuide) error {
	if guide.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create size guide watcher: %w", err)
	}
	// editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(guide.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch size guide: %w", err)
	}

	target := filepath.Clean(guide.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				if err := guide.Reload(); err != nil {
					guide.logger.Warn("Size guide reload failed, keeping previous chart", zap.Error(err))
					continue
				}
				guide.logger.Info("Size guide reloaded", zap.String("path", target))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				guide.logger.Warn("Size guide watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
