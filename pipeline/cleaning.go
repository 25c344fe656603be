package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CleaningRule 清洗规则. Apply rewrites the dataset in place and returns the
// number of cells (or columns, for structural rules) it touched.
type CleaningRule interface {
	Apply(*Dataset) (int, error)
	Name() string
}

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats 清洗统计
type CleaningStats struct {
	Rows      int            `json:"rows"`
	Changes   map[string]int `json:"changes"`
	LastClean time.Time      `json:"last_clean"`
}

// NewDataCleaner 创建数据清洗器
func NewDataCleaner(logger *zap.Logger, rules ...CleaningRule) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	dc := &DataCleaner{
		logger: logger,
		stats:  CleaningStats{Changes: make(map[string]int)},
	}
	for _, rule := range rules {
		dc.AddRule(rule)
	}
	return dc
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean 按顺序执行所有规则
func (dc *DataCleaner) Clean(ds *Dataset) error {
	changes := make(map[string]int, len(dc.rules))
	for _, rule := range dc.rules {
		n, err := rule.Apply(ds)
		if err != nil {
			return fmt.Errorf("%s: %w", rule.Name(), err)
		}
		changes[rule.Name()] = n
		dc.logger.Info("cleaning rule applied",
			zap.String("rule", rule.Name()),
			zap.Int("changed", n),
		)
	}

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()
	dc.stats.Rows = len(ds.Rows)
	for name, n := range changes {
		dc.stats.Changes[name] += n
	}
	dc.stats.LastClean = time.Now()
	return nil
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Changes = make(map[string]int, len(dc.stats.Changes))
	for k, v := range dc.stats.Changes {
		stats.Changes[k] = v
	}
	return stats
}

// DropColumnsRule 删除列; absent columns are ignored.
type DropColumnsRule struct {
	Columns []string
}

func NewDropColumnsRule(columns ...string) *DropColumnsRule {
	return &DropColumnsRule{Columns: columns}
}

func (r *DropColumnsRule) Name() string { return "drop_columns" }

func (r *DropColumnsRule) Apply(ds *Dataset) (int, error) {
	dropped := 0
	for _, c := range r.Columns {
		if ds.DropColumn(c) {
			dropped++
		}
	}
	return dropped, nil
}

// SelectColumnsRule 保留指定列, in the given order. Dropped lists the removed
// columns after Apply.
type SelectColumnsRule struct {
	Columns []string
	Dropped []string
}

func NewSelectColumnsRule(columns ...string) *SelectColumnsRule {
	return &SelectColumnsRule{Columns: columns}
}

func (r *SelectColumnsRule) Name() string { return "select_columns" }

func (r *SelectColumnsRule) Apply(ds *Dataset) (int, error) {
	dropped, err := ds.Select(r.Columns)
	if err != nil {
		return 0, err
	}
	r.Dropped = dropped
	return len(dropped), nil
}

// ModeImputationRule 众数填充: every missing cell becomes the most frequent
// observed value of its column.
type ModeImputationRule struct {
	Markers []string
	// Modes holds the fill value chosen per column after Apply.
	Modes map[string]string
}

func NewModeImputationRule(markers []string) *ModeImputationRule {
	return &ModeImputationRule{Markers: markers}
}

func (r *ModeImputationRule) Name() string { return "mode_imputation" }

func (r *ModeImputationRule) Apply(ds *Dataset) (int, error) {
	r.Modes = make(map[string]string)
	filled := 0
	for j, column := range ds.Header {
		var observed []string
		missing := 0
		for _, row := range ds.Rows {
			if IsMissing(row[j], r.Markers) {
				missing++
				continue
			}
			observed = append(observed, strings.TrimSpace(row[j]))
		}
		if missing == 0 {
			continue
		}
		mode, ok := Mode(observed)
		if !ok {
			return filled, fmt.Errorf("column %s has no observed values", column)
		}
		r.Modes[column] = mode
		for _, row := range ds.Rows {
			if IsMissing(row[j], r.Markers) {
				row[j] = mode
				filled++
			}
		}
	}
	return filled, nil
}

// Mode returns the most frequent value. Ties go to the smallest value, in
// numeric order when every tied value is a number and lexicographic otherwise.
func Mode(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	counts := make(map[string]int)
	best := 0
	for _, v := range values {
		counts[v]++
		if counts[v] > best {
			best = counts[v]
		}
	}
	var tied []string
	for v, n := range counts {
		if n == best {
			tied = append(tied, v)
		}
	}
	sort.Slice(tied, func(i, j int) bool { return lessValue(tied, i, j) })
	return tied[0], true
}

func lessValue(values []string, i, j int) bool {
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return values[i] < values[j]
		}
	}
	a, _ := strconv.ParseFloat(values[i], 64)
	b, _ := strconv.ParseFloat(values[j], 64)
	if a != b {
		return a < b
	}
	return values[i] < values[j]
}

// SentinelReplaceRule 替换哨兵值, e.g. "3+" to "3". An empty column list
// applies the rule to every column.
type SentinelReplaceRule struct {
	From    string
	To      string
	Columns []string
}

func NewSentinelReplaceRule(from, to string, columns ...string) *SentinelReplaceRule {
	return &SentinelReplaceRule{From: from, To: to, Columns: columns}
}

func (r *SentinelReplaceRule) Name() string { return "sentinel_replace" }

func (r *SentinelReplaceRule) Apply(ds *Dataset) (int, error) {
	targets := make([]int, 0, len(ds.Header))
	if len(r.Columns) == 0 {
		for j := range ds.Header {
			targets = append(targets, j)
		}
	} else {
		for _, c := range r.Columns {
			if j := ds.ColumnIndex(c); j >= 0 {
				targets = append(targets, j)
			}
		}
	}
	replaced := 0
	for _, row := range ds.Rows {
		for _, j := range targets {
			if strings.TrimSpace(row[j]) == r.From {
				row[j] = r.To
				replaced++
			}
		}
	}
	return replaced, nil
}
