package chain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/multierr"

	"github.com/pithecene-io/workbench/source"
)

// config is the on-disk structure:
//
//	{"data": [{"csv": {"path": "a.csv"}, "config": {"type": "concat", "args": {}}}]}
type config struct {
	Data []configEntry `json:"data"`
}

type configEntry struct {
	CSV    configSource        `json:"csv"`
	Config jsoniter.RawMessage `json:"config"`
}

type configSource struct {
	Path string `json:"path"`
}

// Save writes the chain structure to config.json.
func (c *Chain) Save() error {
	cfg := config{Data: make([]configEntry, 0, len(c.elems))}
	for _, e := range c.elems {
		raw, err := json.Marshal(e.Combination)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.Name(), err)
		}
		cfg.Data = append(cfg.Data, configEntry{
			CSV:    configSource{Path: c.relative(e.Source.Path())},
			Config: raw,
		})
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chain config: %w", err)
	}
	path := filepath.Join(c.dir, ConfigFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write chain config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace chain config: %w", err)
	}
	return nil
}

// load reads config.json. A missing or malformed file yields an empty
// chain; bad entries are skipped and recorded.
func (c *Chain) load() {
	path := filepath.Join(c.dir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("chain config unreadable, starting empty", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		}
		return
	}

	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		c.logger.Warn("chain config corrupt, starting empty", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return
	}

	for i, entry := range cfg.Data {
		if err := c.loadEntry(entry); err != nil {
			err = fmt.Errorf("element %d (%s): %w", i, entry.CSV.Path, err)
			c.skipped = multierr.Append(c.skipped, err)
			c.logger.Warn("chain element skipped", map[string]any{
				"index": i,
				"path":  entry.CSV.Path,
				"error": err.Error(),
			})
		}
	}
}

func (c *Chain) loadEntry(entry configEntry) error {
	if entry.CSV.Path == "" {
		return errors.New("missing path")
	}
	comb := source.Concat()
	if len(entry.Config) > 0 {
		if err := json.Unmarshal(entry.Config, &comb); err != nil {
			return err
		}
	}
	src, err := source.Load(c.absolute(entry.CSV.Path))
	if err != nil {
		return err
	}
	c.Insert(src, comb)
	return nil
}

// relative returns path relative to the chain dir when it lies inside it.
func (c *Chain) relative(path string) string {
	rel, err := filepath.Rel(c.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// absolute resolves path against the chain dir. Configs that stored paths
// relative to the working directory (e.g. task/data/a.csv) still resolve
// when the chain-dir form does not exist.
func (c *Chain) absolute(path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) {
		return path
	}
	joined := filepath.Join(c.dir, path)
	if _, err := os.Stat(joined); err == nil {
		return joined
	}
	if _, err := os.Stat(path); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return joined
}
