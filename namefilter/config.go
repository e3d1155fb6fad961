package namefilter

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v2"

	ilog "github.com/openbmc-project/mapperd/internal/log"
)

// Config is the on-disk shape of a name-filter config file, e.g.:
//
//	allow:
//	  - xyz.openbmc_project.
//	  - org.openbmc.
//	deny:
//	  - xyz.openbmc_project.ObjectMapper
type Config struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// LoadConfig reads and parses a name-filter config file from fs.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("namefilter: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("namefilter: parse %s: %w", path, err)
	}
	return cfg, nil
}

// WatchConfig loads path once to build the initial Filter, then watches it
// with fsnotify and calls Filter.Reload on every write, matching the
// "notice a file changed and recompute state" pattern barista's modules use
// fsnotify for. The returned stop function closes the watcher; it does not
// touch fs (afero.Fs and fsnotify watch the real filesystem independently,
// since fsnotify has no Afero equivalent).
func WatchConfig(fs afero.Fs, path, self string) (*Filter, func() error, error) {
	cfg, err := LoadConfig(fs, path)
	if err != nil {
		return nil, nil, err
	}
	f := New(self, cfg.Allow, cfg.Deny)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("namefilter: create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("namefilter: watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadConfig(fs, path)
				if err != nil {
					ilog.Error("namefilter: reload %s: %v", path, err)
					continue
				}
				f.Reload(cfg.Allow, cfg.Deny)
				ilog.Log("namefilter: reloaded %s (%d allow, %d deny)", path, len(cfg.Allow), len(cfg.Deny))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				ilog.Error("namefilter: watcher: %v", err)
			}
		}
	}()

	return f, watcher.Close, nil
}
