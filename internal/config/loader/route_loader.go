package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RouteProfile 是独立航线文件的结构；字段为空时回落到主配置。
type RouteProfile struct {
	Origin       string   `yaml:"origin"`
	Destinations []string `yaml:"destinations"`
	TravelDates  string   `yaml:"travel_dates"`
	SiteURL      string   `yaml:"site_url"`
}

// Snapshot 对外暴露的只读快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Route    config.RouteConfig
}

// ChangeListener 在航线文件变更时被调用。
type ChangeListener func(Snapshot)

// RouteLoader 从 YAML 文件加载航线并监听热更新，常驻模式下
// 改航线文件不用重启进程，下一轮跑新的目的地。
type RouteLoader struct {
	path string
	base config.RouteConfig
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRouteLoader 读取航线文件并开始监听 FS 事件。
func NewRouteLoader(path string, base config.RouteConfig) (*RouteLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("route loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read route profile failed: %w", err)
	}
	l := &RouteLoader{path: path, base: base, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("航线文件重载失败 (%s): %v", evt.Name, err)
			return
		}
		l.notifyListeners()
	})
	v.WatchConfig()
	return l, nil
}

// Snapshot 返回当前航线快照。
func (l *RouteLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Route 返回当前生效的航线配置。
func (l *RouteLoader) Route() config.RouteConfig {
	return l.Snapshot().Route
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *RouteLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go func() {
		defer safeRecover("route listener")
		fn(snap)
	}()
}

func (l *RouteLoader) notifyListeners() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("route listener")
			cb(snap)
		}(fn)
	}
}

func (l *RouteLoader) reload() error {
	profile, err := readRouteFile(l.path)
	if err != nil {
		return err
	}
	route := mergeRoute(l.base, profile)
	if len(route.DestinationList()) == 0 {
		return fmt.Errorf("route profile has no destinations: %s", l.path)
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Route:    route,
	}
	l.mu.Unlock()
	logger.Infof("航线文件已加载 %s: %s → %s", filepath.Base(l.path), route.Origin,
		strings.Join(route.DestinationList(), ", "))
	return nil
}

func readRouteFile(path string) (RouteProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RouteProfile{}, fmt.Errorf("read route profile failed: %w", err)
	}
	var profile RouteProfile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&profile); err != nil {
		return RouteProfile{}, fmt.Errorf("parse route profile failed: %w", err)
	}
	return profile, nil
}

// mergeRoute 以主配置为底，profile 中非空字段覆盖。
func mergeRoute(base config.RouteConfig, p RouteProfile) config.RouteConfig {
	out := base
	out.ProfilePath = ""
	if s := strings.TrimSpace(p.Origin); s != "" {
		out.Origin = s
	}
	if s := strings.TrimSpace(p.TravelDates); s != "" {
		out.TravelDates = s
	}
	if s := strings.TrimSpace(p.SiteURL); s != "" {
		out.SiteURL = s
	}
	if dests := normalizeDestinations(p.Destinations); len(dests) > 0 {
		out.Destinations = dests
	}
	return out
}

func normalizeDestinations(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, d := range in {
		d = strings.TrimSpace(d)
		if d == "" || seen[strings.ToLower(d)] {
			continue
		}
		seen[strings.ToLower(d)] = true
		out = append(out, d)
	}
	return out
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}
