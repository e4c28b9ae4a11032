package strategy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"quantbt/internal/logger"
)

// Preset 描述一个命名策略预设：变体 kind 加默认参数。
type Preset struct {
	ID          string         `yaml:"id"`
	Description string         `yaml:"description"`
	Kind        string         `yaml:"kind"`
	Params      map[string]any `yaml:"params"`
}

// Spec 将预设转换为构造请求。
func (p Preset) Spec() (Spec, error) {
	raw, err := json.Marshal(p.Params)
	if err != nil {
		return Spec{}, fmt.Errorf("preset %s 参数序列化失败: %w", p.ID, err)
	}
	return Spec{Kind: p.Kind, Params: raw}, nil
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Snapshot 是某一时刻的预设集合。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Preset
}

// ChangeListener 在 registry 重载后触发。
type ChangeListener func(Snapshot)

// Registry 管理策略预设文件并监听更新。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取预设文件并开启热更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy presets failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy presets reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前预设集合的副本。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Preset 返回指定 ID 的预设。
func (r *Registry) Preset(id string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Presets[strings.TrimSpace(strings.ToLower(id))]
	return p, ok
}

// IDs 返回排序后的预设 ID 列表。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.snapshot.Presets))
	for id := range r.snapshot.Presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[string]Preset, len(cfg.Presets))
	for name, p := range cfg.Presets {
		id := strings.ToLower(strings.TrimSpace(name))
		if id == "" {
			continue
		}
		p.ID = id
		spec, err := p.Spec()
		if err != nil {
			return err
		}
		// 构造一次以校验 kind 与参数，失败的预设整体拒绝载入。
		if _, err := New(spec); err != nil {
			return fmt.Errorf("preset %s 不合法: %w", id, err)
		}
		presets[id] = p
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("strategy presets loaded: %d 项 (version=%d)", len(presets), r.snapshot.Version)
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	listeners := append([]ChangeListener(nil), r.listeners...)
	snap := cloneSnapshot(r.snapshot)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func readPresetFile(path string) (presetFile, error) {
	var cfg presetFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse strategy presets failed: %w", err)
	}
	return cfg, nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{Version: s.Version, LoadedAt: s.LoadedAt, Presets: make(map[string]Preset, len(s.Presets))}
	for k, v := range s.Presets {
		out.Presets[k] = v
	}
	return out
}
