// monitor.go
package file

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuiet 最后一次事件之后等待的时间, 期间的事件合并为一次回调
const DefaultQuiet = 2 * time.Second

// FileMonitor 监控数据目录中新增或更新的分区文件
type FileMonitor struct {
	watchDir string
	pattern  string
	watcher  *fsnotify.Watcher
	Quiet    time.Duration
	ignored  map[string]bool
	modTimes map[string]time.Time
	mu       sync.Mutex
}

func NewFileMonitor(dir, pattern string) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		pattern:  pattern,
		watcher:  watcher,
		Quiet:    DefaultQuiet,
		ignored:  make(map[string]bool),
		modTimes: make(map[string]time.Time),
	}, nil
}

// Ignore 忽略这些路径上的事件, 例如程序自己写出的合并缓存
func (m *FileMonitor) Ignore(paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		if p != "" {
			m.ignored[absPath(p)] = true
		}
	}
}

// Watch 阻塞监听目录. 匹配的文件被创建或写入后, 等到 Quiet 时间内没有新事件,
// 再以这一批有更新的文件(按名称排序)同步调用一次 handler
func (m *FileMonitor) Watch(ctx context.Context, handler func([]string)) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]bool)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !m.relevant(event) {
				continue
			}
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(m.Quiet)
				fire = timer.C
			} else {
				timer.Reset(m.Quiet)
			}
		case <-fire:
			timer, fire = nil, nil
			var changed []string
			for name := range pending {
				if m.isNewer(name) {
					changed = append(changed, name)
				}
			}
			pending = make(map[string]bool)
			if len(changed) > 0 {
				sort.Strings(changed)
				handler(changed)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *FileMonitor) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if !MatchPattern(m.pattern, event.Name) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.ignored[absPath(event.Name)]
}

// isNewer 记录并判断文件修改时间是否晚于该文件上一次回调时的修改时间
func (m *FileMonitor) isNewer(name string) bool {
	info, err := os.Stat(name)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.modTimes[name]; ok && !info.ModTime().After(last) {
		return false
	}
	m.modTimes[name] = info.ModTime()
	return true
}

func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
