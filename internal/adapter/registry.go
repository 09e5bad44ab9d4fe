// internal/adapter/registry.go
package adapter

import (
	"fmt"
	"sort"
	"sync"

	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"

	"github.com/sirupsen/logrus"
)

// Factory 目录适配器工厂函数签名
// 入参：源配置、日志实例
type Factory func(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter

// ========== 全局工厂函数注册表 ==========
var (
	factoryMu       sync.RWMutex
	factoryRegistry = make(map[model.Source]Factory)
)

// Register 供适配器init函数调用，注册工厂函数
func Register(source model.Source, factory Factory) {
	if factory == nil {
		panic(fmt.Sprintf("源%s的工厂函数不能为nil", source))
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factoryRegistry[source]; exists {
		logrus.Warnf("源%s的适配器已注册，将覆盖原有实现", source)
	}
	factoryRegistry[source] = factory
}

// GetFactory 获取指定源的工厂函数
func GetFactory(source model.Source) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	factory, ok := factoryRegistry[source]
	return factory, ok
}

// ListFactories 列出所有已注册工厂的源（有序）
func ListFactories() []model.Source {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	sources := make([]model.Source, 0, len(factoryRegistry))
	for s := range factoryRegistry {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}
