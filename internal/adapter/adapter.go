package adapter

import (
	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"

	"github.com/sirupsen/logrus"
)

// SourceRegistry 按配置初始化的适配器实例表
type SourceRegistry struct {
	cfg    *config.Config
	logger *logrus.Logger
	// 存储源→适配器实例的映射
	adapters map[model.Source]interfaces.SourceAdapter
}

func NewSourceRegistry(cfg *config.Config, logger *logrus.Logger) *SourceRegistry {
	r := &SourceRegistry{
		cfg:      cfg,
		logger:   logger,
		adapters: make(map[model.Source]interfaces.SourceAdapter),
	}
	r.initAdaptersFromFactories()
	return r
}

// initAdaptersFromFactories 遍历已注册工厂，按配置创建启用的源
func (r *SourceRegistry) initAdaptersFromFactories() {
	for _, source := range ListFactories() {
		log := r.logger.WithField("source", source)
		srcCfg, ok := r.cfg.Source(string(source))
		if !ok {
			log.Info("未配置该源，跳过")
			continue
		}
		if !srcCfg.Enabled {
			log.Info("该源已禁用，跳过")
			continue
		}
		factory, _ := GetFactory(source)
		adapterIns := factory(&srcCfg, r.logger)
		if adapterIns == nil {
			log.Error("工厂函数返回nil适配器实例")
			continue
		}
		if adapterIns.GetSource() != source {
			log.WithField("adapter_source", adapterIns.GetSource()).Error("适配器源类型与注册不匹配")
			continue
		}
		r.adapters[source] = adapterIns
	}
	r.logger.WithField("instance_sources", len(r.adapters)).Info("目录适配器初始化完成")
}

// Adapters 按固定源顺序返回已初始化的适配器
func (r *SourceRegistry) Adapters() []interfaces.SourceAdapter {
	out := make([]interfaces.SourceAdapter, 0, len(r.adapters))
	for _, s := range model.AllSources {
		if a, ok := r.adapters[s]; ok {
			out = append(out, a)
		}
	}
	return out
}
