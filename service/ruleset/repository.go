/*
 * @module service/ruleset/repository
 * @description 规则集仓库，负责版本化规则集的加载、编译、内存缓存与原子热切换
 * @architecture 分层架构 - 规则配置层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 启动加载激活版本 -> 编译缓存 -> reload原子切换；失败时旧版本继续生效
 * @rules Current 永不阻塞；Reload 失败关闭，绝不对外提供半加载状态的规则集
 * @dependencies gorm.io/gorm, sync/atomic, service/models
 * @refs ruleset.go, service/init.go
 */

package ruleset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"dataquality-service/client/connectors"
	"dataquality-service/service/models"

	"gorm.io/gorm"
)

// ActivationNotifier 规则集版本切换事件的发布端，Kafka决策事件发布器是生产实现
type ActivationNotifier interface {
	Publish(ctx context.Context, event *connectors.DecisionEvent)
}

// Repository 规则集仓库
// 缓存的规则集通过 atomic.Value 整体替换，进行中的检测始终观察到单一一致版本
type Repository struct {
	db       *gorm.DB
	notifier ActivationNotifier
	current  atomic.Value // *RuleSet
}

// NewRepository 创建规则集仓库实例
// notifier 允许为 nil，版本切换事件不发布
func NewRepository(db *gorm.DB, notifier ActivationNotifier) *Repository {
	return &Repository{db: db, notifier: notifier}
}

// Bootstrap 启动时加载激活版本，库中无任何版本时落库并激活内置规则集
func (r *Repository) Bootstrap() error {
	var active models.RuleSetVersion
	err := r.db.First(&active, "is_active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Info("未找到激活的规则集版本，初始化内置规则集")
		if _, err := r.CreateVersion("builtin", DefaultDefinition(), "system"); err != nil {
			return fmt.Errorf("初始化内置规则集失败: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("查询激活规则集失败: %w", err)
	}

	compiled, err := compileVersion(&active)
	if err != nil {
		return err
	}
	r.current.Store(compiled)
	slog.Info("规则集加载完成", "version", compiled.Version, "name", active.Name)
	return nil
}

// Current 返回当前生效的规则集，永不阻塞
func (r *Repository) Current() *RuleSet {
	rs, _ := r.current.Load().(*RuleSet)
	return rs
}

// Reload 重新加载激活版本并原子切换
// 失败关闭：定义非法或不完整时旧版本继续生效，返回 RULE_LOAD_ERROR
func (r *Repository) Reload() (*RuleSet, error) {
	var active models.RuleSetVersion
	if err := r.db.First(&active, "is_active = ?", true).Error; err != nil {
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "查询激活规则集失败", err)
	}

	compiled, err := compileVersion(&active)
	if err != nil {
		slog.Error("规则集重载失败，旧版本继续生效", "version", active.Version, "error", err)
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "规则集编译失败", err)
	}

	r.current.Store(compiled)
	slog.Info("规则集重载完成", "version", compiled.Version)
	r.notifyActivation(compiled.Version, active.Name, "reload")
	return compiled, nil
}

// CreateVersion 追加一个新的规则集版本并激活
// 版本不可变：修改永远产生新版本，绝不原地编辑
func (r *Repository) CreateVersion(name string, def *Definition, createdBy string) (*models.RuleSetVersion, error) {
	// 先行编译，非法定义不允许入库
	if _, err := Compile(0, def); err != nil {
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "规则定义校验失败", err)
	}

	raw, err := MarshalDefinition(def)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "规则定义编码失败", err)
	}

	var record *models.RuleSetVersion
	err = r.db.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		row := tx.Model(&models.RuleSetVersion{}).Select("COALESCE(MAX(version), 0)").Row()
		if err := row.Scan(&maxVersion); err != nil {
			return fmt.Errorf("查询最大版本号失败: %w", err)
		}

		if err := tx.Model(&models.RuleSetVersion{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("停用旧版本失败: %w", err)
		}

		record = &models.RuleSetVersion{
			Version:    maxVersion + 1,
			Name:       name,
			Definition: raw,
			IsActive:   true,
			CreatedBy:  createdBy,
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("创建规则集版本失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodePersistence, "规则集版本持久化失败", err)
	}

	compiled, err := compileVersion(record)
	if err != nil {
		return nil, err
	}
	r.current.Store(compiled)
	slog.Info("规则集新版本已激活", "version", record.Version, "name", name)
	r.notifyActivation(record.Version, name, "create")
	return record, nil
}

// notifyActivation 版本切换事件供下游审计消费，未配置发布端时跳过
func (r *Repository) notifyActivation(version int, name, trigger string) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(context.Background(), &connectors.DecisionEvent{
		Type: connectors.EventRuleSetActivated,
		Payload: map[string]interface{}{
			"version": version,
			"name":    name,
			"trigger": trigger,
		},
	})
}

// ListVersions 按版本号倒序返回历史版本
func (r *Repository) ListVersions(limit int) ([]models.RuleSetVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	var versions []models.RuleSetVersion
	if err := r.db.Order("version DESC").Limit(limit).Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("查询规则集版本失败: %w", err)
	}
	return versions, nil
}

func compileVersion(record *models.RuleSetVersion) (*RuleSet, error) {
	def, err := ParseDefinition(record.Definition)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "规则定义解析失败", err)
	}
	compiled, err := Compile(record.Version, def)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeRuleLoad, "规则定义编译失败", err)
	}
	return compiled, nil
}
