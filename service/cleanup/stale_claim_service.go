/*
 * @module service/cleanup/stale_claim_service
 * @description 失效认领回收服务，定期把长期无进展的已认领任务放回待认领池
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 定时触发 -> 扫描超时认领 -> 条件更新回pending -> 记录结果
 * @rules 只回收assigned与in_progress状态；终态任务永不触碰；回收用条件更新避免与正在提交的校验人竞争
 * @dependencies gorm.io/gorm, github.com/robfig/cron/v3
 * @refs service/validation/workflow.go
 */

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dataquality-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DefaultClaimTTL 认领后无进展的默认回收时限
const DefaultClaimTTL = 4 * time.Hour

// StaleClaimService 失效认领回收服务
type StaleClaimService struct {
	db       *gorm.DB
	claimTTL time.Duration
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
}

// NewStaleClaimService 创建失效认领回收服务实例
func NewStaleClaimService(db *gorm.DB, claimTTL time.Duration) *StaleClaimService {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &StaleClaimService{
		db:       db,
		claimTTL: claimTTL,
		cron:     cron.New(cron.WithSeconds()),
		ctx:      ctx,
		cancel:   cancel,
		started:  false,
	}
}

// ReclaimStaleClaims 回收超时无进展的认领任务
// assigned 与 in_progress 状态下 updated_at 超过时限的任务放回 pending，
// 条件更新保证与并发的结论提交互斥
func (s *StaleClaimService) ReclaimStaleClaims(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.claimTTL)

	result := s.db.WithContext(ctx).Model(&models.ValidationTask{}).
		Where("status IN ? AND updated_at < ?",
			[]string{models.TaskStatusAssigned, models.TaskStatusInProgress}, cutoff).
		Updates(map[string]interface{}{
			"status":      models.TaskStatusPending,
			"assigned_to": "",
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("回收失效认领失败: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		slog.Info("失效认领已回收", "reclaimed", result.RowsAffected,
			"cutoff", cutoff.Format("2006-01-02 15:04:05"))
	}
	return result.RowsAffected, nil
}

// StartScheduledReclaim 启动定时回收任务，每10分钟扫描一次
func (s *StaleClaimService) StartScheduledReclaim() error {
	if s.started {
		return fmt.Errorf("失效认领回收调度器已经启动")
	}

	_, err := s.cron.AddFunc("0 */10 * * * *", func() {
		if _, err := s.ReclaimStaleClaims(s.ctx); err != nil {
			slog.Error("定时回收失效认领失败", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加定时任务失败: %w", err)
	}

	s.cron.Start()
	s.started = true

	slog.Info("失效认领回收调度器启动成功", "claim_ttl", s.claimTTL.String())
	return nil
}

// StopScheduledReclaim 停止定时回收任务
func (s *StaleClaimService) StopScheduledReclaim() {
	if !s.started {
		return
	}

	s.cancel()

	if s.cron != nil {
		s.cron.Stop()
	}

	s.started = false
	slog.Info("失效认领回收调度器已停止")
}
