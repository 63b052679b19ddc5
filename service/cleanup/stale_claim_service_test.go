/*
 * @module service/cleanup/stale_claim_service_test
 * @description 失效认领回收测试
 * @architecture 测试层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 内存数据库造数 -> 回收扫描 -> 状态验证
 * @rules 终态任务与时限内的认领不受回收影响
 * @dependencies testing, testutil, github.com/stretchr/testify
 * @refs stale_claim_service.go
 */

package cleanup

import (
	"context"
	"testing"
	"time"

	"dataquality-service/service/models"
	"dataquality-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReclaimStaleClaims(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)

	stale := factory.CreateValidationTask(func(task *models.ValidationTask) {
		task.Status = models.TaskStatusAssigned
		task.AssignedTo = "alice"
	})
	inProgress := factory.CreateValidationTask(func(task *models.ValidationTask) {
		task.Status = models.TaskStatusInProgress
		task.AssignedTo = "bob"
	})
	fresh := factory.CreateValidationTask(func(task *models.ValidationTask) {
		task.Status = models.TaskStatusAssigned
		task.AssignedTo = "carol"
	})
	completed := factory.CreateValidationTask(func(task *models.ValidationTask) {
		task.Status = models.TaskStatusCompleted
		task.AssignedTo = "dave"
	})

	// 两个认领超时，fresh保持在时限内
	old := time.Now().Add(-5 * time.Hour)
	for _, id := range []string{stale.ID, inProgress.ID, completed.ID} {
		require.NoError(t, db.DB.Model(&models.ValidationTask{}).
			Where("id = ?", id).UpdateColumn("updated_at", old).Error)
	}

	service := NewStaleClaimService(db.DB, 4*time.Hour)
	reclaimed, err := service.ReclaimStaleClaims(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, reclaimed)

	var task models.ValidationTask
	require.NoError(t, db.DB.First(&task, "id = ?", stale.ID).Error)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Empty(t, task.AssignedTo)

	task = models.ValidationTask{}
	require.NoError(t, db.DB.First(&task, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)

	// 终态任务即使时间久远也不回收
	task = models.ValidationTask{}
	require.NoError(t, db.DB.First(&task, "id = ?", completed.ID).Error)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
}

func TestReclaimNothingWhenAllFresh(t *testing.T) {
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)
	factory := testutil.NewTestDataFactory(db.DB)

	factory.CreateValidationTask(func(task *models.ValidationTask) {
		task.Status = models.TaskStatusAssigned
		task.AssignedTo = "alice"
	})

	service := NewStaleClaimService(db.DB, DefaultClaimTTL)
	reclaimed, err := service.ReclaimStaleClaims(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, reclaimed)
}
