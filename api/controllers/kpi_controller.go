/*
 * @module api/controllers/kpi_controller
 * @description KPI控制器，提供快照查询、手动快照与汇总报表接口
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow HTTP请求 -> 指标计算/查询 -> 统一响应
 * @rules 快照只追加；部分指标缺失通过missing_fields体现，不影响接口成功
 * @dependencies github.com/go-chi/render, service/kpi
 * @refs service/kpi/tracker.go
 */

package controllers

import (
	"net/http"
	"strconv"

	"dataquality-service/service"

	"github.com/go-chi/render"
)

// KPIController KPI控制器
type KPIController struct{}

// NewKPIController 创建KPI控制器实例
func NewKPIController() *KPIController {
	return &KPIController{}
}

// ListSnapshots 查询KPI快照历史
// @Summary 查询KPI快照历史
// @Tags KPI
// @Produce json
// @Param dataset_id query string false "数据集ID，为空时返回全局快照"
// @Param limit query int false "返回条数" default(50)
// @Success 200 {object} APIResponse{data=[]models.KPISnapshot} "查询成功"
// @Router /kpi/snapshots [get]
func (c *KPIController) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snapshots, err := service.GlobalKPITracker.ListSnapshots(r.URL.Query().Get("dataset_id"), limit)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询KPI快照失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询成功", snapshots))
}

// TakeSnapshot 手动触发KPI快照
// @Summary 手动触发KPI快照
// @Description 立即计算并追加一份快照，单项指标不可读时记入missing_fields
// @Tags KPI
// @Produce json
// @Param dataset_id query string false "数据集ID，为空时生成全局快照"
// @Success 200 {object} APIResponse{data=models.KPISnapshot} "快照生成成功"
// @Failure 500 {object} APIResponse "快照写入失败"
// @Router /kpi/snapshots [post]
func (c *KPIController) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := service.GlobalKPITracker.TakeSnapshot(r.Context(), r.URL.Query().Get("dataset_id"))
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("生成KPI快照失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("快照生成成功", snapshot))
}

// Report KPI汇总报表
// @Summary KPI汇总报表
// @Description 汇总最近若干份全局快照的平均检出率、自动修正率与精度
// @Tags KPI
// @Produce json
// @Param window query int false "汇总的快照份数" default(24)
// @Success 200 {object} APIResponse{data=kpi.Report} "查询成功"
// @Router /kpi/report [get]
func (c *KPIController) Report(w http.ResponseWriter, r *http.Request) {
	window, _ := strconv.Atoi(r.URL.Query().Get("window"))
	report, err := service.GlobalKPITracker.BuildReport(window)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("生成KPI报表失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询成功", report))
}
