/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers
 */

package api

import (
	"dataquality-service/api/controllers"
	apimiddleware "dataquality-service/api/middleware"
	"dataquality-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 修正流水线，批量接口带分层限流保护
	r.Route("/correction", func(r chi.Router) {
		r.Use(apimiddleware.RateLimit(service.GlobalRateLimiter))

		correctionController := controllers.NewCorrectionController()
		r.Post("/detect", correctionController.Detect)
		r.Post("/correct", correctionController.Correct)
	})

	// 人工校验任务
	r.Route("/validation", func(r chi.Router) {
		validationController := controllers.NewValidationController()

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", validationController.ListTasks)
			r.Get("/{id}", validationController.GetTask)

			// 任务状态机操作
			r.Post("/{id}/claim", validationController.ClaimTask)
			r.Post("/{id}/start", validationController.StartTask)
			r.Post("/{id}/submit", validationController.SubmitTask)
		})
	})

	// 学习反馈环
	r.Route("/learning", func(r chi.Router) {
		learningController := controllers.NewLearningController()
		r.Post("/retrain", learningController.Retrain)
		r.Post("/retrain/cancel", learningController.CancelRetrain)
		r.Get("/pending-examples", learningController.PendingExamples)
		r.Get("/accuracy-trend", learningController.AccuracyTrend)
	})

	// KPI指标
	r.Route("/kpi", func(r chi.Router) {
		kpiController := controllers.NewKPIController()
		r.Get("/snapshots", kpiController.ListSnapshots)
		r.Post("/snapshots", kpiController.TakeSnapshot)
		r.Get("/report", kpiController.Report)
	})

	// 规则集管理
	r.Route("/rulesets", func(r chi.Router) {
		ruleSetController := controllers.NewRuleSetController()
		r.Get("/", ruleSetController.ListVersions)
		r.Post("/", ruleSetController.CreateVersion)
		r.Get("/current", ruleSetController.CurrentRuleSet)
		r.Post("/reload", ruleSetController.Reload)
	})
}
