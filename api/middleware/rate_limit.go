/*
 * @module api/middleware/rate_limit
 * @description 批量接口限流中间件，基于Redis对全局与单数据集两层限流
 * @architecture 中间件模式 - HTTP请求拦截
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 提取数据集ID -> 分层限流检查 -> 放行或返回429
 * @rules 限流器未配置时直接放行；限流检查自身出错放行并记录日志，不因Redis故障拒绝请求
 * @dependencies net/http, github.com/go-chi/render, service/rate_limiter
 * @refs service/rate_limiter/redis_rate_limiter.go, api/routes.go
 */

package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"dataquality-service/service/rate_limiter"

	"github.com/go-chi/render"
)

// rateLimitResponse 限流拒绝响应，与APIResponse结构保持一致
type rateLimitResponse struct {
	Status int         `json:"status"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data,omitempty"`
}

// getEnvInt 获取整型环境变量，解析失败返回默认值
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// RateLimit 批量接口限流中间件
// limiter 为 nil 时（Redis未配置）直接放行
func RateLimit(limiter *rate_limiter.RedisRateLimiter) func(http.Handler) http.Handler {
	globalPerMin := getEnvInt("RATE_LIMIT_GLOBAL_PER_MIN", 600)
	datasetPerMin := getEnvInt("RATE_LIMIT_DATASET_PER_MIN", 120)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			rules := []rate_limiter.RateLimitRule{
				{Type: "global", TimeWindow: 60, MaxRequests: globalPerMin},
			}
			if datasetID := extractDatasetID(r); datasetID != "" {
				rules = append(rules, rate_limiter.RateLimitRule{
					Type:        "dataset",
					TargetID:    datasetID,
					TimeWindow:  60,
					MaxRequests: datasetPerMin,
				})
			}

			result, err := limiter.CheckRateLimit(r.Context(), rules)
			if err != nil {
				// Redis故障时放行，限流只保护不拦截正常流量
				slog.Error("限流检查失败，请求放行", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, rateLimitResponse{
					Status: http.StatusTooManyRequests,
					Msg:    result.Message,
					Data:   result,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractDatasetID 从查询参数或JSON请求体中提取数据集ID
// 读取过的请求体会被复原，不影响后续处理器
func extractDatasetID(r *http.Request) string {
	if datasetID := r.URL.Query().Get("dataset_id"); datasetID != "" {
		return datasetID
	}
	if r.Body == nil {
		return ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		DatasetID string `json:"dataset_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.DatasetID
}
