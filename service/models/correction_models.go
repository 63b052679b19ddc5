/*
 * @module service/models/correction_models
 * @description 数据修正流水线核心模型，包含不一致项、修正候选、修正决策、人工校验任务、训练样本和KPI快照
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 不一致检测 -> 候选生成 -> 决策 -> 自动应用/人工校验 -> 训练样本沉淀 -> KPI统计
 * @rules 决策和快照为只追加的不可变事实；校验任务是唯一可变实体，终态后归档不删除
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/lib/pq
 * @refs service/detection, service/correction, service/validation, service/learning, service/kpi
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// 不一致类型
const (
	KindFormat      = "FORMAT"      // 值语法与期望模式不符
	KindDomain      = "DOMAIN"      // 数值/枚举超出合法取值范围
	KindReferential = "REFERENTIAL" // 多字段组合违反合法配对表
	KindTemporal    = "TEMPORAL"    // 日期时间字段顺序约束被破坏
	KindStatistical = "STATISTICAL" // 相对字段分布的统计离群值
	KindSemantic    = "SEMANTIC"    // 值形态匹配了另一个字段的模式
)

// 候选来源
const (
	SourceRule  = "RULE"  // 确定性规则策略
	SourceModel = "MODEL" // 外部建议模型
)

// 校验任务状态
const (
	TaskStatusPending    = "pending"
	TaskStatusAssigned   = "assigned"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusRejected   = "rejected"
)

// 校验提交动作
const (
	SubmitAccept = "accept"
	SubmitReject = "reject"
	SubmitModify = "modify"
)

// Inconsistency 检测出的不一致项，创建后不可变，不单独持久化
type Inconsistency struct {
	Field      string      `json:"field"`
	Value      interface{} `json:"value"`
	Kind       string      `json:"kind"`
	Message    string      `json:"message"`
	DetectedAt time.Time   `json:"detected_at"`
}

// CorrectionCandidate 针对单个不一致项的修正候选，临时对象不持久化
type CorrectionCandidate struct {
	Source        string      `json:"source"` // RULE/MODEL
	ProposedValue interface{} `json:"proposed_value"`
	Confidence    float64     `json:"confidence"` // [0,1]
	Rationale     string      `json:"rationale"`
}

// RuleSetVersion 规则集版本模型，版本不可变，修改即产生新版本
type RuleSetVersion struct {
	ID         string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	Version    int       `gorm:"not null;uniqueIndex" json:"version"`
	Name       string    `gorm:"type:varchar(100);not null" json:"name"`
	Definition JSONB     `gorm:"type:jsonb;not null" json:"definition"` // 规则集完整定义
	IsActive   bool      `gorm:"not null;default:false;index" json:"is_active"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy  string    `gorm:"type:varchar(100);not null;default:'system'" json:"created_by"`
}

// TableName 指定表名
func (RuleSetVersion) TableName() string {
	return "rule_set_versions"
}

// BeforeCreate 创建前钩子
func (r *RuleSetVersion) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedBy == "" {
		r.CreatedBy = "system"
	}
	return nil
}

// CorrectionDecision 修正决策模型，创建后不可变
// 每个已解决的不一致项恰好对应一条决策
type CorrectionDecision struct {
	ID             string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	DatasetID      string     `gorm:"type:varchar(50);not null;index" json:"dataset_id"`
	Field          string     `gorm:"type:varchar(100);not null" json:"field"`
	Kind           string     `gorm:"type:varchar(20);not null" json:"kind"`
	OldValue       JSONB      `gorm:"type:jsonb" json:"old_value"` // {"value": ...} 保留原始类型
	NewValue       JSONB      `gorm:"type:jsonb" json:"new_value"`
	Confidence     float64    `gorm:"not null" json:"confidence"`
	AutoApplied    bool       `gorm:"not null;index" json:"auto_applied"`
	Source         string     `gorm:"type:varchar(10)" json:"source"`         // 胜出候选来源
	CandidatePool  JSONBArray `gorm:"type:jsonb" json:"candidate_pool"`       // 全部候选，审计追溯用
	RuleSetVersion int        `gorm:"not null" json:"rule_set_version"`       // 决策时生效的规则集版本
	CreatedAt      time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName 指定表名
func (CorrectionDecision) TableName() string {
	return "correction_decisions"
}

// BeforeCreate 创建前钩子
func (d *CorrectionDecision) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// ValidationTask 人工校验任务模型
// 仅当决策未自动应用时创建；终态(completed/rejected)后归档不删除
type ValidationTask struct {
	ID            string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	DecisionID    string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"decision_id"`
	DatasetID     string     `gorm:"type:varchar(50);not null;index" json:"dataset_id"`
	Field         string     `gorm:"type:varchar(100);not null" json:"field"`
	Kind          string     `gorm:"type:varchar(20);not null" json:"kind"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_task_status_priority,priority:1" json:"status"`
	Priority      int        `gorm:"not null;default:0;index:idx_task_status_priority,priority:2,sort:desc" json:"priority"` // 数值越大越紧急
	AssignedTo    string     `gorm:"type:varchar(100)" json:"assigned_to"`
	OldValue      JSONB      `gorm:"type:jsonb" json:"old_value"`
	ProposedValue JSONB      `gorm:"type:jsonb" json:"proposed_value"`
	FinalValue    JSONB      `gorm:"type:jsonb" json:"final_value"` // 终态时写入
	Confidence    float64    `gorm:"not null" json:"confidence"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ArchivedAt    *time.Time `gorm:"index" json:"archived_at,omitempty"`
}

// TableName 指定表名
func (ValidationTask) TableName() string {
	return "validation_tasks"
}

// BeforeCreate 创建前钩子
func (t *ValidationTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = TaskStatusPending
	}
	return nil
}

// IsTerminal 是否处于终态
func (t *ValidationTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusRejected
}

// TrainingExample 训练样本模型，只追加
// 每个已完成校验恰好产生一条样本（origin_validation_id 唯一索引保证）
type TrainingExample struct {
	ID                 string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	OriginValidationID string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"origin_validation_id"`
	DatasetID          string    `gorm:"type:varchar(50);not null;index" json:"dataset_id"`
	Field              string    `gorm:"type:varchar(100);not null" json:"field"`
	InputContext       JSONB     `gorm:"type:jsonb;not null" json:"input_context"` // 字段+原值+行上下文
	TargetValue        JSONB     `gorm:"type:jsonb" json:"target_value"`
	RecordedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"recorded_at"`
}

// TableName 指定表名
func (TrainingExample) TableName() string {
	return "training_examples"
}

// BeforeCreate 创建前钩子
func (e *TrainingExample) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// ModelVersion 建议模型版本记录，重训练完成时追加，保留留出集精度用于趋势分析
type ModelVersion struct {
	ID              string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	Version         int        `gorm:"not null;uniqueIndex" json:"version"`
	ExampleCount    int64      `gorm:"not null" json:"example_count"` // 训练时累计样本数
	HoldoutAccuracy float64    `json:"holdout_accuracy"`              // 留出集精度 [0,1]
	Status          string     `gorm:"type:varchar(20);not null" json:"status"` // training/active/failed/cancelled
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName 指定表名
func (ModelVersion) TableName() string {
	return "model_versions"
}

// BeforeCreate 创建前钩子
func (m *ModelVersion) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// KPISnapshot 质量KPI快照模型，只追加，从不重算或覆盖历史
type KPISnapshot struct {
	ID                      string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	DatasetID               string         `gorm:"type:varchar(50);index" json:"dataset_id"` // 为空表示全局快照
	PeriodStart             time.Time      `gorm:"not null" json:"period_start"`
	PeriodEnd               time.Time      `gorm:"not null" json:"period_end"`
	DetectionRate           float64        `json:"detection_rate"`            // 每千行检出数
	AutoCorrectionPrecision float64        `json:"auto_correction_precision"` // 审计通过的自动修正占比
	AutoCorrectionRate      float64        `json:"auto_correction_rate"`      // 自动应用决策占比
	AvgLatencyPer1000Rows   float64        `json:"avg_latency_per_1000_rows"` // 毫秒
	AccuracyDelta           float64        `json:"accuracy_delta"`            // 环比精度变化
	MissingFields           pq.StringArray `gorm:"type:text[]" json:"missing_fields"` // 底层计数不可读时标记缺失指标
	TakenAt                 time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"taken_at"`
}

// TableName 指定表名
func (KPISnapshot) TableName() string {
	return "kpi_snapshots"
}

// BeforeCreate 创建前钩子
func (k *KPISnapshot) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	return nil
}

// CorrectionAudit 自动修正抽样审计记录，auto_correction_precision 的数据来源
type CorrectionAudit struct {
	ID         string     `gorm:"type:varchar(50);primaryKey" json:"id"`
	DecisionID string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"decision_id"`
	DatasetID  string     `gorm:"type:varchar(50);not null;index" json:"dataset_id"`
	Verdict    string     `gorm:"type:varchar(20)" json:"verdict"` // pending/accepted/rejected
	ReviewedBy string     `gorm:"type:varchar(100)" json:"reviewed_by"`
	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// TableName 指定表名
func (CorrectionAudit) TableName() string {
	return "correction_audits"
}

// BeforeCreate 创建前钩子
func (a *CorrectionAudit) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Verdict == "" {
		a.Verdict = "pending"
	}
	return nil
}
