package monitoring

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// ServiceMetrics 服务指标
type ServiceMetrics struct {
	mu        sync.RWMutex
	startTime time.Time

	assessmentsTotal   int64
	assessmentsHigh    int64
	assessmentsLow     int64
	modelRefusals      int64
	inputRejections    int64
	estimationFailures int64
	recordPreviews     int64

	totalLatency time.Duration
	maxLatency   time.Duration
}

// Snapshot 指标快照
type Snapshot struct {
	UptimeSeconds      float64 `json:"uptime_seconds"`
	AssessmentsTotal   int64   `json:"assessments_total"`
	AssessmentsHigh    int64   `json:"assessments_high"`
	AssessmentsLow     int64   `json:"assessments_low"`
	ModelRefusals      int64   `json:"model_refusals"`
	InputRejections    int64   `json:"input_rejections"`
	EstimationFailures int64   `json:"estimation_failures"`
	RecordPreviews     int64   `json:"record_previews"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	MaxLatencyMs       float64 `json:"max_latency_ms"`
	Goroutines         int     `json:"goroutines"`
	HeapAllocBytes     uint64  `json:"heap_alloc_bytes"`
	GCCount            uint32  `json:"gc_count"`
}

// NewServiceMetrics 创建服务指标
func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{
		startTime: time.Now(),
	}
}

// RecordAssessment 记录一次评估结果
func (sm *ServiceMetrics) RecordAssessment(highRisk bool, elapsed time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.assessmentsTotal++
	if highRisk {
		sm.assessmentsHigh++
	} else {
		sm.assessmentsLow++
	}
	sm.totalLatency += elapsed
	if elapsed > sm.maxLatency {
		sm.maxLatency = elapsed
	}
}

// RecordModelRefusal 记录因模型未加载而拒绝的请求
func (sm *ServiceMetrics) RecordModelRefusal() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.modelRefusals++
}

// RecordInputRejection 记录输入校验失败
func (sm *ServiceMetrics) RecordInputRejection() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.inputRejections++
}

// RecordEstimationFailure 记录预测过程失败
func (sm *ServiceMetrics) RecordEstimationFailure() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.estimationFailures++
}

// RecordPreview 记录一次输入预览
func (sm *ServiceMetrics) RecordPreview() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.recordPreviews++
}

// GetUptime 获取运行时间
func (sm *ServiceMetrics) GetUptime() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return time.Since(sm.startTime)
}

// GetSnapshot 获取当前快照
func (sm *ServiceMetrics) GetSnapshot() Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := Snapshot{
		UptimeSeconds:      time.Since(sm.startTime).Seconds(),
		AssessmentsTotal:   sm.assessmentsTotal,
		AssessmentsHigh:    sm.assessmentsHigh,
		AssessmentsLow:     sm.assessmentsLow,
		ModelRefusals:      sm.modelRefusals,
		InputRejections:    sm.inputRejections,
		EstimationFailures: sm.estimationFailures,
		RecordPreviews:     sm.recordPreviews,
		MaxLatencyMs:       float64(sm.maxLatency) / float64(time.Millisecond),
		Goroutines:         runtime.NumGoroutine(),
		HeapAllocBytes:     mem.HeapAlloc,
		GCCount:            mem.NumGC,
	}
	if sm.assessmentsTotal > 0 {
		avg := sm.totalLatency / time.Duration(sm.assessmentsTotal)
		snap.AvgLatencyMs = float64(avg) / float64(time.Millisecond)
	}
	return snap
}

// ExportPrometheus 导出Prometheus文本格式
func (sm *ServiceMetrics) ExportPrometheus() string {
	snap := sm.GetSnapshot()

	var output string
	output += counterLine("rvh_assessments_total", "Total number of risk assessments", snap.AssessmentsTotal)
	output += counterLine("rvh_assessments_high_total", "Assessments classified as high risk", snap.AssessmentsHigh)
	output += counterLine("rvh_assessments_low_total", "Assessments classified as low risk", snap.AssessmentsLow)
	output += counterLine("rvh_model_refusals_total", "Assessment requests refused because no model is loaded", snap.ModelRefusals)
	output += counterLine("rvh_input_rejections_total", "Assessment requests rejected on input validation", snap.InputRejections)
	output += counterLine("rvh_estimation_failures_total", "Probability estimation failures", snap.EstimationFailures)
	output += counterLine("rvh_record_previews_total", "Input record previews served", snap.RecordPreviews)
	output += gaugeLine("rvh_assessment_latency_avg_ms", "Average assessment latency in milliseconds", snap.AvgLatencyMs)
	output += gaugeLine("rvh_assessment_latency_max_ms", "Maximum assessment latency in milliseconds", snap.MaxLatencyMs)
	output += gaugeLine("rvh_uptime_seconds", "Process uptime in seconds", snap.UptimeSeconds)
	output += gaugeLine("rvh_goroutines", "Number of goroutines", float64(snap.Goroutines))
	output += gaugeLine("rvh_heap_alloc_bytes", "Heap bytes allocated", float64(snap.HeapAllocBytes))
	return output
}

func counterLine(name, help string, value int64) string {
	return fmt.Sprintf("# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

func gaugeLine(name, help string, value float64) string {
	return fmt.Sprintf("# HELP %s %s\n# TYPE %s gauge\n%s %f\n", name, help, name, name, value)
}
