// Package metrics is the recorder's metric registry. Instruments are created
// on first use and every update is fanned out to the registered Reporters,
// which aggregate by policy.
package metrics

// Policy defines how values of one metric are combined over a report window.
type Policy int

const (
	Policy_None      Policy = iota // Policy_None leaves aggregation to the reporter.
	Policy_Set                     // Policy_Set keeps the last value.
	Policy_Sum                     // Policy_Sum adds values.
	Policy_Avg                     // Policy_Avg averages values.
	Policy_Max                     // Policy_Max keeps the largest value.
	Policy_Min                     // Policy_Min keeps the smallest value.
	Policy_Stopwatch               // Policy_Stopwatch averages durations in milliseconds.
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case Policy_Set:
		return "set"
	case Policy_Sum:
		return "sum"
	case Policy_Avg:
		return "avg"
	case Policy_Max:
		return "max"
	case Policy_Min:
		return "min"
	case Policy_Stopwatch:
		return "stopwatch"
	default:
		return "none"
	}
}

// Value is a metric value.
type Value float64

// Dimension is a set of labels attached to one update.
type Dimension map[string]string

// GroupTaglog is the group of every recorder metric.
const GroupTaglog = "taglog"

// Metric names. The comment on each lists its dimensions.
const (
	// NameSinkRecordTotal counts lines accepted by a sink.
	// dimension:stream
	NameSinkRecordTotal = "sink_record_total"

	// NameSinkBatchTotal counts batches handed to the dispatcher.
	// dimension:stream
	NameSinkBatchTotal = "sink_batch_total"

	// NameSinkBatchLinesAvg is the average number of lines per batch.
	// dimension:stream
	NameSinkBatchLinesAvg = "sink_batch_lines_avg"

	// NameSinkWrittenLinesTotal counts lines that reached the destination.
	// dimension:stream
	NameSinkWrittenLinesTotal = "sink_written_lines_total"

	// NameSinkDropTotal counts lines that were lost.
	// dimension:stream,reason
	NameSinkDropTotal = "sink_drop_total"

	// NameDispatchTaskTotal counts tasks admitted by the dispatcher.
	// dimension:executor
	NameDispatchTaskTotal = "dispatch_task_total"

	// NameDispatchTaskFailTotal counts tasks whose body failed or panicked.
	// dimension:executor,task
	NameDispatchTaskFailTotal = "dispatch_task_fail_total"

	// NameDispatchRejectTotal counts tasks refused or evicted by admission.
	// dimension:executor,reason
	NameDispatchRejectTotal = "dispatch_reject_total"

	// NameDispatchQueueLength is the queue depth observed at admission.
	// dimension:executor
	NameDispatchQueueLength = "dispatch_queue_length"

	// NameDispatchQueueMax is the deepest queue observed.
	// dimension:executor
	NameDispatchQueueMax = "dispatch_queue_max"

	// NameDispatchWorkerCount is the number of live pool workers.
	NameDispatchWorkerCount = "dispatch_worker_count"

	// NameDispatchTaskTime is the task body execution time in milliseconds.
	// dimension:executor,task
	NameDispatchTaskTime = "dispatch_task_time"

	// NameSessionScanTotal counts wireless scans.
	// dimension:result
	NameSessionScanTotal = "session_scan_total"

	// NameSessionMarkerTotal counts distinct markers detected.
	NameSessionMarkerTotal = "session_marker_total"

	// NamePoolCreateTotal counts objects created because a pool was empty.
	// dimension:poolname
	NamePoolCreateTotal = "pool_create_total"
)

// Dimension keys.
const (
	DimStream   = "stream"
	DimReason   = "reason"
	DimExecutor = "executor"
	DimTask     = "task"
	DimResult   = "result"
	DimPoolName = "poolname"
)
