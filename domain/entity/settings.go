package entity

import "time"

// Repair override ceilings. A repair wants the queue drained as fast as the
// index can absorb it, so waits drop to zero and caps go to their maximums.
const (
	RepairQueueCap  = 100000
	RepairBatchSize = 1000
)

// ReplicationSettings is the pacing configuration of the replication
// pipeline. It is process-wide state with two lifecycles: the pipeline's
// ambient long-lived settings, and a short-lived override installed by the
// repair dispatcher for the duration of one repair and restored afterwards
// on every exit path.
type ReplicationSettings struct {
	// BatchWait is the pause between outbound queue flushes.
	BatchWait time.Duration `json:"batch_wait"`
	// QueueCap bounds how many documents may sit in the outbound queue.
	QueueCap int `json:"queue_cap"`
	// BatchSize is how many documents one send step flushes.
	BatchSize int `json:"batch_size"`
	// RatePerSecond caps outbound throughput. Zero means unlimited.
	RatePerSecond float64 `json:"rate_per_second"`
}

// RepairOverride returns the minimum-latency settings installed while a
// repair drains the queue: zero waits, maximized ceilings, no rate cap.
func (s ReplicationSettings) RepairOverride() ReplicationSettings {
	return ReplicationSettings{
		BatchWait:     0,
		QueueCap:      RepairQueueCap,
		BatchSize:     RepairBatchSize,
		RatePerSecond: 0,
	}
}
