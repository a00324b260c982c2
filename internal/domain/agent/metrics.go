package agent

// MaxResourceHistory bounds the number of resource samples kept in Metrics.
const MaxResourceHistory = 24

// DailyTasks is the completed/total task count for a single day.
type DailyTasks struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ResourceSample is a CPU/memory reading at a point in time (HH:MM).
type ResourceSample struct {
	Timestamp string  `json:"timestamp"`
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
}

// Metrics holds the aggregate fleet metrics shown on the dashboard.
type Metrics struct {
	Efficiency          float64          `json:"efficiency"`
	CompletionRate      float64          `json:"completion_rate"`
	ResourceUtilization float64          `json:"resource_utilization"`
	DailyTasks          []DailyTasks     `json:"daily_tasks"`
	ResourceHistory     []ResourceSample `json:"resource_history"`
}

// MetricsPatch is a partial Metrics update. Nil fields are left untouched.
type MetricsPatch struct {
	Efficiency          *float64         `json:"efficiency,omitempty"`
	CompletionRate      *float64         `json:"completion_rate,omitempty"`
	ResourceUtilization *float64         `json:"resource_utilization,omitempty"`
	DailyTasks          []DailyTasks     `json:"daily_tasks,omitempty"`
	ResourceHistory     []ResourceSample `json:"resource_history,omitempty"`
}

// DefaultMetrics returns the metrics the dashboard starts with.
func DefaultMetrics() Metrics {
	return Metrics{
		Efficiency:          85,
		CompletionRate:      92,
		ResourceUtilization: 78,
		DailyTasks: []DailyTasks{
			{Date: "2024-03-01", Completed: 45, Total: 50},
			{Date: "2024-03-02", Completed: 38, Total: 40},
			{Date: "2024-03-03", Completed: 42, Total: 45},
		},
		ResourceHistory: []ResourceSample{
			{Timestamp: "09:00", CPU: 65, Memory: 70},
			{Timestamp: "10:00", CPU: 75, Memory: 80},
			{Timestamp: "11:00", CPU: 70, Memory: 75},
		},
	}
}

// Apply shallow-merges the patch into m. Slices replace the previous slice
// wholesale; percentages are clamped to [0, 100].
func (p *MetricsPatch) Apply(m *Metrics) {
	if p.Efficiency != nil {
		m.Efficiency = Clamp(*p.Efficiency)
	}
	if p.CompletionRate != nil {
		m.CompletionRate = Clamp(*p.CompletionRate)
	}
	if p.ResourceUtilization != nil {
		m.ResourceUtilization = Clamp(*p.ResourceUtilization)
	}
	if p.DailyTasks != nil {
		m.DailyTasks = append([]DailyTasks(nil), p.DailyTasks...)
	}
	if p.ResourceHistory != nil {
		m.ResourceHistory = append([]ResourceSample(nil), p.ResourceHistory...)
	}
}

// AppendSample adds a resource sample, dropping the oldest entries beyond
// MaxResourceHistory.
func (m *Metrics) AppendSample(s ResourceSample) {
	s.CPU = Clamp(s.CPU)
	s.Memory = Clamp(s.Memory)
	m.ResourceHistory = append(m.ResourceHistory, s)
	if over := len(m.ResourceHistory) - MaxResourceHistory; over > 0 {
		m.ResourceHistory = append([]ResourceSample(nil), m.ResourceHistory[over:]...)
	}
}

// Clone returns a deep copy of m.
func (m *Metrics) Clone() Metrics {
	c := *m
	c.DailyTasks = append([]DailyTasks(nil), m.DailyTasks...)
	c.ResourceHistory = append([]ResourceSample(nil), m.ResourceHistory...)
	return c
}
