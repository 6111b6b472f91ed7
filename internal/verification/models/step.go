package models

// Priority orders recommended steps; higher ranks first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityHigh:   3,
	PriorityMedium: 2,
	PriorityLow:    1,
}

// Rank returns the sort rank of p; unknown priorities rank lowest.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Step is a recommended next verification action.
type Step struct {
	Category Category `json:"category"`
	Priority Priority `json:"priority"`
	Message  string   `json:"message"`
	Weight   int      `json:"weight"`
}

// Progress counts completed categories out of TotalCategories.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Ratio returns Completed/Total in [0,1].
func (p Progress) Ratio() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// Summary bundles every derived value computed from one record snapshot.
type Summary struct {
	Record        *Record  `json:"record"`
	Score         int      `json:"score"`
	Progress      Progress `json:"progress"`
	NextStep      *Step    `json:"next_step"`
	FullyVerified bool     `json:"fully_verified"`

	// Contributions is each category's unrounded share of Score.
	Contributions map[Category]float64 `json:"contributions"`
}
