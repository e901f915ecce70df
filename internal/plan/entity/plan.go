package entity

// Tier names a subscription level stored on an account.
type Tier string

const (
	TierFree    Tier = "free"
	TierMonthly Tier = "monthly"
	TierAnnual  Tier = "annual"
)

// Plan is a subscription tier and the number of courses it allows.
// MaxCourses 0 means unlimited.
type Plan struct {
	Tier       Tier   `db:"tier" json:"tier"`
	Label      string `db:"label" json:"label"`
	MaxCourses int    `db:"max_courses" json:"max_courses"`
}

// Unlimited reports whether the plan has no course quota.
func (p Plan) Unlimited() bool { return p.MaxCourses <= 0 }

// Defaults are the tiers seeded into an empty plans table.
func Defaults() []Plan {
	return []Plan{
		{Tier: TierFree, Label: "Free", MaxCourses: 1},
		{Tier: TierMonthly, Label: "Monthly", MaxCourses: 0},
		{Tier: TierAnnual, Label: "Annual", MaxCourses: 0},
	}
}
