package model

// Tier selects which quota bucket a period consumes.
type Tier string

const (
	// TierA is the bucket of the lowest-priced period (breakfast).
	TierA Tier = "A"
	// TierB covers every other period.
	TierB Tier = "B"
)

// Period is a meal-service window.
type Period struct {
	ID    uint64 // periods.id
	Name  string // periods.name
	Price uint32 // periods.price (currency minor units)
	Tier  Tier   // derived: A when Price is the catalog minimum
}

// Weekday is one of the seven recurring day labels.
type Weekday struct {
	ID     uint64 // weekdays.id
	Name   string // weekdays.name (Lundi..Dimanche)
	Offset int    // weekdays.day_offset, Monday=0
}

// Beneficiary is the student a meal is reserved for, with the two
// independent ticket counters.
type Beneficiary struct {
	ID           uint64  // beneficiaries.id
	UserID       *uint64 // beneficiaries.user_id (nullable link to an identity)
	Matricule    string  // beneficiaries.matricule
	FullName     string  // beneficiaries.full_name
	TicketsTierA uint32  // beneficiaries.tickets_tier_a
	TicketsTierB uint32  // beneficiaries.tickets_tier_b
}

// Tickets returns the remaining counter for tier.
func (b Beneficiary) Tickets(t Tier) uint32 {
	if t == TierA {
		return b.TicketsTierA
	}
	return b.TicketsTierB
}
