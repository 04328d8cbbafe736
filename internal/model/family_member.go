package model

// FamilyMember is a roster entry as reported by the family service.
type FamilyMember struct {
	ID         int64  `json:"user_id"`
	Nickname   string `json:"nickname"`
	ZodiacSign string `json:"zodiac_sign"`
	Color      string `json:"color"`
}

// MemberIDs returns the ids of members in roster order.
func MemberIDs(members []FamilyMember) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
