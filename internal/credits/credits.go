// Package credits holds the plan entitlement table and the reconciliation rules
// that keep a user's credit balance consistent with purchases and usage.
package credits

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientCredits is returned when a consumption exceeds the balance.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Plan names accepted for a user's subscription tier.
const (
	PlanFree       = "Free"
	PlanBasic      = "Basic"
	PlanPro        = "Pro"
	PlanBusiness   = "Business"
	PlanEnterprise = "Enterprise"
)

// Entitlement is what a plan grants on purchase.
type Entitlement struct {
	Plan    string `json:"plan"`
	Credits int    `json:"credits"`
	Price   int    `json:"price"`
}

var entitlements = []Entitlement{
	{Plan: PlanFree, Credits: 3, Price: 0},
	{Plan: PlanBasic, Credits: 50, Price: 499},
	{Plan: PlanPro, Credits: 200, Price: 999},
	{Plan: PlanBusiness, Credits: 500, Price: 1499},
	{Plan: PlanEnterprise, Credits: 1000, Price: 2999},
}

// Entitlements returns the fixed entitlement table ordered by tier.
func Entitlements() []Entitlement {
	out := make([]Entitlement, len(entitlements))
	copy(out, entitlements)
	return out
}

// EntitlementFor looks a plan up case-insensitively. Unknown or empty names
// resolve to the Free entitlement.
func EntitlementFor(plan string) Entitlement {
	name := strings.TrimSpace(plan)
	for _, e := range entitlements {
		if strings.EqualFold(e.Plan, name) {
			return e
		}
	}
	return entitlements[0]
}

// IsKnownPlan reports whether plan names an entry of the entitlement table.
func IsKnownPlan(plan string) bool {
	name := strings.TrimSpace(plan)
	for _, e := range entitlements {
		if strings.EqualFold(e.Plan, name) {
			return true
		}
	}
	return false
}

// Balance is max(0, purchased - used).
func Balance(purchased, used int) int {
	if b := purchased - used; b > 0 {
		return b
	}
	return 0
}

// UsageField identifies one of the generation counters.
type UsageField string

const (
	UsageImages UsageField = "imagesGenerated"
	UsageVideos UsageField = "videosGenerated"
	UsageScenes UsageField = "scenesGenerated"
)

// ParseUsageField maps a generation kind ("image", "video", "scene") or a
// counter name to its UsageField.
func ParseUsageField(raw string) (UsageField, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "image", "images", "imagesgenerated":
		return UsageImages, nil
	case "video", "videos", "videosgenerated":
		return UsageVideos, nil
	case "scene", "scenes", "scenesgenerated":
		return UsageScenes, nil
	}
	return "", fmt.Errorf("unknown usage field %q", raw)
}

var generationCosts = map[UsageField]int{
	UsageImages: 1,
	UsageVideos: 5,
	UsageScenes: 3,
}

// CostOf is the credit price of one generation of the given kind.
func CostOf(field UsageField) int {
	if c, ok := generationCosts[field]; ok {
		return c
	}
	return generationCosts[UsageImages]
}

// Account is the plan and credit state of a single user.
type Account struct {
	Plan           string `json:"plan"`
	PlanPrice      int    `json:"planPrice"`
	TotalPurchased int    `json:"totalPurchased"`
	TotalUsed      int    `json:"totalUsed"`
	Balance        int    `json:"balance"`

	ImagesGenerated int `json:"imagesGenerated"`
	VideosGenerated int `json:"videosGenerated"`
	ScenesGenerated int `json:"scenesGenerated"`
}

// NewAccount returns an account on plan with its full entitlement and no usage.
func NewAccount(plan string) Account {
	var a Account
	a.ChangePlan(plan)
	return a
}

// ChangePlan applies the plan's price and credit grant. TotalUsed is kept.
func (a *Account) ChangePlan(plan string) {
	e := EntitlementFor(plan)
	a.Plan = e.Plan
	a.PlanPrice = e.Price
	a.TotalPurchased = e.Credits
	a.recompute()
}

// SetTotalPurchased overrides the purchased total.
func (a *Account) SetTotalPurchased(n int) {
	a.TotalPurchased = nonNegative(n)
	a.recompute()
}

// SetTotalUsed overrides the used total.
func (a *Account) SetTotalUsed(n int) {
	a.TotalUsed = nonNegative(n)
	a.recompute()
}

// SetUsage stores a generation counter verbatim.
func (a *Account) SetUsage(field UsageField, n int) error {
	n = nonNegative(n)
	switch field {
	case UsageImages:
		a.ImagesGenerated = n
	case UsageVideos:
		a.VideosGenerated = n
	case UsageScenes:
		a.ScenesGenerated = n
	default:
		return fmt.Errorf("unknown usage field %q", field)
	}
	return nil
}

// Consume spends n credits.
func (a *Account) Consume(n int) error {
	if n < 0 {
		return fmt.Errorf("consume: negative amount %d", n)
	}
	a.recompute()
	if a.Balance < n {
		return ErrInsufficientCredits
	}
	a.TotalUsed += n
	a.recompute()
	return nil
}

// Refund gives back n previously consumed credits.
func (a *Account) Refund(n int) {
	a.TotalUsed = nonNegative(a.TotalUsed - nonNegative(n))
	a.recompute()
}

// RecordGeneration increments the counter for one finished generation.
func (a *Account) RecordGeneration(field UsageField) error {
	switch field {
	case UsageImages:
		a.ImagesGenerated++
	case UsageVideos:
		a.VideosGenerated++
	case UsageScenes:
		a.ScenesGenerated++
	default:
		return fmt.Errorf("unknown usage field %q", field)
	}
	return nil
}

// Reset clears usage, keeping the plan grant.
func (a *Account) Reset() {
	a.TotalUsed = 0
	a.ImagesGenerated = 0
	a.VideosGenerated = 0
	a.ScenesGenerated = 0
	a.recompute()
}

// Normalize re-derives Balance and canonicalises the plan name. It is applied
// to rows read from storage so that stale balances never leave this package.
func (a *Account) Normalize() {
	a.Plan = EntitlementFor(a.Plan).Plan
	a.TotalPurchased = nonNegative(a.TotalPurchased)
	a.TotalUsed = nonNegative(a.TotalUsed)
	a.recompute()
}

func (a *Account) recompute() {
	a.Balance = Balance(a.TotalPurchased, a.TotalUsed)
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Changeset is a partial update of an Account. Nil fields are left untouched.
type Changeset struct {
	Plan            *string `json:"plan,omitempty"`
	TotalPurchased  *int    `json:"totalPurchased,omitempty"`
	TotalUsed       *int    `json:"totalUsed,omitempty"`
	ImagesGenerated *int    `json:"imagesGenerated,omitempty"`
	VideosGenerated *int    `json:"videosGenerated,omitempty"`
	ScenesGenerated *int    `json:"scenesGenerated,omitempty"`
}

// IsEmpty reports whether the changeset carries no field.
func (c Changeset) IsEmpty() bool {
	return c.Plan == nil && c.TotalPurchased == nil && c.TotalUsed == nil &&
		c.ImagesGenerated == nil && c.VideosGenerated == nil && c.ScenesGenerated == nil
}

// Apply runs the changeset in a fixed order: plan change, purchased override,
// used override, then the usage counters.
func (a *Account) Apply(c Changeset) {
	if c.Plan != nil {
		a.ChangePlan(*c.Plan)
	}
	if c.TotalPurchased != nil {
		a.SetTotalPurchased(*c.TotalPurchased)
	}
	if c.TotalUsed != nil {
		a.SetTotalUsed(*c.TotalUsed)
	}
	if c.ImagesGenerated != nil {
		a.ImagesGenerated = nonNegative(*c.ImagesGenerated)
	}
	if c.VideosGenerated != nil {
		a.VideosGenerated = nonNegative(*c.VideosGenerated)
	}
	if c.ScenesGenerated != nil {
		a.ScenesGenerated = nonNegative(*c.ScenesGenerated)
	}
}
