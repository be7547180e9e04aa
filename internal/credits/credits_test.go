package credits

import (
	"errors"
	"math/rand"
	"testing"
)

func TestEntitlementForKnownPlans(t *testing.T) {
	cases := map[string]Entitlement{
		"Free":       {Plan: PlanFree, Credits: 3, Price: 0},
		"basic":      {Plan: PlanBasic, Credits: 50, Price: 499},
		"PRO":        {Plan: PlanPro, Credits: 200, Price: 999},
		" Business ": {Plan: PlanBusiness, Credits: 500, Price: 1499},
		"Enterprise": {Plan: PlanEnterprise, Credits: 1000, Price: 2999},
	}
	for name, want := range cases {
		if got := EntitlementFor(name); got != want {
			t.Fatalf("EntitlementFor(%q) = %+v, want %+v", name, got, want)
		}
	}
}

func TestEntitlementForUnknownFallsBackToFree(t *testing.T) {
	for _, name := range []string{"", "Platinum", "  "} {
		got := EntitlementFor(name)
		if got.Plan != PlanFree || got.Credits != 3 || got.Price != 0 {
			t.Fatalf("EntitlementFor(%q) = %+v, want Free", name, got)
		}
	}
	if IsKnownPlan("Platinum") {
		t.Fatal("expected Platinum to be unknown")
	}
}

func TestChangePlanFreeToProKeepsUsage(t *testing.T) {
	a := NewAccount(PlanFree)
	a.SetTotalUsed(10)

	a.ChangePlan(PlanPro)

	if a.TotalPurchased != 200 || a.Balance != 190 || a.PlanPrice != 999 {
		t.Fatalf("unexpected account after plan change: %+v", a)
	}
	if a.TotalUsed != 10 {
		t.Fatalf("expected totalUsed to be kept, got %d", a.TotalUsed)
	}
}

func TestSetTotalUsedClampsBalance(t *testing.T) {
	a := NewAccount(PlanPro)
	a.SetTotalUsed(250)

	if a.Balance != 0 {
		t.Fatalf("expected clamped balance 0, got %d", a.Balance)
	}
	if a.TotalUsed != 250 {
		t.Fatalf("expected totalUsed 250, got %d", a.TotalUsed)
	}
}

func TestChangePlanIgnoresPriorValues(t *testing.T) {
	a := Account{Plan: "Enterprise", PlanPrice: 1, TotalPurchased: 99999, TotalUsed: 5}
	a.ChangePlan(PlanBasic)

	if a.TotalPurchased != 50 || a.PlanPrice != 499 || a.Plan != PlanBasic {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestUsageCountersDoNotTouchBalance(t *testing.T) {
	a := NewAccount(PlanBasic)
	a.SetTotalUsed(7)
	before := a.Balance

	if err := a.SetUsage(UsageImages, 12); err != nil {
		t.Fatalf("SetUsage returned error: %v", err)
	}
	if err := a.SetUsage(UsageVideos, 3); err != nil {
		t.Fatalf("SetUsage returned error: %v", err)
	}
	if err := a.SetUsage("bogus", 3); err == nil {
		t.Fatal("expected error for unknown usage field")
	}

	if a.Balance != before || a.ImagesGenerated != 12 || a.VideosGenerated != 3 {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestConsumeAndRefund(t *testing.T) {
	a := NewAccount(PlanFree)

	if err := a.Consume(2); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if a.Balance != 1 || a.TotalUsed != 2 {
		t.Fatalf("unexpected account after consume: %+v", a)
	}

	if err := a.Consume(2); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if a.TotalUsed != 2 {
		t.Fatalf("failed consume must not change state, got %+v", a)
	}

	a.Refund(5)
	if a.TotalUsed != 0 || a.Balance != 3 {
		t.Fatalf("unexpected account after refund: %+v", a)
	}
}

func TestApplyChangesetOrder(t *testing.T) {
	a := NewAccount(PlanFree)
	a.SetTotalUsed(10)

	plan := "Business"
	purchased := 600
	images := 4
	a.Apply(Changeset{Plan: &plan, TotalPurchased: &purchased, ImagesGenerated: &images})

	if a.Plan != PlanBusiness || a.PlanPrice != 1499 {
		t.Fatalf("expected Business plan, got %+v", a)
	}
	if a.TotalPurchased != 600 || a.Balance != 590 || a.ImagesGenerated != 4 {
		t.Fatalf("unexpected account: %+v", a)
	}
}

func TestResetKeepsGrant(t *testing.T) {
	a := NewAccount(PlanPro)
	a.SetTotalUsed(120)
	_ = a.RecordGeneration(UsageScenes)
	a.Reset()

	if a.TotalUsed != 0 || a.Balance != 200 || a.ScenesGenerated != 0 {
		t.Fatalf("unexpected account after reset: %+v", a)
	}
}

// Random interleavings of plan changes and manual edits must always leave
// balance == max(0, purchased - used).
func TestBalanceHoldsUnderInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	plans := []string{"Free", "Basic", "Pro", "Business", "Enterprise", "", "unknown"}

	for run := 0; run < 500; run++ {
		a := NewAccount(plans[rng.Intn(len(plans))])
		for step := 0; step < 40; step++ {
			switch rng.Intn(6) {
			case 0:
				a.ChangePlan(plans[rng.Intn(len(plans))])
			case 1:
				a.SetTotalPurchased(rng.Intn(3000) - 100)
			case 2:
				a.SetTotalUsed(rng.Intn(3000) - 100)
			case 3:
				_ = a.Consume(rng.Intn(20))
			case 4:
				a.Refund(rng.Intn(20))
			case 5:
				_ = a.SetUsage(UsageScenes, rng.Intn(50))
			}

			want := a.TotalPurchased - a.TotalUsed
			if want < 0 {
				want = 0
			}
			if a.Balance != want || a.Balance < 0 {
				t.Fatalf("run %d step %d: balance %d, want %d (%+v)", run, step, a.Balance, want, a)
			}
			if a.TotalPurchased < 0 || a.TotalUsed < 0 {
				t.Fatalf("run %d step %d: negative operand (%+v)", run, step, a)
			}
		}
	}
}

func TestParseUsageField(t *testing.T) {
	cases := map[string]UsageField{
		"image":           UsageImages,
		"Videos":          UsageVideos,
		"scenesGenerated": UsageScenes,
	}
	for raw, want := range cases {
		got, err := ParseUsageField(raw)
		if err != nil || got != want {
			t.Fatalf("ParseUsageField(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseUsageField("audio"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestCostOf(t *testing.T) {
	if CostOf(UsageImages) != 1 || CostOf(UsageVideos) != 5 || CostOf(UsageScenes) != 3 {
		t.Fatal("unexpected generation costs")
	}
	if CostOf(UsageField("other")) != 1 {
		t.Fatal("unknown kinds should cost as an image")
	}
}
