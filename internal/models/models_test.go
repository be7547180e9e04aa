package models

import (
	"encoding/json"
	"testing"
)

func TestPhotoshootPayloadSurvivesJSON(t *testing.T) {
	in := PhotoshootPayload{UserID: 9, Card: 3, ProductImageURL: "https://cdn.example.com/p.png", Kind: "video", Cost: 5}

	raw, err := json.Marshal(in.ToJSONB())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var j JSONB
	if err := json.Unmarshal(raw, &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	out, err := PhotoshootPayloadFromJSONB(j)
	if err != nil {
		t.Fatalf("PhotoshootPayloadFromJSONB returned error: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}
}

func TestPhotoshootPayloadRequiresUser(t *testing.T) {
	if _, err := PhotoshootPayloadFromJSONB(JSONB{"product_image_url": "https://x"}); err == nil {
		t.Fatal("expected error without user_id")
	}
}

func TestPlanInputDefaults(t *testing.T) {
	price := 9.99
	credits := 200
	p := PlanInput{Name: "Pro", Price: &price, Credits: &credits}.ToPlan()
	if !p.IsActive || p.Features == nil || p.Price != 9.99 || p.Credits != 200 {
		t.Fatalf("unexpected plan: %+v", p)
	}
}

func TestPlanFeaturesScan(t *testing.T) {
	var f PlanFeatures
	if err := f.Scan([]byte(`[{"text":"Everything in Basic","header":true},{"text":"200 credits"}]`)); err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(f) != 2 || !f[0].Header || f[1].Text != "200 credits" {
		t.Fatalf("unexpected features: %+v", f)
	}
	if err := f.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestJobIsFinalAttempt(t *testing.T) {
	j := Job{Attempts: 2, MaxAttempts: 3}
	if j.IsFinalAttempt() {
		t.Fatal("expected a retry to remain")
	}
	j.Attempts = 3
	if !j.IsFinalAttempt() {
		t.Fatal("expected final attempt")
	}
}
