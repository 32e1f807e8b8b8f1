package source

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/atlasintel/atlas-engine/internal/models"
)

func TestFallbackIsDeterministicPerRequest(t *testing.T) {
	src := NewFallbackSource()
	req := models.AnalyticalRequest{
		Kind:       models.KindRiskAssessment,
		Parameters: map[string]any{"region": "Sahel"},
		IssuedAt:   time.Now(),
	}

	first, err := src.Attempt(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := src.Attempt(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("fallback not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestFallbackCoversEveryKind(t *testing.T) {
	src := NewFallbackSource()
	kinds := []models.RequestKind{
		models.KindTutorial,
		models.KindRiskAssessment,
		models.KindSimulation,
		models.KindCrisisScan,
		models.KindEconomicImpact,
	}
	for _, kind := range kinds {
		payload, err := src.Attempt(context.Background(), models.AnalyticalRequest{Kind: kind, IssuedAt: time.Now()})
		if err != nil {
			t.Fatalf("kind %s: %v", kind, err)
		}
		if payload.PayloadKind() != kind {
			t.Fatalf("kind %s produced payload for %s", kind, payload.PayloadKind())
		}
	}
}

func TestFallbackScanEventsValidate(t *testing.T) {
	src := NewFallbackSource()
	payload, err := src.Attempt(context.Background(), models.AnalyticalRequest{Kind: models.KindCrisisScan, IssuedAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scan := payload.(models.CrisisScanPayload)
	if len(scan.Events) == 0 {
		t.Fatal("expected synthesized events")
	}
	for _, e := range scan.Events {
		if e.Title == "" || e.EscalationProbability < 0 || e.EscalationProbability > 100 {
			t.Fatalf("invalid synthesized event: %+v", e)
		}
	}
}
