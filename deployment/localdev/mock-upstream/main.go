// Command mock-upstream fakes the three external services atlas-engine talks
// to: the remote analysis functions, the generative text endpoint and the
// benchmark leaderboard. Useful for running the engine fully offline.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

func main() {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/functions/", handleFunction)
	mux.HandleFunc("/v1/generate", handleGenerate)
	mux.HandleFunc("/benchmarks/", handleBenchmarks)

	addr := ":9090"
	log.Printf("mock-upstream listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleFunction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	kind := strings.TrimPrefix(r.URL.Path, "/functions/")

	var data any
	switch kind {
	case "tutorial":
		data = map[string]any{
			"concept":             "deterrence",
			"explanation":         "Deterrence discourages an adversary by making the expected cost of action exceed its benefit.",
			"geopoliticalExample": "Cold War nuclear posture between NATO and the Warsaw Pact.",
			"interactiveElement":  "Adjust second-strike credibility and observe the stability region.",
			"assessmentQuestion":  "Why does a survivable second strike stabilize deterrence?",
		}
	case "risk_assessment":
		data = map[string]any{
			"assessments": []map[string]any{
				{
					"region":             "Eastern Europe",
					"riskScore":          72.5,
					"confidenceInterval": []float64{65, 80},
					"primaryDrivers":     []string{"troop posture", "energy leverage"},
					"scenarios":          []string{"frozen conflict", "negotiated ceasefire"},
				},
			},
		}
	case "simulation":
		data = map[string]any{
			"scenario":   "trade embargo",
			"iterations": 1000,
			"outcomes": []map[string]any{
				{"name": "compliance", "probability": 0.55, "description": "Targets comply within two quarters."},
				{"name": "retaliation", "probability": 0.45, "description": "Counter-tariffs escalate the dispute."},
			},
			"expectedPayoff": 3.0,
		}
	case "crisis_scan":
		data = map[string]any{"events": randomEvents()}
	case "economic_impact":
		data = map[string]any{
			"region":             "East Asia",
			"gdpImpactPercent":   -1.8,
			"tradeDisruptionUsd": 42e9,
			"sectors": []map[string]any{
				{"sector": "semiconductors", "impactPercent": -6.5},
				{"sector": "shipping", "impactPercent": -3.1},
			},
			"horizon": "12m",
		}
	default:
		writeJSON(w, map[string]any{"data": nil, "error": "unknown function " + kind})
		return
	}
	writeJSON(w, map[string]any{"data": data})
}

func randomEvents() []map[string]any {
	severities := []string{"low", "medium", "high", "critical"}
	categories := []string{"political", "military", "economic", "cyber"}
	regions := []string{"Eastern Europe", "South China Sea", "Sahel", "Middle East"}

	count := 2 + rand.Intn(3)
	events := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		region := regions[rand.Intn(len(regions))]
		events = append(events, map[string]any{
			"title":                 region + " incident " + time.Now().Format("150405"),
			"region":                region,
			"severity":              severities[rand.Intn(len(severities))],
			"category":              categories[rand.Intn(len(categories))],
			"escalationProbability": float64(20 + rand.Intn(75)),
			"confidence":            float64(50 + rand.Intn(45)),
		})
	}
	return events
}

func handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Summary prompts get prose; structured prompts get a JSON blob the
	// schema decoder accepts.
	if strings.Contains(strings.ToLower(req.Prompt), "summarize") {
		writeJSON(w, map[string]string{
			"text": "The model tracked realized outcomes closely over the window. Error remained stable with no sign of drift.",
		})
		return
	}
	writeJSON(w, map[string]string{
		"text": "```json\n{\"concept\":\"balance of power\",\"explanation\":\"States align to prevent any one actor from dominating the system.\"}\n```",
	})
}

func handleBenchmarks(w http.ResponseWriter, r *http.Request) {
	task := strings.TrimPrefix(r.URL.Path, "/benchmarks/")
	writeJSON(w, map[string]any{
		"scores": []map[string]any{
			{"name": "baseline-" + task, "score": 0.58, "sourceUrl": "https://benchmarks.local/" + task + "/baseline"},
			{"name": "ensemble-" + task, "score": 0.71, "sourceUrl": "https://benchmarks.local/" + task + "/ensemble"},
			{"name": "frontier-" + task, "score": 0.83, "sourceUrl": "https://benchmarks.local/" + task + "/frontier"},
		},
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
