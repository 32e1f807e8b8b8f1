package source

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/atlasintel/atlas-engine/internal/models"
)

func newStubGenerative(t *testing.T, text string) *GenerativeSource {
	t.Helper()
	client := NewGenerativeClient("https://llm.example.com", "key", GenerationConfig{Model: "m", Temperature: 0.7, MaxOutputTokens: 512}, time.Second)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("missing auth header, got %q", got)
		}
		return jsonResponse(http.StatusOK, `{"text":`+text+`}`), nil
	})
	return NewGenerativeSource(client, nil)
}

func TestGenerativeParsesJSONText(t *testing.T) {
	src := newStubGenerative(t, `"{\"concept\":\"brinkmanship\",\"explanation\":\"x\",\"geopoliticalExample\":\"y\",\"interactiveElement\":\"z\",\"assessmentQuestion\":\"q\"}"`)

	payload, err := src.Attempt(context.Background(), testRequest(models.KindTutorial))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.(models.TutorialPayload).Concept != "brinkmanship" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGenerativeStripsMarkdownFence(t *testing.T) {
	src := newStubGenerative(t, `"`+"```json\\n{\\\"concept\\\":\\\"c\\\",\\\"explanation\\\":\\\"e\\\"}\\n```"+`"`)

	payload, err := src.Attempt(context.Background(), testRequest(models.KindTutorial))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.(models.TutorialPayload).Concept != "c" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGenerativeMalformedPayloadIsSourceFailure(t *testing.T) {
	src := newStubGenerative(t, `"this is prose, not JSON"`)

	_, err := src.Attempt(context.Background(), testRequest(models.KindTutorial))
	var malformed *models.MalformedPayloadError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedPayloadError, got %T: %v", err, err)
	}
	if malformed.Source != models.SourceDirectAPI {
		t.Fatalf("wrong source on malformed error: %s", malformed.Source)
	}
}
