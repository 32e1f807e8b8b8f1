package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/atlasintel/atlas-engine/internal/models"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestRemoteInvokeSuccess(t *testing.T) {
	client := NewRemoteClient("https://functions.example.com", time.Second)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/functions/tutorial" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"data":{"concept":"deterrence","explanation":"x","geopoliticalExample":"y","interactiveElement":"z","assessmentQuestion":"q"}}`), nil
	})

	src := NewRemoteSource(client, nil)
	payload, err := src.Attempt(context.Background(), testRequest(models.KindTutorial))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tutorial, ok := payload.(models.TutorialPayload)
	if !ok || tutorial.Concept != "deterrence" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRemoteInvokeEnvelopeError(t *testing.T) {
	client := NewRemoteClient("https://functions.example.com", time.Second)
	client.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"error":"function cold start failed"}`), nil
	})

	src := NewRemoteSource(client, nil)
	if _, err := src.Attempt(context.Background(), testRequest(models.KindTutorial)); err == nil {
		t.Fatal("expected envelope error to fail the attempt")
	} else if !strings.Contains(err.Error(), "cold start") {
		t.Fatalf("error should carry upstream reason, got %v", err)
	}
}

func TestRemoteInvokeNoData(t *testing.T) {
	client := NewRemoteClient("https://functions.example.com", time.Second)
	client.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"data":null}`), nil
	})

	src := NewRemoteSource(client, nil)
	if _, err := src.Attempt(context.Background(), testRequest(models.KindTutorial)); err == nil {
		t.Fatal("expected missing data to fail the attempt")
	}
}
