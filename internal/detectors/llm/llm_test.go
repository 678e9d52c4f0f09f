// Copyright The lexredact Authors.
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexredact/internal/detector"
	"lexredact/internal/resilience"
	"lexredact/internal/security"
)

// chatServer answers every request with the entities returned by respond.
func chatServer(t *testing.T, respond func(user string) (int, []llmEntity)) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu       sync.Mutex
		received []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		user := req.Messages[1].Content

		mu.Lock()
		received = append(received, user)
		mu.Unlock()

		status, entities := respond(user)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"upstream failure","type":"server_error"}}`)
			return
		}
		content, _ := json.Marshal(llmResult{Entities: entities})
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": string(content)}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func testOptions(endpoint string) Options {
	return Options{
		Enabled:           true,
		Endpoint:          endpoint + "/v1",
		Model:             "test-model",
		Timeout:           5 * time.Second,
		MaxRetries:        1,
		ChunkChars:        6000,
		Concurrency:       2,
		RequestsPerSecond: 1000,
	}
}

func fastRetries(d *Detector) {
	d.retry = resilience.RetryConfig{MaxRetries: d.opts.MaxRetries, InitialInterval: time.Millisecond, Multiplier: 1}
}

func TestDetectPreRedactsAndRestoresOffsets(t *testing.T) {
	text := "La demandante, con DNI 45678912, es María Quispe Rojas, domiciliada en Av. Los Olivos 123."
	dniStart := strings.Index(text, "45678912")
	prior := []detector.Entity{
		detector.NewEntity(detector.NationalID, text, dniStart, dniStart+8, 1, detector.LayerDeterministic, "dni"),
	}

	srv, received := chatServer(t, func(user string) (int, []llmEntity) {
		return http.StatusOK, []llmEntity{
			{Type: "PERSON", Value: "María Quispe Rojas"},
			{Type: "DIRECCION", Value: "Av. Los Olivos 123"},
			{Type: "NATIONAL_ID", Value: "{{NATIONAL_ID_1}}"},
			{Type: "MISC", Value: "demandante"},
		}
	})
	d := New(testOptions(srv.URL))

	c := d.Detect(context.Background(), detector.Document{Name: "doc", Text: text}, prior)
	require.False(t, c.Degraded(), c.Err)

	require.Len(t, *received, 1)
	assert.NotContains(t, (*received)[0], "45678912")
	assert.Contains(t, (*received)[0], "{{NATIONAL_ID_1}}")

	require.Len(t, c.Entities, 2)
	assert.Equal(t, detector.Person, c.Entities[0].Category)
	assert.Equal(t, "María Quispe Rojas", text[c.Entities[0].Span.Start:c.Entities[0].Span.End])
	assert.Equal(t, detector.LayerLLM, c.Entities[0].Layer)
	assert.Equal(t, Confidence, c.Entities[0].Confidence)
	assert.Equal(t, detector.Address, c.Entities[1].Category)
	assert.Equal(t, "Av. Los Olivos 123", c.Entities[1].Raw)
}

func TestDetectChunksRestoreOrder(t *testing.T) {
	names := []string{"Rosa Huamán", "Pedro Castillo", "Lucía Mendoza"}
	var paragraphs []string
	for _, n := range names {
		paragraphs = append(paragraphs, "Comparece "+n+" ante el juzgado. "+strings.Repeat("Texto procesal de relleno. ", 8))
	}
	text := strings.Join(paragraphs, "\n\n")

	srv, received := chatServer(t, func(user string) (int, []llmEntity) {
		var out []llmEntity
		for _, n := range names {
			if strings.Contains(user, n) {
				out = append(out, llmEntity{Type: "PERSON", Value: n})
			}
		}
		return http.StatusOK, out
	})
	opts := testOptions(srv.URL)
	opts.ChunkChars = 300
	d := New(opts)

	c := d.Detect(context.Background(), detector.Document{Text: text}, nil)
	require.False(t, c.Degraded())
	assert.Len(t, *received, 3)

	require.Len(t, c.Entities, 3)
	for i, n := range names {
		assert.Equal(t, n, c.Entities[i].Raw)
		assert.Equal(t, strings.Index(text, n), c.Entities[i].Span.Start)
	}
}

func TestDetectRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv, _ := chatServer(t, func(user string) (int, []llmEntity) {
		if calls.Add(1) == 1 {
			return http.StatusServiceUnavailable, nil
		}
		return http.StatusOK, []llmEntity{{Type: "PERSON", Value: "Juan Pérez"}}
	})
	d := New(testOptions(srv.URL))
	fastRetries(d)

	c := d.Detect(context.Background(), detector.Document{Text: "Firma Juan Pérez."}, nil)
	require.NoError(t, c.Err)
	require.Len(t, c.Entities, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDetectChunkFailuresContributeNothing(t *testing.T) {
	text := "Primero Juan Pérez.\n\nSegundo FALLA aquí."
	srv, _ := chatServer(t, func(user string) (int, []llmEntity) {
		if strings.Contains(user, "FALLA") {
			return http.StatusBadRequest, nil
		}
		return http.StatusOK, []llmEntity{{Type: "PERSON", Value: "Juan Pérez"}}
	})
	opts := testOptions(srv.URL)
	opts.ChunkChars = 25
	d := New(opts)
	fastRetries(d)

	c := d.Detect(context.Background(), detector.Document{Text: text}, nil)
	require.NoError(t, c.Err)
	require.Len(t, c.Entities, 1)
	assert.Equal(t, "1 of 2 chunks failed", c.Reason)
}

func TestDetectAllChunksFailed(t *testing.T) {
	srv, _ := chatServer(t, func(user string) (int, []llmEntity) {
		return http.StatusUnauthorized, nil
	})
	d := New(testOptions(srv.URL))

	c := d.Detect(context.Background(), detector.Document{Text: "Juan Pérez"}, nil)
	assert.True(t, c.Degraded())
	require.Error(t, c.Err)
	assert.Empty(t, c.Entities)
}

func TestDetectSkips(t *testing.T) {
	c := New(Options{}).Detect(context.Background(), detector.Document{Text: "x"}, nil)
	assert.True(t, c.Skipped)

	c = New(Options{Enabled: true, Endpoint: "http://localhost"}).Detect(context.Background(), detector.Document{Text: "x"}, nil)
	assert.True(t, c.Skipped)
}

func TestClientSendsAPIKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"entities\":[]}"}}]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "m", security.NewSecureString("sk-123"), time.Second, nil)
	content, err := client.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"entities":[]}`, content)
	assert.Equal(t, "Bearer sk-123", auth)
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "m", nil, time.Second, nil).Complete(context.Background(), "s", "u")
	classified := resilience.ClassifyError(err)
	assert.Equal(t, resilience.ErrorTypeRateLimit, classified.Type)
	assert.Equal(t, 3*time.Second, classified.RetryAfter)
}

func TestParseEntities(t *testing.T) {
	got, err := parseEntities("```json\n{\"entities\":[{\"type\":\"PERSON\",\"value\":\"Ana Ruiz\"}]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []llmEntity{{Type: "PERSON", Value: "Ana Ruiz"}}, got)

	_, err = parseEntities("no encontré nada")
	assert.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestLocate(t *testing.T) {
	text := "ANA RUIZ firmó; Ana  Ruiz pagó; Anabel Ruiz no."
	spans := locate(text, "Ana Ruiz")
	require.Len(t, spans, 2)
	assert.Equal(t, "ANA RUIZ", text[spans[0].Start:spans[0].End])
	assert.Equal(t, "Ana  Ruiz", text[spans[1].Start:spans[1].End])

	assert.Empty(t, locate(text, "A"))
	assert.Empty(t, locate(text, "{{PERSON_1}}"))
}

func TestPreRedactMapping(t *testing.T) {
	text := "Sr. Núñez, DNI 12345678, correo a@b.pe y Núñez otra vez."
	n1 := strings.Index(text, "Núñez")
	n2 := strings.LastIndex(text, "Núñez")
	dni := strings.Index(text, "12345678")
	prior := []detector.Entity{
		detector.NewEntity(detector.Person, text, n1, n1+len("Núñez"), 0.9, detector.LayerHeuristic, "honorific"),
		detector.NewEntity(detector.NationalID, text, dni, dni+8, 1, detector.LayerDeterministic, "dni"),
		detector.NewEntity(detector.Person, text, n2, n2+len("Núñez"), 0.9, detector.LayerHeuristic, "honorific"),
		detector.NewEntity(detector.NationalID, text, dni+2, dni+6, 1, detector.LayerDeterministic, "overlap"),
	}

	r := preRedact(text, prior)
	assert.Equal(t, "Sr. {{PERSON_1}}, DNI {{NATIONAL_ID_1}}, correo a@b.pe y {{PERSON_1}} otra vez.", r.text)

	at := strings.Index(r.text, "a@b.pe")
	orig, ok := r.original(detector.Span{Start: at, End: at + 6})
	require.True(t, ok)
	assert.Equal(t, "a@b.pe", text[orig.Start:orig.End])

	tok := strings.Index(r.text, "{{PERSON_1}}")
	_, ok = r.original(detector.Span{Start: tok, End: tok + 4})
	assert.False(t, ok)
}

func TestSplitChunks(t *testing.T) {
	text := "uno dos\n\ntres cuatro\n\ncinco"
	chunks := splitChunks(text, 12)
	require.Len(t, chunks, 3)
	assert.Equal(t, "uno dos\n\n", chunks[0].text)
	assert.Equal(t, "tres cuatro\n", chunks[1].text)
	for _, c := range chunks {
		assert.Equal(t, c.text, text[c.offset:c.offset+len(c.text)])
	}

	long := strings.Repeat("ñ", 10)
	for _, c := range splitChunks(long, 5) {
		assert.True(t, len(c.text) > 0)
		assert.Equal(t, c.text, strings.ToValidUTF8(c.text, "?"))
	}
}

func TestDefaultTransport(t *testing.T) {
	client := NewClient("http://localhost:1", "m", nil, time.Second, nil)
	tr, ok := client.http.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 16, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.Equal(t, time.Second, client.http.Timeout)
}
