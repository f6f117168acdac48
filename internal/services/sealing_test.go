package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/store"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memBlobs is an in-memory Storage for pipeline tests.
type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (b *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return data, nil
}

func (b *memBlobs) Put(ctx context.Context, key string, data []byte, meta BlobMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return nil
}

func (b *memBlobs) PutIfAbsent(ctx context.Context, key string, data []byte, meta BlobMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; ok {
		return nil
	}
	b.data[key] = data
	return nil
}

func newTestPipeline(t *testing.T, st *store.MemoryStore) (*SealingPipeline, *memBlobs) {
	t.Helper()
	blobs := newMemBlobs()
	return NewSealingPipeline(st, blobs, LogPublisher{}), blobs
}

func sealCandidate(t *testing.T, st *store.MemoryStore, status models.EnvelopeStatus, sealState models.SealState, stateAge time.Duration) string {
	t.Helper()
	env := &models.Envelope{
		Status:      status,
		SealState:   sealState,
		SealStateAt: time.Now().Add(-stateAge),
	}
	signers := []*models.Signer{{ID: "s1", Name: "Ada", Email: "ada@example.com", Role: models.RoleSigner, Order: 1, Status: models.SignerCompleted}}
	id, err := st.CreateEnvelope(context.Background(), env, signers, nil, nil)
	if err != nil {
		t.Fatalf("CreateEnvelope: %v", err)
	}
	return id
}

func TestClaim(t *testing.T) {
	tests := []struct {
		name      string
		status    models.EnvelopeStatus
		sealState models.SealState
		stateAge  time.Duration
		want      bool
	}{
		{"scheduled", models.EnvelopeInProgress, models.SealScheduled, time.Minute, true},
		{"failed retries", models.EnvelopeInProgress, models.SealFailed, time.Minute, true},
		{"fresh lease holds", models.EnvelopeInProgress, models.SealRunning, time.Minute, false},
		{"stale lease reclaimed", models.EnvelopeInProgress, models.SealRunning, sealLeaseTTL + time.Minute, true},
		{"already sealed", models.EnvelopeInProgress, models.SealDone, time.Minute, false},
		{"never scheduled", models.EnvelopeInProgress, models.SealNone, time.Minute, false},
		{"not in progress", models.EnvelopeSent, models.SealScheduled, time.Minute, false},
		{"completed envelope", models.EnvelopeCompleted, models.SealScheduled, time.Minute, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			p, _ := newTestPipeline(t, st)
			id := sealCandidate(t, st, tc.status, tc.sealState, tc.stateAge)

			claimed, err := p.claim(context.Background(), id)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if claimed != tc.want {
				t.Fatalf("claimed = %v, want %v", claimed, tc.want)
			}
			env, _ := st.Envelope(context.Background(), id)
			if tc.want && env.SealState != models.SealRunning {
				t.Errorf("sealState = %s after claim, want sealing", env.SealState)
			}
			if !tc.want && env.SealState != tc.sealState {
				t.Errorf("sealState = %s, want untouched %s", env.SealState, tc.sealState)
			}
		})
	}
}

func TestSealSkipsUnclaimableEnvelope(t *testing.T) {
	st := store.NewMemoryStore()
	p, blobs := newTestPipeline(t, st)
	id := sealCandidate(t, st, models.EnvelopeCompleted, models.SealDone, time.Minute)

	// A repeat delivery for an already-sealed envelope is a clean no-op.
	if err := p.Seal(context.Background(), id); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(blobs.data) != 0 {
		t.Errorf("no-op seal wrote %d blobs", len(blobs.data))
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	p, _ := newTestPipeline(t, st)
	id := sealCandidate(t, st, models.EnvelopeInProgress, models.SealRunning, time.Minute)

	if err := p.complete(context.Background(), id, "k/sealed.pdf", "k/certificate.pdf", "abc123"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	env, _ := st.Envelope(context.Background(), id)
	if env.Status != models.EnvelopeCompleted || env.SealState != models.SealDone {
		t.Fatalf("envelope = %s/%s, want completed/sealed", env.Status, env.SealState)
	}
	if env.SealedKey != "k/sealed.pdf" || env.CompletionCertKey != "k/certificate.pdf" || env.ContentHash != "abc123" {
		t.Errorf("artifact refs = %q %q %q", env.SealedKey, env.CompletionCertKey, env.ContentHash)
	}

	events, _ := st.AuditTrail(context.Background(), id)
	if len(events) != 1 || events[0].EventType != models.EventCompleted {
		t.Fatalf("trail = %v, want [completed]", eventTypes(events))
	}
	if events[0].ActorName != "system" {
		t.Errorf("completed actor = %q, want system", events[0].ActorName)
	}
	if events[0].EventData["contentHash"] != "abc123" {
		t.Errorf("completed data = %v", events[0].EventData)
	}

	if err := p.complete(context.Background(), id, "other.pdf", "other-cert.pdf", "zzz"); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	env, _ = st.Envelope(context.Background(), id)
	if env.SealedKey != "k/sealed.pdf" {
		t.Errorf("second complete rewrote artifacts: %q", env.SealedKey)
	}
	if events, _ := st.AuditTrail(context.Background(), id); len(events) != 1 {
		t.Errorf("second complete appended events: %d", len(events))
	}
}

func TestFailStampsEnvelopeAndKeepsProgress(t *testing.T) {
	st := store.NewMemoryStore()
	p, _ := newTestPipeline(t, st)
	id := sealCandidate(t, st, models.EnvelopeInProgress, models.SealRunning, time.Minute)

	cause := errors.New("bucket unreachable")
	err := p.fail(context.Background(), testLogger(), id, "download", cause)

	var failure *SealingFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected SealingFailure, got %v", err)
	}
	if failure.Step != "download" || !errors.Is(err, cause) {
		t.Errorf("failure = %v", failure)
	}

	// Signer completions stand: the envelope stays in_progress for retry.
	env, _ := st.Envelope(context.Background(), id)
	if env.Status != models.EnvelopeInProgress {
		t.Errorf("status = %s, want in_progress", env.Status)
	}
	if env.SealState != models.SealFailed {
		t.Errorf("sealState = %s, want failed", env.SealState)
	}
	if !strings.Contains(env.SealError, "download") {
		t.Errorf("sealError = %q", env.SealError)
	}
}

func TestFetchSignatureImages(t *testing.T) {
	st := store.NewMemoryStore()
	p, blobs := newTestPipeline(t, st)
	blobs.data["sig-keys/a.png"] = []byte("png-a")
	blobs.data["sig-keys/b.png"] = []byte("png-b")

	fields := []*models.Field{
		{ID: "f1", Type: models.FieldSignature, SignatureKey: "sig-keys/a.png"},
		{ID: "f2", Type: models.FieldSignature, SignatureKey: "sig-keys/b.png"},
		{ID: "f3", Type: models.FieldText, Value: "Acme Corp"},
	}
	images, err := p.fetchSignatureImages(context.Background(), fields)
	if err != nil {
		t.Fatalf("fetchSignatureImages: %v", err)
	}
	if len(images) != 2 || string(images["f1"]) != "png-a" || string(images["f2"]) != "png-b" {
		t.Errorf("images = %v", images)
	}

	fields = append(fields, &models.Field{ID: "f4", Type: models.FieldSignature, SignatureKey: "sig-keys/missing.png"})
	if _, err := p.fetchSignatureImages(context.Background(), fields); err == nil {
		t.Error("expected error for missing signature image")
	}
}

// fixturePDF renders a one-page A4 document through the same create-JSON
// path the certificate uses.
func fixturePDF(t *testing.T, dir string) string {
	t.Helper()
	doc := certDoc{Paper: "A4", Origin: "upperLeft", Pages: map[string]certPage{
		"1": {Content: certContent{Text: []certText{
			{Value: "Agreement", Anchor: "tl", Dx: 40, Dy: 50, Font: certFont{Name: "Helvetica", Size: 12}},
		}}},
	}}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	jsonPath := filepath.Join(dir, "fixture.json")
	if err := os.WriteFile(jsonPath, raw, 0o600); err != nil {
		t.Fatalf("write fixture json: %v", err)
	}
	pdfPath := filepath.Join(dir, "fixture.pdf")
	if err := api.CreateFile("", jsonPath, pdfPath, relaxedConf()); err != nil {
		t.Fatalf("render fixture pdf: %v", err)
	}
	return pdfPath
}

func TestApplyFieldsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := fixturePDF(t, dir)

	fields := []*models.Field{
		{ID: "f1", Type: models.FieldText, Page: 1, X: 10, Y: 20, Width: 30, Height: 4, Value: "Acme Corp"},
		{ID: "f2", Type: models.FieldCheckbox, Page: 1, X: 10, Y: 30, Width: 4, Height: 4, Value: "yes"},
		{ID: "f3", Type: models.FieldText, Page: 1, X: 10, Y: 40, Width: 30, Height: 4}, // empty optional
	}

	stamped := filepath.Join(dir, "stamped.pdf")
	applied, err := applyFields(src, stamped, fields, nil)
	if err != nil {
		t.Fatalf("applyFields: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied = %d, want 2 (empty optional skipped)", applied)
	}

	flat := filepath.Join(dir, "sealed.pdf")
	if err := flattenPDF(stamped, flat); err != nil {
		t.Fatalf("flattenPDF: %v", err)
	}
	hash, err := fileSHA256(flat)
	if err != nil || hash == "" {
		t.Fatalf("fileSHA256: %q, %v", hash, err)
	}
	if n, err := api.PageCountFile(flat); err != nil || n != 1 {
		t.Fatalf("sealed page count = %d, %v", n, err)
	}

	// Stamps are page content, not form fields: reflattening the sealed
	// document is a clean no-op.
	again := filepath.Join(dir, "sealed-again.pdf")
	if err := flattenPDF(flat, again); err != nil {
		t.Fatalf("reflatten: %v", err)
	}
}

func TestApplyFieldsRejectsOutOfRangePage(t *testing.T) {
	dir := t.TempDir()
	src := fixturePDF(t, dir)

	fields := []*models.Field{
		{ID: "f1", Type: models.FieldText, Page: 2, X: 10, Y: 20, Width: 30, Height: 4, Value: "Acme Corp"},
	}
	if _, err := applyFields(src, filepath.Join(dir, "out.pdf"), fields, nil); err == nil {
		t.Error("expected error for field beyond the page count")
	}
}

func TestApplyFieldsWithNothingFilledCopiesSource(t *testing.T) {
	dir := t.TempDir()
	src := fixturePDF(t, dir)

	fields := []*models.Field{
		{ID: "f1", Type: models.FieldText, Page: 1, X: 10, Y: 20, Width: 30, Height: 4},
	}
	out := filepath.Join(dir, "out.pdf")
	applied, err := applyFields(src, out, fields, nil)
	if err != nil {
		t.Fatalf("applyFields: %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0", applied)
	}
	srcHash, err := fileSHA256(src)
	if err != nil {
		t.Fatalf("fileSHA256: %v", err)
	}
	outHash, err := fileSHA256(out)
	if err != nil {
		t.Fatalf("fileSHA256: %v", err)
	}
	if srcHash != outHash {
		t.Error("zero-stamp output differs from the source document")
	}
}

func TestCheckboxChecked(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"checked", true},
		{" x ", true},
		{"", false},
		{"false", false},
		{"0", false},
		{"no", false},
	}
	for _, tc := range tests {
		if got := checkboxChecked(tc.value); got != tc.want {
			t.Errorf("checkboxChecked(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestFieldText(t *testing.T) {
	if got := fieldText(&models.Field{Type: models.FieldCheckbox, Value: "yes"}); got != "X" {
		t.Errorf("checked checkbox text = %q, want X", got)
	}
	if got := fieldText(&models.Field{Type: models.FieldCheckbox, Value: "no"}); got != "" {
		t.Errorf("unchecked checkbox text = %q, want empty", got)
	}
	if got := fieldText(&models.Field{Type: models.FieldText, Value: "Acme Corp"}); got != "Acme Corp" {
		t.Errorf("text field text = %q", got)
	}
}
