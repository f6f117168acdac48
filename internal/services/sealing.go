package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
	"github.com/SendSign/SendSign-sub000/internal/store"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/sync/errgroup"
)

// sealLeaseTTL bounds how long one seal attempt may hold the sealing state
// before the sweep considers it stale and re-schedules.
const sealLeaseTTL = 10 * time.Minute

// SealingPipeline burns field values into the source document, flattens it
// into permanent content, anchors it with a content hash, and produces the
// completion certificate. It runs asynchronously after the last required
// signer completes; its failures never unwind signer completions.
type SealingPipeline struct {
	store     store.Store
	blobs     Storage
	audit     *Recorder
	publisher EventPublisher
	now       func() time.Time
}

// NewSealingPipeline wires the pipeline to its store and collaborators.
func NewSealingPipeline(st store.Store, blobs Storage, publisher EventPublisher) *SealingPipeline {
	return &SealingPipeline{
		store:     st,
		blobs:     blobs,
		audit:     NewRecorder(st),
		publisher: publisher,
		now:       time.Now,
	}
}

// Seal runs one sealing attempt for the envelope. It is safe to invoke
// concurrently and repeatedly: the sealState lease admits one consumer at a
// time, and a completed envelope is a clean no-op.
func (p *SealingPipeline) Seal(ctx context.Context, envelopeID string) error {
	logCtx := slog.With("envelopeId", envelopeID)

	claimed, err := p.claim(ctx, envelopeID)
	if err != nil {
		return err
	}
	if !claimed {
		logCtx.Info("Seal attempt skipped: envelope not claimable.")
		return nil
	}

	env, signers, fields, err := p.loadEnvelope(ctx, envelopeID)
	if err != nil {
		return p.fail(ctx, logCtx, envelopeID, "load", err)
	}

	tempDir, err := os.MkdirTemp("", "envelope-sealer-*")
	if err != nil {
		return p.fail(ctx, logCtx, envelopeID, "tempdir", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := p.downloadSource(ctx, env, sourcePath); err != nil {
		return p.fail(ctx, logCtx, envelopeID, "download", err)
	}

	images, err := p.fetchSignatureImages(ctx, fields)
	if err != nil {
		return p.fail(ctx, logCtx, envelopeID, "signature-images", err)
	}

	stampedPath := filepath.Join(tempDir, "stamped.pdf")
	applied, err := applyFields(sourcePath, stampedPath, fields, images)
	if err != nil {
		return p.fail(ctx, logCtx, envelopeID, "apply", err)
	}
	logCtx.Info("Field values applied.", "fieldCount", applied)

	flatPath := filepath.Join(tempDir, "sealed.pdf")
	if err := flattenPDF(stampedPath, flatPath); err != nil {
		return p.fail(ctx, logCtx, envelopeID, "flatten", err)
	}

	contentHash, err := fileSHA256(flatPath)
	if err != nil {
		return p.fail(ctx, logCtx, envelopeID, "hash", err)
	}

	sealedKey := fmt.Sprintf("%s/sealed.pdf", envelopeID)
	if err := p.uploadFile(ctx, flatPath, sealedKey); err != nil {
		return p.fail(ctx, logCtx, envelopeID, "upload-sealed", err)
	}

	certKey := fmt.Sprintf("%s/certificate.pdf", envelopeID)
	if err := p.generateCertificate(ctx, tempDir, env, signers, certKey); err != nil {
		return p.fail(ctx, logCtx, envelopeID, "certificate", err)
	}

	if err := p.complete(ctx, envelopeID, sealedKey, certKey, contentHash); err != nil {
		return p.fail(ctx, logCtx, envelopeID, "complete", err)
	}

	if err := p.publisher.Publish(ctx, SemanticEvent{Type: "envelope.completed", EnvelopeID: envelopeID, OrgID: env.OrgID}); err != nil {
		logCtx.Warn("Semantic event publish failed.", "error", err)
	}
	logCtx.Info("Envelope sealed.", "sealedKey", sealedKey, "contentHash", contentHash)
	return nil
}

// claim flips sealState to sealing if the envelope is eligible for an
// attempt: scheduled, previously failed, or holding a stale sealing lease.
func (p *SealingPipeline) claim(ctx context.Context, envelopeID string) (bool, error) {
	claimed := false
	err := p.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		claimed = false
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Status != models.EnvelopeInProgress {
			return nil
		}
		switch env.SealState {
		case models.SealScheduled, models.SealFailed:
		case models.SealRunning:
			if p.now().Sub(env.SealStateAt) < sealLeaseTTL {
				return nil
			}
		default:
			return nil
		}
		env.SealState = models.SealRunning
		env.SealStateAt = p.now()
		claimed = true
		return tx.PutEnvelope(env)
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim seal: %w", err)
	}
	return claimed, nil
}

func (p *SealingPipeline) loadEnvelope(ctx context.Context, envelopeID string) (*models.Envelope, []*models.Signer, []*models.Field, error) {
	env, err := p.store.Envelope(ctx, envelopeID)
	if err != nil {
		return nil, nil, nil, err
	}
	signers, err := p.store.Signers(ctx, envelopeID)
	if err != nil {
		return nil, nil, nil, err
	}
	fields, err := p.store.Fields(ctx, envelopeID)
	if err != nil {
		return nil, nil, nil, err
	}
	return env, signers, fields, nil
}

func (p *SealingPipeline) downloadSource(ctx context.Context, env *models.Envelope, destPath string) error {
	key := env.DocumentKey
	if key == "" {
		docs, err := p.store.Documents(ctx, env.ID)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("envelope %s has no source document", env.ID)
		}
		key = docs[0].StorageKey
	}
	data, err := p.blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to download source document %s: %w", key, err)
	}
	return os.WriteFile(destPath, data, 0o600)
}

// fetchSignatureImages loads captured signature images concurrently, bounded
// to keep blob-store pressure predictable.
func (p *SealingPipeline) fetchSignatureImages(ctx context.Context, fields []*models.Field) (map[string][]byte, error) {
	images := make(map[string][]byte)
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)

	for _, f := range fields {
		if f.SignatureKey == "" {
			continue
		}
		field := f
		eg.Go(func() error {
			data, err := p.blobs.Get(gctx, field.SignatureKey)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.ID, err)
			}
			mu.Lock()
			images[field.ID] = data
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch signature images: %w", err)
	}
	return images, nil
}

func (p *SealingPipeline) uploadFile(ctx context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return p.blobs.PutIfAbsent(ctx, key, data, BlobMeta{ContentType: "application/pdf"})
}

func (p *SealingPipeline) generateCertificate(ctx context.Context, tempDir string, env *models.Envelope, signers []*models.Signer, certKey string) error {
	events, err := p.store.AuditTrail(ctx, env.ID)
	if err != nil {
		return err
	}
	raw, err := certificateJSON(env, signers, events, p.now())
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(tempDir, "certificate.json")
	if err := os.WriteFile(jsonPath, raw, 0o600); err != nil {
		return err
	}
	certPath := filepath.Join(tempDir, "certificate.pdf")
	if err := api.CreateFile("", jsonPath, certPath, relaxedConf()); err != nil {
		return fmt.Errorf("failed to render certificate: %w", err)
	}
	return p.uploadFile(ctx, certPath, certKey)
}

// complete is the terminal transition: envelope to completed with the sealed
// artifact references, plus the completed audit event.
func (p *SealingPipeline) complete(ctx context.Context, envelopeID, sealedKey, certKey, contentHash string) error {
	return p.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		if env.Status == models.EnvelopeCompleted {
			return nil
		}
		env.Status = models.EnvelopeCompleted
		env.CompletedAt = p.now()
		env.SealedKey = sealedKey
		env.CompletionCertKey = certKey
		env.ContentHash = contentHash
		env.SealState = models.SealDone
		env.SealStateAt = p.now()
		env.SealError = ""
		if err := tx.PutEnvelope(env); err != nil {
			return err
		}
		return p.audit.Record(tx, "", models.CompletedData{SealedKey: sealedKey, ContentHash: contentHash},
			ActorContext{Name: "system"})
	})
}

// fail stamps the failure onto the envelope and returns a SealingFailure.
// The envelope stays in_progress: the signers' completions stand, and the
// sweep retries the seal.
func (p *SealingPipeline) fail(ctx context.Context, logCtx *slog.Logger, envelopeID, step string, cause error) error {
	logCtx.Error("Sealing failed.", "step", step, "error", cause)
	err := p.store.RunEnvelopeTxn(ctx, envelopeID, func(tx store.EnvelopeTxn) error {
		env, err := tx.Envelope()
		if err != nil {
			return err
		}
		env.SealState = models.SealFailed
		env.SealStateAt = p.now()
		env.SealError = fmt.Sprintf("%s: %v", step, cause)
		return tx.PutEnvelope(env)
	})
	if err != nil {
		logCtx.Error("CRITICAL: Failed to record seal failure on envelope.", "error", err)
	}
	return &SealingFailure{Step: step, Err: cause}
}

// applyFields stamps every filled field into the document's page content and
// returns how many were applied. Fields are applied page-ascending; empty
// optional fields are skipped.
func applyFields(inPath, outPath string, fields []*models.Field, images map[string][]byte) (int, error) {
	dims, err := api.PageDimsFile(inPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read page dimensions: %w", err)
	}

	ordered := make([]*models.Field, 0, len(fields))
	for _, f := range fields {
		if f.Filled() {
			ordered = append(ordered, f)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Page < ordered[j].Page })

	stamps := make(map[int][]*model.Watermark)
	for _, f := range ordered {
		if f.Page < 1 || f.Page > len(dims) {
			return 0, fmt.Errorf("field %s targets page %d of a %d-page document", f.ID, f.Page, len(dims))
		}
		wm, err := fieldStamp(f, images[f.ID], dims[f.Page-1])
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", f.ID, err)
		}
		if wm == nil {
			continue
		}
		stamps[f.Page] = append(stamps[f.Page], wm)
	}

	if len(stamps) == 0 {
		// Nothing to burn in; the sealed document is the source document.
		data, err := os.ReadFile(inPath)
		if err != nil {
			return 0, err
		}
		return 0, os.WriteFile(outPath, data, 0o600)
	}

	if err := api.AddWatermarksSliceMapFile(inPath, outPath, stamps, relaxedConf()); err != nil {
		return 0, fmt.Errorf("failed to stamp fields: %w", err)
	}
	applied := 0
	for _, wms := range stamps {
		applied += len(wms)
	}
	return applied, nil
}

// fieldStamp converts one filled field into a pdfcpu stamp positioned from
// the field's normalized top-left coordinates. Signature, initial and
// attachment fields embed the captured image when present and fall back to
// typed text; checkboxes embed a mark; all other types embed their value.
func fieldStamp(f *models.Field, image []byte, dim types.Dim) (*model.Watermark, error) {
	x := f.X / 100 * dim.Width
	// Field coordinates run from the top-left corner; PDF user space runs
	// from the bottom-left.
	y := dim.Height - (f.Y+f.Height)/100*dim.Height

	if len(image) > 0 {
		desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:%.4f rel, rot:0, op:1", x, y, f.Width/100)
		return api.ImageWatermarkForReader(bytes.NewReader(image), desc, true, false, types.POINTS)
	}

	text := fieldText(f)
	if text == "" {
		return nil, nil
	}
	desc := fmt.Sprintf("fontname:Helvetica, points:10, pos:bl, off:%.2f %.2f, scale:1 abs, rot:0, fillc:#000000, op:1", x, y)
	return api.TextWatermark(text, desc, true, false, types.POINTS)
}

// fieldText resolves the text to burn in for a non-image field.
func fieldText(f *models.Field) string {
	if f.Type == models.FieldCheckbox {
		if checkboxChecked(f.Value) {
			return "X"
		}
		return ""
	}
	return f.Value
}

func checkboxChecked(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "checked", "x":
		return true
	}
	return false
}

// flattenPDF makes the stamped content permanent. Stamps are page content
// rather than form fields, so a flattened document carries no further
// editable fields and reflattening is a no-op.
func flattenPDF(inPath, outPath string) error {
	return api.OptimizeFile(inPath, outPath, relaxedConf())
}

func relaxedConf() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// fileSHA256 is the tamper-evidence anchor: the same primitive hashes the
// document at upload time and after sealing.
func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
