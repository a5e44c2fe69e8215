package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"call-insights-go/internal/classifier"
	"call-insights-go/internal/lexicon"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/summarizer"
	"call-insights-go/internal/transcription"
	"call-insights-go/internal/types"
)

// Result is what one build pass produces. Record carries the analysed
// fields only; ids and timestamps are assigned by the ingestion layer.
type Result struct {
	Record      types.CallRecord `json:"record"`
	Tier        summarizer.Tier  `json:"summary_tier"`
	Transcribed bool             `json:"transcribed"`
	DurationMs  int64            `json:"duration_ms"`
}

type Builder struct {
	transcriber   *transcription.Safe
	normalizer    *lexicon.Normalizer
	classifier    *classifier.Classifier
	summarizer    *summarizer.Summarizer
	transcriptDir string
	log           *logger.Logger
}

type Options struct {
	Transcriber   *transcription.Safe
	Normalizer    *lexicon.Normalizer
	Classifier    *classifier.Classifier
	Summarizer    *summarizer.Summarizer
	TranscriptDir string
	Log           *logger.Logger
}

func NewBuilder(o Options) *Builder {
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	if o.Normalizer == nil {
		o.Normalizer = lexicon.NewNormalizer(lexicon.DefaultTerms)
	}
	if o.Classifier == nil {
		o.Classifier = classifier.Default()
	}
	if o.Summarizer == nil {
		o.Summarizer = summarizer.New(nil, 0, o.Log)
	}
	if o.Transcriber == nil {
		o.Transcriber = transcription.NewSafe(nil, o.Log)
	}
	return &Builder{
		transcriber:   o.Transcriber,
		normalizer:    o.Normalizer,
		classifier:    o.Classifier,
		summarizer:    o.Summarizer,
		transcriptDir: o.TranscriptDir,
		log:           o.Log.Component("processor"),
	}
}

// Build runs the analysis chain for one audio file. It never fails: every
// stage has a degraded output. The audit transcript is saved as
// <name>.txt; an empty name falls back to the audio file's base name.
func (b *Builder) Build(ctx context.Context, audioPath, name string) Result {
	start := time.Now()
	transcript, ok := b.transcriber.Transcribe(ctx, audioPath)
	if name == "" {
		name = AuditName(audioPath)
	}
	b.writeTranscript(name, transcript)

	res := b.Analyze(ctx, transcript)
	res.Transcribed = ok
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// Analyze runs everything after transcription on an existing transcript.
func (b *Builder) Analyze(ctx context.Context, transcript string) Result {
	normalized := b.normalizer.Normalize(transcript)
	intents := b.classifier.Intents(normalized)
	summary, tier := b.summarizer.SummarizeWithTier(ctx, transcript)

	return Result{
		Record: types.CallRecord{
			Transcript: transcript,
			Sentiment:  classifier.Sentiment(transcript),
			Intents:    intents,
			Summary:    summary,
			Converted:  b.classifier.Converted(normalized),
			SalesCall:  types.IsSalesIntents(intents),
		},
		Tier:        tier,
		Transcribed: true,
	}
}

// writeTranscript keeps a plain-text copy for audit; failures are logged only.
func (b *Builder) writeTranscript(name, transcript string) {
	if b.transcriptDir == "" {
		return
	}
	path := TranscriptPath(b.transcriptDir, name)
	if err := os.MkdirAll(b.transcriptDir, 0o755); err != nil {
		b.log.WithError(err).WithField("dir", b.transcriptDir).Warn("transcript dir unavailable")
		return
	}
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		b.log.WithError(err).WithField("path", path).Warn("transcript audit write failed")
	}
}

// TranscriptPath is <dir>/<name>.txt. Directory parts of name are dropped.
func TranscriptPath(dir, name string) string {
	return filepath.Join(dir, filepath.Base(name)+".txt")
}

// AuditName is the audio file's base name without its extension.
func AuditName(audioPath string) string {
	base := filepath.Base(audioPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
