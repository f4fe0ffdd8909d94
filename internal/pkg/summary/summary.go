// Package summary is the Summary Generator (C12): quality-aware prompt
// assembly from the layered template catalog, LLM invocation, optional
// chapter segmentation, and visualization diagram generation.
package summary

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/voxsum/internal/pkg/persistence"
	"github.com/airenas/voxsum/internal/pkg/provider"
	"github.com/airenas/voxsum/internal/pkg/summary/templates"
	"github.com/airenas/voxsum/internal/pkg/transcript"
	"github.com/airenas/voxsum/internal/pkg/utils"
)

// chapterSegmentationThreshold is the preprocessed-transcript length
// above which a chapter-segmentation pass runs before the standard
// summary types.
const chapterSegmentationThreshold = 2000

// store is satisfied by *postgres.DB.
type store interface {
	InsertSummary(ctx context.Context, s *persistence.Summary) error
}

// Chapter is one entry of a chapter-segmentation result.
type Chapter struct {
	Index       int     `json:"index"`
	Title       string  `json:"title"`
	StartOffset float64 `json:"start_offset"`
	EndOffset   float64 `json:"end_offset"`
	Summary     string  `json:"summary"`
}

type chaptersDoc struct {
	TotalChapters int       `json:"total_chapters"`
	Chapters      []Chapter `json:"chapters"`
}

// Request describes one generation call.
type Request struct {
	TaskID       string
	SummaryStyle string // content_style/category, e.g. "meeting"
	Locale       string
	Quality      transcript.Score
	BlockText    string
	PromptVersion string
}

// Generator produces overview/key_points/action_items/chapters plus
// visualization summaries.
type Generator struct {
	store store
}

// New wires a generator over the durable summary store.
func New(store store) *Generator {
	return &Generator{store: store}
}

const defaultPromptTypes = "overview,key_points,action_items"

// GenerateStandard runs the three standard summary types plus, for long
// transcripts, an optional chapter-segmentation pass whose failure is
// non-fatal (the chapter record is simply omitted).
func (g *Generator) GenerateStandard(ctx context.Context, req Request, llm provider.LLM) error {
	if len([]rune(req.BlockText)) > chapterSegmentationThreshold {
		if err := g.generateChapters(ctx, req, llm); err != nil {
			goapp.Log.Warn().Err(err).Str("taskID", req.TaskID).Msg("chapter segmentation failed, omitting")
		}
	}
	for _, promptType := range strings.Split(defaultPromptTypes, ",") {
		if err := g.generateOne(ctx, req, llm, promptType); err != nil {
			return fmt.Errorf("can't generate %s: %w", promptType, err)
		}
	}
	return nil
}

func (g *Generator) generateOne(ctx context.Context, req Request, llm provider.LLM, promptType string) error {
	prompt, err := g.assemble(req, promptType)
	if err != nil {
		return err
	}
	text, err := llm.Generate(ctx, prompt, provider.GenParams{Temperature: 0.3, MaxTokens: 2000})
	if err != nil {
		return fmt.Errorf("llm generate failed: %w", err)
	}
	s := &persistence.Summary{
		TaskID: req.TaskID, SummaryType: promptType, Content: text, IsActive: true,
		ModelUsed: llm.ModelName(), PromptVersion: req.PromptVersion,
	}
	return g.store.InsertSummary(ctx, s)
}

func (g *Generator) generateChapters(ctx context.Context, req Request, llm provider.LLM) error {
	prompt, err := g.assemble(req, "chapters")
	if err != nil {
		return err
	}
	text, err := llm.Generate(ctx, prompt, provider.GenParams{Temperature: 0.2, MaxTokens: 3000})
	if err != nil {
		return fmt.Errorf("llm generate failed: %w", err)
	}
	var doc chaptersDoc
	if err := json.Unmarshal([]byte(extractJSON(text)), &doc); err != nil {
		return fmt.Errorf("can't parse chapters JSON: %w", err)
	}
	s := &persistence.Summary{
		TaskID: req.TaskID, SummaryType: "chapters", Content: text, IsActive: true,
		ModelUsed: llm.ModelName(), PromptVersion: req.PromptVersion,
	}
	return g.store.InsertSummary(ctx, s)
}

// VisualType names one of the visualization diagram families.
type VisualType string

const (
	VisualMindmap   VisualType = "visual_mindmap"
	VisualTimeline  VisualType = "visual_timeline"
	VisualFlowchart VisualType = "visual_flowchart"
)

// GenerateVisual produces one visualization summary; its visual_content
// is validated as well-formed mermaid source before persistence — an
// invalid diagram is a generation failure, not silently persisted.
func (g *Generator) GenerateVisual(ctx context.Context, req Request, llm provider.LLM, vt VisualType) error {
	prompt, err := g.assemble(req, string(vt))
	if err != nil {
		return err
	}
	text, err := llm.Generate(ctx, prompt, provider.GenParams{Temperature: 0.2, MaxTokens: 1500})
	if err != nil {
		return fmt.Errorf("llm generate failed: %w", err)
	}
	diagram := extractMermaid(text)
	if !isValidMermaid(diagram) {
		return fmt.Errorf("generated visualization is not valid mermaid source")
	}
	s := &persistence.Summary{
		TaskID: req.TaskID, SummaryType: string(vt), Content: text, IsActive: true,
		VisualFormat:  sqlStr("mermaid"),
		VisualContent: sqlStr(diagram),
		ModelUsed:     llm.ModelName(), PromptVersion: req.PromptVersion,
	}
	return g.store.InsertSummary(ctx, s)
}

func (g *Generator) assemble(req Request, promptType string) (string, error) {
	k := templates.Key{Category: req.SummaryStyle, PromptType: promptType, Locale: req.Locale}
	if k.Category == "" {
		k.Category = "general"
	}
	tmpl, ok := templates.Lookup(k)
	if !ok {
		return "", fmt.Errorf("no template for %+v", k)
	}
	return templates.Render(tmpl, req.BlockText, req.Quality.NeedsQualityCaveat(), req.Locale), nil
}

// extractJSON strips markdown code fences an LLM sometimes wraps JSON in.
func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func extractMermaid(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```mermaid")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

var mermaidKinds = []string{"mindmap", "timeline", "flowchart", "graph"}

// isValidMermaid is a conservative structural check: the CLI rendering
// step (explicitly out of scope) is the real validator; this only
// rejects obviously-malformed output before it reaches persistence.
func isValidMermaid(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(strings.SplitN(s, "\n", 2)[0]))
	for _, k := range mermaidKinds {
		if strings.HasPrefix(first, k) {
			return true
		}
	}
	return false
}

func sqlStr(s string) sql.NullString {
	return utils.ToSQLStr(s)
}
