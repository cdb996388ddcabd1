package pipeline

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/adapter"
	"github.com/neuraly-ai/neuraly/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/system.md
var systemPromptRaw string

//go:embed prompt/answer.md
var answerPromptRaw string

var (
	systemPromptTmpl = template.Must(template.New("system").Parse(systemPromptRaw))
	answerPromptTmpl = template.Must(template.New("answer").Parse(answerPromptRaw))
)

const defaultTopK = 5

// Pipeline is one agent's opaque "generate query, execute, rephrase"
// capability. Invoke is synchronous and never mutates the conversation
// store; persisting the exchange is the caller's responsibility.
type Pipeline interface {
	Invoke(ctx context.Context, message string, history []model.ChatEntry) (string, error)
}

// QueryEngine abstracts the backing query engine of an agent. One
// concrete implementation exists per supported engine, selected by the
// connection descriptor (see NewEngine).
type QueryEngine interface {
	Dialect() string
	Schema(ctx context.Context) (string, error)
	Execute(ctx context.Context, query string) ([]map[string]any, error)
}

type sqlPipeline struct {
	llm    adapter.Gemini
	engine QueryEngine

	// systemPrompt is rendered once at construction; schema fetch is
	// part of the agent handshake so construction failures surface as
	// such rather than failing the first chat turn.
	systemPrompt string
}

// New composes a query pipeline from an LLM and a query engine. The
// engine's schema is introspected here; a failed handshake propagates
// to the caller and no pipeline is returned.
func New(ctx context.Context, llm adapter.Gemini, engine QueryEngine) (Pipeline, error) {
	schema, err := engine.Schema(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to introspect schema")
	}

	var buf bytes.Buffer
	err = systemPromptTmpl.Execute(&buf, map[string]any{
		"Dialect": engine.Dialect(),
		"Schema":  schema,
		"TopK":    defaultTopK,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to render system prompt")
	}

	return &sqlPipeline{
		llm:          llm,
		engine:       engine,
		systemPrompt: buf.String(),
	}, nil
}

func (p *sqlPipeline) Invoke(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
	query, err := p.generateQuery(ctx, message, history)
	if err != nil {
		return "", goerr.Wrap(model.ErrPipelineExecution, "query generation failed")
	}

	result, err := p.engine.Execute(ctx, query)
	if err != nil {
		return "", goerr.Wrap(model.ErrPipelineExecution, "query execution failed",
			goerr.V("query", query))
	}

	answer, err := p.rephraseAnswer(ctx, message, query, result)
	if err != nil {
		return "", goerr.Wrap(model.ErrPipelineExecution, "answer rephrasing failed")
	}
	return answer, nil
}

func (p *sqlPipeline) generateQuery(ctx context.Context, message string, history []model.ChatEntry) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, entry := range history {
		role := genai.Role(genai.RoleUser)
		if entry.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.systemPrompt, ""),
	}

	resp, err := p.llm.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", err
	}

	query := extractSQL(responseText(resp))
	if query == "" {
		return "", goerr.New("empty query generated")
	}
	return query, nil
}

func (p *sqlPipeline) rephraseAnswer(ctx context.Context, question, query string, result []map[string]any) (string, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal query result")
	}

	var buf bytes.Buffer
	err = answerPromptTmpl.Execute(&buf, map[string]any{
		"Question": question,
		"Query":    query,
		"Result":   string(resultJSON),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render answer prompt")
	}

	resp, err := p.llm.GenerateContent(ctx,
		[]*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}, nil)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(responseText(resp))
	if answer == "" {
		return "", goerr.New("empty answer generated")
	}
	return answer, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// extractSQL strips markdown fences and generation-prefix noise that
// models wrap around the query despite instructions.
func extractSQL(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```sql")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.Index(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "SQLQuery:")
	return strings.TrimSpace(text)
}
