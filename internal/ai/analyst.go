package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"approline/internal/domain"
)

// ErrNotConfigured means no API key was provided; AI assistance is
// optional and callers degrade to a plain message.
var ErrNotConfigured = errors.New("ai assistant not configured")

// Analyst generates advisory texts about project dossiers. Its output
// never feeds back into the approval workflow; it is informational.
type Analyst struct {
	client *openai.Client
	model  string
	temp   float32
	logger *zap.Logger
}

// NewAnalyst creates an analyst. An empty apiKey yields an analyst
// whose calls fail with ErrNotConfigured.
func NewAnalyst(apiKey, baseURL, model string, temperature float32, logger *zap.Logger) *Analyst {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyst{model: model, temp: temperature, logger: logger}
	if a.model == "" {
		a.model = openai.GPT4oMini
	}
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		a.client = openai.NewClientWithConfig(cfg)
	}
	return a
}

// Configured reports whether an API key was provided.
func (a *Analyst) Configured() bool { return a != nil && a.client != nil }

// RiskAnalysis produces an expert risk review of a dossier in French.
func (a *Analyst) RiskAnalysis(ctx context.Context, p domain.Project) (string, error) {
	prompt := fmt.Sprintf(`Analysez les données du projet suivant :
Titre: %s
Secteur: %s
Description: %s
CAPEX: %d USD
OPEX: %d USD
Durée: %d ans
Localisation: %s

Veuillez fournir une analyse concise contenant :
1. Trois risques majeurs potentiels (financiers, socio-politiques ou techniques).
2. Une stratégie d'atténuation pour chaque risque.
3. Une note de risque estimée sur 100 (où 100 est très risqué).`,
		p.Title, p.Sector, p.Description, p.CapexUSD, p.OpexUSD, p.DurationYears, p.Location)

	return a.complete(ctx, p.ID, "risk_analysis",
		"Agissez en tant qu'expert international en gestion de projets Partenariat Public-Privé (PPP) pour le gouvernement de la RDC.",
		prompt)
}

// CitizenSummary rewrites a dossier for the general public in plain
// French.
func (a *Analyst) CitizenSummary(ctx context.Context, p domain.Project) (string, error) {
	prompt := fmt.Sprintf(`Projet: %s
Description technique: %s
Secteur: %s`, p.Title, p.Description, p.Sector)

	return a.complete(ctx, p.ID, "citizen_summary",
		"Résumez ce projet d'infrastructure pour le grand public citoyen de la RDC. Utilisez un langage simple, transparent et rassurant. Expliquez les bénéfices directs pour la population.",
		prompt)
}

func (a *Analyst) complete(ctx context.Context, projectID, task, system, prompt string) (string, error) {
	if !a.Configured() {
		return "", ErrNotConfigured
	}
	a.logger.Debug("sending completion request",
		zap.String("project_id", projectID),
		zap.String("task", task),
		zap.String("model", a.model))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.temp,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		a.logger.Error("completion request failed", zap.String("task", task), zap.Error(err))
		return "", fmt.Errorf("ai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	a.logger.Info("completion done",
		zap.String("project_id", projectID),
		zap.String("task", task))
	return resp.Choices[0].Message.Content, nil
}
