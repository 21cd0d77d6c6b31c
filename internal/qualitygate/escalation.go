package qualitygate

import (
	"context"
	"strings"

	"github.com/Iron-Ham/crew/internal/provider"
)

// escalate asks the escalation model for a root-cause diagnosis. The text
// is advisory; it never changes the verdict. Returns a note when the call
// could not be made.
func (p *Pipeline) escalate(ctx context.Context, in Input, stages []StageResult) (string, string) {
	cfg := in.Config
	preferred, model := cfg.EscalationProvider, cfg.EscalationModel
	if preferred == "" {
		preferred = cfg.ReviewProvider
	}
	if model == "" && preferred == cfg.ReviewProvider {
		model = cfg.ReviewModel
	}

	res, ok := provider.Resolve(p.keys, preferred, model)
	if !ok {
		return "", "escalation skipped: no provider credentials configured"
	}
	client, err := p.clients.Client(res.Provider)
	if err != nil {
		return "", "escalation skipped: " + err.Error()
	}
	text, err := p.complete(ctx, cfg, client, res.Model, escalationSystemPrompt, escalationPrompt(in, stages))
	if err != nil {
		p.logger.Warn("escalation call failed", "provider", string(res.Provider), "error", err)
		return "", "escalation failed: " + err.Error()
	}
	return strings.TrimSpace(text), ""
}
