package agent

import (
	"log/slog"
	"time"

	"github.com/fvdveen/simulacra/simulation_server/memory"
)

// Whisper plants an operator provided statement in the persona's memory. The
// statement is first rephrased into an inner thought in the persona's own
// voice and then stored like any other thought.
func (p *Persona) Whisper(log *slog.Logger, whisper string) {
	p.ctx.Log = log.With(slog.String("persona", p.name))

	thought := p.cognition.GenerateInnerThought(p, whisper)

	created := p.state.CurrentTime
	expiration := created.Add(30 * 24 * time.Hour)
	spo := p.cognition.GenerateActivitySPO(p, thought)
	keywords := []string{spo.Subject, spo.Predicate, spo.Object}
	importance := p.cognition.GenerateImportanceScore(p, memory.NodeTypeEvent, whisper)
	valence := p.cognition.GenerateValenceScore(p, memory.NodeTypeEvent, whisper)
	embedding := p.GetEmbedding(thought)

	p.addThoughtToMemory(spo, thought, keywords, importance, valence, nil, created, &expiration, thought, embedding)
}

// Interview answers one operator question, grounded in whatever the persona
// remembers about the topic. The conversation must already contain the
// question as its last utterance. Nothing about the exchange is stored in the
// persona's memory.
func (p *Persona) Interview(log *slog.Logger, interviewer string, conversation []memory.Utterance, question string) string {
	p.ctx.Log = log.With(slog.String("persona", p.name))

	retrieved := p.retrieveForFocalPoints([]string{question}, withRetrievalCount(50))
	ideaSummary := p.cognition.GenerateIdeaSummary(p, retrieved[question], question)

	return p.cognition.GenerateInterviewResponse(p, interviewer, conversation, ideaSummary)
}
