// Package llmtest provides canned Cognition and Embedder implementations so
// tests can drive personas without a language model behind them.
package llmtest

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/fvdveen/simulacra/simulation_server/llm"
	"github.com/fvdveen/simulacra/simulation_server/memory"
)

// Embedder derives a small deterministic vector from the input text, so
// identical strings stay identical and retrieval scoring is stable.
type Embedder struct{}

func (Embedder) GenerateEmbedding(str string) []float64 {
	sum := sha256.Sum256([]byte(str))

	embedding := make([]float64, 8)
	for i := range embedding {
		embedding[i] = float64(sum[i]) / 255
	}

	return embedding
}

// Cognition answers every generation call from its fields. The zero value is
// usable; tests set only the fields the code under test consumes.
type Cognition struct {
	Importance int
	Valence    int

	WakeUpHour     time.Time
	DailyPlan      []string
	HourlySchedule []llm.Plan
	// When nil, decomposition leaves the plan untouched
	Decomposition []llm.Plan

	Sector string
	Arena  string
	Object string

	Pronunciatio string

	ShouldTalk bool
	ShouldWait bool

	Utterance       memory.Utterance
	EndConversation bool

	FocalPoints []string
	Insights    map[string][]memory.NodeId

	InterviewAnswer string
}

var _ llm.Cognition = (*Cognition)(nil)

func (c *Cognition) GenerateImportanceScore(p llm.Persona, nt memory.NodeType, description string) int {
	return c.Importance
}

func (c *Cognition) GenerateImportanceScoreChat(p llm.Persona, transcript []memory.Utterance, description string) int {
	return c.Importance
}

func (c *Cognition) GenerateValenceScore(p llm.Persona, nt memory.NodeType, description string) int {
	return c.Valence
}

func (c *Cognition) GenerateValenceScoreChat(p llm.Persona, transcript []memory.Utterance, description string) int {
	return c.Valence
}

func (c *Cognition) GenerateWakeUpHour(p llm.Persona) time.Time {
	return c.WakeUpHour
}

func (c *Cognition) GenerateDailyPlan(p llm.Persona, wakeUpHour time.Time) []string {
	return c.DailyPlan
}

func (c *Cognition) GenerateHourlySchedule(p llm.Persona, wakeUpHour time.Time) []llm.Plan {
	return c.HourlySchedule
}

func (c *Cognition) GeneratePlanDecomposition(p llm.Persona, plan llm.Plan) []llm.Plan {
	if c.Decomposition == nil {
		return []llm.Plan{plan}
	}
	return c.Decomposition
}

func (c *Cognition) GenerateReactionScheduleUpdate(p llm.Persona, insertedActivity llm.Plan, startTime, endTime time.Time) []llm.Plan {
	return []llm.Plan{insertedActivity}
}

func (c *Cognition) GenerateActivitySector(p llm.Persona, maze llm.Maze, activity string, world string) string {
	return c.Sector
}

func (c *Cognition) GenerateActivityArena(p llm.Persona, maze llm.Maze, activity string, world string, sector string) string {
	return c.Arena
}

func (c *Cognition) GenerateActivityObject(p llm.Persona, maze llm.Maze, activity string, address memory.Address) string {
	return c.Object
}

func (c *Cognition) GenerateActivityPronunciatio(p llm.Persona, activity string) string {
	return c.Pronunciatio
}

func (c *Cognition) GenerateActivitySPO(p llm.Persona, activity string) memory.SPO {
	return memory.SPO{Subject: p.Name(), Predicate: "is", Object: activity}
}

func (c *Cognition) GenerateActivityObjectDescription(p llm.Persona, object string, activity string) string {
	return fmt.Sprintf("%s is being used", object)
}

func (c *Cognition) GenerateActivityObjectPronunciatio(p llm.Persona, activityObjectDescription string) string {
	return c.Pronunciatio
}

func (c *Cognition) GenerateActivityObjectSPO(p llm.Persona, object string, activityObjectDescription string) memory.SPO {
	return memory.SPO{Subject: object, Predicate: "is", Object: "in use"}
}

func (c *Cognition) GenerateDecideToTalk(init, target llm.Persona, events, thoughts []memory.NodeId) bool {
	return c.ShouldTalk
}

func (c *Cognition) GenerateDecideToWait(init, target llm.Persona, events, thoughts []memory.NodeId) bool {
	return c.ShouldWait
}

func (c *Cognition) GenerateConversationSummary(p llm.Persona, conversation []memory.Utterance) string {
	return "having a conversation"
}

func (c *Cognition) GeneratePlanningThoughtAfterConversation(p llm.Persona, conversation []memory.Utterance) string {
	return ""
}

func (c *Cognition) GenerateMemoAfterConversation(p llm.Persona, conversation []memory.Utterance) string {
	return ""
}

func (c *Cognition) GenerateRelationshipSummary(init, target llm.Persona, memories []memory.NodeId) string {
	return fmt.Sprintf("%s and %s are acquaintances", init.Name(), target.Name())
}

func (c *Cognition) GenerateOneUtterance(init, target llm.Persona, maze llm.Maze, currentChat []memory.Utterance, relevant []memory.NodeId, relationship string) (memory.Utterance, bool) {
	return c.Utterance, c.EndConversation
}

func (c *Cognition) GenerateFocalPoints(p llm.Persona, statements []memory.NodeId, numFocalPoints int) []string {
	return c.FocalPoints
}

func (c *Cognition) GenerateInsightAndEvidence(p llm.Persona, nodes []memory.NodeId, insightCount int) map[string][]memory.NodeId {
	return c.Insights
}

func (c *Cognition) GeneratePlanningNote(p llm.Persona, statements []string) string {
	return ""
}

func (c *Cognition) GeneratePlanningFeelings(p llm.Persona, statements []string) string {
	return ""
}

func (c *Cognition) GenerateCurrentPlans(p llm.Persona, plans, thoughts string) string {
	return p.CurrentPlans()
}

func (c *Cognition) GenerateNewDailyRequirements(p llm.Persona) string {
	return p.DailyPlanRequirements()
}

func (c *Cognition) GenerateInnerThought(p llm.Persona, whisper string) string {
	return whisper
}

func (c *Cognition) GenerateIdeaSummary(p llm.Persona, statements []memory.NodeId, question string) string {
	return ""
}

func (c *Cognition) GenerateInterviewResponse(p llm.Persona, interviewer string, conversation []memory.Utterance, ideaSummary string) string {
	return c.InterviewAnswer
}
