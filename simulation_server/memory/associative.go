package memory

import (
	"fmt"
	"strings"
	"time"
)

type SPO struct {
	Subject   string
	Predicate string
	Object    string
}

type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeThought
	NodeTypeEvent
	NodeTypeChat
)

func (t NodeType) ToString() string {
	switch t {
	case NodeTypeChat:
		return "chat"
	case NodeTypeEvent:
		return "event"
	case NodeTypeThought:
		return "thought"
	default:
		panic(fmt.Sprintf("unexpected memory.NodeType: %#v", t))
	}
}

type Utterance struct {
	// The name of the persona who says this utterance
	Speaker string
	// What the persona actually says
	Sentence string
}

type NodeId int

type ConceptNode struct {
	Id NodeId

	// It's basically the same as Id but I'm keeping it now for posterity
	NodeCount int
	// This node is the n'th node of its type
	TypeCount int

	Type NodeType
	// The "depth" of this thought, on how many layers of other thoughts it depends
	Depth int

	Created      time.Time
	LastAccessed time.Time
	// Expiration does not have to be set
	Expiration *time.Time

	Subject   string
	Predicate string
	Object    string

	Description  string
	EmbeddingKey string
	Importance   int
	Valence      int

	// Set of keywords related to this memory, stored lower case
	Keywords []string

	// All nodes this node was built from
	Evidence []NodeId
	// If this is a chat node what was said in the conversation
	Chat []Utterance
}

func (node ConceptNode) SPOSummary() SPO {
	return SPO{node.Subject, node.Predicate, node.Object}
}

// IsIdle reports whether this node records an "is idle" filler event.
func (node ConceptNode) IsIdle() bool {
	return node.Predicate == "is" && node.Object == "idle"
}

type Associative struct {
	// All nodes in the memory stream, indexed by NodeId
	nodes []ConceptNode

	// Nodes sorted by type, stored in reverse order:
	// newer nodes live at lower indices
	events   []NodeId
	thoughts []NodeId
	chats    []NodeId

	kwToEvents   map[string][]NodeId
	kwToThoughts map[string][]NodeId
	kwToChats    map[string][]NodeId

	kwStrengthEvents   map[string]int
	kwStrengthThoughts map[string]int

	embeddings map[string][]float64
}

func NewAssociative(embeddings map[string][]float64, kwStrengthEvents map[string]int, kwStrengthThoughts map[string]int) *Associative {
	// Size to initialize memory store slices to
	initialMemorySize := 5

	return &Associative{
		// The node ID's start at 1, so create an empty node at index 0
		nodes:              make([]ConceptNode, 1, initialMemorySize),
		events:             make([]NodeId, 0, initialMemorySize),
		thoughts:           make([]NodeId, 0, initialMemorySize),
		chats:              make([]NodeId, 0, initialMemorySize),
		kwToEvents:         make(map[string][]NodeId),
		kwToThoughts:       make(map[string][]NodeId),
		kwToChats:          make(map[string][]NodeId),
		kwStrengthEvents:   kwStrengthEvents,
		kwStrengthThoughts: kwStrengthThoughts,
		embeddings:         embeddings,
	}
}

func (store *Associative) Embeddings() map[string][]float64 {
	return store.embeddings
}

func (store *Associative) EventKeywordStrength() map[string]int {
	return store.kwStrengthEvents
}

func (store *Associative) ThoughtKeywordStrength() map[string]int {
	return store.kwStrengthThoughts
}

func (store *Associative) Nodes() []ConceptNode {
	return store.nodes[1:]
}

func (store *Associative) GetNode(node NodeId) ConceptNode {
	return store.nodes[node]
}

func (store *Associative) UpdateNode(node NodeId, update func(*ConceptNode)) {
	update(&store.nodes[node])
}

func (store *Associative) GetEmbedding(str string) ([]float64, bool) {
	e, ok := store.embeddings[str]
	return e, ok
}

func (store *Associative) GetEmbeddingByNodeId(id NodeId) ([]float64, bool) {
	e, ok := store.embeddings[store.GetNode(id).EmbeddingKey]
	return e, ok
}

func (store *Associative) SaveEmbedding(str string, embedding []float64) {
	store.embeddings[str] = embedding
}

func lowered(keywords []string) []string {
	kws := make([]string, len(keywords))
	for i, kw := range keywords {
		kws[i] = strings.ToLower(kw)
	}
	return kws
}

func prependNode(index map[string][]NodeId, keywords []string, id NodeId) {
	for _, kw := range keywords {
		index[kw] = append([]NodeId{id}, index[kw]...)
	}
}

func (store *Associative) AddEvent(spo SPO, description string, keywords []string, importance, valence int, evidence []NodeId, created time.Time, expiration *time.Time, embeddingKey string, embedding []float64) ConceptNode {
	nodeCount := len(store.nodes)
	typeCount := len(store.events)
	nodeId := NodeId(nodeCount)
	keywords = lowered(keywords)

	node := ConceptNode{
		Id:           nodeId,
		NodeCount:    nodeCount,
		TypeCount:    typeCount,
		Type:         NodeTypeEvent,
		Depth:        0,
		Created:      created,
		LastAccessed: created,
		Expiration:   expiration,
		Subject:      spo.Subject,
		Predicate:    spo.Predicate,
		Object:       spo.Object,
		Description:  description,
		EmbeddingKey: embeddingKey,
		Importance:   importance,
		Valence:      valence,
		Keywords:     keywords,
		Evidence:     evidence,
		Chat:         make([]Utterance, 0),
	}

	store.nodes = append(store.nodes, node)
	store.events = append([]NodeId{node.Id}, store.events...)
	prependNode(store.kwToEvents, keywords, node.Id)

	if !node.IsIdle() {
		for _, kw := range keywords {
			store.kwStrengthEvents[kw] += 1
		}
	}

	store.embeddings[embeddingKey] = embedding

	return node
}

func (store *Associative) AddThought(spo SPO, description string, keywords []string, importance, valence int, evidence []NodeId, created time.Time, expiration *time.Time, embeddingKey string, embedding []float64) ConceptNode {
	nodeCount := len(store.nodes)
	typeCount := len(store.thoughts)
	nodeId := NodeId(nodeCount)
	keywords = lowered(keywords)

	// A thought sits one layer above the deepest node it cites
	depth := 1
	maxDepth := 0
	for _, nodeId := range evidence {
		if store.nodes[nodeId].Depth > maxDepth {
			maxDepth = store.nodes[nodeId].Depth
		}
	}
	depth += maxDepth

	node := ConceptNode{
		Id:           nodeId,
		NodeCount:    nodeCount,
		TypeCount:    typeCount,
		Type:         NodeTypeThought,
		Depth:        depth,
		Created:      created,
		LastAccessed: created,
		Expiration:   expiration,
		Subject:      spo.Subject,
		Predicate:    spo.Predicate,
		Object:       spo.Object,
		Description:  description,
		EmbeddingKey: embeddingKey,
		Importance:   importance,
		Valence:      valence,
		Keywords:     keywords,
		Evidence:     evidence,
		Chat:         make([]Utterance, 0),
	}

	store.nodes = append(store.nodes, node)
	store.thoughts = append([]NodeId{node.Id}, store.thoughts...)
	prependNode(store.kwToThoughts, keywords, node.Id)

	if !node.IsIdle() {
		for _, kw := range keywords {
			store.kwStrengthThoughts[kw] += 1
		}
	}

	store.embeddings[embeddingKey] = embedding

	return node
}

func (store *Associative) AddChat(spo SPO, description string, keywords []string, importance, valence int, chat []Utterance, created time.Time, expiration *time.Time, embeddingKey string, embedding []float64) ConceptNode {
	nodeCount := len(store.nodes)
	typeCount := len(store.chats)
	nodeId := NodeId(nodeCount)
	keywords = lowered(keywords)

	node := ConceptNode{
		Id:           nodeId,
		NodeCount:    nodeCount,
		TypeCount:    typeCount,
		Type:         NodeTypeChat,
		Depth:        0,
		Created:      created,
		LastAccessed: created,
		Expiration:   expiration,
		Subject:      spo.Subject,
		Predicate:    spo.Predicate,
		Object:       spo.Object,
		Description:  description,
		EmbeddingKey: embeddingKey,
		Importance:   importance,
		Valence:      valence,
		Keywords:     keywords,
		Evidence:     make([]NodeId, 0),
		Chat:         chat,
	}

	store.nodes = append(store.nodes, node)
	store.chats = append([]NodeId{node.Id}, store.chats...)
	prependNode(store.kwToChats, keywords, node.Id)

	store.embeddings[embeddingKey] = embedding

	return node
}

func (store *Associative) GetLatestEventSPOs(n int) map[SPO]struct{} {
	events := make(map[SPO]struct{})

	if len(store.events) < n {
		n = len(store.events)
	}
	for _, nodeId := range store.events[:n] {
		events[store.nodes[nodeId].SPOSummary()] = struct{}{}
	}

	return events
}

func (store *Associative) RetrieveRelevantEvents(subject string, predicate string, object string) map[NodeId]struct{} {
	return retrieveByKeywords(store.kwToEvents, subject, predicate, object)
}

func (store *Associative) RetrieveRelevantThoughts(subject string, predicate string, object string) map[NodeId]struct{} {
	return retrieveByKeywords(store.kwToThoughts, subject, predicate, object)
}

func retrieveByKeywords(index map[string][]NodeId, keywords ...string) map[NodeId]struct{} {
	ret := map[NodeId]struct{}{}

	for _, kw := range keywords {
		for _, id := range index[strings.ToLower(kw)] {
			ret[id] = struct{}{}
		}
	}

	return ret
}

func (store *Associative) GetLatestEventIds() []NodeId {
	return store.events
}

func (store *Associative) GetLatestThoughtIds() []NodeId {
	return store.thoughts
}

func (store *Associative) GetLatestChatIds() []NodeId {
	return store.chats
}

func (store *Associative) GetLastChat(name string) (NodeId, bool) {
	if chats, ok := store.kwToChats[strings.ToLower(name)]; ok {
		return chats[0], true
	}

	return 0, false
}
