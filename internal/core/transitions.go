package core

import (
	"fmt"
	"strings"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// TransitionGraph is an immutable adjacency list of legal state changes for one
// entity type. States absent from the graph have no outgoing transitions.
type TransitionGraph struct {
	entity domain.EntityType
	label  string
	order  []domain.State
	next   map[domain.State][]domain.State
}

type edge struct {
	from domain.State
	to   []domain.State
}

func on(from domain.State, to ...domain.State) edge {
	return edge{from: from, to: to}
}

func newGraph(entity domain.EntityType, label string, edges ...edge) *TransitionGraph {
	g := &TransitionGraph{
		entity: entity,
		label:  label,
		order:  make([]domain.State, 0, len(edges)),
		next:   make(map[domain.State][]domain.State, len(edges)),
	}
	for _, e := range edges {
		g.order = append(g.order, e.from)
		g.next[e.from] = append([]domain.State(nil), e.to...)
	}
	return g
}

// Entity returns the entity type the graph governs.
func (g *TransitionGraph) Entity() domain.EntityType { return g.entity }

// Label returns the singular display name of the entity kind.
func (g *TransitionGraph) Label() string { return g.label }

// States returns every declared state in declaration order.
func (g *TransitionGraph) States() []domain.State {
	return append([]domain.State(nil), g.order...)
}

// Successors returns the states directly reachable from state, in declared order.
func (g *TransitionGraph) Successors(state domain.State) []domain.State {
	return append([]domain.State(nil), g.next[state]...)
}

// Declares reports whether state is part of the graph.
func (g *TransitionGraph) Declares(state domain.State) bool {
	_, ok := g.next[state]
	return ok
}

// Terminal reports whether state has no outgoing transitions.
func (g *TransitionGraph) Terminal(state domain.State) bool {
	return len(g.next[state]) == 0
}

func (g *TransitionGraph) allows(from, to domain.State) bool {
	for _, s := range g.next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Company lifecycle states.
const (
	CompanyPending    domain.State = "pendiente"
	CompanyInProgress domain.State = "en_proceso"
	CompanyAdvised    domain.State = "asesorada"
	CompanyCompleted  domain.State = "completada"
)

// Advisory engagement states.
const (
	AdvisoryRequested  domain.State = "solicitada"
	AdvisoryScheduled  domain.State = "programada"
	AdvisoryInProgress domain.State = "en_curso"
	AdvisoryFinished   domain.State = "finalizada"
	AdvisoryCancelled  domain.State = "cancelada"
)

// Event states.
const (
	EventDraft      domain.State = "borrador"
	EventScheduled  domain.State = "programado"
	EventInProgress domain.State = "en_curso"
	EventFinished   domain.State = "finalizado"
	EventCancelled  domain.State = "cancelado"
)

// Training states.
const (
	TrainingPlanned    domain.State = "planificada"
	TrainingOpen       domain.State = "abierta"
	TrainingInProgress domain.State = "en_curso"
	TrainingFinished   domain.State = "finalizada"
	TrainingCancelled  domain.State = "cancelada"
)

// Collaborator states.
const (
	CollaboratorActive   domain.State = "activo"
	CollaboratorInactive domain.State = "inactivo"
)

// Material states.
const (
	MaterialDraft     domain.State = "borrador"
	MaterialReview    domain.State = "revision"
	MaterialPublished domain.State = "publicado"
	MaterialArchived  domain.State = "archivado"
)

// Dissemination impact states.
const (
	ImpactRecorded  domain.State = "registrado"
	ImpactValidated domain.State = "validado"
	ImpactDiscarded domain.State = "descartado"
)

// Task states.
const (
	TaskPending    domain.State = "pendiente"
	TaskInProgress domain.State = "en_progreso"
	TaskCompleted  domain.State = "completada"
	TaskCancelled  domain.State = "cancelada"
)

// Generic states.
const (
	GenericPending    domain.State = "pendiente"
	GenericInProgress domain.State = "en_proceso"
	GenericCompleted  domain.State = "completado"
	GenericCancelled  domain.State = "cancelado"
)

// Completion is reachable from every open company state, and an advised
// company may regress to in-progress.
var companyGraph = newGraph(domain.EntityCompany, "company",
	on(CompanyPending, CompanyInProgress, CompanyCompleted),
	on(CompanyInProgress, CompanyAdvised, CompanyCompleted),
	on(CompanyAdvised, CompanyInProgress, CompanyCompleted),
	on(CompanyCompleted),
)

var advisoryGraph = newGraph(domain.EntityAdvisory, "advisory engagement",
	on(AdvisoryRequested, AdvisoryScheduled, AdvisoryCancelled),
	on(AdvisoryScheduled, AdvisoryInProgress, AdvisoryCancelled),
	on(AdvisoryInProgress, AdvisoryFinished, AdvisoryCancelled),
	on(AdvisoryFinished),
	on(AdvisoryCancelled),
)

var eventGraph = newGraph(domain.EntityEvent, "event",
	on(EventDraft, EventScheduled, EventCancelled),
	on(EventScheduled, EventInProgress, EventDraft, EventCancelled),
	on(EventInProgress, EventFinished, EventCancelled),
	on(EventFinished),
	on(EventCancelled),
)

var trainingGraph = newGraph(domain.EntityTraining, "training",
	on(TrainingPlanned, TrainingOpen, TrainingCancelled),
	on(TrainingOpen, TrainingInProgress, TrainingPlanned, TrainingCancelled),
	on(TrainingInProgress, TrainingFinished),
	on(TrainingFinished),
	on(TrainingCancelled),
)

var collaboratorGraph = newGraph(domain.EntityCollaborator, "collaborator",
	on(CollaboratorActive, CollaboratorInactive),
	on(CollaboratorInactive, CollaboratorActive),
)

var materialGraph = newGraph(domain.EntityMaterial, "material",
	on(MaterialDraft, MaterialReview),
	on(MaterialReview, MaterialPublished, MaterialDraft),
	on(MaterialPublished, MaterialArchived),
	on(MaterialArchived),
)

var impactGraph = newGraph(domain.EntityDisseminationImpact, "dissemination impact",
	on(ImpactRecorded, ImpactValidated, ImpactDiscarded),
	on(ImpactValidated),
	on(ImpactDiscarded, ImpactRecorded),
)

var taskGraph = newGraph(domain.EntityTask, "task",
	on(TaskPending, TaskInProgress, TaskCompleted, TaskCancelled),
	on(TaskInProgress, TaskPending, TaskCompleted, TaskCancelled),
	on(TaskCompleted),
	on(TaskCancelled, TaskPending),
)

var genericGraph = newGraph(domain.EntityGeneric, "record",
	on(GenericPending, GenericInProgress, GenericCancelled),
	on(GenericInProgress, GenericCompleted, GenericCancelled),
	on(GenericCompleted),
	on(GenericCancelled),
)

// graphFor maps every entity type to its lifecycle. Grants have none.
func graphFor(entity domain.EntityType) (*TransitionGraph, bool) {
	switch entity {
	case domain.EntityCompany:
		return companyGraph, true
	case domain.EntityAdvisory:
		return advisoryGraph, true
	case domain.EntityEvent:
		return eventGraph, true
	case domain.EntityTraining:
		return trainingGraph, true
	case domain.EntityCollaborator:
		return collaboratorGraph, true
	case domain.EntityMaterial:
		return materialGraph, true
	case domain.EntityDisseminationImpact:
		return impactGraph, true
	case domain.EntityTask:
		return taskGraph, true
	case domain.EntityGeneric:
		return genericGraph, true
	case domain.EntityGrant:
		return nil, false
	default:
		return nil, false
	}
}

// Graph returns the lifecycle graph for entity.
func Graph(entity domain.EntityType) (*TransitionGraph, bool) {
	return graphFor(entity)
}

// HasLifecycle reports whether entity is governed by a transition graph.
func HasLifecycle(entity domain.EntityType) bool {
	_, ok := graphFor(entity)
	return ok
}

// CanTransition reports whether moving from current to next is legal. A
// self-transition is always legal. Unknown entity types allow nothing else.
func CanTransition(entity domain.EntityType, current, next domain.State) bool {
	if current == next {
		return true
	}
	g, ok := graphFor(entity)
	if !ok {
		return false
	}
	return g.allows(current, next)
}

// ValidNextStates returns current followed by its successors in declared
// order. Unknown entity types yield only current.
func ValidNextStates(entity domain.EntityType, current domain.State) []domain.State {
	out := []domain.State{current}
	g, ok := graphFor(entity)
	if !ok {
		return out
	}
	for _, s := range g.next[current] {
		if s != current {
			out = append(out, s)
		}
	}
	return out
}

// InitialState returns the state a new record of entity starts in.
func InitialState(entity domain.EntityType) (domain.State, bool) {
	g, ok := graphFor(entity)
	if !ok || len(g.order) == 0 {
		return "", false
	}
	return g.order[0], true
}

// States lists every declared state of entity.
func States(entity domain.EntityType) []domain.State {
	g, ok := graphFor(entity)
	if !ok {
		return nil
	}
	return g.States()
}

// Explain renders a user-facing description of why attempted is or is not
// reachable from current. It carries no authorization weight.
func Explain(entity domain.EntityType, current, attempted domain.State) string {
	label := string(entity)
	if g, ok := graphFor(entity); ok {
		label = g.label
	}
	successors := ValidNextStates(entity, current)[1:]
	if len(successors) == 0 {
		return fmt.Sprintf("%q is a terminal state for %s; no further transitions are allowed", current, label)
	}
	quoted := make([]string, len(successors))
	for i, s := range successors {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%s cannot move from %q to %q; valid next states: %s",
		label, current, attempted, strings.Join(quoted, ", "))
}
