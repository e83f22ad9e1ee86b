package aggregates

import (
	"sort"
	"time"

	"eventgraph/domain/core/entities"
)

// GraphNode is a renderable node. Value carries the out-degree so the display
// can scale nodes by how many connections the attendee initiated.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
	Value int    `json:"value"`
}

// GraphEdge is a renderable directed edge.
type GraphEdge struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Snapshot is the derived node/edge view of an event at a point in the change
// history. It is a pure function of the attendee and connection sets.
type Snapshot struct {
	EventID     string      `json:"eventId"`
	Nodes       []GraphNode `json:"nodes"`
	Edges       []GraphEdge `json:"edges"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// DegreeEntry summarizes one attendee's connectivity.
type DegreeEntry struct {
	AttendeeID string `json:"attendeeId"`
	Label      string `json:"label"`
	OutDegree  int    `json:"outDegree"`
	InDegree   int    `json:"inDegree"`
}

// Graph accumulates the attendee and connection sets for one event and
// derives the renderable snapshot. The domain is insert-only: there are no
// updates or deletes to reconcile.
//
// Graph is not safe for concurrent use; the aggregator serializes access.
type Graph struct {
	eventID     string
	attendees   map[string]*entities.Attendee
	connections map[string]*entities.Connection
	pairs       map[string]bool
	order       []string // connection IDs in observation order
}

// NewGraph creates an empty graph for an event.
func NewGraph(eventID string) *Graph {
	return &Graph{
		eventID:     eventID,
		attendees:   make(map[string]*entities.Attendee),
		connections: make(map[string]*entities.Connection),
		pairs:       make(map[string]bool),
	}
}

// EventID returns the event this graph belongs to.
func (g *Graph) EventID() string {
	return g.eventID
}

// AddAttendee inserts an attendee. It returns true if the attendee was newly
// observed, false if it was already present.
func (g *Graph) AddAttendee(attendee *entities.Attendee) bool {
	if _, exists := g.attendees[attendee.ID]; exists {
		return false
	}
	g.attendees[attendee.ID] = attendee
	return true
}

// AddConnection inserts a connection edge. Self-loops are silently dropped
// regardless of how they entered the change stream; duplicates (by ID or by
// ordered pair) are ignored. Returns true if the edge was newly observed.
func (g *Graph) AddConnection(conn *entities.Connection) bool {
	if conn.IsSelfLoop() {
		return false
	}
	if _, exists := g.connections[conn.ID]; exists {
		return false
	}
	if g.pairs[conn.PairKey()] {
		return false
	}
	g.connections[conn.ID] = conn
	g.pairs[conn.PairKey()] = true
	g.order = append(g.order, conn.ID)
	return true
}

// HasPair reports whether an edge exists for the ordered pair.
func (g *Graph) HasPair(parentID, childID string) bool {
	return g.pairs[entities.PairKey(parentID, childID)]
}

// Attendee returns an attendee by ID, or nil.
func (g *Graph) Attendee(id string) *entities.Attendee {
	return g.attendees[id]
}

// AttendeeCount returns the number of observed attendees.
func (g *Graph) AttendeeCount() int {
	return len(g.attendees)
}

// ConnectionCount returns the number of observed (non-loop) connections.
func (g *Graph) ConnectionCount() int {
	return len(g.connections)
}

// Snapshot derives the renderable graph from the current sets.
func (g *Graph) Snapshot() Snapshot {
	outDegree := make(map[string]int, len(g.attendees))
	for _, conn := range g.connections {
		outDegree[conn.ParentID]++
	}

	nodes := make([]GraphNode, 0, len(g.attendees))
	for _, attendee := range g.attendees {
		nodes = append(nodes, GraphNode{
			ID:    attendee.ID,
			Label: attendee.DisplayName,
			Color: attendee.Color,
			Value: outDegree[attendee.ID],
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]GraphEdge, 0, len(g.connections))
	for _, id := range g.order {
		conn := g.connections[id]
		edges = append(edges, GraphEdge{
			ID:   conn.ID,
			From: conn.ParentID,
			To:   conn.ChildID,
		})
	}

	return Snapshot{
		EventID:     g.eventID,
		Nodes:       nodes,
		Edges:       edges,
		GeneratedAt: time.Now(),
	}
}

// TopByDegree returns the k most connected attendees, ordered by total degree
// descending with attendee ID as the tiebreaker.
func (g *Graph) TopByDegree(k int) []DegreeEntry {
	out := make(map[string]int, len(g.attendees))
	in := make(map[string]int, len(g.attendees))
	for _, conn := range g.connections {
		out[conn.ParentID]++
		in[conn.ChildID]++
	}

	entries := make([]DegreeEntry, 0, len(g.attendees))
	for id, attendee := range g.attendees {
		entries = append(entries, DegreeEntry{
			AttendeeID: id,
			Label:      attendee.DisplayName,
			OutDegree:  out[id],
			InDegree:   in[id],
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		di := entries[i].OutDegree + entries[i].InDegree
		dj := entries[j].OutDegree + entries[j].InDegree
		if di != dj {
			return di > dj
		}
		return entries[i].AttendeeID < entries[j].AttendeeID
	})

	if k < len(entries) {
		entries = entries[:k]
	}
	return entries
}
