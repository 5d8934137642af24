package mail

import (
	"sort"
	"time"

	"helpdesk-mail-go/internal/apperr"
)

// Envelope is the threading-relevant part of a mailbox item.
type Envelope struct {
	UID       uint32
	MessageID string
	InReplyTo string
	Date      time.Time
}

// ChainNode is one message of a planned chain. Missing nodes are ids that
// something replies to but the mailbox does not hold; their Date is the
// earliest known date among their children.
type ChainNode struct {
	MessageID string
	ParentID  string
	UID       uint32
	Missing   bool
	Date      time.Time
}

// ChainPlan is a reconstructed thread, root first, parents before children.
type ChainPlan struct {
	RootID         string
	RequesterEmail string
	Nodes          []ChainNode
}

// UIDs returns the mailbox UIDs of the nodes that have to be fetched.
func (p ChainPlan) UIDs() []uint32 {
	var uids []uint32
	for _, n := range p.Nodes {
		if !n.Missing && n.UID != 0 {
			uids = append(uids, n.UID)
		}
	}
	return uids
}

type chainIndex struct {
	byID     map[string]Envelope
	children map[string][]string
	local    map[string]bool
	maxDepth int
}

// PlanChains reconstructs the thread of every dangling reply from the
// mailbox envelopes. A dangling reply that the mailbox does not hold is
// still used to link its ancestor, but is not part of the returned nodes.
// Chains with a cycle or deeper than maxDepth are dropped and reported.
func PlanChains(envelopes []Envelope, pending []DanglingReply, maxDepth int) ([]ChainPlan, []error) {
	idx := chainIndex{
		byID:     make(map[string]Envelope, len(envelopes)),
		children: make(map[string][]string),
		local:    make(map[string]bool),
		maxDepth: maxDepth,
	}
	add := func(env Envelope) {
		if _, ok := idx.byID[env.MessageID]; ok || env.MessageID == "" {
			return
		}
		idx.byID[env.MessageID] = env
		if env.InReplyTo != "" {
			idx.children[env.InReplyTo] = append(idx.children[env.InReplyTo], env.MessageID)
		}
	}
	for _, env := range envelopes {
		add(env)
	}
	for _, p := range pending {
		if _, ok := idx.byID[p.MessageID]; !ok {
			idx.local[p.MessageID] = true
			add(Envelope{MessageID: p.MessageID, InReplyTo: p.ReplyToMessageID, Date: p.Date})
		}
	}

	var (
		plans []ChainPlan
		errs  []error
		done  = make(map[string]bool)
	)
	for _, p := range pending {
		root, err := idx.findRoot(p.MessageID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if done[root] {
			continue
		}
		// A root nothing replies to is not a thread.
		if len(idx.children[root]) == 0 {
			continue
		}
		nodes, err := idx.expand(root)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		done[root] = true
		plans = append(plans, ChainPlan{RootID: root, RequesterEmail: p.RequesterEmail, Nodes: nodes})
	}
	return plans, errs
}

func (idx chainIndex) findRoot(id string) (string, error) {
	visited := make(map[string]bool)
	current := id
	for depth := 0; ; depth++ {
		if depth > idx.maxDepth {
			return "", apperr.Consistency("reply chain of %s is deeper than %d", id, idx.maxDepth)
		}
		if visited[current] {
			return "", apperr.Consistency("reply chain of %s has a cycle at %s", id, current)
		}
		visited[current] = true

		env, ok := idx.byID[current]
		if !ok || env.InReplyTo == "" {
			return current, nil
		}
		current = env.InReplyTo
	}
}

func (idx chainIndex) expand(root string) ([]ChainNode, error) {
	type item struct {
		id     string
		parent string
		depth  int
	}
	var nodes []ChainNode
	seen := map[string]bool{root: true}
	queue := []item{{id: root}}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.depth > idx.maxDepth {
			return nil, apperr.Consistency("reply chain rooted at %s is deeper than %d", root, idx.maxDepth)
		}

		env, ok := idx.byID[it.id]
		if !idx.local[it.id] {
			node := ChainNode{MessageID: it.id, ParentID: it.parent, UID: env.UID, Missing: !ok, Date: env.Date}
			if !ok {
				node.Date = idx.earliestChild(it.id)
			}
			nodes = append(nodes, node)
		}
		for _, child := range idx.children[it.id] {
			if seen[child] {
				continue
			}
			seen[child] = true
			queue = append(queue, item{id: child, parent: it.id, depth: it.depth + 1})
		}
	}
	return nodes, nil
}

func (idx chainIndex) earliestChild(id string) time.Time {
	var earliest time.Time
	for _, child := range idx.children[id] {
		d := idx.byID[child].Date
		if d.IsZero() {
			continue
		}
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	return earliest
}

// MaterializeChain turns a plan into raw messages using the fetched
// summaries. Missing nodes become Deleted placeholders dated at their
// earliest child, falling back to the date planned for them; summaries that fail validation are reported and left out.
func MaterializeChain(plan ChainPlan, summaries map[string]Summary, botEmail string, now time.Time) ([]RawMessage, []error) {
	earliestChild := make(map[string]time.Time)
	for _, n := range plan.Nodes {
		s, ok := summaries[n.MessageID]
		if !ok || n.ParentID == "" || s.Date.IsZero() {
			continue
		}
		if cur, ok := earliestChild[n.ParentID]; !ok || s.Date.Before(cur) {
			earliestChild[n.ParentID] = s.Date
		}
	}

	var (
		out  []RawMessage
		errs []error
	)
	for _, n := range plan.Nodes {
		if n.Missing {
			date, ok := earliestChild[n.MessageID]
			if !ok {
				date = n.Date
			}
			if date.IsZero() || date.After(now) {
				date = now
			}
			out = append(out, NewDeletedPlaceholder(n.MessageID, n.ParentID, plan.RequesterEmail, botEmail, date))
			continue
		}
		s, ok := summaries[n.MessageID]
		if !ok {
			continue
		}
		msg, err := Normalize(s, botEmail, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, msg)
	}
	return out, errs
}

// MergeRecent merges several newest-first mailbox listings into one,
// keeping the first copy of each message id, newest first, capped at count.
func MergeRecent(count int, lists ...[]Summary) []Summary {
	seen := make(map[string]bool)
	var merged []Summary
	for _, list := range lists {
		for _, s := range list {
			id := CanonicalMessageID(s.MessageID)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			merged = append(merged, s)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})
	if count >= 0 && len(merged) > count {
		merged = merged[:count]
	}
	return merged
}
