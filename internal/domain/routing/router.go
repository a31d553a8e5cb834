// Package routing resolves a normalized message to exactly one dispatch
// target using filter and pattern based scoring over the configured
// triggers and bindings.
package routing

import (
	"fmt"

	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

// Score contributions. An exact command match bypasses scoring and
// always outranks free-text matches.
const (
	scoreChannel      = 100
	scoreUser         = 80
	scorePattern      = 60
	scorePerKeyword   = 40
	scoreBareMatch    = 10
	scoreExactCommand = 1000
	scoreDefault      = 0
)

// MetaEvent is the metadata key adapters use to record the native event
// kind of a payload ("push", "issue_comment", "slash_command", ...).
const MetaEvent = "event"

// Match is the routing outcome: the selected target, the resolved
// execution context, and the winning score.
type Match struct {
	Target  trigger.TargetRef
	Trigger *trigger.Config
	Context *trigger.ExecContext
	Binding *trigger.Binding // nil for command and default-target matches
	Score   int
	Reason  string
}

// Table is an immutable snapshot of the routing configuration used for
// a single decision.
type Table struct {
	Triggers map[string]*trigger.Config
	Bindings []trigger.Binding
	Contexts map[string]*trigger.ExecContext
}

// Route matches a message received by the named trigger against the
// table. The second return is false when the message matches nothing
// and must be dropped.
//
// Matching order: trigger-level filters gate everything; an exact
// command match wins outright; otherwise bindings are filtered by
// pattern and keyword constraints and the highest score wins, ties
// broken by declaration order; the trigger's default target, if any,
// catches the rest at score zero.
func (t *Table) Route(msg *message.Message, triggerName string) (*Match, bool) {
	trig, ok := t.Triggers[triggerName]
	if !ok || trig.Type != msg.Source {
		return nil, false
	}

	if !trig.MatchesFilters(msg.Channel, msg.User.ID, msg.Meta(MetaEvent)) {
		return nil, false
	}

	if target, ok := trig.CommandTarget(msg.Text); ok {
		return &Match{
			Target:  target,
			Trigger: trig,
			Context: t.resolveContext(trig.Context),
			Score:   scoreExactCommand,
			Reason:  "exact command match",
		}, true
	}

	if best := t.bestBinding(msg, trig); best != nil {
		return best, true
	}

	if trig.DefaultTarget != "" {
		target, err := trigger.ParseTargetRef(trig.DefaultTarget)
		if err == nil {
			return &Match{
				Target:  target,
				Trigger: trig,
				Context: t.resolveContext(trig.Context),
				Score:   scoreDefault,
				Reason:  "default target",
			}, true
		}
	}

	return nil, false
}

// bestBinding scores every eligible binding and returns the winner, or
// nil when none matched. Declaration order breaks ties, so the result
// is deterministic for a given configuration set.
func (t *Table) bestBinding(msg *message.Message, trig *trigger.Config) *Match {
	var best *Match
	var bestOrder int

	for i := range t.Bindings {
		b := &t.Bindings[i]
		if b.Trigger != trig.Name {
			continue
		}
		if !b.MatchesPattern(msg.Text) || !b.MatchesKeywords(msg.Text) {
			continue
		}

		score := ScoreBinding(b, trig)

		if best == nil || score > best.Score || (score == best.Score && b.Order < bestOrder) {
			target, err := trigger.ParseTargetRef(b.Target)
			if err != nil {
				continue
			}
			ctxName := b.Context
			if ctxName == "" {
				ctxName = trig.Context
			}
			best = &Match{
				Target:  target,
				Trigger: trig,
				Context: t.resolveContext(ctxName),
				Binding: b,
				Score:   score,
				Reason:  fmt.Sprintf("binding match, score %d", score),
			}
			bestOrder = b.Order
		}
	}
	return best
}

// ScoreBinding computes a binding's score for a message it already
// matched: base priority, channel specificity +100, user specificity
// +80, pattern +60, each required keyword +40, and +10 for a bare
// platform-only binding with no further constraints.
func ScoreBinding(b *trigger.Binding, trig *trigger.Config) int {
	score := b.Priority

	if len(trig.Filters.Channels) > 0 {
		score += scoreChannel
	}
	if len(trig.Filters.Users) > 0 {
		score += scoreUser
	}
	if b.Pattern != "" {
		score += scorePattern
	}
	score += scorePerKeyword * len(b.RequireKeywords)

	if b.Pattern == "" && len(b.RequireKeywords) == 0 &&
		len(trig.Filters.Channels) == 0 && len(trig.Filters.Users) == 0 {
		score += scoreBareMatch
	}
	return score
}

// resolveContext returns the named execution context with defaults
// applied, or a default-initialized context when the name is empty or
// unknown. The returned context is never nil.
func (t *Table) resolveContext(name string) *trigger.ExecContext {
	if name != "" {
		if ctx, ok := t.Contexts[name]; ok {
			return ctx
		}
	}
	ctx := &trigger.ExecContext{Name: "default"}
	ctx.ApplyDefaults()
	return ctx
}
