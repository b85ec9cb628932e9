// Package brief aggregates one calendar date's drift events and new
// entrants into a single narrative digest row.
package brief

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/model"
	"github.com/radarworks/mcp-radar/internal/store"
)

// Store is the persistence surface the generator needs.
type Store interface {
	ListDriftEventsByDate(ctx context.Context, date time.Time) ([]model.DriftEvent, error)
	ListNewEntrants(ctx context.Context, date time.Time) ([]model.NewEntrant, error)
	GetEntityNames(ctx context.Context, ids []string) (map[string]string, error)
	UpsertDailyBrief(ctx context.Context, b *model.DailyBrief) error
}

// Generator builds and persists one brief per date.
type Generator struct {
	store Store
	topN  int
	log   *zap.Logger
}

// New creates a Generator. topN caps the mover/downgrade lists; <= 0 means 5.
func New(st Store, topN int) *Generator {
	if topN <= 0 {
		topN = 5
	}
	return &Generator{
		store: st,
		topN:  topN,
		log:   zap.L().With(zap.String("phase", "brief")),
	}
}

var narrativeTmpl = template.Must(template.New("brief").Parse(
	`Trust radar digest for {{.Date}}.
{{- if .Movers}}
Gainers: {{range $i, $m := .Movers}}{{if $i}}, {{end}}{{$m.Name}} ({{printf "%+.1f" $m.Delta}} to {{printf "%.1f" $m.Score}}, tier {{$m.Tier}}){{end}}.
{{- end}}
{{- if .Downgrades}}
Downgrades: {{range $i, $m := .Downgrades}}{{if $i}}, {{end}}{{$m.Name}} ({{printf "%+.1f" $m.Delta}} to {{printf "%.1f" $m.Score}}, tier {{$m.Tier}}){{end}}.
{{- end}}
{{- if .NewEntrants}}
New entrants: {{range $i, $e := .NewEntrants}}{{if $i}}, {{end}}{{$e.Name}} (tier {{$e.Tier}}){{end}}.
{{- end}}
{{- if .NotableDrift}}
Notable: {{range $i, $n := .NotableDrift}}{{if $i}}; {{end}}{{$n}}{{end}}.
{{- end}}
{{- if .Quiet}}
No drift detected and no new entrants.
{{- end}}`))

type narrativeData struct {
	Date         string
	Movers       []model.Mover
	Downgrades   []model.Mover
	NewEntrants  []model.NewEntrant
	NotableDrift []string
	Quiet        bool
}

// scoreDiff mirrors the ScoreChanged diff payload written by the sentinel.
type scoreDiff struct {
	Delta float64 `json:"delta"`
}

// Run builds the brief for one date and upserts it. Re-running for the same
// date overwrites the row.
func (g *Generator) Run(ctx context.Context, date time.Time) (*model.DailyBrief, *store.RunResult, error) {
	day := date.UTC().Truncate(24 * time.Hour)

	events, err := g.store.ListDriftEventsByDate(ctx, day)
	if err != nil {
		return nil, nil, eris.Wrap(err, "brief: list drift events")
	}
	entrants, err := g.store.ListNewEntrants(ctx, day)
	if err != nil {
		return nil, nil, eris.Wrap(err, "brief: list new entrants")
	}

	movers, downgrades, err := g.classifyMovers(ctx, events)
	if err != nil {
		return nil, nil, err
	}
	notable, err := g.highlights(ctx, events)
	if err != nil {
		return nil, nil, err
	}

	b := &model.DailyBrief{
		Date:         day,
		Headline:     headline(movers, downgrades, entrants, notable),
		Movers:       movers,
		Downgrades:   downgrades,
		NewEntrants:  entrants,
		NotableDrift: notable,
		GeneratedAt:  time.Now().UTC(),
	}

	var sb strings.Builder
	err = narrativeTmpl.Execute(&sb, narrativeData{
		Date:         day.Format("2006-01-02"),
		Movers:       movers,
		Downgrades:   downgrades,
		NewEntrants:  entrants,
		NotableDrift: notable,
		Quiet:        len(events) == 0 && len(entrants) == 0,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "brief: render narrative")
	}
	b.Narrative = sb.String()

	if err := g.store.UpsertDailyBrief(ctx, b); err != nil {
		return nil, nil, eris.Wrap(err, "brief: upsert")
	}

	g.log.Info("daily brief generated",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("events", len(events)),
		zap.Int("new_entrants", len(entrants)),
	)

	detail, err := json.Marshal(map[string]int{
		"events":       len(events),
		"movers":       len(movers),
		"downgrades":   len(downgrades),
		"new_entrants": len(entrants),
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "brief: marshal run detail")
	}
	return b, &store.RunResult{Processed: 1, Detail: detail}, nil
}

// classifyMovers splits the date's ScoreChanged events into gainer and
// downgrade lists, one entry per entity (largest |delta| wins), capped at
// topN per side.
func (g *Generator) classifyMovers(ctx context.Context, events []model.DriftEvent) (movers, downgrades []model.Mover, err error) {
	byEntity := map[string]model.Mover{}
	for _, ev := range events {
		if ev.Type != model.DriftScoreChanged {
			continue
		}
		var diff struct {
			scoreDiff
			Current     float64    `json:"current"`
			CurrentTier model.Tier `json:"current_tier"`
		}
		if err := json.Unmarshal(ev.Diff, &diff); err != nil {
			continue
		}
		m := model.Mover{
			EntityID: ev.EntityID,
			Delta:    diff.Delta,
			Score:    diff.Current,
			Tier:     diff.CurrentTier,
		}
		if cur, ok := byEntity[ev.EntityID]; !ok || abs(m.Delta) > abs(cur.Delta) {
			byEntity[ev.EntityID] = m
		}
	}
	if len(byEntity) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(byEntity))
	for id := range byEntity {
		ids = append(ids, id)
	}
	names, err := g.store.GetEntityNames(ctx, ids)
	if err != nil {
		return nil, nil, eris.Wrap(err, "brief: resolve entity names")
	}

	for id, m := range byEntity {
		m.Name = names[id]
		if m.Delta > 0 {
			movers = append(movers, m)
		} else {
			downgrades = append(downgrades, m)
		}
	}
	sortByMagnitude(movers)
	sortByMagnitude(downgrades)
	if len(movers) > g.topN {
		movers = movers[:g.topN]
	}
	if len(downgrades) > g.topN {
		downgrades = downgrades[:g.topN]
	}
	return movers, downgrades, nil
}

// highlights renders one line per Critical/High event, most severe first.
func (g *Generator) highlights(ctx context.Context, events []model.DriftEvent) ([]string, error) {
	var severe []model.DriftEvent
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Severity == model.SeverityCritical || ev.Severity == model.SeverityHigh {
			severe = append(severe, ev)
			ids = append(ids, ev.EntityID)
		}
	}
	if len(severe) == 0 {
		return nil, nil
	}

	names, err := g.store.GetEntityNames(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "brief: resolve entity names")
	}

	sort.SliceStable(severe, func(i, j int) bool {
		return severe[i].Severity.MoreSevere(severe[j].Severity)
	})

	lines := make([]string, len(severe))
	for i, ev := range severe {
		name := names[ev.EntityID]
		if name == "" {
			name = ev.EntityID
		}
		lines[i] = fmt.Sprintf("[%s] %s: %s", ev.Severity, name, ev.Summary)
	}
	return lines, nil
}

func headline(movers, downgrades []model.Mover, entrants []model.NewEntrant, notable []string) string {
	var parts []string
	if n := len(notable); n > 0 {
		parts = append(parts, fmt.Sprintf("%d severe drift event%s", n, plural(n)))
	}
	if n := len(downgrades); n > 0 {
		parts = append(parts, fmt.Sprintf("%d downgrade%s", n, plural(n)))
	}
	if n := len(movers); n > 0 {
		parts = append(parts, fmt.Sprintf("%d gainer%s", n, plural(n)))
	}
	if n := len(entrants); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new entrant%s", n, plural(n)))
	}
	if len(parts) == 0 {
		return "Quiet day: no drift, no new entrants"
	}
	return strings.Join(parts, ", ")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func sortByMagnitude(list []model.Mover) {
	sort.Slice(list, func(i, j int) bool {
		return abs(list[i].Delta) > abs(list[j].Delta)
	})
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
