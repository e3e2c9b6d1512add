package scorer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/visibility-cli/internal/model"
)

// minContainment is the shortest normalized string allowed to take part in
// domain-containment matching.
const minContainment = 3

// NormalizeName case-folds a name and collapses whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(cases.Fold().String(name)), " ")
}

// NormalizeDomain strips scheme, "www." and trailing slashes, then case-folds.
func NormalizeDomain(rawURL string) string {
	d := cases.Fold().String(strings.TrimSpace(rawURL))
	for _, prefix := range []string{"https://", "http://"} {
		d = strings.TrimPrefix(d, prefix)
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimRight(d, "/")
}

// Input is everything the reconciler needs.
type Input struct {
	Rows      []RawRow
	Declared  []model.Competitor
	Providers []string
}

// Result is a reconciled ranking.
type Result struct {
	Rankings      []model.CompetitorRanking
	Comparison    []model.ProviderComparison
	TotalMentions int
}

type group struct {
	name      string
	url       string
	isOwn     bool
	order     int // declaration index; undeclared groups sort last
	mentions  int
	posWeight int
	posSum    float64
	sentiment float64
	providers map[string]int
}

type identity struct {
	names   map[string]int
	domains []declaredDomain
}

type declaredDomain struct {
	domain string
	index  int
}

// Reconcile relabels raw rows to declared competitors, merges duplicates and
// computes share of voice. It is deterministic for any ordering of in.Rows.
func Reconcile(in Input) Result {
	canon, ids := buildIdentity(in.Declared)

	groups := make(map[string]*group)
	var keys []string
	getGroup := func(key string, init func() *group) *group {
		g, ok := groups[key]
		if !ok {
			g = init()
			g.providers = make(map[string]int)
			groups[key] = g
			keys = append(keys, key)
		}
		return g
	}

	for i, c := range in.Declared {
		g := getGroup(declaredKey(canon[i]), func() *group {
			return &group{name: c.Name, url: c.URL, order: i}
		})
		g.isOwn = g.isOwn || c.IsOwn
	}

	rows := append([]RawRow(nil), in.Rows...)
	sort.Slice(rows, func(i, j int) bool {
		ni, nj := NormalizeName(rows[i].Label), NormalizeName(rows[j].Label)
		if ni != nj {
			return ni < nj
		}
		return rows[i].Label < rows[j].Label
	})

	for _, row := range rows {
		label := row.Label
		var g *group
		if idx, ok := ids.match(label); ok {
			g = groups[declaredKey(canon[idx])]
		} else {
			g = getGroup("n:"+NormalizeName(label), func() *group {
				return &group{name: strings.TrimSpace(label), order: math.MaxInt}
			})
		}
		g.add(row)
	}

	total := 0
	providerTotals := make(map[string]int, len(in.Providers))
	for _, g := range groups {
		total += g.mentions
		for _, p := range in.Providers {
			providerTotals[p] += g.providers[p]
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := groups[keys[i]], groups[keys[j]]
		va, vb := ShareOfVoice(a.mentions, total), ShareOfVoice(b.mentions, total)
		switch {
		case va != vb:
			return va > vb
		case a.mentions != b.mentions:
			return a.mentions > b.mentions
		case a.order != b.order:
			return a.order < b.order
		default:
			return NormalizeName(a.name) < NormalizeName(b.name)
		}
	})

	res := Result{TotalMentions: total}
	for _, key := range keys {
		g := groups[key]
		rank := model.CompetitorRanking{
			Name:            g.name,
			URL:             g.url,
			IsOwn:           g.isOwn,
			Mentions:        g.mentions,
			SentimentScore:  g.sentiment,
			VisibilityScore: ShareOfVoice(g.mentions, total),
		}
		if g.posWeight > 0 {
			rank.AveragePosition = g.posSum / float64(g.posWeight)
		}
		res.Rankings = append(res.Rankings, rank)

		cmp := model.ProviderComparison{
			Competitor: g.name,
			IsOwn:      g.isOwn,
			Providers:  make(map[string]model.ProviderScore, len(in.Providers)),
		}
		for _, p := range in.Providers {
			cmp.Providers[p] = model.ProviderScore{
				Mentions:        g.providers[p],
				VisibilityScore: ShareOfVoice(g.providers[p], providerTotals[p]),
			}
		}
		res.Comparison = append(res.Comparison, cmp)
	}
	return res
}

// ShareOfVoice is mentions as a percentage of total with one decimal place.
func ShareOfVoice(mentions, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(mentions)/float64(total)*1000) / 10
}

func (g *group) add(row RawRow) {
	g.mentions += row.Mentions
	if row.AveragePosition > 0 && row.Mentions > 0 {
		g.posSum += row.AveragePosition * float64(row.Mentions)
		g.posWeight += row.Mentions
	}
	if row.Mentions > 0 && row.SentimentScore > g.sentiment {
		g.sentiment = row.SentimentScore
	}
	for p, n := range row.Providers {
		g.providers[p] += n
	}
}

func declaredKey(i int) string {
	return "d:" + strconv.Itoa(i)
}

// buildIdentity indexes declared competitors by normalized name and domain.
// canon maps each declared index to the first declared index sharing its
// identity.
func buildIdentity(declared []model.Competitor) ([]int, identity) {
	canon := make([]int, len(declared))
	ids := identity{names: make(map[string]int, len(declared))}
	domainOwner := make(map[string]int, len(declared))

	for i, c := range declared {
		canon[i] = i
		name := NormalizeName(c.Name)
		domain := NormalizeDomain(c.URL)

		if first, ok := ids.names[name]; ok && name != "" {
			canon[i] = canon[first]
		} else if first, ok := domainOwner[domain]; ok && domain != "" {
			canon[i] = canon[first]
		}

		if canon[i] != i {
			zap.L().Warn("scorer: ambiguous competitor identity, merging",
				zap.String("kept", declared[canon[i]].Name),
				zap.String("merged", c.Name),
			)
		}

		if _, ok := ids.names[name]; !ok && name != "" {
			ids.names[name] = i
		}
		if _, ok := domainOwner[domain]; !ok && domain != "" {
			domainOwner[domain] = i
			ids.domains = append(ids.domains, declaredDomain{domain: domain, index: i})
		}
	}
	return canon, ids
}

// match finds the declared competitor a raw label refers to: exact
// normalized name first, then domain containment in either direction.
func (ids identity) match(label string) (int, bool) {
	if idx, ok := ids.names[NormalizeName(label)]; ok {
		return idx, true
	}
	d := NormalizeDomain(label)
	if utf8.RuneCountInString(d) < minContainment {
		return 0, false
	}
	for _, dd := range ids.domains {
		if utf8.RuneCountInString(dd.domain) < minContainment {
			continue
		}
		if strings.Contains(d, dd.domain) || strings.Contains(dd.domain, d) {
			return dd.index, true
		}
	}
	return 0, false
}
