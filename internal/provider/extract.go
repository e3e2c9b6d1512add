package provider

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/scorer"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	listItemRe    = regexp.MustCompile(`^\s*(?:[-*]\s*)?(\d{1,3})[.)]\s`)
)

var positiveWords = map[string]bool{
	"best": true, "leading": true, "excellent": true, "great": true, "top": true,
	"recommended": true, "recommend": true, "popular": true, "reliable": true,
	"strong": true, "trusted": true, "powerful": true, "favorite": true,
	"ideal": true, "outstanding": true, "robust": true, "innovative": true,
	"standout": true, "preferred": true,
}

var negativeWords = map[string]bool{
	"poor": true, "worst": true, "expensive": true, "lacking": true, "lacks": true,
	"limited": true, "outdated": true, "slow": true, "difficult": true,
	"complaints": true, "weak": true, "buggy": true, "avoid": true,
	"issues": true, "drawback": true, "drawbacks": true, "clunky": true,
}

type brandBlock struct {
	Brands []struct {
		Name      string `json:"name"`
		Position  *int   `json:"position"`
		Sentiment string `json:"sentiment"`
	} `json:"brands"`
}

// DomainOf reduces a URL to a bare lowercase host.
func DomainOf(rawURL string) string {
	d := scorer.NormalizeDomain(rawURL)
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}

// Extract turns an answer into one mention per label. Labels reported in a
// trailing JSON brand block are kept verbatim; without a usable block the
// prose is scanned for each entity. Entities that were not found are
// reported as not mentioned.
func Extract(answer string, entities []Entity) []model.Mention {
	prose, mentions, ok := parseBrandBlock(answer)
	if !ok {
		mentions = scan(prose, entities)
	}

	seen := make(map[string]bool, len(mentions))
	for _, m := range mentions {
		seen[scorer.NormalizeName(m.Entity)] = true
	}
	for _, e := range entities {
		if seen[scorer.NormalizeName(e.Name)] {
			continue
		}
		if ok && labelMatchesDomain(mentions, e.Domain) {
			continue
		}
		mentions = append(mentions, model.Mention{Entity: e.Name, Sentiment: model.SentimentNeutral})
	}
	return mentions
}

// StripBrandBlock removes the machine-readable block from an answer.
func StripBrandBlock(answer string) string {
	prose, _, _ := parseBrandBlock(answer)
	return prose
}

func parseBrandBlock(answer string) (string, []model.Mention, bool) {
	locs := fencedBlockRe.FindAllStringSubmatchIndex(answer, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		loc := locs[i]
		var block brandBlock
		if err := json.Unmarshal([]byte(answer[loc[2]:loc[3]]), &block); err != nil || block.Brands == nil {
			continue
		}

		prose := strings.TrimSpace(answer[:loc[0]] + answer[loc[1]:])
		var mentions []model.Mention
		for _, b := range block.Brands {
			name := strings.TrimSpace(b.Name)
			if name == "" {
				continue
			}
			m := model.Mention{
				Entity:    name,
				Mentioned: true,
				Sentiment: model.ParseSentiment(strings.ToLower(strings.TrimSpace(b.Sentiment))),
			}
			if b.Position != nil && *b.Position > 0 {
				p := *b.Position
				m.Position = &p
			}
			mentions = append(mentions, m)
		}
		return prose, scorer.MergeMentions(mentions), true
	}
	return answer, nil, false
}

func labelMatchesDomain(mentions []model.Mention, domain string) bool {
	if domain == "" {
		return false
	}
	for _, m := range mentions {
		if strings.Contains(strings.ToLower(m.Entity), domain) {
			return true
		}
	}
	return false
}

type hit struct {
	entity int
	offset int
}

func scan(prose string, entities []Entity) []model.Mention {
	var hits []hit
	for i, e := range entities {
		off := findEntity(prose, e)
		if off >= 0 {
			hits = append(hits, hit{entity: i, offset: off})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].offset < hits[b].offset })

	mentions := make([]model.Mention, 0, len(hits))
	for rank, h := range hits {
		pos := rank + 1
		if n, ok := listNumber(prose, h.offset); ok {
			pos = n
		}
		mentions = append(mentions, model.Mention{
			Entity:    entities[h.entity].Name,
			Mentioned: true,
			Position:  &pos,
			Sentiment: sentimentOf(sentenceAt(prose, h.offset)),
		})
	}
	return mentions
}

// findEntity returns the byte offset in prose of the first name or domain
// match, or -1. Both patterns run against prose itself since case folding can
// change byte lengths.
func findEntity(prose string, e Entity) int {
	best := -1
	if name := strings.TrimSpace(e.Name); name != "" {
		if re, err := regexp.Compile(`(?i)` + boundary(name, true) + regexp.QuoteMeta(name) + boundary(name, false)); err == nil {
			if loc := re.FindStringIndex(prose); loc != nil {
				best = loc[0]
			}
		}
	}
	if e.Domain != "" {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(e.Domain))
		if loc := re.FindStringIndex(prose); loc != nil && (best < 0 || loc[0] < best) {
			best = loc[0]
		}
	}
	return best
}

// boundary only anchors on word characters, so names like "C++" still match.
func boundary(name string, leading bool) string {
	var r rune
	if leading {
		r, _ = utf8.DecodeRuneInString(name)
	} else {
		r, _ = utf8.DecodeLastRuneInString(name)
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		return `\b`
	}
	return ""
}

func listNumber(prose string, offset int) (int, bool) {
	start := strings.LastIndexByte(prose[:offset], '\n') + 1
	end := strings.IndexByte(prose[offset:], '\n')
	line := prose[start:]
	if end >= 0 {
		line = prose[start : offset+end]
	}
	m := listItemRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func sentenceAt(prose string, offset int) string {
	start := strings.LastIndexAny(prose[:offset], ".!?\n") + 1
	end := strings.IndexAny(prose[offset:], ".!?\n")
	if end < 0 {
		return prose[start:]
	}
	return prose[start : offset+end]
}

func sentimentOf(sentence string) model.Sentiment {
	score := 0
	for _, w := range strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		switch {
		case positiveWords[w]:
			score++
		case negativeWords[w]:
			score--
		}
	}
	switch {
	case score > 0:
		return model.SentimentPositive
	case score < 0:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}
