package extract

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultMaxKeywords bounds the local keyword set
const DefaultMaxKeywords = 8

var stopwords = toSet(`a about above after again against all also am an and any are aren't as at
be because been before being below between both but by can can't cannot could couldn't
did didn't do does doesn't doing don't down during each even ever few for from further
get gets got had hadn't has hasn't have haven't having he he'd he'll he's her here here's hers
herself him himself his how how's i i'd i'll i'm i've if in into is isn't it it's its itself
just know let's like lot me more most much must mustn't my myself no nor not now of off on once
only or other ought our ours ourselves out over own really right said same say says she she'd
she'll she's should shouldn't so some such than that that's the their theirs them themselves
then there there's these they they'd they'll they're they've thing things think this those
through to too under until up very was wasn't we we'd we'll we're we've well were weren't what
what's when when's where where's which while who who's whom why why's will with won't would
wouldn't yeah yes you you'd you'll you're you've your yours yourself yourselves going gonna
want actually okay people just still back way go went one two`)

// Terms that usually anchor a checkable public claim
var domainTerms = toSet(`tax taxes tariff tariffs inflation prices wages jobs unemployment economy
gdp deficit debt budget spending border immigration immigrants migrants asylum crime murder
police election elections vote votes voter fraud ballot vaccine vaccines covid virus health
healthcare insurance climate emissions energy oil gas nuclear war military troops ukraine
russia china israel gaza nato percent million billion trillion poll polls court supreme law
bill congress senate president minister government rate rates interest housing rent education
school schools abortion guns gun`)

func toSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

type scoredTerm struct {
	term  string
	score float64
	first int
}

// Keywords extracts up to max search keywords from text with a local
// heuristic: stopwords dropped, terms scored by frequency, domain terms and
// repeated bigrams boosted. The result is deterministic for a given input.
func Keywords(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxKeywords
	}
	tokens := tokenize(text)

	terms := make(map[string]*scoredTerm)
	add := func(term string, score float64, pos int) {
		if t, ok := terms[term]; ok {
			t.score += score
			return
		}
		terms[term] = &scoredTerm{term: term, score: score, first: pos}
	}

	for i, tok := range tokens {
		if !isContentWord(tok) {
			continue
		}
		score := 1.0
		if domainTerms[tok] {
			score *= 2.5
		}
		add(tok, score, i)
	}

	// Adjacent content-word pairs are kept when repeated or anchored by a
	// domain term
	type bigram struct{ count, first int }
	bigrams := make(map[string]*bigram)
	var order []string
	for i := 0; i+1 < len(tokens); i++ {
		a, b := tokens[i], tokens[i+1]
		if !isContentWord(a) || !isContentWord(b) {
			continue
		}
		key := a + " " + b
		if bg, ok := bigrams[key]; ok {
			bg.count++
			continue
		}
		bigrams[key] = &bigram{count: 1, first: i}
		order = append(order, key)
	}
	for _, key := range order {
		bg := bigrams[key]
		a, b, _ := strings.Cut(key, " ")
		if bg.count >= 2 || domainTerms[a] || domainTerms[b] {
			add(key, 1.5*float64(bg.count), bg.first)
		}
	}

	ranked := make([]*scoredTerm, 0, len(terms))
	for _, t := range terms {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].first < ranked[j].first
	})

	out := make([]string, 0, max)
	for _, t := range ranked {
		if len(out) == max {
			break
		}
		out = append(out, t.term)
	}
	return out
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isContentWord(tok string) bool {
	if stopwords[tok] {
		return false
	}
	if len([]rune(tok)) < 3 && !domainTerms[tok] {
		return false
	}
	for _, r := range tok {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
