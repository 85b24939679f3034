package slot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avasile/komando/internal/komando/intent"
	"github.com/avasile/komando/internal/komando/registry"
)

const (
	// DefaultFuzzyThreshold is the minimum registry score required to
	// consider an entity candidate at all.
	DefaultFuzzyThreshold = 0.8

	// DefaultCurrency is applied to bare amounts that carry no currency
	// marker.
	DefaultCurrency = "USD"

	// maxCandidates caps how many entity candidates a disambiguation
	// question offers.
	maxCandidates = 5
)

// ErrNoValue reports that no value of the slot's type could be recognized in
// the input.
var ErrNoValue = errors.New("slot: no value recognized")

// Config carries the extraction knobs. The zero Config uses the defaults and
// the wall clock.
type Config struct {
	FuzzyThreshold  float64
	DefaultCurrency string
	Now             func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = DefaultCurrency
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Ambiguity records an entity slot that matched more than one candidate.
type Ambiguity struct {
	Slot       string
	Candidates []registry.Candidate
}

// Result is the outcome of extracting a slot schema from a transcript.
// Missing lists unfilled required slots in schema order; ambiguous required
// slots appear in Missing too, since both are resolved the same way. Every
// slot in Missing has a question.
type Result struct {
	Values    map[string]Value
	Missing   []string
	Ambiguous []Ambiguity
	Questions map[string]string
}

// Extractor fills slot values from free text using fixed per-type rules.
// Entity slots resolve against the registry.
type Extractor struct {
	Registry registry.Registry
}

func NewExtractor(reg registry.Registry) *Extractor {
	return &Extractor{Registry: reg}
}

// Extract runs every slot's rule against the transcript. Slot rules are
// independent: each looks at the whole text, so the same token may feed more
// than one slot. Registry failures abort the extraction.
func (e *Extractor) Extract(ctx context.Context, text string, slots []intent.SlotSpec, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	res := &Result{
		Values:    make(map[string]Value),
		Questions: make(map[string]string),
	}
	for _, spec := range slots {
		val, amb, err := e.extractOne(ctx, text, spec, cfg)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", spec.Name, err)
		}
		switch {
		case amb != nil:
			res.Ambiguous = append(res.Ambiguous, *amb)
			if spec.Required {
				res.Missing = append(res.Missing, spec.Name)
				res.Questions[spec.Name] = disambiguationQuestion(spec, amb.Candidates)
			}
		case !val.IsZero():
			res.Values[spec.Name] = val
		case spec.Required:
			res.Missing = append(res.Missing, spec.Name)
			res.Questions[spec.Name] = missingQuestion(spec)
		}
	}
	return res, nil
}

// FillOne interprets a clarification answer as a value for a single slot.
// The answer is treated as dedicated input: a text slot takes it verbatim and
// an entity slot uses the whole answer as the lookup query. Returns ErrNoValue
// when the answer cannot be parsed, or an Ambiguity when an entity answer
// still matches several candidates.
func (e *Extractor) FillOne(ctx context.Context, spec intent.SlotSpec, raw string, cfg Config) (Value, *Ambiguity, error) {
	cfg = cfg.withDefaults()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, nil, ErrNoValue
	}
	switch spec.Type {
	case intent.SlotText:
		return Text(raw), nil, nil
	case intent.SlotNumber:
		for _, tok := range tokenize(raw) {
			if f, ok := parseNumber(tok); ok {
				return Number(f), nil, nil
			}
		}
		return Value{}, nil, ErrNoValue
	case intent.SlotMoney:
		if m, ok := parseMoney(raw, cfg.DefaultCurrency, true); ok {
			return Amount(m), nil, nil
		}
		return Value{}, nil, ErrNoValue
	case intent.SlotDate:
		if t, ok := parseDate(raw, cfg.Now()); ok {
			return Date(t), nil, nil
		}
		return Value{}, nil, ErrNoValue
	case intent.SlotBoolean:
		if b, ok := parseBoolean(raw); ok {
			return Bool(b), nil, nil
		}
		return Value{}, nil, ErrNoValue
	case intent.SlotEntity:
		return e.fillEntity(ctx, spec, raw, cfg)
	default:
		return Value{}, nil, fmt.Errorf("slot: unknown slot type %q", spec.Type)
	}
}

func (e *Extractor) extractOne(ctx context.Context, text string, spec intent.SlotSpec, cfg Config) (Value, *Ambiguity, error) {
	switch spec.Type {
	case intent.SlotText:
		if s, ok := extractText(text, spec.Name); ok {
			return Text(s), nil, nil
		}
	case intent.SlotNumber:
		if f, ok := extractNumber(text); ok {
			return Number(f), nil, nil
		}
	case intent.SlotMoney:
		if m, ok := parseMoney(text, cfg.DefaultCurrency, false); ok {
			return Amount(m), nil, nil
		}
	case intent.SlotDate:
		if t, ok := parseDate(text, cfg.Now()); ok {
			return Date(t), nil, nil
		}
	case intent.SlotBoolean:
		if b, ok := parseBoolean(text); ok {
			return Bool(b), nil, nil
		}
	case intent.SlotEntity:
		return e.extractEntity(ctx, text, spec, cfg)
	default:
		return Value{}, nil, fmt.Errorf("slot: unknown slot type %q", spec.Type)
	}
	return Value{}, nil, nil
}

// fillEntity resolves a clarification answer for an entity slot. An answer of
// the form "create <name>" registers a new entity when the registry supports
// creation.
func (e *Extractor) fillEntity(ctx context.Context, spec intent.SlotSpec, raw string, cfg Config) (Value, *Ambiguity, error) {
	if len(raw) > len("create ") && strings.EqualFold(raw[:len("create ")], "create ") {
		creator, supported := e.Registry.(registry.Creator)
		if !supported {
			return Value{}, nil, fmt.Errorf("slot: registry for kind %q does not support creation", spec.EntityKind)
		}
		name := strings.TrimSpace(raw[len("create "):])
		cand, err := creator.Create(ctx, spec.EntityKind, name)
		if err != nil {
			return Value{}, nil, fmt.Errorf("create %s %q: %w", spec.EntityKind, name, err)
		}
		return Entity(EntityRef{
			Kind:        spec.EntityKind,
			ID:          cand.ID,
			DisplayName: cand.DisplayName,
			Confidence:  1.0,
		}), nil, nil
	}

	cands, err := e.Registry.Lookup(ctx, spec.EntityKind, raw, cfg.FuzzyThreshold)
	if err != nil {
		return Value{}, nil, fmt.Errorf("lookup %s %q: %w", spec.EntityKind, raw, err)
	}
	switch len(cands) {
	case 0:
		return Value{}, nil, ErrNoValue
	case 1:
		return entityValue(spec, cands[0]), nil, nil
	default:
		return Value{}, &Ambiguity{Slot: spec.Name, Candidates: capCandidates(cands)}, nil
	}
}

// extractEntity scans candidate word spans of the transcript against the
// registry. Candidates are merged across spans by entity ID, keeping the best
// score; a single surviving entity resolves the slot, several make it
// ambiguous.
func (e *Extractor) extractEntity(ctx context.Context, text string, spec intent.SlotSpec, cfg Config) (Value, *Ambiguity, error) {
	best := make(map[string]registry.Candidate)
	for _, span := range entitySpans(text) {
		cands, err := e.Registry.Lookup(ctx, spec.EntityKind, span, cfg.FuzzyThreshold)
		if err != nil {
			return Value{}, nil, fmt.Errorf("lookup %s %q: %w", spec.EntityKind, span, err)
		}
		for _, c := range cands {
			if prev, ok := best[c.ID]; !ok || c.Score > prev.Score {
				best[c.ID] = c
			}
		}
	}
	switch len(best) {
	case 0:
		return Value{}, nil, nil
	case 1:
		for _, c := range best {
			return entityValue(spec, c), nil, nil
		}
	}
	merged := make([]registry.Candidate, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].DisplayName < merged[j].DisplayName
	})
	return Value{}, &Ambiguity{Slot: spec.Name, Candidates: capCandidates(merged)}, nil
}

func entityValue(spec intent.SlotSpec, c registry.Candidate) Value {
	return Entity(EntityRef{
		Kind:        spec.EntityKind,
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Confidence:  c.Score,
	})
}

func capCandidates(cands []registry.Candidate) []registry.Candidate {
	if len(cands) > maxCandidates {
		cands = cands[:maxCandidates]
	}
	return cands
}

func missingQuestion(spec intent.SlotSpec) string {
	q := spec.ClarifyingQuestion()
	if spec.Type == intent.SlotEntity {
		q += fmt.Sprintf(" I could not find a matching %s; answer with a name, or say \"create <name>\" to add one.", spec.EntityKind)
	}
	return q
}

func disambiguationQuestion(spec intent.SlotSpec, cands []registry.Candidate) string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.DisplayName
	}
	return fmt.Sprintf("Which %s did you mean: %s?", spec.Name, strings.Join(names, ", "))
}

var (
	numberRe   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	isoDateRe  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	dmyDateRe  = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	symbolRe   = regexp.MustCompile(`([$€£])\s*(\d+(?:\.\d+)?)`)
	codeAfter  = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(usd|eur|gbp|bdt|inr|jpy|cad|aud|chf)\b`)
	codeBefore = regexp.MustCompile(`\b(usd|eur|gbp|bdt|inr|jpy|cad|aud|chf)\s*(\d+(?:\.\d+)?)\b`)
	tokenRe    = regexp.MustCompile(`[\p{L}\p{N}$€£][\p{L}\p{N}$€£./-]*`)
)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// quantityWords mark a numeric token as a count when adjacent to it.
var quantityWords = map[string]struct{}{
	"sell": {}, "buy": {}, "add": {}, "remove": {}, "adjust": {},
	"order": {}, "ship": {}, "unit": {}, "units": {}, "pcs": {},
	"pieces": {}, "qty": {}, "quantity": {}, "x": {}, "of": {},
}

// stopwords are skipped when building entity lookup spans.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "for": {}, "of": {},
	"from": {}, "in": {}, "on": {}, "at": {}, "with": {}, "and": {},
	"or": {}, "is": {}, "are": {}, "my": {}, "me": {}, "i": {},
	"please": {}, "now": {}, "some": {}, "new": {},
}

var affirmatives = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "true": {}, "confirm": {},
	"proceed": {}, "ok": {}, "okay": {}, "sure": {}, "affirmative": {},
}

var negatives = map[string]struct{}{
	"no": {}, "nope": {}, "false": {}, "cancel": {}, "dont": {},
	"don't": {}, "negative": {}, "abort": {}, "stop": {},
}

func tokenize(text string) []string {
	return tokenRe.FindAllString(text, -1)
}

func parseNumber(tok string) (float64, bool) {
	if !numberRe.MatchString(tok) {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// extractText captures the words following an occurrence of the slot's name,
// up to three words or until a numeric token.
func extractText(text, name string) (string, bool) {
	toks := tokenize(text)
	for i, tok := range toks {
		if !strings.EqualFold(tok, name) {
			continue
		}
		var captured []string
		for _, follow := range toks[i+1:] {
			if len(captured) == 3 || numberRe.MatchString(follow) {
				break
			}
			captured = append(captured, follow)
		}
		if len(captured) > 0 {
			return strings.Join(captured, " "), true
		}
	}
	return "", false
}

// extractNumber picks a bare numeric token that is neither a date nor part of
// a money expression. A token adjacent to a quantity word wins over earlier
// ones.
func extractNumber(text string) (float64, bool) {
	toks := tokenize(strings.ToLower(text))
	var first *float64
	for i, tok := range toks {
		f, ok := parseNumber(tok)
		if !ok || moneyToken(toks, i) {
			continue
		}
		if adjacentQuantityWord(toks, i) {
			return f, true
		}
		if first == nil {
			v := f
			first = &v
		}
	}
	if first != nil {
		return *first, true
	}
	return 0, false
}

func adjacentQuantityWord(toks []string, i int) bool {
	if i > 0 {
		if _, ok := quantityWords[toks[i-1]]; ok {
			return true
		}
	}
	if i+1 < len(toks) {
		if _, ok := quantityWords[toks[i+1]]; ok {
			return true
		}
	}
	return false
}

func moneyToken(toks []string, i int) bool {
	if i > 0 {
		prev := toks[i-1]
		if _, ok := currencySymbols[prev]; ok {
			return true
		}
		if codeBefore.MatchString(prev + " " + toks[i]) {
			return true
		}
	}
	if i+1 < len(toks) {
		if codeAfter.MatchString(toks[i] + " " + toks[i+1]) {
			return true
		}
	}
	return false
}

// parseMoney recognizes symbol-prefixed amounts and amounts adjacent to an
// ISO currency code. With bareFallback, a plain number becomes an amount in
// the default currency.
func parseMoney(text, defaultCurrency string, bareFallback bool) (Money, bool) {
	lower := strings.ToLower(text)
	if m := symbolRe.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.ParseFloat(m[2], 64)
		return Money{Amount: amount, Currency: currencySymbols[m[1]]}, true
	}
	if m := codeAfter.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.ParseFloat(m[1], 64)
		return Money{Amount: amount, Currency: strings.ToUpper(m[2])}, true
	}
	if m := codeBefore.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.ParseFloat(m[2], 64)
		return Money{Amount: amount, Currency: strings.ToUpper(m[1])}, true
	}
	if bareFallback {
		for _, tok := range tokenize(lower) {
			if f, ok := parseNumber(tok); ok {
				return Money{Amount: f, Currency: defaultCurrency}, true
			}
		}
	}
	return Money{}, false
}

// parseDate recognizes relative day words and explicit dates. Relative dates
// are resolved against the reference clock; results are midnight UTC.
func parseDate(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)
	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case strings.Contains(lower, "today"):
		return today, true
	case strings.Contains(lower, "tomorrow"):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(lower, "yesterday"):
		return today.AddDate(0, 0, -1), true
	case strings.Contains(lower, "next week"):
		return today.AddDate(0, 0, 7), true
	}
	for _, tok := range tokenize(lower) {
		if m := isoDateRe.FindStringSubmatch(tok); m != nil {
			t, err := time.Parse("2006-01-02", tok)
			if err == nil {
				return t, true
			}
		}
		if m := dmyDateRe.FindStringSubmatch(tok); m != nil {
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
				return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

// parseBoolean matches a closed vocabulary; negatives win over affirmatives
// so "no, don't confirm" reads as false.
func parseBoolean(text string) (bool, bool) {
	for _, tok := range tokenize(strings.ToLower(text)) {
		if _, ok := negatives[tok]; ok {
			return false, true
		}
	}
	for _, tok := range tokenize(strings.ToLower(text)) {
		if _, ok := affirmatives[tok]; ok {
			return true, true
		}
	}
	return false, false
}

// entitySpans lists the word spans worth sending to the registry: contiguous
// runs of one to three non-stopword, non-numeric tokens.
func entitySpans(text string) []string {
	toks := tokenize(text)
	var kept []string
	for _, tok := range toks {
		lower := strings.ToLower(tok)
		if _, skip := stopwords[lower]; skip {
			continue
		}
		if numberRe.MatchString(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	var spans []string
	seen := make(map[string]struct{})
	for i := range kept {
		for n := 1; n <= 3 && i+n <= len(kept); n++ {
			span := strings.Join(kept[i:i+n], " ")
			if _, dup := seen[span]; dup {
				continue
			}
			seen[span] = struct{}{}
			spans = append(spans, span)
		}
	}
	return spans
}
